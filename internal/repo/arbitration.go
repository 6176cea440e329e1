package repo

import (
	"context"
	"database/sql"
	"strings"

	"bountyline/internal/domain"
)

const caseCols = `id,requester,case_type,target_actor,target_submission_id,evidence,fee_amount,fee_asset,status,resolver,resolution,resolved_at,created_at`

func scanCase(scan func(...any) error) (domain.ArbitrationCase, error) {
	var c domain.ArbitrationCase
	var resolution, resolvedAt sql.NullString
	err := scan(&c.ID, &c.Requester, &c.Type, &c.TargetActor, &c.TargetSubmissionID, &c.Evidence,
		&c.FeeAmount, &c.FeeAsset, &c.Status, &c.Resolver, &resolution, &resolvedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if resolution.Valid {
		c.Resolution = resolution.String
	}
	if resolvedAt.Valid {
		c.ResolvedAt = resolvedAt.String
	}
	return c, nil
}

func (r Repo) InsertCaseTx(ctx context.Context, tx *sql.Tx, c domain.ArbitrationCase) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO arbitration_cases(requester,case_type,target_actor,target_submission_id,evidence,fee_amount,fee_asset,status,resolver,resolution,resolved_at,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.Requester, c.Type, c.TargetActor, c.TargetSubmissionID, c.Evidence, c.FeeAmount, c.FeeAsset,
		c.Status, c.Resolver, nullable(c.Resolution), nullable(c.ResolvedAt), c.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateCaseTx(ctx context.Context, tx *sql.Tx, c domain.ArbitrationCase) error {
	res, err := tx.ExecContext(ctx, `UPDATE arbitration_cases SET fee_amount=?, status=?, resolver=?, resolution=?, resolved_at=? WHERE id=?`,
		c.FeeAmount, c.Status, c.Resolver, nullable(c.Resolution), nullable(c.ResolvedAt), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCase(ctx context.Context, id int64) (domain.ArbitrationCase, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+caseCols+` FROM arbitration_cases WHERE id=?`, id)
	return scanCase(row.Scan)
}

func (r Repo) GetCaseTx(ctx context.Context, tx *sql.Tx, id int64) (domain.ArbitrationCase, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+caseCols+` FROM arbitration_cases WHERE id=?`, id)
	return scanCase(row.Scan)
}

type CaseFilters struct {
	Requester string
	Status    string
	Type      string
	Limit     int
}

func (r Repo) ListCases(ctx context.Context, f CaseFilters) ([]domain.ArbitrationCase, error) {
	var clauses []string
	var args []any
	if f.Requester != "" {
		clauses = append(clauses, "requester=?")
		args = append(args, f.Requester)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "case_type=?")
		args = append(args, f.Type)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + caseCols + ` FROM arbitration_cases ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ArbitrationCase
	for rows.Next() {
		c, err := scanCase(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
