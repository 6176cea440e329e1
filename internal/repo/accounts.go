package repo

import (
	"context"
	"database/sql"

	"bountyline/internal/domain"
)

func scanAccount(scan func(...any) error) (domain.Account, error) {
	var a domain.Account
	var unstakeRequested int
	var unlockAt sql.NullString
	err := scan(&a.Actor, &a.Score, &a.Status, &a.StakedAmount, &a.StakeAsset, &unstakeRequested, &unlockAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.UnstakeRequested = unstakeRequested != 0
	if unlockAt.Valid {
		a.UnstakeUnlockAt = unlockAt.String
	}
	return a, nil
}

const accountCols = `actor,score,status,staked_amount,stake_asset,unstake_requested,unstake_unlock_at,created_at,updated_at`

func (r Repo) GetAccount(ctx context.Context, actor string) (domain.Account, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE actor=?`, actor)
	return scanAccount(row.Scan)
}

func (r Repo) GetAccountTx(ctx context.Context, tx *sql.Tx, actor string) (domain.Account, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE actor=?`, actor)
	return scanAccount(row.Scan)
}

func (r Repo) InsertAccountTx(ctx context.Context, tx *sql.Tx, a domain.Account) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accounts(`+accountCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.Actor, a.Score, a.Status, a.StakedAmount, a.StakeAsset, boolToInt(a.UnstakeRequested), nullable(a.UnstakeUnlockAt), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAccountTx(ctx context.Context, tx *sql.Tx, a domain.Account) error {
	res, err := tx.ExecContext(ctx, `UPDATE accounts SET score=?, status=?, staked_amount=?, stake_asset=?, unstake_requested=?, unstake_unlock_at=?, updated_at=? WHERE actor=?`,
		a.Score, a.Status, a.StakedAmount, a.StakeAsset, boolToInt(a.UnstakeRequested), nullable(a.UnstakeUnlockAt), a.UpdatedAt, a.Actor)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	query := `SELECT ` + accountCols + ` FROM accounts ORDER BY actor ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) GetCategoryScore(ctx context.Context, actor, category string) (domain.CategoryScore, error) {
	cs := domain.CategoryScore{Actor: actor, Category: category}
	err := r.DB.QueryRowContext(ctx, `SELECT claimed,pending FROM category_scores WHERE actor=? AND category=?`, actor, category).
		Scan(&cs.Claimed, &cs.Pending)
	if err == sql.ErrNoRows {
		return cs, nil
	}
	return cs, err
}

func (r Repo) GetCategoryScoreTx(ctx context.Context, tx *sql.Tx, actor, category string) (domain.CategoryScore, error) {
	cs := domain.CategoryScore{Actor: actor, Category: category}
	err := tx.QueryRowContext(ctx, `SELECT claimed,pending FROM category_scores WHERE actor=? AND category=?`, actor, category).
		Scan(&cs.Claimed, &cs.Pending)
	if err == sql.ErrNoRows {
		return cs, nil
	}
	return cs, err
}

func (r Repo) UpsertCategoryScoreTx(ctx context.Context, tx *sql.Tx, cs domain.CategoryScore) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO category_scores(actor,category,claimed,pending) VALUES (?,?,?,?)
ON CONFLICT(actor,category) DO UPDATE SET claimed=excluded.claimed, pending=excluded.pending`,
		cs.Actor, cs.Category, cs.Claimed, cs.Pending)
	return err
}

func (r Repo) ListCategoryScores(ctx context.Context, actor string) ([]domain.CategoryScore, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor,category,claimed,pending FROM category_scores WHERE actor=? ORDER BY category ASC`, actor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CategoryScore
	for rows.Next() {
		var cs domain.CategoryScore
		if err := rows.Scan(&cs.Actor, &cs.Category, &cs.Claimed, &cs.Pending); err != nil {
			return nil, err
		}
		res = append(res, cs)
	}
	return res, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
