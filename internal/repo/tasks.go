package repo

import (
	"context"
	"database/sql"
	"strings"

	"bountyline/internal/domain"
)

const taskCols = `id,owner,title,description,category,reward_amount,reward_asset,deadline,status,submit_guard,review_guard,adoption_strategy,reward_strategy,adopted_submission_id,created_at,updated_at`

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var desc sql.NullString
	err := scan(&t.ID, &t.Owner, &t.Title, &desc, &t.Category, &t.RewardAmount, &t.RewardAsset, &t.Deadline, &t.Status,
		&t.SubmitGuard, &t.ReviewGuard, &t.AdoptionStrategy, &t.RewardStrategy, &t.AdoptedSubmissionID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	return t, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(owner,title,description,category,reward_amount,reward_asset,deadline,status,submit_guard,review_guard,adoption_strategy,reward_strategy,adopted_submission_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Owner, t.Title, nullable(t.Description), t.Category, t.RewardAmount, t.RewardAsset, t.Deadline, t.Status,
		t.SubmitGuard, t.ReviewGuard, t.AdoptionStrategy, t.RewardStrategy, t.AdoptedSubmissionID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, category=?, reward_amount=?, reward_asset=?, deadline=?, status=?, submit_guard=?, review_guard=?, adoption_strategy=?, reward_strategy=?, adopted_submission_id=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Category, t.RewardAmount, t.RewardAsset, t.Deadline, t.Status,
		t.SubmitGuard, t.ReviewGuard, t.AdoptionStrategy, t.RewardStrategy, t.AdoptedSubmissionID, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	Owner    string
	Status   string
	Category string
	Limit    int
	CursorID int64
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Owner != "" {
		clauses = append(clauses, "owner=?")
		args = append(args, f.Owner)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CursorID > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskCols + ` FROM tasks ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
