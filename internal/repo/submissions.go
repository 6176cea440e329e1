package repo

import (
	"context"
	"database/sql"
	"strings"

	"bountyline/internal/domain"
)

const submissionCols = `id,task_id,owner,content,version,status,approve_count,reject_count,created_at,updated_at`

func scanSubmission(scan func(...any) error) (domain.Submission, error) {
	var s domain.Submission
	err := scan(&s.ID, &s.TaskID, &s.Owner, &s.Content, &s.Version, &s.Status, &s.ApproveCount, &s.RejectCount, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertSubmissionTx(ctx context.Context, tx *sql.Tx, s domain.Submission) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO submissions(task_id,owner,content,version,status,approve_count,reject_count,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		s.TaskID, s.Owner, s.Content, s.Version, s.Status, s.ApproveCount, s.RejectCount, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateSubmissionTx(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	res, err := tx.ExecContext(ctx, `UPDATE submissions SET content=?, version=?, status=?, approve_count=?, reject_count=?, updated_at=? WHERE id=?`,
		s.Content, s.Version, s.Status, s.ApproveCount, s.RejectCount, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetSubmission(ctx context.Context, id int64) (domain.Submission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+submissionCols+` FROM submissions WHERE id=?`, id)
	return scanSubmission(row.Scan)
}

func (r Repo) GetSubmissionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Submission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+submissionCols+` FROM submissions WHERE id=?`, id)
	return scanSubmission(row.Scan)
}

type SubmissionFilters struct {
	TaskID int64
	Owner  string
	Status string
	Limit  int
}

func (r Repo) ListSubmissions(ctx context.Context, f SubmissionFilters) ([]domain.Submission, error) {
	var clauses []string
	var args []any
	if f.TaskID > 0 {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.Owner != "" {
		clauses = append(clauses, "owner=?")
		args = append(args, f.Owner)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + submissionCols + ` FROM submissions ` + where + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertSubmissionVersionTx(ctx context.Context, tx *sql.Tx, v domain.SubmissionVersion) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO submission_versions(submission_id,version,content,created_at) VALUES (?,?,?,?)`,
		v.SubmissionID, v.Version, v.Content, v.CreatedAt)
	return err
}

func (r Repo) ListSubmissionVersions(ctx context.Context, submissionID int64) ([]domain.SubmissionVersion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT submission_id,version,content,created_at FROM submission_versions WHERE submission_id=? ORDER BY version ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SubmissionVersion
	for rows.Next() {
		var v domain.SubmissionVersion
		if err := rows.Scan(&v.SubmissionID, &v.Version, &v.Content, &v.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) InsertReviewTx(ctx context.Context, tx *sql.Tx, rv domain.Review) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO reviews(submission_id,reviewer,outcome,reason,created_at) VALUES (?,?,?,?,?)`,
		rv.SubmissionID, rv.Reviewer, rv.Outcome, nullable(rv.Reason), rv.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	var rv domain.Review
	var reason sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,submission_id,reviewer,outcome,reason,created_at FROM reviews WHERE id=?`, id).
		Scan(&rv.ID, &rv.SubmissionID, &rv.Reviewer, &rv.Outcome, &reason, &rv.CreatedAt)
	if err == sql.ErrNoRows {
		return rv, ErrNotFound
	}
	if reason.Valid {
		rv.Reason = reason.String
	}
	return rv, err
}

func (r Repo) HasReviewTx(ctx context.Context, tx *sql.Tx, submissionID int64, reviewer string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM reviews WHERE submission_id=? AND reviewer=? LIMIT 1`, submissionID, reviewer)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListReviews(ctx context.Context, submissionID int64) ([]domain.Review, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,submission_id,reviewer,outcome,reason,created_at FROM reviews WHERE submission_id=? ORDER BY id ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReviews(rows)
}

func (r Repo) ListReviewsTx(ctx context.Context, tx *sql.Tx, submissionID int64) ([]domain.Review, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,submission_id,reviewer,outcome,reason,created_at FROM reviews WHERE submission_id=? ORDER BY id ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReviews(rows)
}

func collectReviews(rows *sql.Rows) ([]domain.Review, error) {
	var res []domain.Review
	for rows.Next() {
		var rv domain.Review
		var reason sql.NullString
		if err := rows.Scan(&rv.ID, &rv.SubmissionID, &rv.Reviewer, &rv.Outcome, &reason, &rv.CreatedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			rv.Reason = reason.String
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}

// CountAdoptedTx counts submissions of a task holding adopted status.
func (r Repo) CountAdoptedTx(ctx context.Context, tx *sql.Tx, taskID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM submissions WHERE task_id=? AND status=?`, taskID, domain.SubmissionAdopted).Scan(&n)
	return n, err
}
