package repo

import (
	"context"
	"database/sql"

	"bountyline/internal/domain"
)

func (r Repo) GetWallet(ctx context.Context, actor, asset string) (int64, error) {
	var amount int64
	err := r.DB.QueryRowContext(ctx, `SELECT amount FROM wallets WHERE actor=? AND asset=?`, actor, asset).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

func (r Repo) GetWalletTx(ctx context.Context, tx *sql.Tx, actor, asset string) (int64, error) {
	var amount int64
	err := tx.QueryRowContext(ctx, `SELECT amount FROM wallets WHERE actor=? AND asset=?`, actor, asset).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

// AddWalletTx adjusts an actor's wallet by delta, creating the row on first
// touch. Callers check for sufficient funds before debiting.
func (r Repo) AddWalletTx(ctx context.Context, tx *sql.Tx, actor, asset string, delta int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO wallets(actor,asset,amount) VALUES (?,?,?)
ON CONFLICT(actor,asset) DO UPDATE SET amount=amount+excluded.amount`, actor, asset, delta)
	return err
}

func (r Repo) ListWallets(ctx context.Context, actor string) ([]domain.Wallet, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor,asset,amount FROM wallets WHERE actor=? ORDER BY asset ASC`, actor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.Actor, &w.Asset, &w.Amount); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) GetBalance(ctx context.Context, asset, purpose, ref string) (int64, error) {
	var amount int64
	err := r.DB.QueryRowContext(ctx, `SELECT amount FROM balances WHERE asset=? AND purpose=? AND ref=?`, asset, purpose, ref).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

func (r Repo) GetBalanceTx(ctx context.Context, tx *sql.Tx, asset, purpose, ref string) (int64, error) {
	var amount int64
	err := tx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE asset=? AND purpose=? AND ref=?`, asset, purpose, ref).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

func (r Repo) AddBalanceTx(ctx context.Context, tx *sql.Tx, asset, purpose, ref string, delta int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO balances(asset,purpose,ref,amount) VALUES (?,?,?,?)
ON CONFLICT(asset,purpose,ref) DO UPDATE SET amount=amount+excluded.amount`, asset, purpose, ref, delta)
	return err
}

func (r Repo) GetLocked(ctx context.Context, asset string) (int64, error) {
	var amount int64
	err := r.DB.QueryRowContext(ctx, `SELECT amount FROM locked_totals WHERE asset=?`, asset).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

func (r Repo) GetLockedTx(ctx context.Context, tx *sql.Tx, asset string) (int64, error) {
	var amount int64
	err := tx.QueryRowContext(ctx, `SELECT amount FROM locked_totals WHERE asset=?`, asset).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

func (r Repo) AddLockedTx(ctx context.Context, tx *sql.Tx, asset string, delta int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO locked_totals(asset,amount) VALUES (?,?)
ON CONFLICT(asset) DO UPDATE SET amount=amount+excluded.amount`, asset, delta)
	return err
}

type BalanceFilters struct {
	Asset   string
	Purpose string
}

func (r Repo) ListBalances(ctx context.Context, f BalanceFilters) ([]domain.BalanceEntry, error) {
	query := `SELECT asset,purpose,ref,amount FROM balances`
	var clauses []string
	var args []any
	if f.Asset != "" {
		clauses = append(clauses, "asset=?")
		args = append(args, f.Asset)
	}
	if f.Purpose != "" {
		clauses = append(clauses, "purpose=?")
		args = append(args, f.Purpose)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += ` ORDER BY asset,purpose,ref`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BalanceEntry
	for rows.Next() {
		var b domain.BalanceEntry
		if err := rows.Scan(&b.Asset, &b.Purpose, &b.Ref, &b.Amount); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// SumCustody returns the sum of all non-platform purpose balances for an
// asset, which must equal the asset's locked total at all times.
func (r Repo) SumCustody(ctx context.Context, asset string) (int64, error) {
	var sum int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount),0) FROM balances WHERE asset=? AND purpose != ?`, asset, domain.PurposePlatform).Scan(&sum)
	return sum, err
}

// SumWallets returns the total of all actor wallets for an asset.
func (r Repo) SumWallets(ctx context.Context, asset string) (int64, error) {
	var sum int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount),0) FROM wallets WHERE asset=?`, asset).Scan(&sum)
	return sum, err
}

// PlatformFees returns the fee pool balance for an asset.
func (r Repo) PlatformFees(ctx context.Context, asset string) (int64, error) {
	return r.GetBalance(ctx, asset, domain.PurposePlatform, "")
}
