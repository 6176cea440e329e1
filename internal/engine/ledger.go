package engine

import (
	"context"
	"database/sql"
	"fmt"

	"bountyline/internal/domain"
	"bountyline/internal/events"
)

// Custody primitives. All value held by the marketplace lives in keyed
// balances (asset, purpose, ref); actor-spendable value lives in wallets.
// Deposits debit a wallet and credit a keyed balance, withdrawals do the
// reverse. Locked totals track custody per asset excluding the platform
// fee pool, so conservation can be checked at any time:
// sum of non-platform balances == locked total, per asset.

// depositTx moves amount from the actor's wallet into the keyed balance.
// Restricted to authorized callers.
func (e *Engine) depositTx(ctx context.Context, tx *sql.Tx, caller Caller, from, asset, purpose, ref string, amount int64) error {
	if e.paused {
		return ErrPaused
	}
	if !e.callerAllowed(componentLedger, caller) {
		return fmt.Errorf("%w: caller %q may not deposit", ErrUnauthorized, caller)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", ErrInvalid)
	}
	held, err := e.Repo.GetWalletTx(ctx, tx, from, asset)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("%w: wallet holds %d %s, need %d", ErrInsufficient, held, asset, amount)
	}
	if err := e.Repo.AddWalletTx(ctx, tx, from, asset, -amount); err != nil {
		return err
	}
	if err := e.Repo.AddBalanceTx(ctx, tx, asset, purpose, ref, amount); err != nil {
		return err
	}
	if purpose != domain.PurposePlatform {
		if err := e.Repo.AddLockedTx(ctx, tx, asset, amount); err != nil {
			return err
		}
	}
	return nil
}

// withdrawTx moves amount from the keyed balance to the recipient's wallet.
// Custody state is decremented before the wallet is credited. Restricted to
// authorized callers.
func (e *Engine) withdrawTx(ctx context.Context, tx *sql.Tx, caller Caller, asset, purpose, ref, recipient string, amount int64) error {
	if e.paused {
		return ErrPaused
	}
	if !e.callerAllowed(componentLedger, caller) {
		return fmt.Errorf("%w: caller %q may not withdraw", ErrUnauthorized, caller)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalid)
	}
	bal, err := e.Repo.GetBalanceTx(ctx, tx, asset, purpose, ref)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: balance %s/%s/%s holds %d, need %d", ErrInsufficient, asset, purpose, ref, bal, amount)
	}
	if err := e.Repo.AddBalanceTx(ctx, tx, asset, purpose, ref, -amount); err != nil {
		return err
	}
	if purpose != domain.PurposePlatform {
		if err := e.Repo.AddLockedTx(ctx, tx, asset, -amount); err != nil {
			return err
		}
	}
	return e.Repo.AddWalletTx(ctx, tx, recipient, asset, amount)
}

// allocatePlatformFeeTx moves amount from a keyed balance into the platform
// fee pool. The pool is outside the locked total.
func (e *Engine) allocatePlatformFeeTx(ctx context.Context, tx *sql.Tx, caller Caller, asset, fromPurpose, fromRef string, amount int64) error {
	if e.paused {
		return ErrPaused
	}
	if !e.callerAllowed(componentLedger, caller) {
		return fmt.Errorf("%w: caller %q may not allocate fees", ErrUnauthorized, caller)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: fee amount must be positive", ErrInvalid)
	}
	bal, err := e.Repo.GetBalanceTx(ctx, tx, asset, fromPurpose, fromRef)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: balance %s/%s/%s holds %d, need %d", ErrInsufficient, asset, fromPurpose, fromRef, bal, amount)
	}
	if err := e.Repo.AddBalanceTx(ctx, tx, asset, fromPurpose, fromRef, -amount); err != nil {
		return err
	}
	if err := e.Repo.AddLockedTx(ctx, tx, asset, -amount); err != nil {
		return err
	}
	return e.Repo.AddBalanceTx(ctx, tx, asset, domain.PurposePlatform, "", amount)
}

// SetPaused engages or releases the emergency breaker. While paused every
// custody move except EmergencyWithdraw fails with ErrPaused. Admin only.
func (e *Engine) SetPaused(ctx context.Context, actor string, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if !e.isAdmin(actor) {
		return fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	val := "false"
	evt := "ledger.resumed"
	if paused {
		val = "true"
		evt = "ledger.paused"
	}
	if err := e.Repo.SetSettingTx(ctx, tx, pausedSettingKey, val); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evt, "ledger", "", actor, nil); err != nil {
		return err
	}
	if err := e.commit(tx); err != nil {
		return err
	}
	e.paused = paused
	return nil
}

// Paused reports whether the emergency breaker is engaged.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// WithdrawPlatformFees pays accumulated fees out of the platform pool to a
// wallet. Admin only.
func (e *Engine) WithdrawPlatformFees(ctx context.Context, actor, asset, recipient string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if !e.isAdmin(actor) {
		return fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	if e.paused {
		return ErrPaused
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pool, err := e.Repo.GetBalanceTx(ctx, tx, asset, domain.PurposePlatform, "")
	if err != nil {
		return err
	}
	if pool < amount {
		return fmt.Errorf("%w: fee pool holds %d %s, need %d", ErrInsufficient, pool, asset, amount)
	}
	if err := e.Repo.AddBalanceTx(ctx, tx, asset, domain.PurposePlatform, "", -amount); err != nil {
		return err
	}
	if err := e.Repo.AddWalletTx(ctx, tx, recipient, asset, amount); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "ledger.platform_fees_withdrawn", "ledger", "", actor, events.EventPayload{
		"asset":     asset,
		"amount":    amount,
		"recipient": recipient,
	}); err != nil {
		return err
	}
	return e.commit(tx)
}

// EmergencyWithdraw extracts value from custody while the system may be
// paused, bypassing purpose accounting. It exists for incident recovery and
// deliberately breaks the conservation check until balances are reconciled.
// Admin only.
func (e *Engine) EmergencyWithdraw(ctx context.Context, actor, asset, recipient string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if !e.isAdmin(actor) {
		return fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	locked, err := e.Repo.GetLockedTx(ctx, tx, asset)
	if err != nil {
		return err
	}
	if locked < amount {
		return fmt.Errorf("%w: locked total %d %s, need %d", ErrInsufficient, locked, asset, amount)
	}
	if err := e.Repo.AddLockedTx(ctx, tx, asset, -amount); err != nil {
		return err
	}
	if err := e.Repo.AddWalletTx(ctx, tx, recipient, asset, amount); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "ledger.emergency_withdrawal", "ledger", "", actor, events.EventPayload{
		"asset":     asset,
		"amount":    amount,
		"recipient": recipient,
	}); err != nil {
		return err
	}
	return e.commit(tx)
}

// Mint credits a wallet out of thin air. A registry-listed asset is
// required. Admin only; intended for local development and bootstrap.
func (e *Engine) Mint(ctx context.Context, actor, recipient, asset string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if !e.isAdmin(actor) {
		return fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	if !e.Registry.IsAssetAllowed(asset) {
		return fmt.Errorf("%w: asset %q not allowed", ErrInvalid, asset)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.AddWalletTx(ctx, tx, recipient, asset, amount); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "wallet.minted", "account", recipient, actor, events.EventPayload{
		"recipient": recipient,
		"asset":     asset,
		"amount":    amount,
	}); err != nil {
		return err
	}
	e.queueNotify(func() { e.Renderer.OnMint(recipient) })
	return e.commit(tx)
}

// VerifyConservation checks that the sum of non-platform balances equals
// the locked total for the asset. It returns both sides so callers can log
// the discrepancy.
func (e *Engine) VerifyConservation(ctx context.Context, asset string) (custody, locked int64, err error) {
	custody, err = e.Repo.SumCustody(ctx, asset)
	if err != nil {
		return 0, 0, err
	}
	locked, err = e.Repo.GetLocked(ctx, asset)
	if err != nil {
		return 0, 0, err
	}
	return custody, locked, nil
}
