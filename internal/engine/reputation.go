package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"bountyline/internal/domain"
	"bountyline/internal/events"
	"bountyline/internal/policy"
	"bountyline/internal/repo"
)

// statusFor derives an account status from its score.
func (e *Engine) statusFor(score int64) string {
	r := e.Config.Reputation
	switch {
	case score >= r.NormalThreshold:
		return domain.StatusNormal
	case score >= r.AtRiskThreshold:
		return domain.StatusAtRisk
	default:
		return domain.StatusBlacklisted
	}
}

// RequiredStake returns the stake an account must hold for marketplace
// access. Normal accounts need none. At-risk accounts need a slice of the
// base stake proportional to how far the score has fallen below the normal
// threshold. Blacklisted accounts cannot stake their way back in.
func (e *Engine) RequiredStake(a domain.Account) int64 {
	r := e.Config.Reputation
	switch a.Status {
	case domain.StatusNormal:
		return 0
	case domain.StatusAtRisk:
		span := r.NormalThreshold - r.AtRiskThreshold
		if span <= 0 {
			return r.BaseStake
		}
		return r.BaseStake * (r.NormalThreshold - a.Score) / span
	default:
		return math.MaxInt64
	}
}

func (e *Engine) accessCheck(a domain.Account) (bool, string) {
	switch a.Status {
	case domain.StatusUninitialized:
		return false, "account not initialized"
	case domain.StatusBlacklisted:
		return false, "account is blacklisted"
	case domain.StatusAtRisk:
		need := e.RequiredStake(a)
		if a.StakedAmount < need {
			return false, fmt.Sprintf("at-risk account requires stake of %d, holds %d", need, a.StakedAmount)
		}
		return true, ""
	default:
		return true, ""
	}
}

// ValidateAccess reports whether the actor may use gated marketplace
// operations, with a human-readable reason when denied.
func (e *Engine) ValidateAccess(ctx context.Context, actor string) (bool, string, error) {
	a, err := e.Repo.GetAccount(ctx, actor)
	if errors.Is(err, repo.ErrNotFound) {
		return false, "account not initialized", nil
	}
	if err != nil {
		return false, "", err
	}
	ok, reason := e.accessCheck(a)
	return ok, reason, nil
}

func (e *Engine) validateAccessTx(ctx context.Context, tx *sql.Tx, actor string) error {
	a, err := e.Repo.GetAccountTx(ctx, tx, actor)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: account not initialized", ErrAccessDenied)
	}
	if err != nil {
		return err
	}
	if ok, reason := e.accessCheck(a); !ok {
		return fmt.Errorf("%w: %s", ErrAccessDenied, reason)
	}
	return nil
}

func (e *Engine) initAccountTx(ctx context.Context, tx *sql.Tx, actor string) (domain.Account, bool, error) {
	a, err := e.Repo.GetAccountTx(ctx, tx, actor)
	if err == nil {
		return a, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Account{}, false, err
	}
	now := e.now()
	a = domain.Account{
		Actor:     actor,
		Score:     e.Config.Reputation.InitialScore,
		Status:    e.statusFor(e.Config.Reputation.InitialScore),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertAccountTx(ctx, tx, a); err != nil {
		return domain.Account{}, false, err
	}
	if err := e.Events.Append(ctx, tx, "reputation.initialized", "account", actor, actor, events.EventPayload{
		"score":  a.Score,
		"status": a.Status,
	}); err != nil {
		return domain.Account{}, false, err
	}
	return a, true, nil
}

// InitAccount creates the actor's reputation account with the configured
// initial score. Calling it again is a no-op returning the existing account.
func (e *Engine) InitAccount(ctx context.Context, actor string) (domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if actor == "" {
		return domain.Account{}, fmt.Errorf("%w: actor is required", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()

	a, created, err := e.initAccountTx(ctx, tx, actor)
	if err != nil {
		return domain.Account{}, err
	}
	if created {
		score, status := a.Score, a.Status
		e.queueNotify(func() {
			e.Renderer.OnMint(actor)
			e.Renderer.OnReputationChanged(actor, score, status)
		})
	}
	if err := e.commit(tx); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// updateReputationTx applies a signed delta to the actor's score, clamping
// to [0, max] and recomputing the status band. Restricted to authorized
// callers.
func (e *Engine) updateReputationTx(ctx context.Context, tx *sql.Tx, caller Caller, actor string, delta int64, reason string) (domain.Account, error) {
	if !e.callerAllowed(componentReputation, caller) {
		return domain.Account{}, fmt.Errorf("%w: caller %q may not update reputation", ErrUnauthorized, caller)
	}
	a, err := e.Repo.GetAccountTx(ctx, tx, actor)
	if err != nil {
		return domain.Account{}, err
	}
	score := a.Score + delta
	if score < 0 {
		score = 0
	}
	if max := e.Config.Reputation.MaxScore; score > max {
		score = max
	}
	a.Score = score
	a.Status = e.statusFor(score)
	a.UpdatedAt = e.now()
	if err := e.Repo.UpdateAccountTx(ctx, tx, a); err != nil {
		return domain.Account{}, err
	}
	if err := e.Events.Append(ctx, tx, "reputation.updated", "account", actor, actor, events.EventPayload{
		"delta":  delta,
		"score":  a.Score,
		"status": a.Status,
		"reason": reason,
	}); err != nil {
		return domain.Account{}, err
	}
	score, status := a.Score, a.Status
	e.queueNotify(func() { e.Renderer.OnReputationChanged(actor, score, status) })
	return a, nil
}

// AdjustReputation applies a manual score correction. Admin only.
func (e *Engine) AdjustReputation(ctx context.Context, actor, target string, delta int64, reason string) (domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if !e.isAdmin(actor) {
		return domain.Account{}, fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()

	a, err := e.updateReputationTx(ctx, tx, CallerAdmin, target, delta, reason)
	if err != nil {
		return domain.Account{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// Stake escrows amount from the actor's wallet as access collateral. The
// account is created on first interaction. Stake held across calls must use
// a single asset.
func (e *Engine) Stake(ctx context.Context, actor, asset string, amount int64) (domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if amount <= 0 {
		return domain.Account{}, fmt.Errorf("%w: stake amount must be positive", ErrInvalid)
	}
	if !e.Registry.IsAssetAllowed(asset) {
		return domain.Account{}, fmt.Errorf("%w: asset %q not allowed", ErrInvalid, asset)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()

	a, _, err := e.initAccountTx(ctx, tx, actor)
	if err != nil {
		return domain.Account{}, err
	}
	if a.StakedAmount > 0 && a.StakeAsset != asset {
		return domain.Account{}, fmt.Errorf("%w: existing stake is in %s", ErrStateConflict, a.StakeAsset)
	}
	// New collateral must not ride an already-running unlock window.
	if a.UnstakeRequested {
		return domain.Account{}, fmt.Errorf("%w: unstake in progress", ErrStateConflict)
	}
	if err := e.depositTx(ctx, tx, CallerReputation, actor, asset, domain.PurposeStake, actor, amount); err != nil {
		return domain.Account{}, err
	}
	a.StakedAmount += amount
	a.StakeAsset = asset
	a.UpdatedAt = e.now()
	if err := e.Repo.UpdateAccountTx(ctx, tx, a); err != nil {
		return domain.Account{}, err
	}
	if err := e.Events.Append(ctx, tx, "stake.added", "account", actor, actor, events.EventPayload{
		"asset":  asset,
		"amount": amount,
		"staked": a.StakedAmount,
	}); err != nil {
		return domain.Account{}, err
	}
	staked := a.StakedAmount
	e.queueNotify(func() { e.Renderer.OnStakeChanged(actor, staked, asset) })
	if err := e.commit(tx); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// RequestUnstake starts the two-phase withdrawal of staked collateral. The
// stake stays locked and keeps counting toward access requirements until
// the lock window elapses.
func (e *Engine) RequestUnstake(ctx context.Context, actor string) (domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAccountTx(ctx, tx, actor)
	if err != nil {
		return domain.Account{}, err
	}
	if a.StakedAmount <= 0 {
		return domain.Account{}, fmt.Errorf("%w: nothing staked", ErrStateConflict)
	}
	if a.UnstakeRequested {
		return domain.Account{}, fmt.Errorf("%w: unstake already requested", ErrStateConflict)
	}
	unlockAt := e.Now().UTC().Add(e.Config.UnstakeLock())
	a.UnstakeRequested = true
	a.UnstakeUnlockAt = unlockAt.Format(time.RFC3339)
	a.UpdatedAt = e.now()
	if err := e.Repo.UpdateAccountTx(ctx, tx, a); err != nil {
		return domain.Account{}, err
	}
	if err := e.Events.Append(ctx, tx, "unstake.requested", "account", actor, actor, events.EventPayload{
		"unlock_at": a.UnstakeUnlockAt,
	}); err != nil {
		return domain.Account{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// Unstake completes a requested withdrawal after the lock window, returning
// the full staked amount to the actor's wallet.
func (e *Engine) Unstake(ctx context.Context, actor string) (domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAccountTx(ctx, tx, actor)
	if err != nil {
		return domain.Account{}, err
	}
	if !a.UnstakeRequested {
		return domain.Account{}, fmt.Errorf("%w: no unstake requested", ErrStateConflict)
	}
	unlockAt, err := time.Parse(time.RFC3339, a.UnstakeUnlockAt)
	if err != nil {
		return domain.Account{}, fmt.Errorf("parse unlock time: %w", err)
	}
	if e.Now().UTC().Before(unlockAt) {
		return domain.Account{}, fmt.Errorf("%w: stake locked until %s", ErrStateConflict, a.UnstakeUnlockAt)
	}
	amount, asset := a.StakedAmount, a.StakeAsset
	if err := e.withdrawTx(ctx, tx, CallerReputation, asset, domain.PurposeStake, actor, actor, amount); err != nil {
		return domain.Account{}, err
	}
	a.StakedAmount = 0
	a.StakeAsset = ""
	a.UnstakeRequested = false
	a.UnstakeUnlockAt = ""
	a.UpdatedAt = e.now()
	if err := e.Repo.UpdateAccountTx(ctx, tx, a); err != nil {
		return domain.Account{}, err
	}
	if err := e.Events.Append(ctx, tx, "unstake.completed", "account", actor, actor, events.EventPayload{
		"asset":  asset,
		"amount": amount,
	}); err != nil {
		return domain.Account{}, err
	}
	e.queueNotify(func() { e.Renderer.OnStakeChanged(actor, 0, asset) })
	if err := e.commit(tx); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// addPendingCategoryScoreTx accrues unclaimed category score. Restricted to
// authorized callers.
func (e *Engine) addPendingCategoryScoreTx(ctx context.Context, tx *sql.Tx, caller Caller, actor, category string, amount int64) error {
	if !e.callerAllowed(componentReputation, caller) {
		return fmt.Errorf("%w: caller %q may not accrue category score", ErrUnauthorized, caller)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	cs, err := e.Repo.GetCategoryScoreTx(ctx, tx, actor, category)
	if err != nil {
		return err
	}
	cs.Actor = actor
	cs.Category = category
	cs.Pending += amount
	if err := e.Repo.UpsertCategoryScoreTx(ctx, tx, cs); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "category_score.accrued", "account", actor, actor, events.EventPayload{
		"category": category,
		"amount":   amount,
		"pending":  cs.Pending,
	}); err != nil {
		return err
	}
	claimed, pending := cs.Claimed, cs.Pending
	e.queueNotify(func() { e.Renderer.OnCategoryScoreChanged(actor, category, claimed, pending) })
	return nil
}

// GrantCategoryScore accrues pending category score by hand. Admin only.
func (e *Engine) GrantCategoryScore(ctx context.Context, actor, target, category string, amount int64) error {
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
	if err := e.addPendingCategoryScoreTx(ctx, tx, CallerAdmin, target, category, amount); err != nil {
		return err
	}
	return e.commit(tx)
}

// ClaimCategoryScore converts pending category score into claimed score.
// Claiming more than is pending fails.
func (e *Engine) ClaimCategoryScore(ctx context.Context, actor, category string, amount int64) (domain.CategoryScore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if amount <= 0 {
		return domain.CategoryScore{}, fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.CategoryScore{}, err
	}
	defer tx.Rollback()

	cs, err := e.Repo.GetCategoryScoreTx(ctx, tx, actor, category)
	if err != nil {
		return domain.CategoryScore{}, err
	}
	if cs.Pending < amount {
		return domain.CategoryScore{}, fmt.Errorf("%w: pending %s score is %d, need %d", ErrInsufficient, category, cs.Pending, amount)
	}
	cs.Actor = actor
	cs.Category = category
	cs.Pending -= amount
	cs.Claimed += amount
	if err := e.Repo.UpsertCategoryScoreTx(ctx, tx, cs); err != nil {
		return domain.CategoryScore{}, err
	}
	if err := e.Events.Append(ctx, tx, "category_score.claimed", "account", actor, actor, events.EventPayload{
		"category": category,
		"amount":   amount,
		"claimed":  cs.Claimed,
		"pending":  cs.Pending,
	}); err != nil {
		return domain.CategoryScore{}, err
	}
	claimed, pending := cs.Claimed, cs.Pending
	e.queueNotify(func() { e.Renderer.OnCategoryScoreChanged(actor, category, claimed, pending) })
	if err := e.commit(tx); err != nil {
		return domain.CategoryScore{}, err
	}
	return cs, nil
}

// actorState snapshots the fields policy guards evaluate.
func actorState(a domain.Account) policy.ActorState {
	return policy.ActorState{
		Actor:        a.Actor,
		Score:        a.Score,
		Status:       a.Status,
		StakedAmount: a.StakedAmount,
	}
}
