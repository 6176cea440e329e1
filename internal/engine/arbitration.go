package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bountyline/internal/domain"
	"bountyline/internal/events"
	"bountyline/internal/repo"
)

func (e *Engine) checkArbitrationRequest(ctx context.Context, tx *sql.Tx, actor, evidence string, fee int64) error {
	if evidence == "" {
		return fmt.Errorf("%w: evidence is required", ErrInvalid)
	}
	if fee < e.Config.Arbitration.MinFee {
		return fmt.Errorf("%w: fee %d below minimum %d", ErrInvalid, fee, e.Config.Arbitration.MinFee)
	}
	a, err := e.Repo.GetAccountTx(ctx, tx, actor)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: account not initialized", ErrAccessDenied)
	}
	if err != nil {
		return err
	}
	if a.Score < e.Config.Arbitration.MinRequesterScore {
		return fmt.Errorf("%w: score %d below arbitration minimum %d", ErrAccessDenied, a.Score, e.Config.Arbitration.MinRequesterScore)
	}
	if ok, reason := e.accessCheck(a); !ok {
		return fmt.Errorf("%w: %s", ErrAccessDenied, reason)
	}
	return nil
}

// escrowFeeTx moves the arbitration fee from the requester's wallet into
// custody keyed by the case id.
func (e *Engine) escrowFeeTx(ctx context.Context, tx *sql.Tx, requester string, caseID, fee int64) error {
	return e.depositTx(ctx, tx, CallerArbitration, requester, e.Config.Arbitration.FeeAsset, domain.PurposeArbitration, idRef(caseID), fee)
}

// RequestUserArbitration opens a case disputing a degraded reputation. The
// target must hold a degraded (below normal) account.
func (e *Engine) RequestUserArbitration(ctx context.Context, actor, targetActor, evidence string, fee int64) (domain.ArbitrationCase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	defer tx.Rollback()

	if err := e.checkArbitrationRequest(ctx, tx, actor, evidence, fee); err != nil {
		return domain.ArbitrationCase{}, err
	}
	target, err := e.Repo.GetAccountTx(ctx, tx, targetActor)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: target account not initialized", ErrInvalid)
	}
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	if target.Score >= e.Config.Reputation.NormalThreshold {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: target reputation is not degraded", ErrStateConflict)
	}

	c := domain.ArbitrationCase{
		Requester:   actor,
		Type:        domain.CaseUserReputation,
		TargetActor: targetActor,
		Evidence:    evidence,
		FeeAmount:   fee,
		FeeAsset:    e.Config.Arbitration.FeeAsset,
		Status:      domain.CasePending,
		CreatedAt:   e.now(),
	}
	id, err := e.Repo.InsertCaseTx(ctx, tx, c)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	c.ID = id
	if err := e.escrowFeeTx(ctx, tx, actor, id, fee); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.Events.Append(ctx, tx, "case.created", "case", idRef(id), actor, events.EventPayload{
		"type":   c.Type,
		"target": targetActor,
		"fee":    fee,
	}); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.ArbitrationCase{}, err
	}
	return c, nil
}

// RequestSubmissionArbitration opens a case disputing a submission's
// status, typically a removal.
func (e *Engine) RequestSubmissionArbitration(ctx context.Context, actor string, submissionID int64, evidence string, fee int64) (domain.ArbitrationCase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	defer tx.Rollback()

	if err := e.checkArbitrationRequest(ctx, tx, actor, evidence, fee); err != nil {
		return domain.ArbitrationCase{}, err
	}
	s, err := e.Repo.GetSubmissionTx(ctx, tx, submissionID)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	if s.Status == domain.SubmissionAdopted {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: submission is already adopted", ErrStateConflict)
	}

	c := domain.ArbitrationCase{
		Requester:          actor,
		Type:               domain.CaseSubmissionStatus,
		TargetSubmissionID: submissionID,
		Evidence:           evidence,
		FeeAmount:          fee,
		FeeAsset:           e.Config.Arbitration.FeeAsset,
		Status:             domain.CasePending,
		CreatedAt:          e.now(),
	}
	id, err := e.Repo.InsertCaseTx(ctx, tx, c)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	c.ID = id
	if err := e.escrowFeeTx(ctx, tx, actor, id, fee); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.Events.Append(ctx, tx, "case.created", "case", idRef(id), actor, events.EventPayload{
		"type":          c.Type,
		"submission_id": submissionID,
		"fee":           fee,
	}); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.ArbitrationCase{}, err
	}
	return c, nil
}

// refundFeeTx zeroes the case's escrowed fee, then pays it back to the
// requester's wallet. Zeroing first means the refund can only ever happen
// once per case. With strict set, an already-empty escrow is an error.
func (e *Engine) refundFeeTx(ctx context.Context, tx *sql.Tx, c *domain.ArbitrationCase, strict bool) error {
	if c.FeeAmount == 0 {
		if strict {
			return fmt.Errorf("%w: fee already refunded or forfeited", ErrStateConflict)
		}
		return nil
	}
	amount := c.FeeAmount
	c.FeeAmount = 0
	if err := e.Repo.UpdateCaseTx(ctx, tx, *c); err != nil {
		return err
	}
	if err := e.withdrawTx(ctx, tx, CallerArbitration, c.FeeAsset, domain.PurposeArbitration, idRef(c.ID), c.Requester, amount); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "case.fee_refunded", "case", idRef(c.ID), c.Requester, events.EventPayload{
		"amount": amount,
	})
}

// forfeitFeeTx zeroes the case's escrowed fee and moves it to the platform
// fee pool.
func (e *Engine) forfeitFeeTx(ctx context.Context, tx *sql.Tx, c *domain.ArbitrationCase) error {
	if c.FeeAmount == 0 {
		return nil
	}
	amount := c.FeeAmount
	c.FeeAmount = 0
	if err := e.Repo.UpdateCaseTx(ctx, tx, *c); err != nil {
		return err
	}
	return e.allocatePlatformFeeTx(ctx, tx, CallerArbitration, c.FeeAsset, domain.PurposeArbitration, idRef(c.ID), amount)
}

// ResolveArbitration decides a pending case. Approval reverses the disputed
// effect (restores the target's reputation or submission) and refunds the
// fee. Rejection forfeits the fee to the platform and costs the requester a
// reputation penalty. Admin only.
func (e *Engine) ResolveArbitration(ctx context.Context, actor string, caseID int64, decision, resolution string) (domain.ArbitrationCase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if !e.isAdmin(actor) {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	if decision != domain.CaseApproved && decision != domain.CaseRejected {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: decision must be approved or rejected", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCaseTx(ctx, tx, caseID)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	if c.Status != domain.CasePending {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: case is %s, expected pending", ErrStateConflict, c.Status)
	}
	c.Status = decision
	c.Resolver = actor
	c.Resolution = resolution
	c.ResolvedAt = e.now()
	if err := e.Repo.UpdateCaseTx(ctx, tx, c); err != nil {
		return domain.ArbitrationCase{}, err
	}

	if decision == domain.CaseApproved {
		if err := e.executeApprovalTx(ctx, tx, &c, resolution); err != nil {
			return domain.ArbitrationCase{}, err
		}
		if err := e.refundFeeTx(ctx, tx, &c, false); err != nil {
			return domain.ArbitrationCase{}, err
		}
	} else {
		if _, err := e.updateReputationTx(ctx, tx, CallerArbitration, c.Requester, -e.Config.Arbitration.RejectionPenalty, "arbitration rejected"); err != nil {
			return domain.ArbitrationCase{}, err
		}
		if err := e.forfeitFeeTx(ctx, tx, &c); err != nil {
			return domain.ArbitrationCase{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "case.resolved", "case", idRef(c.ID), actor, events.EventPayload{
		"decision":   decision,
		"resolution": resolution,
	}); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.ArbitrationCase{}, err
	}
	return c, nil
}

// executeApprovalTx applies the default corrective action of an approved
// case: user cases lift the target's score to the configured restore floor,
// submission cases put the submission back to normal.
func (e *Engine) executeApprovalTx(ctx context.Context, tx *sql.Tx, c *domain.ArbitrationCase, reason string) error {
	switch c.Type {
	case domain.CaseUserReputation:
		target, err := e.Repo.GetAccountTx(ctx, tx, c.TargetActor)
		if err != nil {
			return err
		}
		if delta := e.Config.Arbitration.RestoreScore - target.Score; delta > 0 {
			if _, err := e.updateReputationTx(ctx, tx, CallerArbitration, c.TargetActor, delta, reason); err != nil {
				return err
			}
		}
		return nil
	case domain.CaseSubmissionStatus:
		_, err := e.restoreSubmissionTx(ctx, tx, CallerArbitration, c.TargetSubmissionID, domain.SubmissionNormal, reason)
		if errors.Is(err, ErrStateConflict) {
			// Already live again; the approval stands on its own.
			return nil
		}
		return err
	default:
		return fmt.Errorf("%w: unknown case type %q", ErrInvalid, c.Type)
	}
}

// ExecuteUserArbitration applies an additional reputation correction to the
// target of an approved user case, and releases the fee if still escrowed.
// Admin only.
func (e *Engine) ExecuteUserArbitration(ctx context.Context, actor string, caseID, increase int64) (domain.ArbitrationCase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if !e.isAdmin(actor) {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	if increase <= 0 {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: increase must be positive", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCaseTx(ctx, tx, caseID)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	if c.Status != domain.CaseApproved || c.Type != domain.CaseUserReputation {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: case is not an approved user case", ErrStateConflict)
	}
	if _, err := e.updateReputationTx(ctx, tx, CallerArbitration, c.TargetActor, increase, "arbitration executed"); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.refundFeeTx(ctx, tx, &c, false); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.Events.Append(ctx, tx, "case.executed", "case", idRef(c.ID), actor, events.EventPayload{
		"increase": increase,
	}); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.ArbitrationCase{}, err
	}
	return c, nil
}

// ExecuteSubmissionArbitration restores the target submission of an
// approved submission case, and releases the fee if still escrowed. Admin
// only.
func (e *Engine) ExecuteSubmissionArbitration(ctx context.Context, actor string, caseID int64, newStatus string) (domain.ArbitrationCase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if !e.isAdmin(actor) {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCaseTx(ctx, tx, caseID)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	if c.Status != domain.CaseApproved || c.Type != domain.CaseSubmissionStatus {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: case is not an approved submission case", ErrStateConflict)
	}
	if _, err := e.restoreSubmissionTx(ctx, tx, CallerArbitration, c.TargetSubmissionID, newStatus, "arbitration executed"); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.refundFeeTx(ctx, tx, &c, false); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.Events.Append(ctx, tx, "case.executed", "case", idRef(c.ID), actor, events.EventPayload{
		"status": newStatus,
	}); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.ArbitrationCase{}, err
	}
	return c, nil
}

// ClaimRefund lets the requester of an approved case pull the escrowed fee
// if it has not already been released. The claim succeeds at most once.
func (e *Engine) ClaimRefund(ctx context.Context, actor string, caseID int64) (domain.ArbitrationCase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCaseTx(ctx, tx, caseID)
	if err != nil {
		return domain.ArbitrationCase{}, err
	}
	if c.Requester != actor {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: only the requester may claim", ErrUnauthorized)
	}
	if c.Status != domain.CaseApproved {
		return domain.ArbitrationCase{}, fmt.Errorf("%w: case is %s, expected approved", ErrStateConflict, c.Status)
	}
	if err := e.refundFeeTx(ctx, tx, &c, true); err != nil {
		return domain.ArbitrationCase{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.ArbitrationCase{}, err
	}
	return c, nil
}
