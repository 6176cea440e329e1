package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bountyline/internal/domain"
	"bountyline/internal/events"
	"bountyline/internal/policy"
)

// taskAccepting reports whether a task can receive submissions or reviews
// right now.
func (e *Engine) taskAccepting(t domain.Task) error {
	if t.Status != domain.TaskPublished && t.Status != domain.TaskActive {
		return fmt.Errorf("%w: task is %s", ErrStateConflict, t.Status)
	}
	deadline, err := time.Parse(time.RFC3339, t.Deadline)
	if err != nil {
		return fmt.Errorf("parse deadline: %w", err)
	}
	if !e.Now().UTC().Before(deadline) {
		return fmt.Errorf("%w: task deadline has passed", ErrStateConflict)
	}
	return nil
}

func (e *Engine) runGuardTx(ctx context.Context, tx *sql.Tx, guardName, actor string, gctx policy.Context) error {
	if guardName == "" {
		return nil
	}
	g, err := e.guard(guardName)
	if err != nil {
		return err
	}
	a, err := e.Repo.GetAccountTx(ctx, tx, actor)
	if err != nil {
		return err
	}
	if ok, reason := g.ValidateUser(actorState(a), gctx); !ok {
		return fmt.Errorf("%w: guard %s: %s", ErrAccessDenied, guardName, reason)
	}
	return nil
}

// Submit records a new submission against a task. The first submission
// activates the task.
func (e *Engine) Submit(ctx context.Context, actor string, taskID int64, content string) (domain.Submission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if content == "" {
		return domain.Submission{}, fmt.Errorf("%w: content is required", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := e.taskAccepting(t); err != nil {
		return domain.Submission{}, err
	}
	if t.Owner == actor {
		return domain.Submission{}, fmt.Errorf("%w: owner may not submit to own task", ErrUnauthorized)
	}
	if err := e.validateAccessTx(ctx, tx, actor); err != nil {
		return domain.Submission{}, err
	}
	if err := e.runGuardTx(ctx, tx, t.SubmitGuard, actor, policy.Context{
		Action:   "submit",
		TaskID:   t.ID,
		Category: t.Category,
	}); err != nil {
		return domain.Submission{}, err
	}

	now := e.now()
	s := domain.Submission{
		TaskID:    t.ID,
		Owner:     actor,
		Content:   content,
		Version:   1,
		Status:    domain.SubmissionSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := e.Repo.InsertSubmissionTx(ctx, tx, s)
	if err != nil {
		return domain.Submission{}, err
	}
	s.ID = id
	if err := e.Repo.InsertSubmissionVersionTx(ctx, tx, domain.SubmissionVersion{
		SubmissionID: id,
		Version:      1,
		Content:      content,
		CreatedAt:    now,
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := e.activateTaskTx(ctx, tx, CallerSubmissions, &t); err != nil {
		return domain.Submission{}, err
	}
	if err := e.Events.Append(ctx, tx, "submission.created", "submission", idRef(id), actor, events.EventPayload{
		"task_id": t.ID,
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := e.evaluateTx(ctx, tx, &t, &s); err != nil {
		return domain.Submission{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

// UpdateSubmission replaces a submission's content and bumps its version.
// Adopted and removed submissions are frozen.
func (e *Engine) UpdateSubmission(ctx context.Context, actor string, submissionID int64, content string) (domain.Submission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if content == "" {
		return domain.Submission{}, fmt.Errorf("%w: content is required", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubmissionTx(ctx, tx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	if s.Owner != actor {
		return domain.Submission{}, fmt.Errorf("%w: only the submitter may edit", ErrUnauthorized)
	}
	if s.Status == domain.SubmissionAdopted || s.Status == domain.SubmissionRemoved {
		return domain.Submission{}, fmt.Errorf("%w: submission is %s", ErrStateConflict, s.Status)
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, s.TaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := e.taskAccepting(t); err != nil {
		return domain.Submission{}, err
	}
	s.Content = content
	s.Version++
	s.UpdatedAt = e.now()
	if err := e.Repo.UpdateSubmissionTx(ctx, tx, s); err != nil {
		return domain.Submission{}, err
	}
	if err := e.Repo.InsertSubmissionVersionTx(ctx, tx, domain.SubmissionVersion{
		SubmissionID: s.ID,
		Version:      s.Version,
		Content:      content,
		CreatedAt:    s.UpdatedAt,
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := e.Events.Append(ctx, tx, "submission.updated", "submission", idRef(s.ID), actor, events.EventPayload{
		"version": s.Version,
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

// Review records an approve or reject verdict on a submission and re-runs
// the task's adoption strategy. One review per reviewer per submission.
func (e *Engine) Review(ctx context.Context, actor string, submissionID int64, outcome, reason string) (domain.Submission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if outcome != domain.ReviewApprove && outcome != domain.ReviewReject {
		return domain.Submission{}, fmt.Errorf("%w: outcome must be approve or reject", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubmissionTx(ctx, tx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	if s.Owner == actor {
		return domain.Submission{}, fmt.Errorf("%w: submitter may not review own submission", ErrUnauthorized)
	}
	if s.Status == domain.SubmissionAdopted || s.Status == domain.SubmissionRemoved {
		return domain.Submission{}, fmt.Errorf("%w: submission is %s", ErrStateConflict, s.Status)
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, s.TaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	if t.Status != domain.TaskPublished && t.Status != domain.TaskActive {
		return domain.Submission{}, fmt.Errorf("%w: task is %s", ErrStateConflict, t.Status)
	}
	dup, err := e.Repo.HasReviewTx(ctx, tx, s.ID, actor)
	if err != nil {
		return domain.Submission{}, err
	}
	if dup {
		return domain.Submission{}, fmt.Errorf("%w: already reviewed", ErrStateConflict)
	}
	if err := e.validateAccessTx(ctx, tx, actor); err != nil {
		return domain.Submission{}, err
	}
	if err := e.runGuardTx(ctx, tx, t.ReviewGuard, actor, policy.Context{
		Action:       "review",
		TaskID:       t.ID,
		SubmissionID: s.ID,
		Category:     t.Category,
	}); err != nil {
		return domain.Submission{}, err
	}

	now := e.now()
	if _, err := e.Repo.InsertReviewTx(ctx, tx, domain.Review{
		SubmissionID: s.ID,
		Reviewer:     actor,
		Outcome:      outcome,
		Reason:       reason,
		CreatedAt:    now,
	}); err != nil {
		return domain.Submission{}, err
	}
	if outcome == domain.ReviewApprove {
		s.ApproveCount++
	} else {
		s.RejectCount++
	}
	if s.Status == domain.SubmissionSubmitted {
		s.Status = domain.SubmissionUnderReview
	}
	s.UpdatedAt = now
	if err := e.Repo.UpdateSubmissionTx(ctx, tx, s); err != nil {
		return domain.Submission{}, err
	}
	if err := e.Events.Append(ctx, tx, "submission.reviewed", "submission", idRef(s.ID), actor, events.EventPayload{
		"outcome": outcome,
		"reason":  reason,
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := e.evaluateTx(ctx, tx, &t, &s); err != nil {
		return domain.Submission{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

// Evaluate re-runs the adoption strategy for a submission outside the
// review path, useful for time-based strategies.
func (e *Engine) Evaluate(ctx context.Context, submissionID int64) (domain.Submission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubmissionTx(ctx, tx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, s.TaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := e.evaluateTx(ctx, tx, &t, &s); err != nil {
		return domain.Submission{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

// evaluateTx consults the task's adoption strategy and applies its verdict.
// Settled submissions and settled tasks are left alone.
func (e *Engine) evaluateTx(ctx context.Context, tx *sql.Tx, t *domain.Task, s *domain.Submission) error {
	if s.Status == domain.SubmissionAdopted || s.Status == domain.SubmissionRemoved {
		return nil
	}
	if t.Status != domain.TaskPublished && t.Status != domain.TaskActive {
		return nil
	}
	strat, err := e.adoptionStrategy(t.AdoptionStrategy)
	if err != nil {
		return err
	}
	created, err := time.Parse(time.RFC3339, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("parse submission time: %w", err)
	}
	total := s.ApproveCount + s.RejectCount
	verdict := strat.Evaluate(s.ID, s.ApproveCount, s.RejectCount, total, e.Now().UTC().Sub(created))
	if !verdict.ShouldChange {
		return nil
	}
	switch verdict.NewStatus {
	case domain.SubmissionAdopted:
		return e.adoptTx(ctx, tx, CallerSubmissions, t, s, strat, verdict.Reason)
	case domain.SubmissionRemoved:
		return e.removeTx(ctx, tx, t, s, verdict.Reason)
	default:
		s.Status = verdict.NewStatus
		s.UpdatedAt = e.now()
		return e.Repo.UpdateSubmissionTx(ctx, tx, *s)
	}
}

// adoptTx marks the submission as the task's single winner, completes the
// task and distributes the escrowed reward.
func (e *Engine) adoptTx(ctx context.Context, tx *sql.Tx, caller Caller, t *domain.Task, s *domain.Submission, strat policy.AdoptionStrategy, reason string) error {
	if !e.callerAllowed(componentSubmissions, caller) && caller != CallerSubmissions {
		return fmt.Errorf("%w: caller %q may not adopt", ErrUnauthorized, caller)
	}
	adopted, err := e.Repo.CountAdoptedTx(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	if adopted > 0 {
		return fmt.Errorf("%w: task already has an adopted submission", ErrStateConflict)
	}
	s.Status = domain.SubmissionAdopted
	s.UpdatedAt = e.now()
	if err := e.Repo.UpdateSubmissionTx(ctx, tx, *s); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "submission.adopted", "submission", idRef(s.ID), s.Owner, events.EventPayload{
		"task_id": t.ID,
		"reason":  reason,
	}); err != nil {
		return err
	}
	if strat == nil || strat.ShouldCompleteTask(t.ID, s.ID) {
		if err := e.completeTaskTx(ctx, tx, CallerSubmissions, t, s.ID); err != nil {
			return err
		}
		if err := e.distributeTx(ctx, tx, t, s); err != nil {
			return err
		}
	}
	return nil
}

// distributeTx pays out the task escrow after adoption: creator share,
// per-reviewer rewards with reputation deltas, platform fee, and whatever
// remains back to the publisher. The escrow always ends at zero.
func (e *Engine) distributeTx(ctx context.Context, tx *sql.Tx, t *domain.Task, s *domain.Submission) error {
	ref := idRef(t.ID)
	total, err := e.Repo.GetBalanceTx(ctx, tx, t.RewardAsset, domain.PurposeTask, ref)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}
	reviews, err := e.Repo.ListReviewsTx(ctx, tx, s.ID)
	if err != nil {
		return err
	}
	rs, err := e.rewardStrategy(t.RewardStrategy)
	if err != nil {
		return err
	}
	dist := rs.CalculateDistribution(t.ID, total, s.ID, len(reviews))
	if dist.CreatorShare < 0 || dist.ReviewerShare < 0 || dist.PlatformShare < 0 ||
		dist.CreatorShare+dist.ReviewerShare+dist.PlatformShare > total {
		return fmt.Errorf("%w: reward strategy %s produced an invalid split", ErrStateConflict, t.RewardStrategy)
	}

	if dist.CreatorShare > 0 {
		if err := e.withdrawTx(ctx, tx, CallerSubmissions, t.RewardAsset, domain.PurposeTask, ref, s.Owner, dist.CreatorShare); err != nil {
			return err
		}
	}
	if cs := e.Config.Reputation.CreatorCategoryScore; cs > 0 {
		if err := e.addPendingCategoryScoreTx(ctx, tx, CallerSubmissions, s.Owner, t.Category, cs); err != nil {
			return err
		}
	}
	if dist.PlatformShare > 0 {
		if err := e.allocatePlatformFeeTx(ctx, tx, CallerSubmissions, t.RewardAsset, domain.PurposeTask, ref, dist.PlatformShare); err != nil {
			return err
		}
	}

	pool := dist.ReviewerShare
	for _, rv := range reviews {
		accurate := rv.Outcome == domain.ReviewApprove
		delta := e.Config.Reputation.ReviewAccurateDelta
		if !accurate {
			delta = -e.Config.Reputation.ReviewInaccurateDelta
		}
		if _, err := e.updateReputationTx(ctx, tx, CallerSubmissions, rv.Reviewer, delta, "review outcome settled"); err != nil {
			return err
		}
		reward := rs.CalculateReviewerReward(t.ID, rv.Reviewer, dist.ReviewerShare, len(reviews), accurate)
		if reward < 0 {
			reward = 0
		}
		if reward > pool {
			reward = pool
		}
		if reward > 0 {
			if err := e.withdrawTx(ctx, tx, CallerSubmissions, t.RewardAsset, domain.PurposeTask, ref, rv.Reviewer, reward); err != nil {
				return err
			}
			pool -= reward
		}
		if rcs := e.Config.Reputation.ReviewerCategoryScore; accurate && rcs > 0 {
			if err := e.addPendingCategoryScoreTx(ctx, tx, CallerSubmissions, rv.Reviewer, t.Category, rcs); err != nil {
				return err
			}
		}
	}

	// Unspent reviewer pool and the publisher refund fall out of the
	// remaining balance.
	return e.refundEscrowTx(ctx, tx, CallerSubmissions, *t)
}

// removeTx retires a rejected submission, penalizing the submitter and
// settling reviewer reputation. The task stays open for other submissions.
func (e *Engine) removeTx(ctx context.Context, tx *sql.Tx, t *domain.Task, s *domain.Submission, reason string) error {
	s.Status = domain.SubmissionRemoved
	s.UpdatedAt = e.now()
	if err := e.Repo.UpdateSubmissionTx(ctx, tx, *s); err != nil {
		return err
	}
	if _, err := e.updateReputationTx(ctx, tx, CallerSubmissions, s.Owner, -e.Config.Reputation.SubmissionRemovedPenalty, "submission removed"); err != nil {
		return err
	}
	reviews, err := e.Repo.ListReviewsTx(ctx, tx, s.ID)
	if err != nil {
		return err
	}
	for _, rv := range reviews {
		delta := e.Config.Reputation.ReviewAccurateDelta
		if rv.Outcome == domain.ReviewApprove {
			delta = -e.Config.Reputation.ReviewInaccurateDelta
		}
		if _, err := e.updateReputationTx(ctx, tx, CallerSubmissions, rv.Reviewer, delta, "review outcome settled"); err != nil {
			return err
		}
	}
	return e.Events.Append(ctx, tx, "submission.removed", "submission", idRef(s.ID), s.Owner, events.EventPayload{
		"task_id": t.ID,
		"reason":  reason,
	})
}

// restoreSubmissionTx forces a submission to a live status. Restricted to
// authorized callers; the arbitration path is the only internal one.
// Restoring to normal lifts a removal; restoring to adopted additionally
// works from normal, so arbitration can force-adopt over the organic
// strategy. Adoption runs the same completion and distribution as the
// organic path, including the single-winner check.
func (e *Engine) restoreSubmissionTx(ctx context.Context, tx *sql.Tx, caller Caller, submissionID int64, newStatus, reason string) (domain.Submission, error) {
	if !e.callerAllowed(componentSubmissions, caller) {
		return domain.Submission{}, fmt.Errorf("%w: caller %q may not restore submissions", ErrUnauthorized, caller)
	}
	if newStatus != domain.SubmissionNormal && newStatus != domain.SubmissionAdopted {
		return domain.Submission{}, fmt.Errorf("%w: restore status must be normal or adopted", ErrInvalid)
	}
	s, err := e.Repo.GetSubmissionTx(ctx, tx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	if s.Status == newStatus {
		return domain.Submission{}, fmt.Errorf("%w: submission is already %s", ErrStateConflict, s.Status)
	}
	if newStatus == domain.SubmissionNormal && s.Status != domain.SubmissionRemoved {
		return domain.Submission{}, fmt.Errorf("%w: submission is %s, expected removed", ErrStateConflict, s.Status)
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, s.TaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	if newStatus == domain.SubmissionAdopted {
		if err := e.adoptTx(ctx, tx, caller, &t, &s, nil, reason); err != nil {
			return domain.Submission{}, err
		}
	} else {
		s.Status = domain.SubmissionNormal
		s.UpdatedAt = e.now()
		if err := e.Repo.UpdateSubmissionTx(ctx, tx, s); err != nil {
			return domain.Submission{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "submission.restored", "submission", idRef(s.ID), s.Owner, events.EventPayload{
		"status": s.Status,
		"reason": reason,
	}); err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

// RestoreSubmission is the administrative entry to restoreSubmissionTx.
func (e *Engine) RestoreSubmission(ctx context.Context, actor string, submissionID int64, newStatus, reason string) (domain.Submission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if !e.isAdmin(actor) {
		return domain.Submission{}, fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	s, err := e.restoreSubmissionTx(ctx, tx, CallerAdmin, submissionID, newStatus, reason)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}
