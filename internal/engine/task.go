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

// TaskDraft collects the fields a publisher supplies when creating a task.
// Strategy fields left empty fall back to the built-in defaults.
type TaskDraft struct {
	Title            string
	Description      string
	Category         string
	RewardAmount     int64
	RewardAsset      string
	Deadline         string
	SubmitGuard      string
	ReviewGuard      string
	AdoptionStrategy string
	RewardStrategy   string
}

const defaultCategory = "general"

// CreateTask validates a draft and records it. No value moves until the
// task is published.
func (e *Engine) CreateTask(ctx context.Context, actor string, d TaskDraft) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if d.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if d.RewardAmount <= 0 {
		return domain.Task{}, fmt.Errorf("%w: reward must be positive", ErrInvalid)
	}
	deadline, err := time.Parse(time.RFC3339, d.Deadline)
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: deadline must be RFC 3339", ErrInvalid)
	}
	min, max := e.Config.TaskDurationBounds()
	until := deadline.Sub(e.Now().UTC())
	if until < min || until > max {
		return domain.Task{}, fmt.Errorf("%w: deadline must fall between %s and %s from now", ErrInvalid, min, max)
	}
	if d.Category == "" {
		d.Category = defaultCategory
	}
	if d.AdoptionStrategy == "" {
		d.AdoptionStrategy = policy.StrategyThreshold
	}
	if d.RewardStrategy == "" {
		d.RewardStrategy = policy.StrategyDefaultSplit
	}
	if ok, reason := e.Registry.ValidateTaskConfig(d.SubmitGuard, d.ReviewGuard, d.AdoptionStrategy, d.RewardStrategy, d.RewardAsset); !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrInvalid, reason)
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.validateAccessTx(ctx, tx, actor); err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	t := domain.Task{
		Owner:            actor,
		Title:            d.Title,
		Description:      d.Description,
		Category:         d.Category,
		RewardAmount:     d.RewardAmount,
		RewardAsset:      d.RewardAsset,
		Deadline:         deadline.UTC().Format(time.RFC3339),
		Status:           domain.TaskDraft,
		SubmitGuard:      d.SubmitGuard,
		ReviewGuard:      d.ReviewGuard,
		AdoptionStrategy: d.AdoptionStrategy,
		RewardStrategy:   d.RewardStrategy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	id, err := e.Repo.InsertTaskTx(ctx, tx, t)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = id
	if err := e.Events.Append(ctx, tx, "task.created", "task", idRef(id), actor, events.EventPayload{
		"title":    t.Title,
		"category": t.Category,
		"reward":   t.RewardAmount,
		"asset":    t.RewardAsset,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// PublishTask escrows the full reward from the owner's wallet and opens the
// task for submissions.
func (e *Engine) PublishTask(ctx context.Context, actor string, taskID int64) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Owner != actor {
		return domain.Task{}, fmt.Errorf("%w: only the owner may publish", ErrUnauthorized)
	}
	if t.Status != domain.TaskDraft {
		return domain.Task{}, fmt.Errorf("%w: task is %s, expected draft", ErrStateConflict, t.Status)
	}
	if err := e.validateAccessTx(ctx, tx, actor); err != nil {
		return domain.Task{}, err
	}
	if err := e.depositTx(ctx, tx, CallerTasks, actor, t.RewardAsset, domain.PurposeTask, idRef(t.ID), t.RewardAmount); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskPublished
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.published", "task", idRef(t.ID), actor, events.EventPayload{
		"reward": t.RewardAmount,
		"asset":  t.RewardAsset,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// CancelTask withdraws a draft or published task. Published cancellations
// refund the escrow to the owner and cost a reputation penalty.
func (e *Engine) CancelTask(ctx context.Context, actor string, taskID int64, reason string) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Owner != actor {
		return domain.Task{}, fmt.Errorf("%w: only the owner may cancel", ErrUnauthorized)
	}
	if t.Status != domain.TaskDraft && t.Status != domain.TaskPublished {
		return domain.Task{}, fmt.Errorf("%w: task is %s, expected draft or published", ErrStateConflict, t.Status)
	}
	wasPublished := t.Status == domain.TaskPublished
	t.Status = domain.TaskCancelled
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if wasPublished {
		if err := e.refundEscrowTx(ctx, tx, CallerTasks, t); err != nil {
			return domain.Task{}, err
		}
		if _, err := e.updateReputationTx(ctx, tx, CallerTasks, actor, -e.Config.Reputation.TaskCancelPenalty, "task cancelled after publish"); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.cancelled", "task", idRef(t.ID), actor, events.EventPayload{
		"reason":        reason,
		"was_published": wasPublished,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ExpireTask settles a task whose deadline passed without adoption. Anyone
// may trigger it; the escrow returns to the owner.
func (e *Engine) ExpireTask(ctx context.Context, actor string, taskID int64) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status != domain.TaskPublished && t.Status != domain.TaskActive {
		return domain.Task{}, fmt.Errorf("%w: task is %s, expected published or active", ErrStateConflict, t.Status)
	}
	deadline, err := time.Parse(time.RFC3339, t.Deadline)
	if err != nil {
		return domain.Task{}, fmt.Errorf("parse deadline: %w", err)
	}
	if !e.Now().UTC().After(deadline) {
		return domain.Task{}, fmt.Errorf("%w: deadline not reached", ErrStateConflict)
	}
	t.Status = domain.TaskExpired
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.refundEscrowTx(ctx, tx, CallerTasks, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.expired", "task", idRef(t.ID), actor, nil); err != nil {
		return domain.Task{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// refundEscrowTx returns whatever remains in the task's escrow to the owner.
// A zero balance is a no-op so settled tasks can pass through safely.
func (e *Engine) refundEscrowTx(ctx context.Context, tx *sql.Tx, caller Caller, t domain.Task) error {
	bal, err := e.Repo.GetBalanceTx(ctx, tx, t.RewardAsset, domain.PurposeTask, idRef(t.ID))
	if err != nil {
		return err
	}
	if bal == 0 {
		return nil
	}
	return e.withdrawTx(ctx, tx, caller, t.RewardAsset, domain.PurposeTask, idRef(t.ID), t.Owner, bal)
}

// activateTaskTx flips a published task to active on first submission.
// Restricted to authorized callers; already-active tasks are a no-op.
func (e *Engine) activateTaskTx(ctx context.Context, tx *sql.Tx, caller Caller, t *domain.Task) error {
	if !e.callerAllowed(componentTasks, caller) {
		return fmt.Errorf("%w: caller %q may not activate tasks", ErrUnauthorized, caller)
	}
	if t.Status == domain.TaskActive {
		return nil
	}
	if t.Status != domain.TaskPublished {
		return fmt.Errorf("%w: task is %s, expected published", ErrStateConflict, t.Status)
	}
	t.Status = domain.TaskActive
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTaskTx(ctx, tx, *t); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "task.activated", "task", idRef(t.ID), t.Owner, nil)
}

// completeTaskTx settles a task around an adopted submission. Restricted to
// authorized callers.
func (e *Engine) completeTaskTx(ctx context.Context, tx *sql.Tx, caller Caller, t *domain.Task, adoptedSubmissionID int64) error {
	if !e.callerAllowed(componentTasks, caller) {
		return fmt.Errorf("%w: caller %q may not complete tasks", ErrUnauthorized, caller)
	}
	if t.Status != domain.TaskPublished && t.Status != domain.TaskActive {
		return fmt.Errorf("%w: task is %s, expected published or active", ErrStateConflict, t.Status)
	}
	if t.AdoptedSubmissionID != 0 && t.AdoptedSubmissionID != adoptedSubmissionID {
		return fmt.Errorf("%w: task already adopted submission %d", ErrStateConflict, t.AdoptedSubmissionID)
	}
	t.Status = domain.TaskCompleted
	t.AdoptedSubmissionID = adoptedSubmissionID
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTaskTx(ctx, tx, *t); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "task.completed", "task", idRef(t.ID), t.Owner, events.EventPayload{
		"adopted_submission_id": adoptedSubmissionID,
	})
}

// UpdateTaskPolicies swaps the guard and strategy references of a draft
// task. Nil pointers leave the corresponding field untouched.
func (e *Engine) UpdateTaskPolicies(ctx context.Context, actor string, taskID int64, submitGuard, reviewGuard, adoptionStrategy, rewardStrategy *string) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Owner != actor {
		return domain.Task{}, fmt.Errorf("%w: only the owner may update policies", ErrUnauthorized)
	}
	if t.Status != domain.TaskDraft {
		return domain.Task{}, fmt.Errorf("%w: policies are editable only while draft", ErrStateConflict)
	}
	if submitGuard != nil {
		t.SubmitGuard = *submitGuard
	}
	if reviewGuard != nil {
		t.ReviewGuard = *reviewGuard
	}
	if adoptionStrategy != nil {
		t.AdoptionStrategy = *adoptionStrategy
	}
	if rewardStrategy != nil {
		t.RewardStrategy = *rewardStrategy
	}
	if ok, reason := e.Registry.ValidateTaskConfig(t.SubmitGuard, t.ReviewGuard, t.AdoptionStrategy, t.RewardStrategy, t.RewardAsset); !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrInvalid, reason)
	}
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.policies_updated", "task", idRef(t.ID), actor, events.EventPayload{
		"submit_guard":      t.SubmitGuard,
		"review_guard":      t.ReviewGuard,
		"adoption_strategy": t.AdoptionStrategy,
		"reward_strategy":   t.RewardStrategy,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// IncreaseReward raises the task reward. The reward only ever grows. For
// published or active tasks the additional amount is escrowed immediately.
func (e *Engine) IncreaseReward(ctx context.Context, actor string, taskID, additional int64) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.clearNotify()
	if additional <= 0 {
		return domain.Task{}, fmt.Errorf("%w: increase must be positive", ErrInvalid)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Owner != actor {
		return domain.Task{}, fmt.Errorf("%w: only the owner may raise the reward", ErrUnauthorized)
	}
	switch t.Status {
	case domain.TaskDraft:
		// Escrow happens at publish.
	case domain.TaskPublished, domain.TaskActive:
		if err := e.depositTx(ctx, tx, CallerTasks, actor, t.RewardAsset, domain.PurposeTask, idRef(t.ID), additional); err != nil {
			return domain.Task{}, err
		}
	default:
		return domain.Task{}, fmt.Errorf("%w: task is %s", ErrStateConflict, t.Status)
	}
	t.RewardAmount += additional
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.reward_increased", "task", idRef(t.ID), actor, events.EventPayload{
		"additional": additional,
		"reward":     t.RewardAmount,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
