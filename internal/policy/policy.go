// Package policy defines the pluggable admission, adoption and reward
// interfaces consumed by the ledgers, the built-in implementations shipped
// with the engine, and the registry that whitelists what a task may wire in.
package policy

import "time"

// ActorState is the read-only account snapshot a Guard judges against.
type ActorState struct {
	Actor        string
	Score        int64
	Status       string
	StakedAmount int64
}

// Context carries the caller-encoded situation for a guard check.
type Context struct {
	Action       string // "submit" or "review"
	TaskID       int64
	SubmissionID int64
	Category     string
}

// Guard is a pure admission check gating who may submit or review.
type Guard interface {
	Name() string
	Version() string
	Description() string
	ValidateUser(actor ActorState, ctx Context) (bool, string)
	Config() map[string]int64
	SetConfig(cfg map[string]int64) error
}

// Evaluation is an AdoptionStrategy verdict about a submission.
type Evaluation struct {
	NewStatus    string
	ShouldChange bool
	Reason       string
}

// AdoptionStrategy decides, from review tallies and elapsed time, whether a
// submission's status should change.
type AdoptionStrategy interface {
	Name() string
	Evaluate(submissionID int64, approves, rejects, totalReviews int, elapsed time.Duration) Evaluation
	ShouldCompleteTask(taskID, adoptedSubmissionID int64) bool
}

// Distribution is the four-way split of an adopted task's reward.
type Distribution struct {
	CreatorShare    int64
	ReviewerShare   int64
	PlatformShare   int64
	PublisherRefund int64
}

// RewardStrategy computes how an adopted task's reward splits across the
// creator, the reviewer pool and the platform.
type RewardStrategy interface {
	Name() string
	CalculateDistribution(taskID, totalReward, adoptedSubmissionID int64, reviewerCount int) Distribution
	CalculateReviewerReward(taskID int64, reviewer string, totalReviewerPool int64, reviewerCount int, wasAccurate bool) int64
}
