package domain

// Account statuses derived from the reputation score.
const (
	StatusUninitialized = "uninitialized"
	StatusNormal        = "normal"
	StatusAtRisk        = "at_risk"
	StatusBlacklisted   = "blacklisted"
)

// Task statuses.
const (
	TaskDraft     = "draft"
	TaskPublished = "published"
	TaskActive    = "active"
	TaskCompleted = "completed"
	TaskCancelled = "cancelled"
	TaskExpired   = "expired"
)

// Submission statuses.
const (
	SubmissionSubmitted   = "submitted"
	SubmissionUnderReview = "under_review"
	SubmissionNormal      = "normal"
	SubmissionAdopted     = "adopted"
	SubmissionRemoved     = "removed"
)

// Review outcomes.
const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
)

// Arbitration case types and statuses.
const (
	CaseUserReputation   = "user_reputation"
	CaseSubmissionStatus = "submission_status"

	CasePending  = "pending"
	CaseApproved = "approved"
	CaseRejected = "rejected"
)

// Ledger purposes partitioning custody of an asset.
const (
	PurposeTask        = "task"
	PurposeStake       = "stake"
	PurposeArbitration = "arbitration"
	PurposePlatform    = "platform"
)

type Account struct {
	Actor            string `json:"actor"`
	Score            int64  `json:"score"`
	Status           string `json:"status" enum:"uninitialized,normal,at_risk,blacklisted"`
	StakedAmount     int64  `json:"staked_amount"`
	StakeAsset       string `json:"stake_asset,omitempty"`
	UnstakeRequested bool   `json:"unstake_requested"`
	UnstakeUnlockAt  string `json:"unstake_unlock_at,omitempty" format:"date-time"`
	CreatedAt        string `json:"created_at" format:"date-time"`
	UpdatedAt        string `json:"updated_at" format:"date-time"`
}

type CategoryScore struct {
	Actor    string `json:"actor"`
	Category string `json:"category"`
	Claimed  int64  `json:"claimed"`
	Pending  int64  `json:"pending"`
}

type Task struct {
	ID                  int64  `json:"id"`
	Owner               string `json:"owner"`
	Title               string `json:"title"`
	Description         string `json:"description,omitempty"`
	Category            string `json:"category"`
	RewardAmount        int64  `json:"reward_amount"`
	RewardAsset         string `json:"reward_asset"`
	Deadline            string `json:"deadline" format:"date-time"`
	Status              string `json:"status" enum:"draft,published,active,completed,cancelled,expired"`
	SubmitGuard         string `json:"submit_guard,omitempty"`
	ReviewGuard         string `json:"review_guard,omitempty"`
	AdoptionStrategy    string `json:"adoption_strategy"`
	RewardStrategy      string `json:"reward_strategy"`
	AdoptedSubmissionID int64  `json:"adopted_submission_id"`
	CreatedAt           string `json:"created_at" format:"date-time"`
	UpdatedAt           string `json:"updated_at" format:"date-time"`
}

type Submission struct {
	ID           int64  `json:"id"`
	TaskID       int64  `json:"task_id"`
	Owner        string `json:"owner"`
	Content      string `json:"content"`
	Version      int    `json:"version"`
	Status       string `json:"status" enum:"submitted,under_review,normal,adopted,removed"`
	ApproveCount int    `json:"approve_count"`
	RejectCount  int    `json:"reject_count"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type SubmissionVersion struct {
	SubmissionID int64  `json:"submission_id"`
	Version      int    `json:"version"`
	Content      string `json:"content"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Review struct {
	ID           int64  `json:"id"`
	SubmissionID int64  `json:"submission_id"`
	Reviewer     string `json:"reviewer"`
	Outcome      string `json:"outcome" enum:"approve,reject"`
	Reason       string `json:"reason,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type ArbitrationCase struct {
	ID                 int64  `json:"id"`
	Requester          string `json:"requester"`
	Type               string `json:"type" enum:"user_reputation,submission_status"`
	TargetActor        string `json:"target_actor,omitempty"`
	TargetSubmissionID int64  `json:"target_submission_id,omitempty"`
	Evidence           string `json:"evidence"`
	FeeAmount          int64  `json:"fee_amount"`
	FeeAsset           string `json:"fee_asset"`
	Status             string `json:"status" enum:"pending,approved,rejected"`
	Resolver           string `json:"resolver,omitempty"`
	Resolution         string `json:"resolution,omitempty"`
	ResolvedAt         string `json:"resolved_at,omitempty" format:"date-time"`
	CreatedAt          string `json:"created_at" format:"date-time"`
}

// BalanceEntry is one purpose-keyed custody bucket. Ref holds the numeric
// task/case id rendered as a string, or the actor id for stake purposes.
type BalanceEntry struct {
	Asset   string `json:"asset"`
	Purpose string `json:"purpose" enum:"task,stake,arbitration,platform"`
	Ref     string `json:"ref"`
	Amount  int64  `json:"amount"`
}

type Wallet struct {
	Actor  string `json:"actor"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
