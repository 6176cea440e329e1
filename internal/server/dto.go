package server

import "bountyline/internal/domain"

// Request payloads

type CreateTaskRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	Category         string `json:"category,omitempty"`
	RewardAmount     int64  `json:"reward_amount"`
	RewardAsset      string `json:"reward_asset"`
	Deadline         string `json:"deadline" format:"date-time"`
	SubmitGuard      string `json:"submit_guard,omitempty"`
	ReviewGuard      string `json:"review_guard,omitempty"`
	AdoptionStrategy string `json:"adoption_strategy,omitempty"`
	RewardStrategy   string `json:"reward_strategy,omitempty"`
}

type UpdateTaskPoliciesRequest struct {
	SubmitGuard      *string `json:"submit_guard,omitempty"`
	ReviewGuard      *string `json:"review_guard,omitempty"`
	AdoptionStrategy *string `json:"adoption_strategy,omitempty"`
	RewardStrategy   *string `json:"reward_strategy,omitempty"`
}

type CancelTaskRequest struct {
	Reason string `json:"reason,omitempty"`
}

type IncreaseRewardRequest struct {
	Additional int64 `json:"additional"`
}

type SubmitRequest struct {
	Content string `json:"content"`
}

type UpdateSubmissionRequest struct {
	Content string `json:"content"`
}

type ReviewRequest struct {
	Outcome string `json:"outcome" enum:"approve,reject"`
	Reason  string `json:"reason,omitempty"`
}

type RestoreSubmissionRequest struct {
	Status string `json:"status" enum:"normal,adopted"`
	Reason string `json:"reason,omitempty"`
}

type StakeRequest struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type ClaimCategoryScoreRequest struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
}

type GrantCategoryScoreRequest struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
}

type AdjustReputationRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

type UserArbitrationRequest struct {
	TargetActor string `json:"target_actor"`
	Evidence    string `json:"evidence"`
	Fee         int64  `json:"fee"`
}

type SubmissionArbitrationRequest struct {
	SubmissionID int64  `json:"submission_id"`
	Evidence     string `json:"evidence"`
	Fee          int64  `json:"fee"`
}

type ResolveArbitrationRequest struct {
	Decision   string `json:"decision" enum:"approved,rejected"`
	Resolution string `json:"resolution,omitempty"`
}

type ExecuteUserArbitrationRequest struct {
	Increase int64 `json:"increase"`
}

type ExecuteSubmissionArbitrationRequest struct {
	Status string `json:"status" enum:"normal,adopted"`
}

type MintRequest struct {
	Recipient string `json:"recipient"`
	Asset     string `json:"asset"`
	Amount    int64  `json:"amount"`
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}

type WithdrawFeesRequest struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

type EmergencyWithdrawRequest struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

type SetCallerRequest struct {
	Component string `json:"component" enum:"ledger,reputation,tasks,submissions"`
	Caller    string `json:"caller"`
	Allowed   bool   `json:"allowed"`
}

type SetRegistryEntryRequest struct {
	Kind    string `json:"kind" enum:"guard,adoption_strategy,reward_strategy,asset"`
	Name    string `json:"name"`
	Allowed bool   `json:"allowed"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	Actor string `json:"actor"`
}

// Response payloads

type AccountResponse struct {
	domain.Account
	RequiredStake int64 `json:"required_stake"`
}

type AccessResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type ConservationResponse struct {
	Asset   string `json:"asset"`
	Custody int64  `json:"custody"`
	Locked  int64  `json:"locked"`
	Intact  bool   `json:"intact"`
}

type RegistryResponse struct {
	Guards             []string `json:"guards"`
	AdoptionStrategies []string `json:"adoption_strategies"`
	RewardStrategies   []string `json:"reward_strategies"`
	Assets             []string `json:"assets"`
}

type APIKeyCreatedResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	Actor  string `json:"actor"`
	Source string `json:"source"`
	Admin  bool   `json:"admin"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
