package bountylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Bountyline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Account represents the API account model (partial).
type Account struct {
	Actor         string `json:"actor"`
	Score         int64  `json:"score"`
	Status        string `json:"status"`
	StakeAmount   int64  `json:"stake_amount"`
	StakeAsset    string `json:"stake_asset,omitempty"`
	RequiredStake int64  `json:"required_stake"`
}

// Task represents the API task model (partial).
type Task struct {
	ID           int64  `json:"id"`
	Owner        string `json:"owner"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	Status       string `json:"status"`
	RewardAmount int64  `json:"reward_amount"`
	RewardAsset  string `json:"reward_asset"`
	Deadline     string `json:"deadline"`
}

// Submission represents the API submission model (partial).
type Submission struct {
	ID           int64  `json:"id"`
	TaskID       int64  `json:"task_id"`
	Owner        string `json:"owner"`
	Status       string `json:"status"`
	Version      int    `json:"version"`
	ApproveCount int    `json:"approve_count"`
	RejectCount  int    `json:"reject_count"`
}

// ArbitrationCase represents an appeal.
type ArbitrationCase struct {
	ID        int64  `json:"id"`
	Requester string `json:"requester"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Decision  string `json:"decision,omitempty"`
	FeeAmount int64  `json:"fee_amount"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Conservation is the custody check result.
type Conservation struct {
	Asset   string `json:"asset"`
	Custody int64  `json:"custody"`
	Locked  int64  `json:"locked"`
	Intact  bool   `json:"intact"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// InitAccount initializes the caller's reputation account.
func (c *Client) InitAccount(ctx context.Context) (Account, error) {
	var resp Account
	err := c.do(ctx, http.MethodPost, "v0/accounts/init", nil, &resp)
	return resp, err
}

// GetAccount fetches an account by actor id.
func (c *Client) GetAccount(ctx context.Context, actor string) (Account, error) {
	var resp Account
	err := c.do(ctx, http.MethodGet, "v0/accounts/"+url.PathEscape(actor), nil, &resp)
	return resp, err
}

// Stake locks wallet funds as collateral.
func (c *Client) Stake(ctx context.Context, asset string, amount int64) (Account, error) {
	var resp Account
	err := c.do(ctx, http.MethodPost, "v0/accounts/stake", map[string]any{
		"asset":  asset,
		"amount": amount,
	}, &resp)
	return resp, err
}

// CreateTask creates a draft task.
func (c *Client) CreateTask(ctx context.Context, title, category, asset string, reward int64, deadline string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", map[string]any{
		"title":         title,
		"category":      category,
		"reward_amount": reward,
		"reward_asset":  asset,
		"deadline":      deadline,
	}, &resp)
	return resp, err
}

// PublishTask escrows the reward and opens the task.
func (c *Client) PublishTask(ctx context.Context, taskID int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/tasks/%d/publish", taskID), nil, &resp)
	return resp, err
}

// Submit hands in work for a task.
func (c *Client) Submit(ctx context.Context, taskID int64, content string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/tasks/%d/submissions", taskID), map[string]any{
		"content": content,
	}, &resp)
	return resp, err
}

// Review records an approve or reject outcome.
func (c *Client) Review(ctx context.Context, submissionID int64, outcome, reason string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/submissions/%d/reviews", submissionID), map[string]any{
		"outcome": outcome,
		"reason":  reason,
	}, &resp)
	return resp, err
}

// RequestUserArbitration opens a fee-backed appeal for an actor's score.
func (c *Client) RequestUserArbitration(ctx context.Context, targetActor, evidence string, fee int64) (ArbitrationCase, error) {
	var resp ArbitrationCase
	err := c.do(ctx, http.MethodPost, "v0/arbitration/user", map[string]any{
		"target_actor": targetActor,
		"evidence":     evidence,
		"fee":          fee,
	}, &resp)
	return resp, err
}

// Conservation checks custody integrity for an asset.
func (c *Client) Conservation(ctx context.Context, asset string) (Conservation, error) {
	var resp Conservation
	err := c.do(ctx, http.MethodGet, "v0/ledger/conservation/"+url.PathEscape(asset), nil, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
