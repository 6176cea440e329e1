package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"bountyline/internal/config"
	"bountyline/internal/events"
	"bountyline/internal/policy"
	"bountyline/internal/renderer"
	"bountyline/internal/repo"
)

// Caller identifies an internal component invoking a restricted operation.
// Internal entry points check the caller against a mutable allowlist, so
// the wiring between components can be audited and tightened at runtime.
type Caller string

const (
	CallerReputation  Caller = "reputation"
	CallerTasks       Caller = "tasks"
	CallerSubmissions Caller = "submissions"
	CallerArbitration Caller = "arbitration"
	CallerAdmin       Caller = "admin"
)

// Components whose restricted operations carry an allowlist.
const (
	componentLedger      = "ledger"
	componentReputation  = "reputation"
	componentTasks       = "tasks"
	componentSubmissions = "submissions"
)

const pausedSettingKey = "ledger.paused"

// Engine executes marketplace operations. Every public method is a unit of
// work: it takes the engine lock, runs inside a single transaction, and
// either commits fully or leaves no trace. Renderer notifications are queued
// during the transaction and flushed only after commit.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Registry *policy.Registry
	Renderer renderer.Notifier
	Now      func() time.Time

	mu      sync.Mutex
	paused  bool
	pending []func()

	guards             map[string]policy.Guard
	adoptionStrategies map[string]policy.AdoptionStrategy
	rewardStrategies   map[string]policy.RewardStrategy

	auth map[string]map[Caller]bool
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	e := &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Registry: policy.NewRegistry(
			cfg.Registry.Guards,
			cfg.Registry.AdoptionStrategies,
			cfg.Registry.RewardStrategies,
			cfg.Registry.Assets,
		),
		Renderer: renderer.Noop{},
		Now:      time.Now,
	}
	e.Events = events.Writer{DB: db, Now: func() time.Time { return e.Now() }}
	if cfg.Renderer.WebhookURL != "" {
		e.Renderer = renderer.NewWebhook(cfg.Renderer.WebhookURL)
	}

	e.guards = map[string]policy.Guard{
		policy.GuardMinScore: &policy.MinScoreGuard{MinScore: cfg.Reputation.NormalThreshold},
		policy.GuardStake:    &policy.StakeGuard{MinStake: cfg.Reputation.BaseStake},
	}
	e.adoptionStrategies = map[string]policy.AdoptionStrategy{
		policy.StrategyThreshold: &policy.ThresholdStrategy{
			ApprovalsToAdopt:   cfg.Adoption.ApprovalsToAdopt,
			RejectionsToRemove: cfg.Adoption.RejectionsToRemove,
		},
	}
	e.rewardStrategies = map[string]policy.RewardStrategy{
		policy.StrategyDefaultSplit: &policy.DefaultSplitStrategy{
			CreatorBps:  cfg.Rewards.CreatorBps,
			ReviewerBps: cfg.Rewards.ReviewerBps,
			PlatformBps: cfg.Rewards.PlatformBps,
		},
	}

	// Default wiring mirrors the component graph: tasks and submissions
	// escrow through the ledger, submissions activate tasks, arbitration
	// adjusts reputation and restores submissions.
	e.auth = map[string]map[Caller]bool{
		componentLedger: {
			CallerReputation:  true,
			CallerTasks:       true,
			CallerSubmissions: true,
			CallerArbitration: true,
		},
		componentReputation: {
			CallerTasks:       true,
			CallerSubmissions: true,
			CallerArbitration: true,
			CallerAdmin:       true,
		},
		componentTasks: {
			CallerSubmissions: true,
		},
		componentSubmissions: {
			CallerArbitration: true,
			CallerAdmin:       true,
		},
	}

	if v, err := e.Repo.GetSetting(context.Background(), pausedSettingKey); err == nil && v == "true" {
		e.paused = true
	}
	return e
}

func (e *Engine) now() string {
	return e.Now().UTC().Format(time.RFC3339)
}

func (e *Engine) isAdmin(actor string) bool {
	return e.Config.IsAdmin(actor)
}

func (e *Engine) callerAllowed(component string, c Caller) bool {
	allowed, ok := e.auth[component]
	if !ok {
		return false
	}
	return allowed[c]
}

// SetAuthorizedCaller updates a component's caller allowlist. Admin only.
func (e *Engine) SetAuthorizedCaller(ctx context.Context, actor, component string, caller Caller, allowed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isAdmin(actor) {
		return fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	if _, ok := e.auth[component]; !ok {
		return fmt.Errorf("%w: unknown component %q", ErrInvalid, component)
	}
	e.auth[component][caller] = allowed
	return nil
}

// AuthorizedCallers reports the allowlist of a component, sorted.
func (e *Engine) AuthorizedCallers(component string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for c, ok := range e.auth[component] {
		if ok {
			out = append(out, string(c))
		}
	}
	sort.Strings(out)
	return out
}

func (e *Engine) guard(name string) (policy.Guard, error) {
	g, ok := e.guards[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown guard %q", ErrInvalid, name)
	}
	return g, nil
}

func (e *Engine) adoptionStrategy(name string) (policy.AdoptionStrategy, error) {
	s, ok := e.adoptionStrategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown adoption strategy %q", ErrInvalid, name)
	}
	return s, nil
}

func (e *Engine) rewardStrategy(name string) (policy.RewardStrategy, error) {
	s, ok := e.rewardStrategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown reward strategy %q", ErrInvalid, name)
	}
	return s, nil
}

// Registry entry kinds accepted by SetRegistryEntry.
const (
	RegistryKindGuard            = "guard"
	RegistryKindAdoptionStrategy = "adoption_strategy"
	RegistryKindRewardStrategy   = "reward_strategy"
	RegistryKindAsset            = "asset"
)

// SetRegistryEntry flips a registry allowlist entry. Admin only. Guards and
// strategies can only be enabled when an implementation is installed; assets
// are free-form symbols.
func (e *Engine) SetRegistryEntry(ctx context.Context, actor, kind, name string, allowed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isAdmin(actor) {
		return fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	switch kind {
	case RegistryKindGuard:
		if allowed {
			if _, ok := e.guards[name]; !ok {
				return fmt.Errorf("%w: guard %q has no implementation", ErrInvalid, name)
			}
		}
		e.Registry.SetGuardAllowed(name, allowed)
	case RegistryKindAdoptionStrategy:
		if allowed {
			if _, ok := e.adoptionStrategies[name]; !ok {
				return fmt.Errorf("%w: adoption strategy %q has no implementation", ErrInvalid, name)
			}
		}
		e.Registry.SetAdoptionStrategyAllowed(name, allowed)
	case RegistryKindRewardStrategy:
		if allowed {
			if _, ok := e.rewardStrategies[name]; !ok {
				return fmt.Errorf("%w: reward strategy %q has no implementation", ErrInvalid, name)
			}
		}
		e.Registry.SetRewardStrategyAllowed(name, allowed)
	case RegistryKindAsset:
		e.Registry.SetAssetAllowed(name, allowed)
	default:
		return fmt.Errorf("%w: unknown registry kind %q", ErrInvalid, kind)
	}
	return nil
}

// RegisterGuard installs a guard implementation and allows it in the
// registry, making it selectable by newly created tasks.
func (e *Engine) RegisterGuard(g policy.Guard) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guards[g.Name()] = g
	e.Registry.SetGuardAllowed(g.Name(), true)
}

// RegisterAdoptionStrategy installs an adoption strategy under its name.
func (e *Engine) RegisterAdoptionStrategy(name string, s policy.AdoptionStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adoptionStrategies[name] = s
	e.Registry.SetAdoptionStrategyAllowed(name, true)
}

// RegisterRewardStrategy installs a reward strategy under its name.
func (e *Engine) RegisterRewardStrategy(name string, s policy.RewardStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rewardStrategies[name] = s
	e.Registry.SetRewardStrategyAllowed(name, true)
}

// queueNotify defers a renderer callback until the surrounding unit of work
// commits. Callbacks are dropped on rollback.
func (e *Engine) queueNotify(fn func()) {
	e.pending = append(e.pending, fn)
}

func (e *Engine) flushNotify() {
	fns := e.pending
	e.pending = nil
	for _, fn := range fns {
		fn()
	}
}

func (e *Engine) clearNotify() {
	e.pending = nil
}

func (e *Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// commit finalizes a unit of work and releases queued notifications.
func (e *Engine) commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	e.flushNotify()
	return nil
}

func idRef(id int64) string {
	return strconv.FormatInt(id, 10)
}
