package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models bountyline.yml.
type Config struct {
	Marketplace struct {
		ID string `yaml:"id"`
	} `yaml:"marketplace"`
	Reputation struct {
		InitialScore             int64  `yaml:"initial_score"`
		MaxScore                 int64  `yaml:"max_score"`
		NormalThreshold          int64  `yaml:"normal_threshold"`
		AtRiskThreshold          int64  `yaml:"at_risk_threshold"`
		BaseStake                int64  `yaml:"base_stake"`
		StakeAsset               string `yaml:"stake_asset"`
		UnstakeLock              string `yaml:"unstake_lock"`
		TaskCancelPenalty        int64  `yaml:"task_cancel_penalty"`
		SubmissionRemovedPenalty int64  `yaml:"submission_removed_penalty"`
		ReviewAccurateDelta      int64  `yaml:"review_accurate_delta"`
		ReviewInaccurateDelta    int64  `yaml:"review_inaccurate_delta"`
		CreatorCategoryScore     int64  `yaml:"creator_category_score"`
		ReviewerCategoryScore    int64  `yaml:"reviewer_category_score"`
	} `yaml:"reputation"`
	Tasks struct {
		MinDuration string `yaml:"min_duration"`
		MaxDuration string `yaml:"max_duration"`
	} `yaml:"tasks"`
	Rewards struct {
		CreatorBps  int64 `yaml:"creator_bps"`
		ReviewerBps int64 `yaml:"reviewer_bps"`
		PlatformBps int64 `yaml:"platform_bps"`
	} `yaml:"rewards"`
	Adoption struct {
		ApprovalsToAdopt   int `yaml:"approvals_to_adopt"`
		RejectionsToRemove int `yaml:"rejections_to_remove"`
	} `yaml:"adoption"`
	Arbitration struct {
		MinFee            int64  `yaml:"min_fee"`
		FeeAsset          string `yaml:"fee_asset"`
		MinRequesterScore int64  `yaml:"min_requester_score"`
		RestoreScore      int64  `yaml:"restore_score"`
		RejectionPenalty  int64  `yaml:"rejection_penalty"`
	} `yaml:"arbitration"`
	Registry struct {
		Guards             []string `yaml:"guards"`
		AdoptionStrategies []string `yaml:"adoption_strategies"`
		RewardStrategies   []string `yaml:"reward_strategies"`
		Assets             []string `yaml:"assets"`
	} `yaml:"registry"`
	Admins   []string `yaml:"admins"`
	Renderer struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"renderer"`
}

// UnstakeLock returns the parsed two-phase unstake lock window.
func (c *Config) UnstakeLock() time.Duration {
	d, _ := time.ParseDuration(c.Reputation.UnstakeLock)
	return d
}

// TaskDurationBounds returns the allowed [min, max] window between task
// creation and deadline.
func (c *Config) TaskDurationBounds() (time.Duration, time.Duration) {
	min, _ := time.ParseDuration(c.Tasks.MinDuration)
	max, _ := time.ParseDuration(c.Tasks.MaxDuration)
	return min, max
}

// IsAdmin reports whether the actor is a configured administrator.
func (c *Config) IsAdmin(actor string) bool {
	for _, a := range c.Admins {
		if a == actor {
			return true
		}
	}
	return false
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Marketplace.ID == "" {
		return fmt.Errorf("config.marketplace.id is required")
	}
	r := c.Reputation
	if r.MaxScore <= 0 {
		return fmt.Errorf("config.reputation.max_score must be positive")
	}
	if r.InitialScore < 0 || r.InitialScore > r.MaxScore {
		return fmt.Errorf("config.reputation.initial_score out of range [0,%d]", r.MaxScore)
	}
	if r.NormalThreshold <= r.AtRiskThreshold {
		return fmt.Errorf("config.reputation.normal_threshold must exceed at_risk_threshold")
	}
	if r.AtRiskThreshold < 1 {
		return fmt.Errorf("config.reputation.at_risk_threshold must be at least 1")
	}
	if r.BaseStake < 0 {
		return fmt.Errorf("config.reputation.base_stake must not be negative")
	}
	if r.StakeAsset == "" {
		return fmt.Errorf("config.reputation.stake_asset is required")
	}
	if _, err := time.ParseDuration(r.UnstakeLock); err != nil {
		return fmt.Errorf("config.reputation.unstake_lock: %w", err)
	}
	min, err := time.ParseDuration(c.Tasks.MinDuration)
	if err != nil {
		return fmt.Errorf("config.tasks.min_duration: %w", err)
	}
	max, err := time.ParseDuration(c.Tasks.MaxDuration)
	if err != nil {
		return fmt.Errorf("config.tasks.max_duration: %w", err)
	}
	if min <= 0 || max < min {
		return fmt.Errorf("config.tasks duration bounds invalid: min=%s max=%s", min, max)
	}
	w := c.Rewards
	if w.CreatorBps < 0 || w.ReviewerBps < 0 || w.PlatformBps < 0 {
		return fmt.Errorf("config.rewards shares must not be negative")
	}
	if w.CreatorBps+w.ReviewerBps+w.PlatformBps > 10000 {
		return fmt.Errorf("config.rewards shares exceed 10000 basis points")
	}
	if c.Adoption.ApprovalsToAdopt < 1 {
		return fmt.Errorf("config.adoption.approvals_to_adopt must be at least 1")
	}
	if c.Adoption.RejectionsToRemove < 1 {
		return fmt.Errorf("config.adoption.rejections_to_remove must be at least 1")
	}
	a := c.Arbitration
	if a.MinFee <= 0 {
		return fmt.Errorf("config.arbitration.min_fee must be positive")
	}
	if a.FeeAsset == "" {
		return fmt.Errorf("config.arbitration.fee_asset is required")
	}
	if a.RestoreScore < r.AtRiskThreshold || a.RestoreScore > r.MaxScore {
		return fmt.Errorf("config.arbitration.restore_score out of range")
	}
	if len(c.Registry.Assets) == 0 {
		return fmt.Errorf("config.registry.assets must list at least one asset")
	}
	if len(c.Registry.AdoptionStrategies) == 0 {
		return fmt.Errorf("config.registry.adoption_strategies must list at least one strategy")
	}
	if len(c.Registry.RewardStrategies) == 0 {
		return fmt.Errorf("config.registry.reward_strategies must list at least one strategy")
	}
	for _, admin := range c.Admins {
		if admin == "" {
			return fmt.Errorf("config.admins contains empty actor id")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bountyline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with bl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default("bountyline"), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a marketplace.
func Default(marketplaceID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(marketplaceID)), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(marketplaceID string) string {
	return fmt.Sprintf(defaultTemplate, marketplaceID)
}

const defaultTemplate = `marketplace:
  id: %s

reputation:
  initial_score: 1000
  max_score: 10000
  normal_threshold: 600
  at_risk_threshold: 1
  base_stake: 1000
  stake_asset: CRD
  unstake_lock: 168h
  task_cancel_penalty: 20
  submission_removed_penalty: 50
  review_accurate_delta: 10
  review_inaccurate_delta: 15
  creator_category_score: 100
  reviewer_category_score: 5

tasks:
  min_duration: 1h
  max_duration: 2160h

rewards:
  creator_bps: 7000
  reviewer_bps: 2000
  platform_bps: 500

adoption:
  approvals_to_adopt: 1
  rejections_to_remove: 3

arbitration:
  min_fee: 100
  fee_asset: CRD
  min_requester_score: 600
  restore_score: 600
  rejection_penalty: 30

registry:
  guards: [min-score, stake]
  adoption_strategies: [threshold]
  reward_strategies: [default-split]
  assets: [CRD]

admins: [admin]

renderer:
  webhook_url: ""
`
