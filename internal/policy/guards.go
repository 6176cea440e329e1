package policy

import (
	"fmt"

	"bountyline/internal/domain"
)

const (
	GuardMinScore = "min-score"
	GuardStake    = "stake"
)

// MinScoreGuard admits actors whose reputation is at or above a floor.
type MinScoreGuard struct {
	MinScore int64
}

func (g *MinScoreGuard) Name() string        { return GuardMinScore }
func (g *MinScoreGuard) Version() string     { return "1.0.0" }
func (g *MinScoreGuard) Description() string { return "requires a minimum reputation score" }

func (g *MinScoreGuard) ValidateUser(actor ActorState, _ Context) (bool, string) {
	if actor.Status == domain.StatusBlacklisted {
		return false, "actor is blacklisted"
	}
	if actor.Score < g.MinScore {
		return false, fmt.Sprintf("score %d below minimum %d", actor.Score, g.MinScore)
	}
	return true, ""
}

func (g *MinScoreGuard) Config() map[string]int64 {
	return map[string]int64{"min_score": g.MinScore}
}

func (g *MinScoreGuard) SetConfig(cfg map[string]int64) error {
	v, ok := cfg["min_score"]
	if !ok {
		return fmt.Errorf("min_score is required")
	}
	if v < 0 {
		return fmt.Errorf("min_score must not be negative")
	}
	g.MinScore = v
	return nil
}

// StakeGuard admits actors with at least a minimum staked amount.
type StakeGuard struct {
	MinStake int64
}

func (g *StakeGuard) Name() string        { return GuardStake }
func (g *StakeGuard) Version() string     { return "1.0.0" }
func (g *StakeGuard) Description() string { return "requires a minimum staked amount" }

func (g *StakeGuard) ValidateUser(actor ActorState, _ Context) (bool, string) {
	if actor.Status == domain.StatusBlacklisted {
		return false, "actor is blacklisted"
	}
	if actor.StakedAmount < g.MinStake {
		return false, fmt.Sprintf("staked %d below minimum %d", actor.StakedAmount, g.MinStake)
	}
	return true, ""
}

func (g *StakeGuard) Config() map[string]int64 {
	return map[string]int64{"min_stake": g.MinStake}
}

func (g *StakeGuard) SetConfig(cfg map[string]int64) error {
	v, ok := cfg["min_stake"]
	if !ok {
		return fmt.Errorf("min_stake is required")
	}
	if v < 0 {
		return fmt.Errorf("min_stake must not be negative")
	}
	g.MinStake = v
	return nil
}
