package policy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the sole source of trust for which guards, strategies and
// assets a task may be wired to. Unlike the cost-constrained original
// substrate, the allowlists are plain enumerable sets.
type Registry struct {
	mu                 sync.RWMutex
	guards             map[string]bool
	adoptionStrategies map[string]bool
	rewardStrategies   map[string]bool
	assets             map[string]bool
}

func NewRegistry(guards, adoptionStrategies, rewardStrategies, assets []string) *Registry {
	r := &Registry{
		guards:             map[string]bool{},
		adoptionStrategies: map[string]bool{},
		rewardStrategies:   map[string]bool{},
		assets:             map[string]bool{},
	}
	for _, g := range guards {
		r.guards[g] = true
	}
	for _, s := range adoptionStrategies {
		r.adoptionStrategies[s] = true
	}
	for _, s := range rewardStrategies {
		r.rewardStrategies[s] = true
	}
	for _, a := range assets {
		r.assets[a] = true
	}
	return r
}

func (r *Registry) IsGuardAllowed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.guards[name]
}

func (r *Registry) IsAdoptionStrategyAllowed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adoptionStrategies[name]
}

func (r *Registry) IsRewardStrategyAllowed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rewardStrategies[name]
}

func (r *Registry) IsAssetAllowed(asset string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assets[asset]
}

// ValidateTaskConfig checks a full task wiring in one call. Empty guard
// names mean "no guard" and are always acceptable.
func (r *Registry) ValidateTaskConfig(submitGuard, reviewGuard, adoptionStrategy, rewardStrategy, asset string) (bool, string) {
	if submitGuard != "" && !r.IsGuardAllowed(submitGuard) {
		return false, fmt.Sprintf("submit guard %s not approved", submitGuard)
	}
	if reviewGuard != "" && !r.IsGuardAllowed(reviewGuard) {
		return false, fmt.Sprintf("review guard %s not approved", reviewGuard)
	}
	if !r.IsAdoptionStrategyAllowed(adoptionStrategy) {
		return false, fmt.Sprintf("adoption strategy %s not approved", adoptionStrategy)
	}
	if !r.IsRewardStrategyAllowed(rewardStrategy) {
		return false, fmt.Sprintf("reward strategy %s not approved", rewardStrategy)
	}
	if !r.IsAssetAllowed(asset) {
		return false, fmt.Sprintf("asset %s not approved", asset)
	}
	return true, ""
}

func (r *Registry) SetGuardAllowed(name string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if allowed {
		r.guards[name] = true
	} else {
		delete(r.guards, name)
	}
}

func (r *Registry) SetAdoptionStrategyAllowed(name string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if allowed {
		r.adoptionStrategies[name] = true
	} else {
		delete(r.adoptionStrategies, name)
	}
}

func (r *Registry) SetRewardStrategyAllowed(name string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if allowed {
		r.rewardStrategies[name] = true
	} else {
		delete(r.rewardStrategies, name)
	}
}

func (r *Registry) SetAssetAllowed(asset string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if allowed {
		r.assets[asset] = true
	} else {
		delete(r.assets, asset)
	}
}

func (r *Registry) ListGuards() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.guards)
}

func (r *Registry) ListAdoptionStrategies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.adoptionStrategies)
}

func (r *Registry) ListRewardStrategies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rewardStrategies)
}

func (r *Registry) ListAssets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.assets)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
