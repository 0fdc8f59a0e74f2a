package router

import (
	"log"
	"time"

	"github.com/ShayCichocki/hive/internal/registry"
	"github.com/ShayCichocki/hive/pkg/models"
)

// Fallbacks are the hard last-resort model choices per strategy.
// Strategy resolution never fails: one of these is always returned when
// both stats and the registry come up empty.
type Fallbacks struct {
	Cheapest string `json:"cheapest"`
	Fastest  string `json:"fastest"`
	Best     string `json:"best"`
	Balanced string `json:"balanced"`
}

// Settings are the strategy-selection tunables.
type Settings struct {
	// MinSuccessRate filters stat candidates for cheapest/fastest.
	MinSuccessRate float64 `json:"min_success_rate"`
	// BalancedMinSuccessRate is the stricter filter for balanced.
	BalancedMinSuccessRate float64 `json:"balanced_min_success_rate"`
	// MinSampleSize is the call count below which a model's stats are
	// ignored.
	MinSampleSize int `json:"min_sample_size"`
	// StatsHoursBack bounds the stats window.
	StatsHoursBack int `json:"stats_hours_back"`
	// Fallbacks are the hard per-strategy defaults.
	Fallbacks Fallbacks `json:"fallbacks"`
}

// DefaultSettings returns the published defaults.
func DefaultSettings() Settings {
	return Settings{
		MinSuccessRate:         0.8,
		BalancedMinSuccessRate: 0.9,
		MinSampleSize:          3,
		StatsHoursBack:         24,
		Fallbacks: Fallbacks{
			Cheapest: registry.ModelHaiku45,
			Fastest:  registry.ModelHaiku45,
			Best:     registry.ModelOpus45,
			Balanced: registry.ModelSonnet45,
		},
	}
}

// Configure replaces the router's strategy settings. Zero-valued fields
// keep their current value so callers can override selectively.
func (r *Router) Configure(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.MinSuccessRate > 0 {
		r.settings.MinSuccessRate = s.MinSuccessRate
	}
	if s.BalancedMinSuccessRate > 0 {
		r.settings.BalancedMinSuccessRate = s.BalancedMinSuccessRate
	}
	if s.MinSampleSize > 0 {
		r.settings.MinSampleSize = s.MinSampleSize
	}
	if s.StatsHoursBack > 0 {
		r.settings.StatsHoursBack = s.StatsHoursBack
	}
	if s.Fallbacks.Cheapest != "" {
		r.settings.Fallbacks.Cheapest = s.Fallbacks.Cheapest
	}
	if s.Fallbacks.Fastest != "" {
		r.settings.Fallbacks.Fastest = s.Fallbacks.Fastest
	}
	if s.Fallbacks.Best != "" {
		r.settings.Fallbacks.Best = s.Fallbacks.Best
	}
	if s.Fallbacks.Balanced != "" {
		r.settings.Fallbacks.Balanced = s.Fallbacks.Balanced
	}
}

// Snapshot returns a copy of the current settings.
func (r *Router) Snapshot() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// ResolveOptions modify strategy resolution.
type ResolveOptions struct {
	// Capability restricts the candidate pool.
	Capability models.Capability
	// Model is returned, alias-normalized, for the specific strategy.
	Model string
}

// epsilon clamps cost and latency away from zero for the balanced score.
const epsilon = 1e-6

// ResolveModel picks a concrete model for a strategy. It never fails:
// stats-driven choices fall back to the static registry, and the
// registry falls back to hard defaults.
func (r *Router) ResolveModel(strategy models.Strategy, opts ResolveOptions) string {
	if strategy == models.StrategySpecific || (strategy == "" && opts.Model != "") {
		return NormalizeModel(opts.Model)
	}
	if strategy == "" {
		strategy = models.StrategyBalanced
	}

	settings := r.Snapshot()

	// Candidate pool: capability-filtered or the whole registry.
	var pool []string
	if opts.Capability != "" {
		pool = r.reg.ByCapability(opts.Capability)
	} else {
		pool = r.reg.All()
	}

	inPool := make(map[string]bool, len(pool))
	for _, name := range pool {
		inPool[name] = true
	}

	// Best is always static: historical stats never promote a lesser
	// model above the registry's tier ordering.
	if strategy == models.StrategyBest {
		if name := r.reg.Best(pool); name != "" {
			return name
		}
		return settings.Fallbacks.Best
	}

	stats := r.recentStats(settings)

	threshold := settings.MinSuccessRate
	if strategy == models.StrategyBalanced {
		threshold = settings.BalancedMinSuccessRate
	}

	var reliable []models.ModelStats
	for _, st := range stats {
		if inPool[st.Model] && st.SuccessRate >= threshold {
			reliable = append(reliable, st)
		}
	}

	switch strategy {
	case models.StrategyCheapest:
		if name := pickStat(reliable, func(a, b models.ModelStats) bool {
			return a.AvgCost < b.AvgCost
		}); name != "" {
			return name
		}
		if name := r.reg.Cheapest(pool); name != "" {
			return name
		}
		return settings.Fallbacks.Cheapest

	case models.StrategyFastest:
		if name := pickStat(reliable, func(a, b models.ModelStats) bool {
			return a.AvgLatencyMs < b.AvgLatencyMs
		}); name != "" {
			return name
		}
		if name := r.reg.Fastest(pool); name != "" {
			return name
		}
		return settings.Fallbacks.Fastest

	default: // balanced
		if name := pickStat(reliable, func(a, b models.ModelStats) bool {
			return balancedScore(a) > balancedScore(b)
		}); name != "" {
			return name
		}
		if inPool[settings.Fallbacks.Balanced] {
			return settings.Fallbacks.Balanced
		}
		return settings.Fallbacks.Balanced
	}
}

// balancedScore maximizes 1/(cost × latency) with both clamped away
// from zero.
func balancedScore(st models.ModelStats) float64 {
	cost := st.AvgCost
	if cost < epsilon {
		cost = epsilon
	}
	latency := st.AvgLatencyMs
	if latency < epsilon {
		latency = epsilon
	}
	return 1 / (cost * latency)
}

// pickStat scans stats keeping the first strict winner; input arrives
// ordered by model name, which makes alphabetical order the tie-break.
func pickStat(stats []models.ModelStats, better func(a, b models.ModelStats) bool) string {
	var best *models.ModelStats
	for i := range stats {
		if best == nil || better(stats[i], *best) {
			best = &stats[i]
		}
	}
	if best == nil {
		return ""
	}
	return best.Model
}

// recentStats queries the call log; a query failure degrades to static
// selection rather than failing resolution.
func (r *Router) recentStats(settings Settings) []models.ModelStats {
	if r.log == nil {
		return nil
	}
	stats, err := r.log.ModelStats(time.Duration(settings.StatsHoursBack)*time.Hour, settings.MinSampleSize)
	if err != nil {
		log.Printf("[router] stats query failed, using static selection: %v", err)
		return nil
	}
	return stats
}
