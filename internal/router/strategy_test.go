package router

import (
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/hive/internal/calllog"
	"github.com/ShayCichocki/hive/internal/registry"
	"github.com/ShayCichocki/hive/pkg/models"
)

// newTestRouter builds a router with an isolated call log.
func newTestRouter(t *testing.T) (*Router, *calllog.Store) {
	t.Helper()
	reg := registry.New()
	store, err := calllog.Open(filepath.Join(t.TempDir(), "llm.db"), reg)
	if err != nil {
		t.Fatalf("open call log: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(reg, store), store
}

// seedCalls writes n call records for a model and waits for the writer.
func seedCalls(t *testing.T, store *calllog.Store, model string, n int, ok bool, durationMs int64, cost float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		rec := models.CallRecord{
			Provider:     models.ProviderAnthropic,
			Model:        model,
			Caller:       "test",
			Prompt:       "p",
			Response:     "r",
			DurationMs:   durationMs,
			CostEstimate: cost,
			OK:           ok,
		}
		if !ok {
			rec.Error = "boom"
		}
		store.LogCall(rec)
	}
	store.Flush()
}

func TestResolveModel_Specific(t *testing.T) {
	r, _ := newTestRouter(t)

	got := r.ResolveModel(models.StrategySpecific, ResolveOptions{Model: "sonnet-4"})
	if got != "claude-sonnet-4-5" {
		t.Errorf("specific = %q, want claude-sonnet-4-5", got)
	}

	// No strategy with an explicit model behaves as specific.
	got = r.ResolveModel("", ResolveOptions{Model: "gpt-4"})
	if got != "gpt-4-turbo" {
		t.Errorf("implicit specific = %q, want gpt-4-turbo", got)
	}
}

func TestResolveModel_EmptyStatsFallbacks(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		strategy models.Strategy
		cap      models.Capability
		want     string
	}{
		{models.StrategyCheapest, "", "claude-haiku-4-5"},
		{models.StrategyFastest, "", "claude-haiku-4-5"},
		{models.StrategyBest, "", "claude-opus-4-5"},
		{models.StrategyBalanced, "", "claude-sonnet-4-5"},
		{models.StrategyBest, models.CapMultimodal, "gpt-4o"},
	}

	for _, tt := range tests {
		got := r.ResolveModel(tt.strategy, ResolveOptions{Capability: tt.cap})
		if got != tt.want {
			t.Errorf("ResolveModel(%s, cap=%q) = %q, want %q", tt.strategy, tt.cap, got, tt.want)
		}
	}
}

func TestResolveModel_CheapestUsesStats(t *testing.T) {
	r, store := newTestRouter(t)

	// Sonnet is reliable and cheap in recent history; opus is reliable
	// but pricier.
	seedCalls(t, store, "claude-sonnet-4-5", 5, true, 800, 0.001)
	seedCalls(t, store, "claude-opus-4-5", 5, true, 900, 0.05)

	got := r.ResolveModel(models.StrategyCheapest, ResolveOptions{})
	if got != "claude-sonnet-4-5" {
		t.Errorf("cheapest with stats = %q, want claude-sonnet-4-5", got)
	}
}

func TestResolveModel_UnreliableCandidatesFallBack(t *testing.T) {
	r, store := newTestRouter(t)

	// 40% success rate is below the 0.8 threshold, so the registry
	// choice wins even though stats exist.
	seedCalls(t, store, "claude-sonnet-4-5", 2, true, 500, 0.001)
	seedCalls(t, store, "claude-sonnet-4-5", 3, false, 500, 0.001)

	got := r.ResolveModel(models.StrategyCheapest, ResolveOptions{})
	if got != "claude-haiku-4-5" {
		t.Errorf("cheapest with unreliable stats = %q, want claude-haiku-4-5", got)
	}
}

func TestResolveModel_FastestUsesStats(t *testing.T) {
	r, store := newTestRouter(t)

	seedCalls(t, store, "claude-haiku-4-5", 4, true, 2000, 0.0001)
	seedCalls(t, store, "gpt-4o", 4, true, 300, 0.002)

	got := r.ResolveModel(models.StrategyFastest, ResolveOptions{})
	if got != "gpt-4o" {
		t.Errorf("fastest with stats = %q, want gpt-4o", got)
	}
}

func TestResolveModel_BestIgnoresStats(t *testing.T) {
	r, store := newTestRouter(t)

	// Even glowing haiku stats never displace the static best choice.
	seedCalls(t, store, "claude-haiku-4-5", 10, true, 100, 0.00001)

	got := r.ResolveModel(models.StrategyBest, ResolveOptions{})
	if got != "claude-opus-4-5" {
		t.Errorf("best = %q, want claude-opus-4-5", got)
	}
}

func TestResolveModel_BalancedScoresCostTimesLatency(t *testing.T) {
	r, store := newTestRouter(t)

	// sonnet: 0.002 * 1000 = 2; haiku: 0.001 * 400 = 0.4 -> haiku wins.
	seedCalls(t, store, "claude-sonnet-4-5", 4, true, 1000, 0.002)
	seedCalls(t, store, "claude-haiku-4-5", 4, true, 400, 0.001)

	got := r.ResolveModel(models.StrategyBalanced, ResolveOptions{})
	if got != "claude-haiku-4-5" {
		t.Errorf("balanced = %q, want claude-haiku-4-5", got)
	}
}

func TestResolveModel_BalancedStricterThreshold(t *testing.T) {
	r, store := newTestRouter(t)

	// 85% success passes the default 0.8 gate but not balanced's 0.9.
	seedCalls(t, store, "claude-haiku-4-5", 17, true, 400, 0.001)
	seedCalls(t, store, "claude-haiku-4-5", 3, false, 400, 0.001)

	got := r.ResolveModel(models.StrategyBalanced, ResolveOptions{})
	if got != "claude-sonnet-4-5" {
		t.Errorf("balanced with 85%% success = %q, want fallback claude-sonnet-4-5", got)
	}

	if got := r.ResolveModel(models.StrategyCheapest, ResolveOptions{}); got != "claude-haiku-4-5" {
		t.Errorf("cheapest with 85%% success = %q, want claude-haiku-4-5", got)
	}
}

func TestResolveModel_MinSampleSize(t *testing.T) {
	r, store := newTestRouter(t)

	// Two calls are below the default min sample size of three.
	seedCalls(t, store, "gpt-4o", 2, true, 100, 0.0001)

	got := r.ResolveModel(models.StrategyFastest, ResolveOptions{})
	if got != "claude-haiku-4-5" {
		t.Errorf("fastest below sample size = %q, want claude-haiku-4-5", got)
	}
}

func TestConfigure_SelectiveOverride(t *testing.T) {
	r, _ := newTestRouter(t)

	r.Configure(Settings{MinSampleSize: 10})

	s := r.Snapshot()
	if s.MinSampleSize != 10 {
		t.Errorf("MinSampleSize = %d, want 10", s.MinSampleSize)
	}
	if s.MinSuccessRate != 0.8 {
		t.Errorf("MinSuccessRate changed to %v, want 0.8", s.MinSuccessRate)
	}
	if s.Fallbacks.Best != registry.ModelOpus45 {
		t.Errorf("Fallbacks.Best = %q, want %q", s.Fallbacks.Best, registry.ModelOpus45)
	}
}

func TestDefaultSettings_Snapshot(t *testing.T) {
	defaults := DefaultSettings()
	if defaults.StatsHoursBack != 24 || defaults.MinSampleSize != 3 {
		t.Errorf("unexpected defaults: %+v", defaults)
	}

	// Mutating the snapshot must not affect a router.
	r, _ := newTestRouter(t)
	snap := r.Snapshot()
	snap.MinSampleSize = 99
	if r.Snapshot().MinSampleSize == 99 {
		t.Error("Snapshot leaked internal state")
	}
}
