package router

import (
	"context"
	"sync"
	"time"

	"github.com/ShayCichocki/hive/internal/calllog"
	"github.com/ShayCichocki/hive/internal/provider"
	"github.com/ShayCichocki/hive/internal/registry"
	"github.com/ShayCichocki/hive/pkg/models"
)

// RunOptions modify a direct RunLlm call.
type RunOptions struct {
	// Model is required for RunLlm; alias and prefix forms are accepted.
	Model string
	// Timeout overrides the model's default timeout.
	Timeout time.Duration
	// Caller is the free-form label recorded in the call log.
	Caller string
	// SkipLog suppresses the interaction-store record.
	SkipLog bool
}

// RunResult is the uniform LLM call result.
type RunResult struct {
	// Text is the completion text.
	Text string `json:"text"`
	// Provider served the call.
	Provider models.Provider `json:"provider"`
	// Model is the canonical model invoked.
	Model string `json:"model"`
	// DurationMs is measured around the adapter call.
	DurationMs int64 `json:"duration_ms"`
	// ResolvedModel is set by RoutedLlm to the strategy's choice.
	ResolvedModel string `json:"resolved_model,omitempty"`
}

// Router dispatches LLM calls to provider adapters and resolves models
// from strategies. Adapters live in a provider-indexed table fixed at
// construction.
type Router struct {
	reg      *registry.Registry
	log      *calllog.Store
	adapters map[models.Provider]provider.Adapter

	mu       sync.RWMutex
	settings Settings
}

// New creates a router over the given adapters.
func New(reg *registry.Registry, logStore *calllog.Store, adapters ...provider.Adapter) *Router {
	table := make(map[models.Provider]provider.Adapter, len(adapters))
	for _, a := range adapters {
		table[a.Provider()] = a
	}
	return &Router{
		reg:      reg,
		log:      logStore,
		adapters: table,
		settings: DefaultSettings(),
	}
}

// RunLlm normalizes the model name, detects the provider, and dispatches
// to the matching adapter. Duration is measured here as well as inside
// the adapter for defense in depth.
func (r *Router) RunLlm(ctx context.Context, prompt string, opts RunOptions) (*RunResult, error) {
	model := NormalizeModel(opts.Model)

	prov, err := DetectProvider(model)
	if err != nil {
		return nil, err
	}

	adapter, ok := r.adapters[prov]
	if !ok {
		return nil, &UnknownProviderError{Model: model}
	}

	start := time.Now()
	res, err := adapter.Invoke(ctx, provider.InvokeRequest{
		Model:   model,
		Prompt:  prompt,
		Timeout: opts.Timeout,
		Caller:  opts.Caller,
		SkipLog: opts.SkipLog,
	})
	if err != nil {
		return nil, err
	}

	// Measured here, outside the adapter, as defense in depth against
	// an adapter that misreports its own timing.
	return &RunResult{
		Text:       res.Text,
		Provider:   res.Provider,
		Model:      model,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// RunClaude dispatches to the Anthropic adapter with a default model
// when none is given.
func (r *Router) RunClaude(ctx context.Context, prompt string, opts RunOptions) (*RunResult, error) {
	if opts.Model == "" {
		opts.Model = registry.ModelSonnet45
	}
	return r.RunLlm(ctx, prompt, opts)
}

// RunOpenAI dispatches to the OpenAI adapter with a default model when
// none is given.
func (r *Router) RunOpenAI(ctx context.Context, prompt string, opts RunOptions) (*RunResult, error) {
	if opts.Model == "" {
		opts.Model = registry.ModelGPT4o
	}
	return r.RunLlm(ctx, prompt, opts)
}

// RouteOptions modify a strategy-routed call.
type RouteOptions struct {
	// Strategy selects the model; empty with an explicit Model behaves
	// as specific.
	Strategy models.Strategy
	// Capability restricts the candidate pool.
	Capability models.Capability
	// Model is the explicit model for the specific strategy.
	Model string
	// Timeout overrides the resolved model's default timeout.
	Timeout time.Duration
	// Caller is recorded in the call log.
	Caller string
	// SkipLog suppresses the interaction-store record.
	SkipLog bool
}

// RoutedLlm resolves a model from the strategy, applies the registry's
// default timeout when the caller supplied none, and invokes it.
func (r *Router) RoutedLlm(ctx context.Context, prompt string, opts RouteOptions) (*RunResult, error) {
	resolved := r.ResolveModel(opts.Strategy, ResolveOptions{
		Capability: opts.Capability,
		Model:      opts.Model,
	})

	timeout := opts.Timeout
	if timeout == 0 {
		if info := r.reg.Info(resolved); info != nil {
			timeout = info.DefaultTimeout
		}
	}

	res, err := r.RunLlm(ctx, prompt, RunOptions{
		Model:   resolved,
		Timeout: timeout,
		Caller:  opts.Caller,
		SkipLog: opts.SkipLog,
	})
	if err != nil {
		return nil, err
	}
	res.ResolvedModel = resolved
	return res, nil
}

// Registry exposes the capability registry for callers that need
// descriptor lookups.
func (r *Router) Registry() *registry.Registry {
	return r.reg
}

// ModelStats returns the aggregated call statistics the strategy
// selector consumes, using the router's configured window.
func (r *Router) ModelStats() ([]models.ModelStats, error) {
	s := r.Snapshot()
	return r.log.ModelStats(time.Duration(s.StatsHoursBack)*time.Hour, s.MinSampleSize)
}
