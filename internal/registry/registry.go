// Package registry is the static table of model metadata and the pure
// selection helpers over it. It performs no I/O; descriptors are
// read-only after initialization.
package registry

import (
	"sort"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// Canonical model names known to the registry.
const (
	ModelOpus45    = "claude-opus-4-5"
	ModelSonnet45  = "claude-sonnet-4-5"
	ModelHaiku45   = "claude-haiku-4-5"
	ModelOpus4     = "claude-opus-4"
	ModelSonnet35  = "claude-sonnet-3-5"
	ModelGPT4o     = "gpt-4o"
	ModelGPT4Turbo = "gpt-4-turbo"
	ModelGPT35     = "gpt-3.5-turbo"
	ModelCodex     = "gpt-5.3-codex"
)

// Registry holds the model descriptor table.
type Registry struct {
	byName map[string]*models.ModelInfo
	names  []string
}

// New returns a registry seeded with the built-in model table.
func New() *Registry {
	r := &Registry{byName: make(map[string]*models.ModelInfo)}
	for i := range builtinModels {
		m := builtinModels[i]
		r.byName[m.Name] = &m
		r.names = append(r.names, m.Name)
	}
	sort.Strings(r.names)
	return r
}

// builtinModels is the descriptor table. CostTier orders models by price
// (lower is cheaper) without claiming billing accuracy; Pricing is an
// estimate per million tokens. gpt-5.3-codex pricing is unpublished and
// ships as zero; supply real numbers via ApplyPricing.
var builtinModels = []models.ModelInfo{
	{
		Name:             ModelOpus45,
		Provider:         models.ProviderAnthropic,
		Tier:             models.TierBest,
		Capabilities:     []models.Capability{models.CapCoding, models.CapReasoning, models.CapLongContext, models.CapCreative, models.CapReview},
		CostTier:         5,
		DefaultTimeout:   120 * time.Second,
		MaxContextTokens: 200000,
		Pricing:          models.ModelPricing{InputPerMillion: 15.00, OutputPerMillion: 75.00},
	},
	{
		Name:             ModelSonnet45,
		Provider:         models.ProviderAnthropic,
		Tier:             models.TierBalanced,
		Capabilities:     []models.Capability{models.CapCoding, models.CapReasoning, models.CapReview, models.CapExtraction, models.CapLongContext},
		CostTier:         3,
		DefaultTimeout:   90 * time.Second,
		MaxContextTokens: 200000,
		Pricing:          models.ModelPricing{InputPerMillion: 3.00, OutputPerMillion: 15.00},
	},
	{
		Name:             ModelHaiku45,
		Provider:         models.ProviderAnthropic,
		Tier:             models.TierCheap,
		Capabilities:     []models.Capability{models.CapSimpleReasoning, models.CapClassification, models.CapExtraction, models.CapCoding},
		CostTier:         1,
		DefaultTimeout:   30 * time.Second,
		MaxContextTokens: 200000,
		Pricing:          models.ModelPricing{InputPerMillion: 1.00, OutputPerMillion: 5.00},
	},
	{
		// Previous-generation flagship, superseded by opus-4-5.
		Name:             ModelOpus4,
		Provider:         models.ProviderAnthropic,
		Tier:             models.TierBalanced,
		Capabilities:     []models.Capability{models.CapCoding, models.CapReasoning, models.CapCreative, models.CapReview},
		CostTier:         4,
		DefaultTimeout:   120 * time.Second,
		MaxContextTokens: 200000,
		Pricing:          models.ModelPricing{InputPerMillion: 15.00, OutputPerMillion: 75.00},
	},
	{
		Name:             ModelSonnet35,
		Provider:         models.ProviderAnthropic,
		Tier:             models.TierBalanced,
		Capabilities:     []models.Capability{models.CapCoding, models.CapExtraction, models.CapClassification},
		CostTier:         2,
		DefaultTimeout:   60 * time.Second,
		MaxContextTokens: 200000,
		Pricing:          models.ModelPricing{InputPerMillion: 3.00, OutputPerMillion: 15.00},
	},
	{
		Name:             ModelGPT4o,
		Provider:         models.ProviderOpenAI,
		Tier:             models.TierBalanced,
		Capabilities:     []models.Capability{models.CapMultimodal, models.CapCoding, models.CapExtraction},
		CostTier:         3,
		DefaultTimeout:   60 * time.Second,
		MaxContextTokens: 128000,
		Pricing:          models.ModelPricing{InputPerMillion: 2.50, OutputPerMillion: 10.00},
	},
	{
		Name:             ModelGPT4Turbo,
		Provider:         models.ProviderOpenAI,
		Tier:             models.TierBalanced,
		Capabilities:     []models.Capability{models.CapCoding, models.CapReasoning},
		CostTier:         4,
		DefaultTimeout:   90 * time.Second,
		MaxContextTokens: 128000,
		Pricing:          models.ModelPricing{InputPerMillion: 10.00, OutputPerMillion: 30.00},
	},
	{
		Name:             ModelGPT35,
		Provider:         models.ProviderOpenAI,
		Tier:             models.TierCheap,
		Capabilities:     []models.Capability{models.CapSimpleReasoning, models.CapClassification},
		CostTier:         1,
		DefaultTimeout:   30 * time.Second,
		MaxContextTokens: 16385,
		Pricing:          models.ModelPricing{InputPerMillion: 0.50, OutputPerMillion: 1.50},
	},
	{
		Name:             ModelCodex,
		Provider:         models.ProviderOpenAI,
		Tier:             models.TierBest,
		Capabilities:     []models.Capability{models.CapCoding, models.CapReview, models.CapLongContext},
		CostTier:         4,
		DefaultTimeout:   180 * time.Second,
		MaxContextTokens: 400000,
		Pricing:          models.ModelPricing{},
	},
}

// Info returns the descriptor for a canonical model name, or nil.
func (r *Registry) Info(name string) *models.ModelInfo {
	return r.byName[name]
}

// All returns every registered model name in alphabetical order.
func (r *Registry) All() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// ByTier returns model names in the given tier, alphabetically.
func (r *Registry) ByTier(tier models.ModelTier) []string {
	var out []string
	for _, name := range r.names {
		if r.byName[name].Tier == tier {
			out = append(out, name)
		}
	}
	return out
}

// ByCapability returns model names carrying the given capability tag.
func (r *Registry) ByCapability(cap models.Capability) []string {
	var out []string
	for _, name := range r.names {
		if r.byName[name].HasCapability(cap) {
			out = append(out, name)
		}
	}
	return out
}

// ByContextFit returns the candidates whose context window holds at least
// minTokens. A nil candidate list means all registered models.
func (r *Registry) ByContextFit(minTokens int, candidates []string) []string {
	var out []string
	for _, name := range r.candidateSet(candidates) {
		if info := r.byName[name]; info != nil && info.MaxContextTokens >= minTokens {
			out = append(out, name)
		}
	}
	return out
}

// Cheapest returns the candidate with the lowest cost tier, ties broken
// by alphabetical name for determinism. Empty string when no candidate
// is registered.
func (r *Registry) Cheapest(candidates []string) string {
	return r.pick(candidates, func(a, b *models.ModelInfo) bool {
		return a.CostTier < b.CostTier
	})
}

// Fastest returns the candidate with the lowest default timeout.
func (r *Registry) Fastest(candidates []string) string {
	return r.pick(candidates, func(a, b *models.ModelInfo) bool {
		return a.DefaultTimeout < b.DefaultTimeout
	})
}

// Best returns the candidate with the highest tier ordinal.
func (r *Registry) Best(candidates []string) string {
	return r.pick(candidates, func(a, b *models.ModelInfo) bool {
		return a.Tier.Ordinal() > b.Tier.Ordinal()
	})
}

// ApplyPricing merges pricing overrides into the descriptor table.
// Unknown model names are ignored.
func (r *Registry) ApplyPricing(overrides map[string]models.ModelPricing) {
	for name, pricing := range overrides {
		if info, ok := r.byName[name]; ok {
			info.Pricing = pricing
		}
	}
}

// Pricing returns the pricing entry for a model, or a zero value.
func (r *Registry) Pricing(name string) models.ModelPricing {
	if info, ok := r.byName[name]; ok {
		return info.Pricing
	}
	return models.ModelPricing{}
}

// candidateSet resolves a candidate list, defaulting to all models.
// Order follows the alphabetical registry order so that tie-breaks are
// stable regardless of caller ordering.
func (r *Registry) candidateSet(candidates []string) []string {
	if candidates == nil {
		return r.names
	}
	want := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		want[c] = true
	}
	var out []string
	for _, name := range r.names {
		if want[name] {
			out = append(out, name)
		}
	}
	return out
}

// pick scans candidates in alphabetical order keeping the first strict
// winner, which makes alphabetical order the tie-break.
func (r *Registry) pick(candidates []string, better func(a, b *models.ModelInfo) bool) string {
	var best *models.ModelInfo
	for _, name := range r.candidateSet(candidates) {
		info := r.byName[name]
		if info == nil {
			continue
		}
		if best == nil || better(info, best) {
			best = info
		}
	}
	if best == nil {
		return ""
	}
	return best.Name
}
