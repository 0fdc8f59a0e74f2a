// Package models contains the shared data types for the hive core:
// model descriptors, swarm tasks, bus messages, and call records.
package models

import "time"

// Provider identifies which LLM provider serves a model.
type Provider string

const (
	// ProviderAnthropic is the Anthropic Messages API.
	ProviderAnthropic Provider = "anthropic"
	// ProviderOpenAI is the OpenAI chat-completions API.
	ProviderOpenAI Provider = "openai"
)

// Valid returns true if the provider is a known value.
func (p Provider) Valid() bool {
	switch p {
	case ProviderAnthropic, ProviderOpenAI:
		return true
	default:
		return false
	}
}

// ModelTier is an ordinal quality ranking independent of capability.
type ModelTier string

const (
	// TierCheap is the lowest-cost tier for simple work.
	TierCheap ModelTier = "cheap"
	// TierBalanced is the middle tier for standard work.
	TierBalanced ModelTier = "balanced"
	// TierBest is the highest-quality tier for complex work.
	TierBest ModelTier = "best"
)

// Ordinal returns the tier's rank for comparisons (cheap < balanced < best).
func (t ModelTier) Ordinal() int {
	switch t {
	case TierCheap:
		return 0
	case TierBalanced:
		return 1
	case TierBest:
		return 2
	default:
		return -1
	}
}

// Valid returns true if the tier is a known value.
func (t ModelTier) Valid() bool {
	return t.Ordinal() >= 0
}

// Capability is an orthogonal tag describing what a model is good for.
type Capability string

const (
	CapCoding          Capability = "coding"
	CapReasoning       Capability = "reasoning"
	CapLongContext     Capability = "long-context"
	CapCreative        Capability = "creative"
	CapReview          Capability = "review"
	CapClassification  Capability = "classification"
	CapExtraction      Capability = "extraction"
	CapSimpleReasoning Capability = "simple-reasoning"
	CapMultimodal      Capability = "multimodal"
)

// Strategy is a high-level intent for model selection.
type Strategy string

const (
	// StrategyCheapest picks the lowest observed (or registered) cost.
	StrategyCheapest Strategy = "cheapest"
	// StrategyFastest picks the lowest observed latency.
	StrategyFastest Strategy = "fastest"
	// StrategyBest picks the highest registered tier.
	StrategyBest Strategy = "best"
	// StrategyBalanced trades off cost against latency.
	StrategyBalanced Strategy = "balanced"
	// StrategySpecific uses the caller-supplied model after alias
	// normalization.
	StrategySpecific Strategy = "specific"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCheapest, StrategyFastest, StrategyBest, StrategyBalanced, StrategySpecific:
		return true
	default:
		return false
	}
}

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// ModelInfo is the immutable registry descriptor for one model.
type ModelInfo struct {
	// Name is the canonical model identifier.
	Name string `json:"name"`
	// Provider serves this model.
	Provider Provider `json:"provider"`
	// Tier is the quality ranking.
	Tier ModelTier `json:"tier"`
	// Capabilities lists what the model is good for.
	Capabilities []Capability `json:"capabilities"`
	// CostTier is a small integer where lower is cheaper.
	CostTier int `json:"cost_tier"`
	// DefaultTimeout is applied when the caller supplies none.
	DefaultTimeout time.Duration `json:"default_timeout"`
	// MaxContextTokens is the model's context window.
	MaxContextTokens int `json:"max_context_tokens"`
	// Pricing is an estimate, not a billing source of truth.
	Pricing ModelPricing `json:"pricing"`
}

// HasCapability returns true if the model carries the given capability tag.
func (m *ModelInfo) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
