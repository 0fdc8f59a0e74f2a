package models

import "time"

// CallRecord is one append-only row describing a single LLM invocation.
type CallRecord struct {
	// ID is the monotonic record id.
	ID int64 `json:"id"`
	// Timestamp is the call completion time, UTC.
	Timestamp time.Time `json:"timestamp"`
	// Provider served the call.
	Provider Provider `json:"provider"`
	// Model is the canonical model name.
	Model string `json:"model"`
	// Caller is a free-form label identifying the call site.
	Caller string `json:"caller"`
	// Prompt is the redacted, truncated prompt text.
	Prompt string `json:"prompt"`
	// Response is the redacted, truncated response text.
	Response string `json:"response"`
	// InputTokens counts prompt tokens (reported or estimated).
	InputTokens int64 `json:"input_tokens"`
	// OutputTokens counts completion tokens (reported or estimated).
	OutputTokens int64 `json:"output_tokens"`
	// CostEstimate is USD, an estimate only.
	CostEstimate float64 `json:"cost_estimate"`
	// DurationMs is the wall-clock call duration.
	DurationMs int64 `json:"duration_ms"`
	// OK is false when the call failed.
	OK bool `json:"ok"`
	// Error holds the failure message; non-empty whenever OK is false.
	Error string `json:"error,omitempty"`
}

// ModelStats is one aggregated row of recent call history for a model,
// used by the strategy selector.
type ModelStats struct {
	Model        string  `json:"model"`
	CallCount    int     `json:"call_count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
	AvgCost      float64 `json:"avg_cost"`
}
