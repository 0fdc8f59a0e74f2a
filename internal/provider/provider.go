// Package provider contains the per-provider LLM adapters, OAuth
// credential handling, and the one-shot auth smoke test. Both adapters
// share a uniform request/response contract and log every call to the
// interaction store.
package provider

import (
	"context"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// InvokeRequest is the uniform adapter input.
type InvokeRequest struct {
	// Model is the canonical model name.
	Model string
	// Prompt is the single user message.
	Prompt string
	// Timeout bounds the outbound call. Zero means the caller's context
	// deadline (if any) governs.
	Timeout time.Duration
	// Caller is a free-form label recorded in the call log.
	Caller string
	// SkipLog suppresses the interaction-store record for this call.
	SkipLog bool
}

// Result is the uniform adapter output.
type Result struct {
	// Text is the accumulated completion text.
	Text string
	// Provider served the call.
	Provider models.Provider
	// DurationMs is the adapter-measured call duration.
	DurationMs int64
	// InputTokens and OutputTokens are provider-reported when available,
	// char-estimated otherwise.
	InputTokens  int64
	OutputTokens int64
}

// Adapter is the uniform provider contract. The router holds one adapter
// per provider in a fixed table.
type Adapter interface {
	// Provider identifies which provider this adapter serves.
	Provider() models.Provider
	// Invoke makes one completion call and returns the accumulated text.
	Invoke(ctx context.Context, req InvokeRequest) (*Result, error)
}
