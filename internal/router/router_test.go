package router

import (
	"context"
	"testing"
	"time"

	"github.com/ShayCichocki/hive/internal/provider"
	"github.com/ShayCichocki/hive/internal/registry"
	"github.com/ShayCichocki/hive/pkg/models"
)

// stubAdapter records the request it served.
type stubAdapter struct {
	provider models.Provider
	last     provider.InvokeRequest
	text     string
}

func (a *stubAdapter) Provider() models.Provider { return a.provider }

func (a *stubAdapter) Invoke(_ context.Context, req provider.InvokeRequest) (*provider.Result, error) {
	a.last = req
	return &provider.Result{Text: a.text, Provider: a.provider, DurationMs: 1}, nil
}

func TestRunLlm_AliasAndProviderRouting(t *testing.T) {
	anthropicStub := &stubAdapter{provider: models.ProviderAnthropic, text: "claude says hi"}
	openaiStub := &stubAdapter{provider: models.ProviderOpenAI, text: "gpt says hi"}
	r := New(registry.New(), nil, anthropicStub, openaiStub)

	res, err := r.RunLlm(context.Background(), "hi", RunOptions{Model: "anthropic/claude-sonnet-4"})
	if err != nil {
		t.Fatalf("RunLlm: %v", err)
	}

	if res.Provider != models.ProviderAnthropic {
		t.Errorf("provider = %q, want anthropic", res.Provider)
	}
	if res.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q, want claude-sonnet-4-5", res.Model)
	}
	if anthropicStub.last.Model != "claude-sonnet-4-5" {
		t.Errorf("adapter saw model %q", anthropicStub.last.Model)
	}
	if openaiStub.last.Model != "" {
		t.Error("openai adapter was called for an anthropic model")
	}
}

func TestRunLlm_UnknownModel(t *testing.T) {
	r := New(registry.New(), nil, &stubAdapter{provider: models.ProviderAnthropic})
	if _, err := r.RunLlm(context.Background(), "hi", RunOptions{Model: "mystery-model"}); err == nil {
		t.Fatal("expected UnknownProviderError")
	}
}

func TestRunLlm_NoAdapterForProvider(t *testing.T) {
	r := New(registry.New(), nil, &stubAdapter{provider: models.ProviderAnthropic})
	if _, err := r.RunLlm(context.Background(), "hi", RunOptions{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected error when the provider has no adapter")
	}
}

func TestRunClaudeAndRunOpenAI_Defaults(t *testing.T) {
	anthropicStub := &stubAdapter{provider: models.ProviderAnthropic}
	openaiStub := &stubAdapter{provider: models.ProviderOpenAI}
	r := New(registry.New(), nil, anthropicStub, openaiStub)

	if _, err := r.RunClaude(context.Background(), "hi", RunOptions{}); err != nil {
		t.Fatalf("RunClaude: %v", err)
	}
	if anthropicStub.last.Model != registry.ModelSonnet45 {
		t.Errorf("RunClaude default model = %q", anthropicStub.last.Model)
	}

	if _, err := r.RunOpenAI(context.Background(), "hi", RunOptions{}); err != nil {
		t.Fatalf("RunOpenAI: %v", err)
	}
	if openaiStub.last.Model != registry.ModelGPT4o {
		t.Errorf("RunOpenAI default model = %q", openaiStub.last.Model)
	}
}

func TestRoutedLlm_AppliesDefaultTimeoutAndResolvedModel(t *testing.T) {
	anthropicStub := &stubAdapter{provider: models.ProviderAnthropic, text: "ok"}
	r := New(registry.New(), nil, anthropicStub)

	res, err := r.RoutedLlm(context.Background(), "hi", RouteOptions{Strategy: models.StrategyBest})
	if err != nil {
		t.Fatalf("RoutedLlm: %v", err)
	}

	if res.ResolvedModel != "claude-opus-4-5" {
		t.Errorf("resolved model = %q", res.ResolvedModel)
	}
	// The registry descriptor's default timeout applies when the caller
	// supplies none.
	if anthropicStub.last.Timeout != 120*time.Second {
		t.Errorf("timeout = %v, want the opus default", anthropicStub.last.Timeout)
	}

	// A caller-supplied timeout wins.
	if _, err := r.RoutedLlm(context.Background(), "hi", RouteOptions{
		Strategy: models.StrategyBest,
		Timeout:  5 * time.Second,
	}); err != nil {
		t.Fatalf("RoutedLlm: %v", err)
	}
	if anthropicStub.last.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", anthropicStub.last.Timeout)
	}
}
