// Package router normalizes model names, detects providers, dispatches
// calls to the matching adapter, and resolves models from high-level
// strategies using the capability registry plus live call statistics.
package router

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/hive/pkg/models"
)

// providerPrefixes are stripped from user-facing model names before
// alias lookup.
var providerPrefixes = []string{"anthropic/", "openai-codex/", "openai/"}

// aliases maps user-facing shorthand to canonical model names.
var aliases = map[string]string{
	"opus-4":   "claude-opus-4-5",
	"sonnet-4": "claude-sonnet-4-5",
	"haiku-4":  "claude-haiku-4-5",
	"opus-3":   "claude-opus-4",
	"sonnet-3": "claude-sonnet-3-5",
	"gpt-4o":   "gpt-4o",
	"gpt-4":    "gpt-4-turbo",
	"gpt-3.5":  "gpt-3.5-turbo",
	"codex":    "gpt-5.3-codex",
	// Bare current-generation family names map to the same releases.
	"claude-sonnet-4": "claude-sonnet-4-5",
	"claude-haiku-4":  "claude-haiku-4-5",
}

// claudeFamilies are substrings identifying Anthropic model names.
var claudeFamilies = []string{"claude", "opus", "sonnet", "haiku"}

// openAIPrefixes identify OpenAI model names.
var openAIPrefixes = []string{"gpt-", "o1", "o3"}

// UnknownProviderError indicates a model name resolved to no provider.
type UnknownProviderError struct {
	Model string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("model %q did not resolve to any provider", e.Model)
}

// NormalizeModel strips any provider prefix and resolves aliases to the
// canonical model name.
func NormalizeModel(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range providerPrefixes {
		if strings.HasPrefix(name, prefix) {
			name = strings.TrimPrefix(name, prefix)
			break
		}
	}
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}

// DetectProvider maps a canonical model name to its provider. Anthropic
// families match by substring; OpenAI models match by prefix.
func DetectProvider(model string) (models.Provider, error) {
	lower := strings.ToLower(model)
	for _, family := range claudeFamilies {
		if strings.Contains(lower, family) {
			return models.ProviderAnthropic, nil
		}
	}
	for _, prefix := range openAIPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return models.ProviderOpenAI, nil
		}
	}
	return "", &UnknownProviderError{Model: model}
}
