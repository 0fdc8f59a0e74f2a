// API credential lookup helpers.
package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no Anthropic credential is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// AnthropicOAuthEnv is the environment variable carrying an Anthropic
// OAuth token as an alternative to an API key.
const AnthropicOAuthEnv = "ANTHROPIC_OAUTH_TOKEN"

// GetAnthropicKey returns the Anthropic API key from the configuration.
// It checks in order: environment variable, config file.
func GetAnthropicKey(cfg *Config) (string, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}

	if cfg != nil && cfg.Anthropic.APIKey != "" {
		key := os.ExpandEnv(cfg.Anthropic.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}

	return "", ErrNoAPIKey
}

// GetAnthropicOAuthToken returns the OAuth bearer token from the
// environment, or empty when unset.
func GetAnthropicOAuthToken() string {
	return os.Getenv(AnthropicOAuthEnv)
}

// ValidateAPIKey performs basic format validation on an Anthropic key.
// It checks shape but does not verify the key against the API.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	if !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}

	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}

	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters (sk-ant-) and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return key[:3] + "..."
	}

	return key[:7] + "..." + key[len(key)-4:]
}
