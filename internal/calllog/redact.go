package calllog

import "regexp"

const redactedPlaceholder = "[REDACTED]"

// maxPersistedChars bounds stored prompt/response text.
const maxPersistedChars = 10000

// truncationMarker is appended when text is cut at maxPersistedChars.
const truncationMarker = "...(truncated)"

// secretPatterns matches credential-bearing substrings in prompts,
// responses, and error strings before they are persisted.
var secretPatterns = []*regexp.Regexp{
	// Anthropic/OpenAI style secret keys.
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	// Bearer tokens in headers or pasted curl output.
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._/+=-]{16,}`),
	// Key-like assignments with long opaque values.
	regexp.MustCompile(`(?i)(api[_-]?key|auth[_-]?token|refresh[_-]?token)\s*[:=]\s*"?[A-Za-z0-9._/+=-]{16,}"?`),
}

// Redact replaces secret-bearing substrings with [REDACTED].
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// Truncate caps text at the persisted limit, appending the marker.
func Truncate(input string) string {
	if len(input) <= maxPersistedChars {
		return input
	}
	return input[:maxPersistedChars] + truncationMarker
}
