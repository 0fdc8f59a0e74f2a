// Package decompose turns a complex task description into a validated
// array of subtasks with dependency indices, using a routed LLM call.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/hive/internal/router"
	"github.com/ShayCichocki/hive/pkg/models"
)

// Subtask is one validated decomposition entry.
type Subtask struct {
	// Description states the work.
	Description string `json:"description"`
	// Capability hints which models qualify.
	Capability models.Capability `json:"capability"`
	// Mode is inline or agent.
	Mode models.TaskMode `json:"mode"`
	// DependsOn lists indices of subtasks that must finish first; every
	// entry is strictly less than this subtask's own index.
	DependsOn []int `json:"depends_on"`
	// Strategy optionally overrides the executor's default strategy.
	Strategy models.Strategy `json:"strategy,omitempty"`
}

// Error indicates the LLM output could not be parsed into a valid
// subtask array.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("decomposition failed: %s", e.Reason)
}

// Runner is the routed-LLM dependency, satisfied by *router.Router.
type Runner interface {
	RoutedLlm(ctx context.Context, prompt string, opts router.RouteOptions) (*router.RunResult, error)
}

// Options modify a decomposition call.
type Options struct {
	// Strategy for the decomposition call itself; balanced by default.
	Strategy models.Strategy
	// Caller labels the call-log record.
	Caller string
	// Prompt overrides the built-in decomposition prompt template.
	Prompt string
}

// Decomposer breaks task descriptions into dependency-ordered subtasks.
type Decomposer struct {
	runner Runner
}

// New creates a Decomposer with the given runner.
func New(runner Runner) *Decomposer {
	return &Decomposer{runner: runner}
}

// Decompose asks a reasoning-capable model for a subtask array and
// validates it.
func (d *Decomposer) Decompose(ctx context.Context, taskDescription string, opts Options) ([]Subtask, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = models.StrategyBalanced
	}

	template := opts.Prompt
	if template == "" {
		template = decompositionPrompt
	}

	res, err := d.runner.RoutedLlm(ctx, fmt.Sprintf(template, taskDescription), router.RouteOptions{
		Strategy:   strategy,
		Capability: models.CapReasoning,
		Caller:     opts.Caller,
	})
	if err != nil {
		return nil, fmt.Errorf("decomposition call: %w", err)
	}

	return ParseSubtasks(res.Text)
}

// rawSubtask is the JSON shape returned by the model.
type rawSubtask struct {
	Description string        `json:"description"`
	Capability  string        `json:"capability"`
	Mode        string        `json:"mode"`
	DependsOn   []json.Number `json:"depends_on"`
	Strategy    string        `json:"strategy"`
}

// ParseSubtasks extracts and validates the JSON subtask array from a
// model response. Fenced code blocks are unwrapped and surrounding
// prose is tolerated; everything else is strict.
func ParseSubtasks(response string) ([]Subtask, error) {
	text := stripFence(strings.TrimSpace(response))

	jsonStart := strings.Index(text, "[")
	jsonEnd := strings.LastIndex(text, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, &Error{Reason: fmt.Sprintf("no JSON array found in response (%d chars)", len(response))}
	}

	var raw []rawSubtask
	if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &raw); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if len(raw) == 0 {
		return nil, &Error{Reason: "empty subtask array"}
	}

	subtasks := make([]Subtask, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Description) == "" {
			return nil, &Error{Reason: fmt.Sprintf("subtask %d missing description", i)}
		}

		st := Subtask{
			Description: r.Description,
			Capability:  models.Capability(r.Capability),
			Mode:        models.TaskMode(r.Mode),
			DependsOn:   []int{},
			Strategy:    models.Strategy(r.Strategy),
		}
		if st.Capability == "" {
			st.Capability = models.CapReasoning
		}
		if st.Mode == "" {
			st.Mode = models.ModeInline
		}

		for _, n := range r.DependsOn {
			dep, err := n.Int64()
			if err != nil {
				return nil, &Error{Reason: fmt.Sprintf("subtask %d has non-integer dependency %q", i, n.String())}
			}
			if dep < 0 || dep >= int64(len(raw)) {
				return nil, &Error{Reason: fmt.Sprintf("subtask %d depends on out-of-range index %d", i, dep)}
			}
			if dep >= int64(i) {
				return nil, &Error{Reason: fmt.Sprintf("subtask %d depends on later or self index %d", i, dep)}
			}
			st.DependsOn = append(st.DependsOn, int(dep))
		}

		subtasks[i] = st
	}

	return subtasks, nil
}

// stripFence unwraps a fenced code block, with or without a language
// tag.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	inner := strings.TrimPrefix(text, "```")
	if idx := strings.Index(inner, "\n"); idx != -1 {
		inner = inner[idx+1:]
	}
	if idx := strings.LastIndex(inner, "```"); idx != -1 {
		inner = inner[:idx]
	}
	return strings.TrimSpace(inner)
}
