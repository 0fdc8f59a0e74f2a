package decompose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ShayCichocki/hive/internal/router"
	"github.com/ShayCichocki/hive/pkg/models"
)

func TestParseSubtasks_Valid(t *testing.T) {
	response := `[
		{"description": "A"},
		{"description": "B", "depends_on": [0]}
	]`

	subtasks, err := ParseSubtasks(response)
	if err != nil {
		t.Fatalf("ParseSubtasks failed: %v", err)
	}

	if len(subtasks) != 2 {
		t.Fatalf("got %d subtasks, want 2", len(subtasks))
	}
	if subtasks[0].Capability != models.CapReasoning {
		t.Errorf("default capability = %q, want reasoning", subtasks[0].Capability)
	}
	if subtasks[0].Mode != models.ModeInline {
		t.Errorf("default mode = %q, want inline", subtasks[0].Mode)
	}
	if len(subtasks[0].DependsOn) != 0 {
		t.Errorf("subtask 0 deps = %v, want empty", subtasks[0].DependsOn)
	}
	if len(subtasks[1].DependsOn) != 1 || subtasks[1].DependsOn[0] != 0 {
		t.Errorf("subtask 1 deps = %v, want [0]", subtasks[1].DependsOn)
	}
}

func TestParseSubtasks_ForwardDependency(t *testing.T) {
	response := `[
		{"description": "A", "depends_on": [1]},
		{"description": "B"}
	]`

	_, err := ParseSubtasks(response)
	if err == nil {
		t.Fatal("expected error for forward dependency")
	}
	var decompErr *Error
	if !errors.As(err, &decompErr) {
		t.Errorf("error type = %T, want *Error", err)
	}
}

func TestParseSubtasks_SelfDependency(t *testing.T) {
	if _, err := ParseSubtasks(`[{"description": "A", "depends_on": [0]}]`); err == nil {
		t.Error("expected error for self dependency")
	}
}

func TestParseSubtasks_OutOfRangeDependency(t *testing.T) {
	if _, err := ParseSubtasks(`[{"description": "A"}, {"description": "B", "depends_on": [5]}]`); err == nil {
		t.Error("expected error for out-of-range dependency")
	}
	if _, err := ParseSubtasks(`[{"description": "A"}, {"description": "B", "depends_on": [-1]}]`); err == nil {
		t.Error("expected error for negative dependency")
	}
}

func TestParseSubtasks_NonIntegerDependency(t *testing.T) {
	if _, err := ParseSubtasks(`[{"description": "A"}, {"description": "B", "depends_on": [0.5]}]`); err == nil {
		t.Error("expected error for fractional dependency index")
	}
}

func TestParseSubtasks_MissingDescription(t *testing.T) {
	if _, err := ParseSubtasks(`[{"description": "A"}, {"capability": "coding"}]`); err == nil {
		t.Error("expected error for missing description")
	}
}

func TestParseSubtasks_EmptyArray(t *testing.T) {
	if _, err := ParseSubtasks(`[]`); err == nil {
		t.Error("expected error for empty array")
	}
}

func TestParseSubtasks_NoJSON(t *testing.T) {
	_, err := ParseSubtasks("I could not decompose this task.")
	if err == nil {
		t.Fatal("expected error for prose response")
	}
	if !strings.Contains(err.Error(), "no JSON array") {
		t.Errorf("error = %q, should mention missing JSON array", err)
	}
}

func TestParseSubtasks_FencedCodeBlock(t *testing.T) {
	response := "```json\n[{\"description\": \"A\", \"capability\": \"coding\"}]\n```"

	subtasks, err := ParseSubtasks(response)
	if err != nil {
		t.Fatalf("ParseSubtasks failed: %v", err)
	}
	if len(subtasks) != 1 || subtasks[0].Capability != models.CapCoding {
		t.Errorf("unexpected result: %+v", subtasks)
	}
}

func TestParseSubtasks_SurroundingProse(t *testing.T) {
	response := `Here is the decomposition:
[{"description": "A"}]
Hope that helps.`

	subtasks, err := ParseSubtasks(response)
	if err != nil {
		t.Fatalf("ParseSubtasks failed: %v", err)
	}
	if len(subtasks) != 1 {
		t.Errorf("got %d subtasks, want 1", len(subtasks))
	}
}

// stubRunner returns a canned response for every routed call.
type stubRunner struct {
	response string
	lastOpts router.RouteOptions
}

func (s *stubRunner) RoutedLlm(_ context.Context, _ string, opts router.RouteOptions) (*router.RunResult, error) {
	s.lastOpts = opts
	return &router.RunResult{Text: s.response}, nil
}

func TestDecompose_UsesReasoningCapability(t *testing.T) {
	stub := &stubRunner{response: `[{"description": "A"}]`}
	d := New(stub)

	subtasks, err := d.Decompose(context.Background(), "do something", Options{Caller: "test"})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(subtasks) != 1 {
		t.Fatalf("got %d subtasks", len(subtasks))
	}

	if stub.lastOpts.Capability != models.CapReasoning {
		t.Errorf("capability = %q, want reasoning", stub.lastOpts.Capability)
	}
	if stub.lastOpts.Strategy != models.StrategyBalanced {
		t.Errorf("strategy = %q, want balanced", stub.lastOpts.Strategy)
	}
}
