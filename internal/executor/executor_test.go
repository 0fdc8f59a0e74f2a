package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/hive/internal/decompose"
	"github.com/ShayCichocki/hive/internal/router"
	"github.com/ShayCichocki/hive/internal/state"
	"github.com/ShayCichocki/hive/internal/swarm"
	"github.com/ShayCichocki/hive/pkg/models"
)

func newTestQueue(t *testing.T) *swarm.Store {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "swarm.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(swarm.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return swarm.New(db)
}

// scriptRunner answers routed calls through a response function and
// records every prompt it saw.
type scriptRunner struct {
	mu      sync.Mutex
	respond func(prompt string, opts router.RouteOptions) (string, error)
	prompts []string
}

func (s *scriptRunner) RoutedLlm(_ context.Context, prompt string, opts router.RouteOptions) (*router.RunResult, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	respond := s.respond
	s.mu.Unlock()

	text, err := respond(prompt, opts)
	if err != nil {
		return nil, err
	}
	return &router.RunResult{Text: text, ResolvedModel: "claude-sonnet-4-5"}, nil
}

func (s *scriptRunner) seen(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prompts {
		if strings.Contains(p, substr) {
			return true
		}
	}
	return false
}

// isDecomposeCall identifies the decomposition prompt.
func isDecomposeCall(prompt string) bool {
	return strings.Contains(prompt, "Return ONLY a JSON array")
}

// isSynthesisCall identifies the synthesis prompt.
func isSynthesisCall(prompt string) bool {
	return strings.Contains(prompt, "Synthesize the following subtask results")
}

// newTestExecutor builds an executor with an instant sleep that records
// backoff delays.
func newTestExecutor(t *testing.T, runner decompose.Runner, cfg Config) (*Executor, *[]time.Duration) {
	t.Helper()
	e := New(runner, newTestQueue(t), cfg)
	var delays []time.Duration
	var mu sync.Mutex
	e.sleep = func(d time.Duration) {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
	}
	return e, &delays
}

func TestExecuteDecomposed_Success(t *testing.T) {
	decomposition := `[
		{"description": "research the topic"},
		{"description": "draft the answer", "depends_on": [0]},
		{"description": "list caveats", "depends_on": [0]}
	]`

	runner := &scriptRunner{}
	runner.respond = func(prompt string, opts router.RouteOptions) (string, error) {
		switch {
		case isDecomposeCall(prompt):
			return decomposition, nil
		case isSynthesisCall(prompt):
			return "final answer", nil
		case strings.Contains(prompt, "Now: draft the answer"):
			if !strings.Contains(prompt, "research-output") {
				return "", fmt.Errorf("dependency context missing from prompt: %q", prompt)
			}
			return "draft-output", nil
		case strings.Contains(prompt, "Now: list caveats"):
			return "caveats-output", nil
		case strings.Contains(prompt, "research the topic"):
			return "research-output", nil
		default:
			return "", fmt.Errorf("unexpected prompt %q", prompt)
		}
	}

	e, _ := newTestExecutor(t, runner, DefaultConfig())

	var completed []int
	var mu sync.Mutex
	outcome, err := e.ExecuteDecomposed(context.Background(), "answer the question", Options{
		Caller: "test",
		OnSubtaskComplete: func(i int, _ string) {
			mu.Lock()
			completed = append(completed, i)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("ExecuteDecomposed: %v", err)
	}

	if !outcome.Success {
		t.Fatalf("outcome not successful: %+v", outcome)
	}
	if outcome.Results[0] != "research-output" || outcome.Results[1] != "draft-output" || outcome.Results[2] != "caveats-output" {
		t.Errorf("results = %v", outcome.Results)
	}
	if outcome.Synthesis != "final answer" {
		t.Errorf("synthesis = %q", outcome.Synthesis)
	}
	if len(completed) != 3 {
		t.Errorf("OnSubtaskComplete fired %d times, want 3", len(completed))
	}

	status, err := e.queue.GetSwarmStatus(outcome.SwarmID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Done != 3 {
		t.Errorf("swarm status = %+v, want 3 done", status)
	}
}

func TestExecuteDecomposed_TransientRetryWithBackoff(t *testing.T) {
	runner := &scriptRunner{}
	attempts := 0
	var mu sync.Mutex
	runner.respond = func(prompt string, opts router.RouteOptions) (string, error) {
		if isDecomposeCall(prompt) {
			return `[{"description": "flaky work"}]`, nil
		}
		if isSynthesisCall(prompt) {
			return "done", nil
		}
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts <= 2 {
			return "", fmt.Errorf("HTTP 429 rate_limit exceeded")
		}
		return "recovered", nil
	}

	e, delays := newTestExecutor(t, runner, DefaultConfig())

	outcome, err := e.ExecuteDecomposed(context.Background(), "task", Options{})
	if err != nil {
		t.Fatalf("ExecuteDecomposed: %v", err)
	}

	if !outcome.Success {
		t.Fatalf("outcome failed: %+v", outcome)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	want := []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}
	if len(*delays) != 2 || (*delays)[0] != want[0] || (*delays)[1] != want[1] {
		t.Errorf("backoff delays = %v, want %v", *delays, want)
	}

	task, err := e.queue.GetTask(models.TaskID(outcome.SwarmID, 0))
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != models.TaskStatusDone {
		t.Errorf("task status = %q, want done", task.Status)
	}
}

func TestExecuteDecomposed_NonTransientFailsImmediately(t *testing.T) {
	runner := &scriptRunner{}
	attempts := 0
	var mu sync.Mutex
	runner.respond = func(prompt string, opts router.RouteOptions) (string, error) {
		if isDecomposeCall(prompt) {
			return `[{"description": "doomed work"}]`, nil
		}
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return "", errors.New("invalid request payload")
	}

	e, delays := newTestExecutor(t, runner, DefaultConfig())

	var failures []int
	outcome, err := e.ExecuteDecomposed(context.Background(), "task", Options{
		OnSubtaskError: func(i int, _ error) { failures = append(failures, i) },
	})
	if err != nil {
		t.Fatalf("ExecuteDecomposed: %v", err)
	}

	if outcome.Success {
		t.Error("outcome should not be successful")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry)", attempts)
	}
	if len(*delays) != 0 {
		t.Errorf("recorded backoff %v for a non-transient error", *delays)
	}
	if len(failures) != 1 || failures[0] != 0 {
		t.Errorf("OnSubtaskError fired for %v", failures)
	}
	if outcome.Synthesis != "" {
		t.Errorf("synthesis should be skipped when everything failed, got %q", outcome.Synthesis)
	}
}

func TestExecuteDecomposed_DependencyFailurePropagates(t *testing.T) {
	runner := &scriptRunner{}
	runner.respond = func(prompt string, opts router.RouteOptions) (string, error) {
		switch {
		case isDecomposeCall(prompt):
			return `[
				{"description": "base step"},
				{"description": "dependent step", "depends_on": [0]}
			]`, nil
		case strings.Contains(prompt, "base step"):
			return "", errors.New("broken input")
		default:
			return "should never run", nil
		}
	}

	e, _ := newTestExecutor(t, runner, DefaultConfig())

	outcome, err := e.ExecuteDecomposed(context.Background(), "task", Options{})
	if err != nil {
		t.Fatalf("ExecuteDecomposed: %v", err)
	}

	if outcome.Success {
		t.Error("outcome should fail")
	}
	if outcome.Errors[1] != "Dependency subtask 0 failed" {
		t.Errorf("dependent error = %q", outcome.Errors[1])
	}
	if runner.seen("Now: dependent step") {
		t.Error("dependent subtask must not reach the provider")
	}

	task, err := e.queue.GetTask(models.TaskID(outcome.SwarmID, 1))
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != models.TaskStatusFailed {
		t.Errorf("dependent task status = %q, want failed", task.Status)
	}
}

func TestExecuteDecomposed_ContextTruncation(t *testing.T) {
	runner := &scriptRunner{}
	runner.respond = func(prompt string, opts router.RouteOptions) (string, error) {
		switch {
		case isDecomposeCall(prompt):
			return `[
				{"description": "produce"},
				{"description": "consume", "depends_on": [0]}
			]`, nil
		case isSynthesisCall(prompt):
			return "s", nil
		case strings.Contains(prompt, "Now: consume"):
			if !strings.Contains(prompt, "...(truncated)") {
				return "", fmt.Errorf("dependency result not truncated: %q", prompt)
			}
			return "ok", nil
		default:
			return strings.Repeat("x", 50), nil
		}
	}

	cfg := DefaultConfig()
	cfg.MaxDepResultChars = 10
	cfg.MaxContextChars = 100
	e, _ := newTestExecutor(t, runner, cfg)

	outcome, err := e.ExecuteDecomposed(context.Background(), "task", Options{})
	if err != nil {
		t.Fatalf("ExecuteDecomposed: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome failed: %+v", outcome)
	}
}

func TestExecuteDecomposed_SynthesisFallback(t *testing.T) {
	runner := &scriptRunner{}
	runner.respond = func(prompt string, opts router.RouteOptions) (string, error) {
		switch {
		case isDecomposeCall(prompt):
			return `[{"description": "only step"}]`, nil
		case isSynthesisCall(prompt):
			return "", errors.New("synthesis exploded")
		default:
			return "step-output", nil
		}
	}

	e, _ := newTestExecutor(t, runner, DefaultConfig())

	outcome, err := e.ExecuteDecomposed(context.Background(), "task", Options{})
	if err != nil {
		t.Fatalf("ExecuteDecomposed: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome failed: %+v", outcome)
	}
	if !strings.Contains(outcome.Synthesis, "step-output") {
		t.Errorf("fallback synthesis = %q, want raw concatenation", outcome.Synthesis)
	}
}

func TestExecuteDecomposed_CustomSynthesisTemplate(t *testing.T) {
	runner := &scriptRunner{}
	runner.respond = func(prompt string, opts router.RouteOptions) (string, error) {
		switch {
		case isDecomposeCall(prompt):
			return `[{"description": "only step"}]`, nil
		case strings.Contains(prompt, "Merge carefully:"):
			if !strings.Contains(prompt, "step-output") {
				return "", fmt.Errorf("{{results}} not substituted: %q", prompt)
			}
			return "merged", nil
		default:
			return "step-output", nil
		}
	}

	e, _ := newTestExecutor(t, runner, DefaultConfig())

	outcome, err := e.ExecuteDecomposed(context.Background(), "task", Options{
		SynthesisPrompt: "Merge carefully:\n{{results}}",
	})
	if err != nil {
		t.Fatalf("ExecuteDecomposed: %v", err)
	}
	if outcome.Synthesis != "merged" {
		t.Errorf("synthesis = %q, want merged", outcome.Synthesis)
	}
}

func TestDecomposeAndQueue(t *testing.T) {
	runner := &scriptRunner{}
	runner.respond = func(prompt string, opts router.RouteOptions) (string, error) {
		if isDecomposeCall(prompt) {
			return `[
				{"description": "A", "capability": "coding"},
				{"description": "B", "depends_on": [0]}
			]`, nil
		}
		return "", errors.New("no execution expected")
	}

	e, _ := newTestExecutor(t, runner, DefaultConfig())

	swarmID, subtasks, err := e.DecomposeAndQueue(context.Background(), "task", Options{})
	if err != nil {
		t.Fatalf("DecomposeAndQueue: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("got %d subtasks", len(subtasks))
	}

	tasks, err := e.queue.GetSwarmTasks(swarmID)
	if err != nil {
		t.Fatalf("get tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d queued tasks", len(tasks))
	}
	for _, task := range tasks {
		if task.Status != models.TaskStatusPending {
			t.Errorf("task %s status = %q, want pending", task.ID, task.Status)
		}
	}

	if tasks[0].Capability() != models.CapCoding {
		t.Errorf("task 0 capability = %q", tasks[0].Capability())
	}
	deps := tasks[1].DependsOn()
	if len(deps) != 1 || deps[0] != 0 {
		t.Errorf("task 1 depends_on = %v, want [0]", deps)
	}
}

func TestExecuteSwarm_CycleSecondLineOfDefense(t *testing.T) {
	runner := &scriptRunner{}
	runner.respond = func(string, router.RouteOptions) (string, error) {
		return "", errors.New("no provider call expected")
	}
	e, _ := newTestExecutor(t, runner, DefaultConfig())

	// Hand-build a cyclic subtask slice the decomposer would reject.
	subtasks := []decompose.Subtask{
		{Description: "A", DependsOn: []int{1}},
		{Description: "B", DependsOn: []int{0}},
	}
	swarmID, _, err := e.queue.CreateSwarm("", []swarm.TaskSpec{
		{Description: "A"}, {Description: "B"},
	})
	if err != nil {
		t.Fatalf("create swarm: %v", err)
	}

	outcome, err := e.executeSwarm(context.Background(), swarmID, subtasks, Options{})
	if err == nil {
		t.Fatal("expected UnresolvableCycleError")
	}
	var cycleErr *UnresolvableCycleError
	if !errors.As(err, &cycleErr) {
		t.Errorf("error type = %T", err)
	}
	if outcome.Success {
		t.Error("outcome should fail")
	}

	status, _ := e.queue.GetSwarmStatus(swarmID)
	if status.Failed != 2 {
		t.Errorf("swarm status = %+v, want both tasks failed", status)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"timeout after 30s calling claude-sonnet-4-5", true},
		{"read tcp: ETIMEDOUT", true},
		{"HTTP 429 rate_limit", true},
		{"rate limit exceeded", true},
		{"upstream returned 503", true},
		{"connection reset: ECONNRESET", true},
		{"invalid request payload", false},
		{"model not found", false},
	}

	for _, tt := range tests {
		if got := IsTransient(errors.New(tt.msg)); got != tt.want {
			t.Errorf("IsTransient(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
	if IsTransient(nil) {
		t.Error("IsTransient(nil) = true")
	}
}

func TestBackoffDelay(t *testing.T) {
	if backoffDelay(0) != time.Second {
		t.Errorf("backoffDelay(0) = %v", backoffDelay(0))
	}
	if backoffDelay(1) != 2*time.Second {
		t.Errorf("backoffDelay(1) = %v", backoffDelay(1))
	}
	if backoffDelay(2) != 4*time.Second {
		t.Errorf("backoffDelay(2) = %v", backoffDelay(2))
	}
}
