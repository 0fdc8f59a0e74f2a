// Package executor runs decomposed swarms: it walks topological levels
// in parallel, propagates bounded context between dependent subtasks,
// retries transient provider errors with exponential backoff, and
// synthesizes the results.
package executor

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/hive/internal/decompose"
	"github.com/ShayCichocki/hive/internal/graph"
	"github.com/ShayCichocki/hive/internal/router"
	"github.com/ShayCichocki/hive/internal/swarm"
	"github.com/ShayCichocki/hive/pkg/models"
)

// UnresolvableCycleError indicates the executor detected a dependency
// cycle at level-computation time. The decomposer's validation makes
// this unreachable for its own output; this is the second line of
// defense for externally queued swarms.
type UnresolvableCycleError struct {
	SwarmID string
}

func (e *UnresolvableCycleError) Error() string {
	return fmt.Sprintf("swarm %s: unresolvable dependency cycle", e.SwarmID)
}

// cycleFailureReason is recorded on every task stranded by a cycle.
const cycleFailureReason = "Unresolvable dependency cycle"

// transientPattern matches provider errors worth retrying.
var transientPattern = regexp.MustCompile(`(?i)(timeout|ETIMEDOUT|rate.?limit|429|503|ECONNRESET)`)

// IsTransient reports whether an error message indicates a transient
// provider failure.
func IsTransient(err error) bool {
	return err != nil && transientPattern.MatchString(err.Error())
}

// backoffDelay returns the sleep before retry attempt n (0-based).
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1000*(1<<attempt)) * time.Millisecond
}

// defaultSynthesisPrompt is used when the caller supplies no template.
// A caller template substitutes {{results}}.
const defaultSynthesisPrompt = "Synthesize the following subtask results into a coherent final answer:\n\n{{results}}"

// Config holds executor tunables.
type Config struct {
	// MaxRetries is the number of additional attempts on transient
	// errors.
	MaxRetries int
	// MaxContextChars caps the whole dependency-context prefix.
	MaxContextChars int
	// MaxDepResultChars caps each dependency result inside the prefix.
	MaxDepResultChars int
}

// DefaultConfig returns the published executor defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        2,
		MaxContextChars:   4000,
		MaxDepResultChars: 1000,
	}
}

// Options modify one ExecuteDecomposed run.
type Options struct {
	// SwarmID reuses an id instead of generating one.
	SwarmID string
	// DefaultStrategy applies to subtasks without their own strategy.
	DefaultStrategy models.Strategy
	// Caller labels the call-log records.
	Caller string
	// SkipSynthesis suppresses the final synthesis call.
	SkipSynthesis bool
	// SynthesisPrompt overrides the synthesis template; {{results}} is
	// substituted with the concatenated subtask results.
	SynthesisPrompt string
	// DecomposePrompt overrides the decomposition prompt template.
	DecomposePrompt string
	// OnSubtaskComplete fires after a subtask reaches done.
	OnSubtaskComplete func(index int, result string)
	// OnSubtaskError fires after a subtask exhausts its attempts.
	OnSubtaskError func(index int, err error)
}

// Outcome is the result of one decomposed execution.
type Outcome struct {
	// SwarmID names the swarm that was executed.
	SwarmID string `json:"swarm_id"`
	// Success is true when every subtask completed.
	Success bool `json:"success"`
	// Results holds per-subtask output by index; failed entries are
	// empty.
	Results []string `json:"results"`
	// Errors holds per-subtask failure messages by index.
	Errors map[int]string `json:"errors,omitempty"`
	// Synthesis is the final combined answer, empty when skipped or
	// when every subtask failed.
	Synthesis string `json:"synthesis,omitempty"`
}

// Executor runs decomposed swarms against the router.
type Executor struct {
	runner     decompose.Runner
	decomposer *decompose.Decomposer
	queue      *swarm.Store
	cfg        Config

	// sleep is replaceable in tests to observe backoff delays.
	sleep func(time.Duration)
}

// New creates an executor.
func New(runner decompose.Runner, queue *swarm.Store, cfg Config) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultConfig().MaxContextChars
	}
	if cfg.MaxDepResultChars <= 0 {
		cfg.MaxDepResultChars = DefaultConfig().MaxDepResultChars
	}
	return &Executor{
		runner:     runner,
		decomposer: decompose.New(runner),
		queue:      queue,
		cfg:        cfg,
		sleep:      time.Sleep,
	}
}

// DecomposeAndQueue decomposes a task and inserts the subtasks as a
// pending swarm without executing them.
func (e *Executor) DecomposeAndQueue(ctx context.Context, taskDescription string, opts Options) (string, []decompose.Subtask, error) {
	subtasks, err := e.decomposer.Decompose(ctx, taskDescription, decompose.Options{
		Caller: opts.Caller,
		Prompt: opts.DecomposePrompt,
	})
	if err != nil {
		return "", nil, err
	}

	specs := make([]swarm.TaskSpec, len(subtasks))
	for i, st := range subtasks {
		deps := make([]any, len(st.DependsOn))
		for j, d := range st.DependsOn {
			deps[j] = d
		}
		specs[i] = swarm.TaskSpec{
			Description: st.Description,
			Prompt:      st.Description,
			Strategy:    st.Strategy,
			Mode:        st.Mode,
			Metadata: map[string]any{
				"depends_on":    deps,
				"capability":    string(st.Capability),
				"subtask_index": i,
			},
		}
	}

	swarmID, _, err := e.queue.CreateSwarm(opts.SwarmID, specs)
	if err != nil {
		return "", nil, err
	}
	return swarmID, subtasks, nil
}

// ExecuteDecomposed decomposes a task, enqueues it as a swarm, and
// executes the levels in parallel.
func (e *Executor) ExecuteDecomposed(ctx context.Context, taskDescription string, opts Options) (*Outcome, error) {
	swarmID, subtasks, err := e.DecomposeAndQueue(ctx, taskDescription, opts)
	if err != nil {
		return nil, err
	}
	return e.executeSwarm(ctx, swarmID, subtasks, opts)
}

// executeSwarm walks the subtask levels, awaiting each level before
// starting the next.
func (e *Executor) executeSwarm(ctx context.Context, swarmID string, subtasks []decompose.Subtask, opts Options) (*Outcome, error) {
	outcome := &Outcome{
		SwarmID: swarmID,
		Success: true,
		Results: make([]string, len(subtasks)),
		Errors:  make(map[int]string),
	}

	deps := make([][]int, len(subtasks))
	for i, st := range subtasks {
		deps[i] = st.DependsOn
	}

	g, err := graph.New(deps)
	if err != nil {
		return nil, err
	}
	levels, err := g.Levels()
	if err != nil {
		// Cannot occur for decomposer-validated input; strand every
		// task as failed so the swarm still terminates.
		for i := range subtasks {
			if ferr := e.queue.FailTask(models.TaskID(swarmID, i), cycleFailureReason); ferr != nil {
				log.Printf("[executor] fail task %d on cycle: %v", i, ferr)
			}
			outcome.Errors[i] = cycleFailureReason
		}
		outcome.Success = false
		return outcome, &UnresolvableCycleError{SwarmID: swarmID}
	}

	var mu sync.Mutex
	for _, level := range levels {
		var wg sync.WaitGroup
		for _, idx := range level {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				e.runSubtask(ctx, swarmID, subtasks, i, opts, outcome, &mu)
			}(idx)
		}
		wg.Wait()
	}

	if !opts.SkipSynthesis {
		outcome.Synthesis = e.synthesize(ctx, subtasks, outcome, opts)
	}

	return outcome, nil
}

// runSubtask executes one subtask: dependency gate, context prefix,
// claim, routed call with retries, and terminal transition.
func (e *Executor) runSubtask(ctx context.Context, swarmID string, subtasks []decompose.Subtask, i int, opts Options, outcome *Outcome, mu *sync.Mutex) {
	taskID := models.TaskID(swarmID, i)
	st := subtasks[i]

	// A failed dependency fails this task without a provider call;
	// siblings keep running.
	mu.Lock()
	failedDep := -1
	for _, d := range st.DependsOn {
		if _, failed := outcome.Errors[d]; failed {
			failedDep = d
			break
		}
	}
	prompt := e.buildPrompt(st, subtasks, outcome)
	mu.Unlock()

	if failedDep != -1 {
		msg := fmt.Sprintf("Dependency subtask %d failed", failedDep)
		e.failSubtask(taskID, i, msg, opts, outcome, mu)
		return
	}

	agentID := fmt.Sprintf("decomposer-%d", i)
	claimed, err := e.queue.ClaimTaskByID(taskID, agentID)
	if err != nil {
		e.failSubtask(taskID, i, fmt.Sprintf("claim failed: %v", err), opts, outcome, mu)
		return
	}
	if claimed == nil {
		// Another worker owns it; leave it alone.
		log.Printf("[executor] task %s already claimed, skipping", taskID)
		return
	}
	if err := e.queue.MarkRunning(taskID); err != nil {
		log.Printf("[executor] mark running %s: %v", taskID, err)
	}

	strategy := st.Strategy
	if strategy == "" {
		strategy = opts.DefaultStrategy
	}
	if strategy == "" {
		strategy = models.StrategyBalanced
	}

	text, err := e.invokeWithRetry(ctx, prompt, router.RouteOptions{
		Strategy:   strategy,
		Capability: st.Capability,
		Caller:     opts.Caller,
	})
	if err != nil {
		e.failSubtask(taskID, i, err.Error(), opts, outcome, mu)
		return
	}

	if cerr := e.queue.CompleteTask(taskID, text); cerr != nil {
		log.Printf("[executor] complete task %s: %v", taskID, cerr)
	}

	mu.Lock()
	outcome.Results[i] = text
	mu.Unlock()

	if opts.OnSubtaskComplete != nil {
		opts.OnSubtaskComplete(i, text)
	}
}

// failSubtask records a terminal failure for one subtask.
func (e *Executor) failSubtask(taskID string, i int, msg string, opts Options, outcome *Outcome, mu *sync.Mutex) {
	if err := e.queue.FailTask(taskID, msg); err != nil {
		log.Printf("[executor] fail task %s: %v", taskID, err)
	}

	mu.Lock()
	outcome.Errors[i] = msg
	outcome.Success = false
	mu.Unlock()

	if opts.OnSubtaskError != nil {
		opts.OnSubtaskError(i, fmt.Errorf("%s", msg))
	}
}

// invokeWithRetry retries transient errors with exponential backoff;
// anything else fails immediately.
func (e *Executor) invokeWithRetry(ctx context.Context, prompt string, opts router.RouteOptions) (string, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		res, err := e.runner.RoutedLlm(ctx, prompt, opts)
		if err == nil {
			return res.Text, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt >= e.cfg.MaxRetries {
			return "", lastErr
		}

		delay := backoffDelay(attempt)
		log.Printf("[executor] transient error, retrying in %s: %v", delay, err)
		e.sleep(delay)
	}
}

// buildPrompt assembles the bounded dependency-context prefix followed
// by the subtask description. Caller holds the outcome mutex.
func (e *Executor) buildPrompt(st decompose.Subtask, subtasks []decompose.Subtask, outcome *Outcome) string {
	var parts []string
	for _, d := range st.DependsOn {
		result := outcome.Results[d]
		if result == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:\n%s", subtasks[d].Description,
			truncate(result, e.cfg.MaxDepResultChars)))
	}

	if len(parts) == 0 {
		return st.Description
	}

	prefix := truncate(strings.Join(parts, "\n\n"), e.cfg.MaxContextChars)
	return fmt.Sprintf("%s\n\nNow: %s", prefix, st.Description)
}

// truncate caps text at max chars with a marker.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "...(truncated)"
}

// synthesize combines successful subtask results with one more routed
// call. On synthesis failure the raw concatenation is returned instead.
func (e *Executor) synthesize(ctx context.Context, subtasks []decompose.Subtask, outcome *Outcome, opts Options) string {
	var parts []string
	for i, result := range outcome.Results {
		if result == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]: %s", subtasks[i].Description, result))
	}
	if len(parts) == 0 {
		return ""
	}

	combined := strings.Join(parts, "\n\n---\n\n")

	template := opts.SynthesisPrompt
	if template == "" {
		template = defaultSynthesisPrompt
	}
	prompt := strings.ReplaceAll(template, "{{results}}", combined)

	res, err := e.runner.RoutedLlm(ctx, prompt, router.RouteOptions{
		Strategy: models.StrategyBalanced,
		Caller:   opts.Caller,
	})
	if err != nil {
		log.Printf("[executor] synthesis failed, returning raw results: %v", err)
		return combined
	}
	return res.Text
}
