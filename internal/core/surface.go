package core

import (
	"context"
	"time"

	"github.com/ShayCichocki/hive/internal/bus"
	"github.com/ShayCichocki/hive/internal/decompose"
	"github.com/ShayCichocki/hive/internal/executor"
	"github.com/ShayCichocki/hive/internal/router"
	"github.com/ShayCichocki/hive/internal/swarm"
	"github.com/ShayCichocki/hive/pkg/models"
)

// This file is the stable library surface: one method per published
// operation, delegating to the owning subsystem.

// RunLlm invokes a specific model by name or alias.
func (c *Core) RunLlm(ctx context.Context, prompt string, opts router.RunOptions) (*router.RunResult, error) {
	return c.router.RunLlm(ctx, prompt, opts)
}

// RunClaude invokes an Anthropic model.
func (c *Core) RunClaude(ctx context.Context, prompt string, opts router.RunOptions) (*router.RunResult, error) {
	return c.router.RunClaude(ctx, prompt, opts)
}

// RunOpenAI invokes an OpenAI model.
func (c *Core) RunOpenAI(ctx context.Context, prompt string, opts router.RunOptions) (*router.RunResult, error) {
	return c.router.RunOpenAI(ctx, prompt, opts)
}

// RoutedLlm resolves a model from a strategy and invokes it.
func (c *Core) RoutedLlm(ctx context.Context, prompt string, opts router.RouteOptions) (*router.RunResult, error) {
	return c.router.RoutedLlm(ctx, prompt, opts)
}

// ResolveModel picks a concrete model for a strategy without calling it.
func (c *Core) ResolveModel(strategy models.Strategy, opts router.ResolveOptions) string {
	return c.router.ResolveModel(strategy, opts)
}

// GetModelStats returns aggregated recent call statistics per model.
func (c *Core) GetModelStats() ([]models.ModelStats, error) {
	return c.router.ModelStats()
}

// ConfigureRouter overrides strategy-selection tunables.
func (c *Core) ConfigureRouter(s router.Settings) {
	c.router.Configure(s)
}

// CreateSwarm inserts a batch of tasks as one swarm.
func (c *Core) CreateSwarm(swarmID string, specs []swarm.TaskSpec) (string, []string, error) {
	return c.queue.CreateSwarm(swarmID, specs)
}

// ClaimTask atomically claims the next eligible pending task.
func (c *Core) ClaimTask(swarmID, agentID string, checkDeps bool) (*models.SwarmTask, error) {
	return c.queue.ClaimTask(swarmID, agentID, checkDeps)
}

// MarkRunning moves a claimed task to running.
func (c *Core) MarkRunning(taskID string) error {
	return c.queue.MarkRunning(taskID)
}

// CompleteTask moves a task to done with its result.
func (c *Core) CompleteTask(taskID, result string) error {
	return c.queue.CompleteTask(taskID, result)
}

// FailTask moves a task to failed with an error message.
func (c *Core) FailTask(taskID, errMsg string) error {
	return c.queue.FailTask(taskID, errMsg)
}

// ResetTask forces a non-terminal task back to pending.
func (c *Core) ResetTask(taskID string) error {
	return c.queue.ResetTask(taskID)
}

// GetSwarmStatus returns per-status task counts.
func (c *Core) GetSwarmStatus(swarmID string) (models.SwarmStatus, error) {
	return c.queue.GetSwarmStatus(swarmID)
}

// GetSwarmResults returns every task of a swarm in seq order.
func (c *Core) GetSwarmResults(swarmID string) ([]*models.SwarmTask, error) {
	return c.queue.GetSwarmResults(swarmID)
}

// IsSwarmComplete reports whether every task is terminal.
func (c *Core) IsSwarmComplete(swarmID string) (bool, error) {
	return c.queue.IsSwarmComplete(swarmID)
}

// GetTask returns one task by id.
func (c *Core) GetTask(taskID string) (*models.SwarmTask, error) {
	return c.queue.GetTask(taskID)
}

// GetStaleTasks returns claimed/running tasks older than the cutoff.
func (c *Core) GetStaleTasks(staleAfter time.Duration) ([]*models.SwarmTask, error) {
	return c.queue.GetStaleTasks(staleAfter)
}

// CleanCompletedSwarms deletes fully terminal swarms past retention.
func (c *Core) CleanCompletedSwarms(retention time.Duration) (int64, error) {
	return c.queue.CleanCompletedSwarms(retention)
}

// OnTaskEvent registers a task lifecycle hook.
func (c *Core) OnTaskEvent(fn func(swarm.TaskEvent)) {
	c.queue.OnTaskEvent(fn)
}

// PostMessage persists one bus message.
func (c *Core) PostMessage(opts bus.PostOptions) (int64, error) {
	return c.bus.PostMessage(opts)
}

// ReadMessages returns unexpired messages on a channel.
func (c *Core) ReadMessages(channel string, opts bus.ReadOptions) ([]models.Message, error) {
	return c.bus.ReadMessages(channel, opts)
}

// SendDirect posts a message on the pair's direct channel.
func (c *Core) SendDirect(sender, recipient string, payload any, opts bus.PostOptions) (int64, error) {
	return c.bus.SendDirect(sender, recipient, payload, opts)
}

// ReadDirect returns unread messages addressed to the agent.
func (c *Core) ReadDirect(agentID, fromAgent string, opts bus.ReadOptions) ([]models.Message, error) {
	return c.bus.ReadDirect(agentID, fromAgent, opts)
}

// BroadcastSignal posts a signal message with a one-hour TTL.
func (c *Core) BroadcastSignal(channel, sender, signal string, data any) (int64, error) {
	return c.bus.BroadcastSignal(channel, sender, signal, data)
}

// ShareContext posts a context key/value with a two-hour TTL.
func (c *Core) ShareContext(channel, sender, key string, value any) (int64, error) {
	return c.bus.ShareContext(channel, sender, key, value)
}

// GetContext returns the newest unexpired context value for a key.
func (c *Core) GetContext(channel, key string) (any, error) {
	return c.bus.GetContext(channel, key)
}

// CleanExpired deletes expired messages and returns the count.
func (c *Core) CleanExpired() (int64, error) {
	return c.bus.CleanExpired()
}

// Decompose breaks a task into validated subtasks without queuing them.
func (c *Core) Decompose(ctx context.Context, taskDescription string, opts decompose.Options) ([]decompose.Subtask, error) {
	return decompose.New(c.router).Decompose(ctx, taskDescription, opts)
}

// DecomposeAndQueue decomposes a task and inserts it as a pending swarm.
func (c *Core) DecomposeAndQueue(ctx context.Context, taskDescription string, opts executor.Options) (string, []decompose.Subtask, error) {
	return c.executor.DecomposeAndQueue(ctx, taskDescription, opts)
}

// ExecuteDecomposed decomposes a task and executes its levels in
// parallel, returning per-subtask results and the synthesis.
func (c *Core) ExecuteDecomposed(ctx context.Context, taskDescription string, opts executor.Options) (*executor.Outcome, error) {
	return c.executor.ExecuteDecomposed(ctx, taskDescription, opts)
}
