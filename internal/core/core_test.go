package core

import (
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/hive/internal/bus"
	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/router"
	"github.com/ShayCichocki/hive/internal/swarm"
	"github.com/ShayCichocki/hive/pkg/models"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Storage.CallLogPath = filepath.Join(dir, "llm.db")
	cfg.Storage.SwarmPath = filepath.Join(dir, "swarm.db")
	cfg.OpenAI.AuthFile = filepath.Join(dir, "auth.json")

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	t.Cleanup(func() { c.Shutdown() })
	return c
}

func TestNew_OpensIsolatedStores(t *testing.T) {
	c := newTestCore(t)

	if c.Registry().Info("claude-sonnet-4-5") == nil {
		t.Error("registry not seeded")
	}

	stats, err := c.GetModelStats()
	if err != nil {
		t.Fatalf("GetModelStats: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("fresh core has stats: %v", stats)
	}
}

func TestSurface_SwarmLifecycle(t *testing.T) {
	c := newTestCore(t)

	swarmID, taskIDs, err := c.CreateSwarm("", []swarm.TaskSpec{
		{Description: "one"},
		{Description: "two"},
	})
	if err != nil {
		t.Fatalf("CreateSwarm: %v", err)
	}
	if len(taskIDs) != 2 {
		t.Fatalf("taskIDs = %v", taskIDs)
	}

	var events []swarm.EventType
	c.OnTaskEvent(func(e swarm.TaskEvent) { events = append(events, e.Type) })

	task, err := c.ClaimTask(swarmID, "worker", false)
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if task == nil || task.Seq != 0 {
		t.Fatalf("claimed %v", task)
	}

	if err := c.MarkRunning(task.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := c.CompleteTask(task.ID, "output"); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if err := c.FailTask(taskIDs[1], "nope"); err != nil {
		t.Fatalf("FailTask: %v", err)
	}

	done, err := c.IsSwarmComplete(swarmID)
	if err != nil || !done {
		t.Errorf("IsSwarmComplete = %v, %v", done, err)
	}

	results, err := c.GetSwarmResults(swarmID)
	if err != nil {
		t.Fatalf("GetSwarmResults: %v", err)
	}
	if results[0].Result != "output" || results[1].Error != "nope" {
		t.Errorf("results = %+v", results)
	}

	if len(events) < 3 {
		t.Errorf("lifecycle events = %v", events)
	}
}

func TestSurface_Messaging(t *testing.T) {
	c := newTestCore(t)

	if _, err := c.PostMessage(bus.PostOptions{Channel: "ops", Sender: "a", Payload: "hello"}); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	msgs, err := c.ReadMessages("ops", bus.ReadOptions{AgentID: "b"})
	if err != nil {
		t.Fatalf("ReadMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Payload != "hello" {
		t.Errorf("msgs = %v", msgs)
	}

	if _, err := c.SendDirect("a", "b", "psst", bus.PostOptions{}); err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	direct, err := c.ReadDirect("b", "a", bus.ReadOptions{})
	if err != nil {
		t.Fatalf("ReadDirect: %v", err)
	}
	if len(direct) != 1 || direct[0].Payload != "psst" {
		t.Errorf("direct = %v", direct)
	}

	if _, err := c.ShareContext("ops", "a", "phase", "rollout"); err != nil {
		t.Fatalf("ShareContext: %v", err)
	}
	value, err := c.GetContext("ops", "phase")
	if err != nil || value != "rollout" {
		t.Errorf("GetContext = %v, %v", value, err)
	}

	if _, err := c.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired: %v", err)
	}
}

func TestSurface_ResolveAndConfigure(t *testing.T) {
	c := newTestCore(t)

	if got := c.ResolveModel(models.StrategyBest, router.ResolveOptions{}); got != "claude-opus-4-5" {
		t.Errorf("ResolveModel(best) = %q", got)
	}

	c.ConfigureRouter(router.Settings{MinSampleSize: 7})
	if c.Router().Snapshot().MinSampleSize != 7 {
		t.Error("ConfigureRouter did not apply")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.CallLogPath = filepath.Join(dir, "llm.db")
	cfg.Storage.SwarmPath = filepath.Join(dir, "swarm.db")
	cfg.OpenAI.AuthFile = filepath.Join(dir, "auth.json")

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := c.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
