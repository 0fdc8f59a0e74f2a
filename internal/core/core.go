// Package core wires the hive subsystems together: it opens both
// storage files, builds the provider adapters, router, task queue,
// message bus, and executor, and exposes the library surface. Tests
// instantiate isolated cores with temporary storage paths; there is no
// package-level mutable state.
package core

import (
	"fmt"
	"log"

	"github.com/ShayCichocki/hive/internal/bus"
	"github.com/ShayCichocki/hive/internal/calllog"
	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/executor"
	"github.com/ShayCichocki/hive/internal/provider"
	"github.com/ShayCichocki/hive/internal/registry"
	"github.com/ShayCichocki/hive/internal/router"
	"github.com/ShayCichocki/hive/internal/state"
	"github.com/ShayCichocki/hive/internal/swarm"
)

// Core is the process-local control plane. All subsystems hang off it
// instead of package-level singletons.
type Core struct {
	cfg      *config.Config
	registry *registry.Registry
	callLog  *calllog.Store
	router   *router.Router
	queue    *swarm.Store
	bus      *bus.Bus
	executor *executor.Executor

	swarmDB *state.DB
	auth    *provider.AuthStore
}

// New opens both storage files with schema migration and wires every
// subsystem. The returned core is safe for concurrent use until
// Shutdown.
func New(cfg *config.Config) (*Core, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	reg := registry.New()
	if pricing, err := config.LoadPricing(""); err != nil {
		log.Printf("[core] pricing overrides not loaded: %v", err)
	} else if len(pricing) > 0 {
		reg.ApplyPricing(pricing)
	}

	callLog, err := calllog.Open(cfg.Storage.CallLogPath, reg)
	if err != nil {
		return nil, fmt.Errorf("open call log: %w", err)
	}

	swarmDB, err := state.Open(cfg.Storage.SwarmPath)
	if err != nil {
		callLog.Close()
		return nil, fmt.Errorf("open swarm store: %w", err)
	}
	migrations := append(append([]state.Migration{}, swarm.Migrations...), bus.Migrations...)
	if err := swarmDB.Migrate(migrations); err != nil {
		callLog.Close()
		swarmDB.Close()
		return nil, fmt.Errorf("migrate swarm store: %w", err)
	}

	auth := provider.NewAuthStore(cfg.OpenAI.AuthFile, cfg.OpenAI.TokenURL)

	adapters := []provider.Adapter{
		provider.NewOpenAIAdapter(auth, callLog),
	}

	anthropicKey, _ := config.GetAnthropicKey(cfg)
	anthropicAdapter, err := provider.NewAnthropicAdapter(provider.AnthropicConfig{
		APIKey:        anthropicKey,
		OAuthToken:    config.GetAnthropicOAuthToken(),
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}, callLog)
	if err != nil {
		// No Anthropic credentials: the core still serves OpenAI models
		// and registry-only operations.
		log.Printf("[core] anthropic adapter unavailable: %v", err)
	} else {
		adapters = append(adapters, anthropicAdapter)
	}

	rt := router.New(reg, callLog, adapters...)
	rt.Configure(router.Settings{
		MinSuccessRate:         cfg.Router.MinSuccessRate,
		BalancedMinSuccessRate: cfg.Router.BalancedMinSuccessRate,
		MinSampleSize:          cfg.Router.MinSampleSize,
		StatsHoursBack:         cfg.Router.StatsHoursBack,
	})

	queue := swarm.New(swarmDB)

	exec := executor.New(rt, queue, executor.Config{
		MaxRetries:        cfg.Executor.MaxRetries,
		MaxContextChars:   cfg.Executor.MaxContextChars,
		MaxDepResultChars: cfg.Executor.MaxDepResultChars,
	})

	return &Core{
		cfg:      cfg,
		registry: reg,
		callLog:  callLog,
		router:   rt,
		queue:    queue,
		bus:      bus.New(swarmDB),
		executor: exec,
		swarmDB:  swarmDB,
		auth:     auth,
	}, nil
}

// Shutdown flushes the call-log writer and closes every handle.
func (c *Core) Shutdown() error {
	c.callLog.Flush()

	var firstErr error
	if err := c.callLog.Close(); err != nil {
		firstErr = err
	}
	if err := c.swarmDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.auth.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Registry returns the capability registry.
func (c *Core) Registry() *registry.Registry {
	return c.registry
}

// CallLog returns the interaction store.
func (c *Core) CallLog() *calllog.Store {
	return c.callLog
}

// Router returns the LLM router.
func (c *Core) Router() *router.Router {
	return c.router
}

// Queue returns the swarm task store.
func (c *Core) Queue() *swarm.Store {
	return c.queue
}

// Bus returns the message bus.
func (c *Core) Bus() *bus.Bus {
	return c.bus
}

// Executor returns the decomposed-task executor.
func (c *Core) Executor() *executor.Executor {
	return c.executor
}
