package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/core"
)

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "AI agent orchestration core",
	Long: `Hive decomposes complex tasks into dependency-ordered subtasks,
routes each one to the right LLM by strategy and capability, executes
levels in parallel with retries, and synthesizes the results.

Core capabilities:
- Multi-provider LLM routing with cost/latency-aware model selection
- Persisted swarm task queue with atomic claiming
- Agent message bus with per-agent read cursors
- Append-only call log with cost estimates`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openCore loads configuration and initializes an isolated core. Every
// subcommand closes it via the returned shutdown function.
func openCore() (*core.Core, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	c, err := core.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init core: %w", err)
	}

	return c, func() { _ = c.Shutdown() }, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	Execute()
}
