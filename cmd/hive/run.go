package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/executor"
	"github.com/ShayCichocki/hive/pkg/models"
)

var (
	runStrategy    string
	runCaller      string
	runNoSynthesis bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Decompose a task and execute the subtasks in parallel",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runStrategy, "strategy", "balanced", "Default model strategy (cheapest|fastest|best|balanced)")
	runCmd.Flags().StringVar(&runCaller, "caller", "hive-cli", "Caller label recorded in the call log")
	runCmd.Flags().BoolVar(&runNoSynthesis, "no-synthesis", false, "Skip the final synthesis call")
}

func runRun(cmd *cobra.Command, args []string) error {
	c, shutdown, err := openCore()
	if err != nil {
		return err
	}
	defer shutdown()

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	outcome, err := c.ExecuteDecomposed(context.Background(), args[0], executor.Options{
		DefaultStrategy: models.Strategy(runStrategy),
		Caller:          runCaller,
		SkipSynthesis:   runNoSynthesis,
		OnSubtaskComplete: func(i int, _ string) {
			green.Printf("  subtask %d done\n", i)
		},
		OnSubtaskError: func(i int, err error) {
			red.Printf("  subtask %d failed: %v\n", i, err)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("swarm %s\n", outcome.SwarmID)
	if !outcome.Success {
		var failed []int
		for i := range outcome.Errors {
			failed = append(failed, i)
		}
		sort.Ints(failed)
		for _, i := range failed {
			red.Printf("subtask %d: %s\n", i, outcome.Errors[i])
		}
	}

	if outcome.Synthesis != "" {
		fmt.Println()
		fmt.Println(outcome.Synthesis)
	}

	return nil
}
