package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recent per-model call statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	c, shutdown, err := openCore()
	if err != nil {
		return err
	}
	defer shutdown()

	stats, err := c.GetModelStats()
	if err != nil {
		return fmt.Errorf("get model stats: %w", err)
	}
	if len(stats) == 0 {
		fmt.Println("no call history in the stats window")
		return nil
	}

	fmt.Printf("%-20s %8s %12s %9s %10s\n", "model", "calls", "latency(ms)", "success", "avg cost")
	for _, st := range stats {
		fmt.Printf("%-20s %8d %12.0f %8.0f%% $%9.6f\n",
			st.Model, st.CallCount, st.AvgLatencyMs, st.SuccessRate*100, st.AvgCost)
	}

	if dropped := c.CallLog().Dropped(); dropped > 0 {
		fmt.Printf("\n%d call records dropped by the log writer\n", dropped)
	}

	return nil
}
