package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <swarm-id>",
	Short: "Show swarm task counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, shutdown, err := openCore()
	if err != nil {
		return err
	}
	defer shutdown()

	status, err := c.GetSwarmStatus(args[0])
	if err != nil {
		return fmt.Errorf("get swarm status: %w", err)
	}
	if status.Total == 0 {
		fmt.Printf("no tasks found for swarm %s\n", args[0])
		return nil
	}

	fmt.Printf("swarm %s: %d tasks\n", args[0], status.Total)
	fmt.Printf("  pending: %d\n", status.Pending)
	fmt.Printf("  claimed: %d\n", status.Claimed)
	fmt.Printf("  running: %d\n", status.Running)
	fmt.Printf("  done:    %d\n", status.Done)
	fmt.Printf("  failed:  %d\n", status.Failed)
	if status.Complete() {
		fmt.Println("swarm is complete")
	}

	return nil
}
