package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered models and their capabilities",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	c, shutdown, err := openCore()
	if err != nil {
		return err
	}
	defer shutdown()

	reg := c.Registry()
	for _, name := range reg.All() {
		info := reg.Info(name)
		caps := make([]string, len(info.Capabilities))
		for i, cap := range info.Capabilities {
			caps[i] = string(cap)
		}
		fmt.Printf("%-20s %-10s %-9s ctx=%-7d timeout=%-5s %s\n",
			info.Name, info.Provider, info.Tier, info.MaxContextTokens,
			info.DefaultTimeout, strings.Join(caps, ","))
	}

	return nil
}
