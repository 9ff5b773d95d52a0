package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the budgets service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := budgetClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		output(map[string]string{"status": status}, func() {
			fmt.Fprintf(stdout, "Health: %s\n", status)
		})

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}
