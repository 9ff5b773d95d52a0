package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/budgets/internal/model"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Query the audit log",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		filter := &model.EventFilter{}
		filter.CycleID, _ = flags.GetString("cycle")
		filter.EntityID, _ = flags.GetString("entity")
		filter.Limit, _ = flags.GetInt("limit")
		if actions, _ := flags.GetString("action"); actions != "" {
			filter.Actions = strings.Split(actions, ",")
		}
		if since, _ := flags.GetDuration("since"); since > 0 {
			t := time.Now().Add(-since).UTC()
			filter.Since = &t
		}

		evts, err := budgetClient.ListEvents(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		output(evts, func() { printEventsTable(evts) })
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <token>",
	Short: "Undo a recorded change by its rollback token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evt, err := budgetClient.Rollback(context.Background(), args[0], actor)
		if err != nil {
			return fmt.Errorf("rolling back %s: %w", args[0], err)
		}
		output(evt, func() {
			fmt.Fprintf(stdout, "rolled back %s with %s (event %d)\n", evt.EntityID, evt.Action, evt.ID)
		})
		return nil
	},
}

func init() {
	eventsCmd.Flags().String("cycle", "", "only events of this cycle")
	eventsCmd.Flags().String("entity", "", "only events of this entity")
	eventsCmd.Flags().String("action", "", "comma-separated actions (e.g. cycle.kill,segment.update)")
	eventsCmd.Flags().Duration("since", 0, "only events newer than this (e.g. 24h)")
	eventsCmd.Flags().Int("limit", 50, "maximum number of events (0 for all)")

	eventsCmd.AddCommand(rollbackCmd)
}
