package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alfredjeanlab/budgets/internal/client"
	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/money"
)

var cycleCmd = &cobra.Command{
	Use:     "cycle",
	Short:   "Manage budget cycles",
	GroupID: "budgets",
}

// centsFlag reads a dollar-denominated float flag and converts it to cents.
func centsFlag(flags *pflag.FlagSet, name string) (int64, error) {
	v, err := flags.GetFloat64(name)
	if err != nil {
		return 0, err
	}
	return money.DollarsToCents(name, v)
}

// changedCents is centsFlag for optional flags: it returns nil when the flag
// was not given.
func changedCents(flags *pflag.FlagSet, name string) (*int64, error) {
	if !flags.Changed(name) {
		return nil, nil
	}
	c, err := centsFlag(flags, name)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func parseDate(name, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD: %w", name, err)
	}
	return t, nil
}

var cycleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a budget cycle pending approval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		startStr, _ := flags.GetString("start")
		endStr, _ := flags.GetString("end")

		start, err := parseDate("start", startStr)
		if err != nil {
			return err
		}
		end := start.AddDate(0, 0, 7)
		if endStr != "" {
			if end, err = parseDate("end", endStr); err != nil {
				return err
			}
		}

		req := &client.CreateCycleRequest{StartDate: start, EndDate: end, Actor: actor}
		for name, dst := range map[string]*int64{
			"weekly":               &req.GlobalWeeklyLimitCents,
			"monthly":              &req.GlobalMonthlyLimitCents,
			"reserve":              &req.EmergencyReserveCents,
			"max-per-clip":         &req.MaxPayoutPerClipCents,
			"max-per-clipper-week": &req.MaxPayoutPerClipperWeekCents,
		} {
			if *dst, err = centsFlag(flags, name); err != nil {
				return err
			}
		}

		cycle, err := budgetClient.CreateCycle(context.Background(), req)
		if err != nil {
			return fmt.Errorf("creating cycle: %w", err)
		}
		output(cycle, func() { printCycleTable(cycle) })
		return nil
	},
}

var cycleShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a budget cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cycle, err := budgetClient.GetCycle(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting cycle %s: %w", args[0], err)
		}
		output(cycle, func() { printCycleTable(cycle) })
		return nil
	},
}

var cycleCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the cycle whose window contains now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cycle, err := budgetClient.CurrentCycle(context.Background())
		if err != nil {
			return fmt.Errorf("getting current cycle: %w", err)
		}
		output(cycle, func() { printCycleTable(cycle) })
		return nil
	},
}

var cycleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List budget cycles, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		cycles, err := budgetClient.ListCycles(context.Background(), limit)
		if err != nil {
			return fmt.Errorf("listing cycles: %w", err)
		}
		output(cycles, func() { printCycleListTable(cycles) })
		return nil
	},
}

// newCycleTransitionCmd builds a command that moves a cycle to status.
func newCycleTransitionCmd(use, short string, status model.CycleStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, _ := cmd.Flags().GetString("notes")
			cycle, err := budgetClient.TransitionCycle(context.Background(), &client.TransitionRequest{
				ID:     args[0],
				Status: string(status),
				Actor:  actor,
				Notes:  notes,
			})
			if err != nil {
				return fmt.Errorf("%s cycle %s: %w", use, args[0], err)
			}
			output(cycle, func() {
				fmt.Fprintf(stdout, "cycle %s is now %s\n", cycle.ID, cycle.Status)
			})
			return nil
		},
	}
	cmd.Flags().String("notes", "", "reason recorded in the audit log")
	return cmd
}

var cycleLimitsCmd = &cobra.Command{
	Use:   "limits <id>",
	Short: "Change the limits of a cycle",
	Long:  "Change the limits of a cycle. Only the flags given are updated.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		notes, _ := flags.GetString("notes")
		req := &client.UpdateLimitsRequest{ID: args[0], Actor: actor, Notes: notes}

		var err error
		for name, dst := range map[string]**int64{
			"weekly":               &req.GlobalWeeklyLimitCents,
			"monthly":              &req.GlobalMonthlyLimitCents,
			"reserve":              &req.EmergencyReserveCents,
			"max-per-clip":         &req.MaxPayoutPerClipCents,
			"max-per-clipper-week": &req.MaxPayoutPerClipperWeekCents,
		} {
			if *dst, err = changedCents(flags, name); err != nil {
				return err
			}
		}

		cycle, err := budgetClient.UpdateCycleLimits(context.Background(), req)
		if err != nil {
			return fmt.Errorf("updating limits of cycle %s: %w", args[0], err)
		}
		output(cycle, func() { printCycleTable(cycle) })
		return nil
	},
}

var cycleRefreshCmd = &cobra.Command{
	Use:   "refresh <id>",
	Short: "Recompute segment spend from the payout ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var asOf time.Time
		if s, _ := cmd.Flags().GetString("as-of"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return fmt.Errorf("--as-of: expected RFC3339 timestamp: %w", err)
			}
			asOf = t
		}
		views, err := budgetClient.RefreshSpend(context.Background(), args[0], asOf)
		if err != nil {
			return fmt.Errorf("refreshing spend for cycle %s: %w", args[0], err)
		}
		output(views, func() { printSegmentCycleViewsTable(views) })
		return nil
	},
}

var cycleOpenCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Open segment cycles inside a cycle",
	Long:  "Open a pending segment cycle for one segment (--segment) or for every live segment.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		segmentID, _ := cmd.Flags().GetString("segment")
		scs, err := budgetClient.OpenSegmentCycles(context.Background(), &client.OpenSegmentCyclesRequest{
			CycleID:   args[0],
			SegmentID: segmentID,
			Actor:     actor,
		})
		if err != nil {
			return fmt.Errorf("opening segment cycles in %s: %w", args[0], err)
		}
		output(scs, func() { printSegmentCycleListTable(scs) })
		return nil
	},
}

var cycleSegmentsCmd = &cobra.Command{
	Use:   "segments <id>",
	Short: "Show segment spend and warning levels within a cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		views, err := budgetClient.ListSegmentCycles(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("listing segment cycles of %s: %w", args[0], err)
		}
		output(views, func() { printSegmentCycleViewsTable(views) })
		return nil
	},
}

// addLimitFlags registers the dollar-denominated cycle limit flags.
func addLimitFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("weekly", 0, "global weekly limit in dollars")
	cmd.Flags().Float64("monthly", 0, "global monthly limit in dollars")
	cmd.Flags().Float64("reserve", 0, "emergency reserve in dollars")
	cmd.Flags().Float64("max-per-clip", 0, "maximum payout per clip in dollars")
	cmd.Flags().Float64("max-per-clipper-week", 0, "maximum payout per clipper per week in dollars")
}

func init() {
	cycleCreateCmd.Flags().String("start", "", "first day of the cycle (YYYY-MM-DD)")
	cycleCreateCmd.Flags().String("end", "", "end of the cycle, exclusive (YYYY-MM-DD, default start+7d)")
	addLimitFlags(cycleCreateCmd)
	_ = cycleCreateCmd.MarkFlagRequired("start")
	_ = cycleCreateCmd.MarkFlagRequired("weekly")

	addLimitFlags(cycleLimitsCmd)
	cycleLimitsCmd.Flags().String("notes", "", "reason recorded in the audit log")

	cycleListCmd.Flags().Int("limit", 20, "maximum number of cycles to list (0 for all)")
	cycleRefreshCmd.Flags().String("as-of", "", "aggregate payouts up to this RFC3339 time (default now)")
	cycleOpenCmd.Flags().String("segment", "", "open only this segment")

	cycleCmd.AddCommand(cycleCreateCmd)
	cycleCmd.AddCommand(cycleShowCmd)
	cycleCmd.AddCommand(cycleCurrentCmd)
	cycleCmd.AddCommand(cycleListCmd)
	cycleCmd.AddCommand(newCycleTransitionCmd("approve", "Approve a pending cycle", model.CycleStatusApproved))
	cycleCmd.AddCommand(newCycleTransitionCmd("kill", "Kill a cycle, freezing all payouts", model.CycleStatusKilled))
	cycleCmd.AddCommand(newCycleTransitionCmd("reactivate", "Reactivate a killed cycle", model.CycleStatusApproved))
	cycleCmd.AddCommand(newCycleTransitionCmd("lock", "Lock an approved cycle against further changes", model.CycleStatusLocked))
	cycleCmd.AddCommand(cycleLimitsCmd)
	cycleCmd.AddCommand(cycleRefreshCmd)
	cycleCmd.AddCommand(cycleOpenCmd)
	cycleCmd.AddCommand(cycleSegmentsCmd)
}
