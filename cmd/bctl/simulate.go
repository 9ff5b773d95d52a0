package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/client"
	"github.com/alfredjeanlab/budgets/internal/money"
)

// parseSegmentInput parses "name:priority:weekly-dollars". The name doubles
// as the segment ID.
func parseSegmentInput(s string) (budget.SegmentInput, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return budget.SegmentInput{}, fmt.Errorf("segment %q: expected name:priority:weekly", s)
	}
	prio, err := strconv.Atoi(parts[1])
	if err != nil {
		return budget.SegmentInput{}, fmt.Errorf("segment %q: priority: %w", s, err)
	}
	weekly, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return budget.SegmentInput{}, fmt.Errorf("segment %q: weekly: %w", s, err)
	}
	cents, err := money.DollarsToCents("weekly", weekly)
	if err != nil {
		return budget.SegmentInput{}, err
	}
	return budget.SegmentInput{ID: parts[0], Name: parts[0], Priority: prio, WeeklyLimitCents: cents}, nil
}

var simulateCmd = &cobra.Command{
	Use:     "simulate",
	Short:   "Forecast views, clips and spend for an RPM and budget",
	GroupID: "forecast",
	Long: `Forecast views, clips and spend for an RPM and budget.

With --cycle, the cycle's limits, segments and recorded payouts seed every
parameter that is not given on the command line.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		req := &client.SimulateRequest{}
		req.CycleID, _ = flags.GetString("cycle")

		var err error
		for name, dst := range map[string]*int64{
			"rpm":          &req.RPMCents,
			"weekly":       &req.WeeklyLimitCents,
			"spent":        &req.RealSpendCents,
			"avg-earnings": &req.AvgEarningsPerClipCents,
			"global":       &req.GlobalWeeklyLimitCents,
		} {
			if *dst, err = centsFlag(flags, name); err != nil {
				return err
			}
		}
		req.AvgViewsPerClip, _ = flags.GetInt64("avg-views")
		req.ClipSupply, _ = flags.GetInt64("supply")
		req.GrowthBps, _ = flags.GetInt64("growth-bps")

		specs, _ := flags.GetStringArray("segment")
		for _, s := range specs {
			in, err := parseSegmentInput(s)
			if err != nil {
				return err
			}
			req.Segments = append(req.Segments, in)
		}

		fc, err := budgetClient.Simulate(context.Background(), req)
		if err != nil {
			return fmt.Errorf("simulating: %w", err)
		}
		output(fc, func() { printForecastTable(fc) })
		return nil
	},
}

func init() {
	simulateCmd.Flags().String("cycle", "", "seed parameters from this cycle")
	simulateCmd.Flags().Float64("rpm", 0, "payout per 1000 views in dollars")
	simulateCmd.Flags().Float64("weekly", 0, "weekly budget in dollars")
	simulateCmd.Flags().Float64("spent", 0, "spend already recorded this week in dollars")
	simulateCmd.Flags().Float64("avg-earnings", 0, "average earnings per clip in dollars (default $3.00)")
	simulateCmd.Flags().Float64("global", 0, "global weekly cap across segments in dollars")
	simulateCmd.Flags().Int64("avg-views", 0, "average views per clip")
	simulateCmd.Flags().Int64("supply", 0, "clips available this week (0 for unbounded)")
	simulateCmd.Flags().Int64("growth-bps", 0, "week-over-week growth in basis points (default 10000)")
	simulateCmd.Flags().StringArray("segment", nil, "segment to allocate, repeatable (name:priority:weekly)")
}
