package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/budgets/internal/client"
	"github.com/alfredjeanlab/budgets/internal/funnel"
)

var funnelCmd = &cobra.Command{
	Use:     "funnel",
	Short:   "Project funnel revenue from clip views",
	GroupID: "forecast",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		req := &client.FunnelRequest{}
		req.Scenario, _ = flags.GetString("scenario")
		if req.Scenario != "" {
			if _, ok := funnel.ScenarioByName(req.Scenario); !ok {
				return fmt.Errorf("unknown scenario %q", req.Scenario)
			}
		}
		req.Clippers, _ = flags.GetInt64("clippers")
		req.VideosPerClipper, _ = flags.GetInt64("videos")
		req.ViewsPerClip, _ = flags.GetInt64("views")

		var err error
		if req.PricePerClipCents, err = centsFlag(flags, "price"); err != nil {
			return err
		}

		overrides, _ := flags.GetStringArray("step")
		for _, o := range overrides {
			idx, bps, err := parseStepOverride(o)
			if err != nil {
				return err
			}
			if req.Inputs, err = req.Inputs.WithStepConversion(idx, bps); err != nil {
				return err
			}
		}

		ps, err := budgetClient.ProjectFunnel(context.Background(), req)
		if err != nil {
			return fmt.Errorf("projecting funnel: %w", err)
		}
		output(ps, func() { printProjectionsTable(ps) })
		return nil
	},
}

// parseStepOverride parses "<index>=<bps>".
func parseStepOverride(s string) (int, int64, error) {
	i, b, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("step %q: expected <index>=<bps>", s)
	}
	idx, err := strconv.Atoi(i)
	if err != nil {
		return 0, 0, fmt.Errorf("step %q: index: %w", s, err)
	}
	bps, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("step %q: bps: %w", s, err)
	}
	return idx, bps, nil
}

func init() {
	funnelCmd.Flags().String("scenario", "", "conservative, base or optimistic (default all)")
	funnelCmd.Flags().Int64("clippers", 0, "number of clippers")
	funnelCmd.Flags().Int64("videos", 0, "videos per clipper")
	funnelCmd.Flags().Int64("views", 0, "views per clip")
	funnelCmd.Flags().Float64("price", 0, "price paid per clip in dollars")
	funnelCmd.Flags().StringArray("step", nil, "override a step conversion rate, repeatable (<index>=<bps>)")
}
