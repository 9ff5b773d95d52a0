package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/client"
	"github.com/alfredjeanlab/budgets/internal/model"
)

var segmentCmd = &cobra.Command{
	Use:     "segment",
	Aliases: []string{"seg"},
	Short:   "Manage budget segments",
	GroupID: "budgets",
}

// parseRule parses a membership rule of the form "all", "tier=<value>",
// "platform=<value>" or "min_views=<n>".
func parseRule(s string) (model.SegmentRule, error) {
	kind, value, _ := strings.Cut(s, "=")
	r := model.SegmentRule{Kind: model.RuleKind(strings.TrimSpace(kind))}
	switch r.Kind {
	case model.RuleMinViews:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return r, fmt.Errorf("rule %q: min_views needs an integer", s)
		}
		r.Min = n
	default:
		r.Value = strings.TrimSpace(value)
	}
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func parseRules(specs []string) ([]model.SegmentRule, error) {
	rules := make([]model.SegmentRule, 0, len(specs))
	for _, s := range specs {
		r, err := parseRule(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

var segmentCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a budget segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		weekly, err := centsFlag(flags, "weekly")
		if err != nil {
			return err
		}
		monthly, err := centsFlag(flags, "monthly")
		if err != nil {
			return err
		}
		priority, _ := flags.GetInt("priority")
		specs, _ := flags.GetStringArray("rule")
		rules, err := parseRules(specs)
		if err != nil {
			return err
		}

		seg, err := budgetClient.CreateSegment(context.Background(), &client.CreateSegmentRequest{
			Name:              args[0],
			WeeklyLimitCents:  weekly,
			MonthlyLimitCents: monthly,
			Priority:          priority,
			Rules:             rules,
			Actor:             actor,
		})
		if err != nil {
			return fmt.Errorf("creating segment: %w", err)
		}
		output(seg, func() { printSegmentTable(seg) })
		return nil
	},
}

var segmentShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seg, err := budgetClient.GetSegment(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting segment %s: %w", args[0], err)
		}
		output(seg, func() { printSegmentTable(seg) })
		return nil
	},
}

var segmentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List segments by priority",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		segs, err := budgetClient.ListSegments(context.Background(), all)
		if err != nil {
			return fmt.Errorf("listing segments: %w", err)
		}
		output(segs, func() { printSegmentListTable(segs) })
		return nil
	},
}

var segmentUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a segment",
	Long:  "Update a segment. Only the flags given are changed; --rule replaces every rule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		notes, _ := flags.GetString("notes")
		req := &client.UpdateSegmentRequest{ID: args[0], Actor: actor, Notes: notes}

		if flags.Changed("name") {
			name, _ := flags.GetString("name")
			req.Name = &name
		}
		if flags.Changed("priority") {
			p, _ := flags.GetInt("priority")
			req.Priority = &p
		}
		var err error
		if req.WeeklyLimitCents, err = changedCents(flags, "weekly"); err != nil {
			return err
		}
		if req.MonthlyLimitCents, err = changedCents(flags, "monthly"); err != nil {
			return err
		}
		if flags.Changed("rule") {
			specs, _ := flags.GetStringArray("rule")
			if req.Rules, err = parseRules(specs); err != nil {
				return err
			}
		}

		seg, err := budgetClient.UpdateSegment(context.Background(), req)
		if err != nil {
			return fmt.Errorf("updating segment %s: %w", args[0], err)
		}
		output(seg, func() { printSegmentTable(seg) })
		return nil
	},
}

var segmentDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Soft-delete a segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")
		if err := budgetClient.DeleteSegment(context.Background(), args[0], actor, notes); err != nil {
			return fmt.Errorf("deleting segment %s: %w", args[0], err)
		}
		output(map[string]any{"id": args[0], "deleted": true}, func() {
			fmt.Fprintf(stdout, "segment %s deleted\n", args[0])
		})
		return nil
	},
}

var segmentThrottleCmd = &cobra.Command{
	Use:   "throttle",
	Short: "Show or set the soft-throttle policy of a segment",
}

var segmentThrottleGetCmd = &cobra.Command{
	Use:   "get <segment-id>",
	Short: "Show the throttle policy in effect for a segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := budgetClient.GetThrottleConfig(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting throttle policy of %s: %w", args[0], err)
		}
		output(cfg, func() { printConfigTable(cfg) })
		return nil
	},
}

var segmentThrottleSetCmd = &cobra.Command{
	Use:   "set <segment-id>",
	Short: "Set the throttle policy of a segment",
	Long: `Set the throttle policy applied while a segment is in the soft-throttle band.

  --mode percent_cut --cut-bps 5000   pay half of each request
  --mode cap --max 5.00               pay at most $5.00 per request`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		mode, _ := flags.GetString("mode")
		cut, _ := flags.GetInt64("cut-bps")
		maxCents, err := centsFlag(flags, "max")
		if err != nil {
			return err
		}
		tc := budget.ThrottleConfig{Mode: mode, CutBps: cut, MaxCents: maxCents}
		// Validate locally before the round trip.
		if _, err := tc.Policy(); err != nil {
			return err
		}

		cfg, err := budgetClient.SetThrottleConfig(context.Background(), args[0], tc)
		if err != nil {
			return fmt.Errorf("setting throttle policy of %s: %w", args[0], err)
		}
		output(cfg, func() { printConfigTable(cfg) })
		return nil
	},
}

func init() {
	segmentCreateCmd.Flags().Float64("weekly", 0, "weekly limit in dollars")
	segmentCreateCmd.Flags().Float64("monthly", 0, "monthly limit in dollars")
	segmentCreateCmd.Flags().Int("priority", 0, "allocation priority (lower is served first)")
	segmentCreateCmd.Flags().StringArray("rule", nil, `membership rule, repeatable ("all", "tier=gold", "platform=tiktok", "min_views=1000")`)
	_ = segmentCreateCmd.MarkFlagRequired("weekly")

	segmentUpdateCmd.Flags().String("name", "", "new name")
	segmentUpdateCmd.Flags().Float64("weekly", 0, "weekly limit in dollars")
	segmentUpdateCmd.Flags().Float64("monthly", 0, "monthly limit in dollars")
	segmentUpdateCmd.Flags().Int("priority", 0, "allocation priority")
	segmentUpdateCmd.Flags().StringArray("rule", nil, "membership rule, repeatable; replaces existing rules")
	segmentUpdateCmd.Flags().String("notes", "", "reason recorded in the audit log")

	segmentListCmd.Flags().Bool("all", false, "include deleted segments")
	segmentDeleteCmd.Flags().String("notes", "", "reason recorded in the audit log")

	segmentThrottleSetCmd.Flags().String("mode", "percent_cut", "throttle mode (percent_cut or cap)")
	segmentThrottleSetCmd.Flags().Int64("cut-bps", 5000, "reduction in basis points for percent_cut")
	segmentThrottleSetCmd.Flags().Float64("max", 0, "per-request cap in dollars for cap")

	segmentThrottleCmd.AddCommand(segmentThrottleGetCmd)
	segmentThrottleCmd.AddCommand(segmentThrottleSetCmd)

	segmentCmd.AddCommand(segmentCreateCmd)
	segmentCmd.AddCommand(segmentShowCmd)
	segmentCmd.AddCommand(segmentListCmd)
	segmentCmd.AddCommand(segmentUpdateCmd)
	segmentCmd.AddCommand(segmentDeleteCmd)
	segmentCmd.AddCommand(segmentThrottleCmd)
}
