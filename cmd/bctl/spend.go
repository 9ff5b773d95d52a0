package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/budgets/internal/client"
	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/money"
)

var spendCmd = &cobra.Command{
	Use:     "spend",
	Short:   "Approve, throttle and authorize payouts for a segment within a cycle",
	GroupID: "budgets",
}

var spendShowCmd = &cobra.Command{
	Use:   "show <segment-cycle-id>",
	Short: "Show a segment cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := budgetClient.GetSegmentCycle(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting segment cycle %s: %w", args[0], err)
		}
		output(sc, func() { printSegmentCycleTable(sc) })
		return nil
	},
}

func newSpendTransitionCmd(use, short string, status model.SegmentStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <segment-cycle-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, _ := cmd.Flags().GetString("notes")
			sc, err := budgetClient.TransitionSegmentCycle(context.Background(), &client.TransitionRequest{
				ID:     args[0],
				Status: string(status),
				Actor:  actor,
				Notes:  notes,
			})
			if err != nil {
				return fmt.Errorf("%s segment cycle %s: %w", use, args[0], err)
			}
			output(sc, func() {
				fmt.Fprintf(stdout, "segment cycle %s is now %s\n", sc.ID, sc.Status)
			})
			return nil
		},
	}
	cmd.Flags().String("notes", "", "reason recorded in the audit log")
	return cmd
}

var spendAuthorizeCmd = &cobra.Command{
	Use:   "authorize <segment-cycle-id> <dollars>",
	Short: "Ask whether a payout may be made, and for how much",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[1], err)
		}
		cents, err := money.DollarsToCents("amount", amount)
		if err != nil {
			return err
		}
		d, err := budgetClient.AuthorizePayout(context.Background(), args[0], cents)
		if err != nil {
			return fmt.Errorf("authorizing payout on %s: %w", args[0], err)
		}
		output(d, func() { printDecisionTable(d) })
		return nil
	},
}

func init() {
	spendCmd.AddCommand(spendShowCmd)
	spendCmd.AddCommand(newSpendTransitionCmd("approve", "Approve a pending segment cycle", model.SegmentStatusApproved))
	spendCmd.AddCommand(newSpendTransitionCmd("throttle", "Throttle an approved segment cycle", model.SegmentStatusThrottled))
	spendCmd.AddCommand(newSpendTransitionCmd("kill", "Kill a segment cycle", model.SegmentStatusKilled))
	spendCmd.AddCommand(newSpendTransitionCmd("reopen", "Reopen a throttled or killed segment cycle", model.SegmentStatusApproved))
	spendCmd.AddCommand(spendAuthorizeCmd)
}
