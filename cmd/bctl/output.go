package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/funnel"
	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/money"
	"github.com/alfredjeanlab/budgets/internal/ui"
)

// stdout is where command output goes. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

const timeLayout = "2006-01-02 15:04:05"

func dollars(cents int64) string {
	return "$" + money.CentsToDollars(cents)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(stdout, string(data))
}

// output prints v as JSON under --json and calls table otherwise.
func output(v any, table func()) {
	if jsonOutput {
		printJSON(v)
		return
	}
	table()
}

// --- Cycles ---

func printCycleTable(c *model.BudgetCycle) {
	fmt.Fprintf(stdout, "ID:                  %s\n", c.ID)
	fmt.Fprintf(stdout, "Status:              %s\n", ui.RenderStatus(string(c.Status)))
	fmt.Fprintf(stdout, "Window:              %s .. %s\n", c.StartDate.Format(time.DateOnly), c.EndDate.Format(time.DateOnly))
	fmt.Fprintf(stdout, "Weekly limit:        %s\n", dollars(c.GlobalWeeklyLimitCents))
	if c.GlobalMonthlyLimitCents > 0 {
		fmt.Fprintf(stdout, "Monthly limit:       %s\n", dollars(c.GlobalMonthlyLimitCents))
	}
	if c.EmergencyReserveCents > 0 {
		fmt.Fprintf(stdout, "Emergency reserve:   %s\n", dollars(c.EmergencyReserveCents))
	}
	if c.MaxPayoutPerClipCents > 0 {
		fmt.Fprintf(stdout, "Max per clip:        %s\n", dollars(c.MaxPayoutPerClipCents))
	}
	if c.MaxPayoutPerClipperWeekCents > 0 {
		fmt.Fprintf(stdout, "Max per clipper/wk:  %s\n", dollars(c.MaxPayoutPerClipperWeekCents))
	}
	if c.ApprovedAt != nil {
		fmt.Fprintf(stdout, "Approved:            %s by %s\n", c.ApprovedAt.Format(timeLayout), c.ApprovedBy)
	}
	if !c.UpdatedAt.IsZero() {
		fmt.Fprintf(stdout, "Updated At:          %s\n", c.UpdatedAt.Format(timeLayout))
	}
}

func printCycleListTable(cycles []*model.BudgetCycle) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTART\tEND\tWEEKLY LIMIT")
	for _, c := range cycles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.ID,
			c.Status,
			c.StartDate.Format(time.DateOnly),
			c.EndDate.Format(time.DateOnly),
			dollars(c.GlobalWeeklyLimitCents),
		)
	}
	w.Flush()
	fmt.Fprintf(stdout, "\n%d cycles\n", len(cycles))
}

// --- Segments ---

func formatRules(rules []model.SegmentRule) string {
	if len(rules) == 0 {
		return "-"
	}
	parts := make([]string, len(rules))
	for i, r := range rules {
		switch r.Kind {
		case model.RuleMinViews:
			parts[i] = fmt.Sprintf("%s>=%d", r.Kind, r.Min)
		case model.RuleTier, model.RulePlatform:
			parts[i] = fmt.Sprintf("%s=%s", r.Kind, r.Value)
		default:
			parts[i] = string(r.Kind)
		}
	}
	return strings.Join(parts, ",")
}

func printSegmentTable(s *model.BudgetSegment) {
	fmt.Fprintf(stdout, "ID:             %s\n", s.ID)
	fmt.Fprintf(stdout, "Name:           %s\n", s.Name)
	fmt.Fprintf(stdout, "Priority:       %d\n", s.Priority)
	fmt.Fprintf(stdout, "Weekly limit:   %s\n", dollars(s.WeeklyLimitCents))
	if s.MonthlyLimitCents > 0 {
		fmt.Fprintf(stdout, "Monthly limit:  %s\n", dollars(s.MonthlyLimitCents))
	}
	fmt.Fprintf(stdout, "Rules:          %s\n", formatRules(s.Rules))
	if s.DeletedAt != nil {
		fmt.Fprintf(stdout, "Deleted At:     %s\n", s.DeletedAt.Format(timeLayout))
	}
}

func printSegmentListTable(segs []*model.BudgetSegment) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tWEEKLY LIMIT\tRULES")
	for _, s := range segs {
		name := s.Name
		if s.DeletedAt != nil {
			name += " (deleted)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, name, s.Priority, dollars(s.WeeklyLimitCents), formatRules(s.Rules))
	}
	w.Flush()
	fmt.Fprintf(stdout, "\n%d segments\n", len(segs))
}

// --- Segment cycles ---

func printSegmentCycleTable(sc *model.SegmentCycle) {
	fmt.Fprintf(stdout, "ID:         %s\n", sc.ID)
	fmt.Fprintf(stdout, "Segment:    %s\n", sc.SegmentID)
	fmt.Fprintf(stdout, "Cycle:      %s\n", sc.CycleID)
	fmt.Fprintf(stdout, "Status:     %s\n", ui.RenderStatus(string(sc.Status)))
	fmt.Fprintf(stdout, "Spent:      %s\n", dollars(sc.SpentCents))
	fmt.Fprintf(stdout, "Projected:  %s\n", dollars(sc.ProjectedCents))
	fmt.Fprintf(stdout, "Remaining:  %s\n", dollars(sc.RemainingCents))
}

func printSegmentCycleListTable(scs []*model.SegmentCycle) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEGMENT\tSTATUS")
	for _, sc := range scs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", sc.ID, sc.SegmentID, sc.Status)
	}
	w.Flush()
}

func printSegmentCycleViewsTable(views []*budget.SegmentCycleView) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEGMENT\tSTATUS\tLIMIT\tSPENT\tPROJECTED\tREMAINING\tUSED\tWARNING")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%.1f%%\t%s\n",
			v.ID,
			v.SegmentName,
			v.Status,
			dollars(v.WeeklyLimitCents),
			dollars(v.SpentCents),
			dollars(v.ProjectedCents),
			dollars(v.RemainingCents),
			v.PctUsed,
			ui.RenderWarning(v.Warning, string(v.Warning)),
		)
	}
	w.Flush()
}

func printDecisionTable(d *budget.PayoutDecision) {
	verdict := "allowed"
	if !d.Allowed {
		verdict = "denied"
	}
	fmt.Fprintf(stdout, "Decision:   %s\n", verdict)
	fmt.Fprintf(stdout, "Requested:  %s\n", dollars(d.RequestedCents))
	fmt.Fprintf(stdout, "Approved:   %s\n", dollars(d.ApprovedCents))
	fmt.Fprintf(stdout, "Warning:    %s\n", ui.RenderWarning(d.Warning, string(d.Warning)))
	if d.Policy != "" {
		fmt.Fprintf(stdout, "Policy:     %s\n", d.Policy)
	}
	if d.Reason != "" {
		fmt.Fprintf(stdout, "Reason:     %s\n", d.Reason)
	}
}

// --- Forecasts ---

func printForecastTable(f *budget.Forecast) {
	fmt.Fprintf(stdout, "Max views:        %d\n", f.MaxViews)
	fmt.Fprintf(stdout, "Total clips:      %d\n", f.TotalClips)
	fmt.Fprintf(stdout, "7-day forecast:   %s\n", dollars(f.Day7ForecastCents))
	fmt.Fprintf(stdout, "30-day forecast:  %s\n", dollars(f.Day30ProjectionCents))
	fmt.Fprintf(stdout, "Worst case:       %s\n", dollars(f.WorstCaseCents))
	fmt.Fprintf(stdout, "Risk adjusted:    %s\n", dollars(f.RiskAdjustedCents))
	fmt.Fprintf(stdout, "Safe limit:       %s\n", dollars(f.SafeLimitCents))
	if len(f.Segments) == 0 {
		return
	}
	fmt.Fprintln(stdout)
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEGMENT\tNAME\tCLIPS\tSPEND\tUSED")
	for _, s := range f.Segments {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.1f%%\n", s.SegmentID, s.Name, s.Clips, dollars(s.SpendCents), s.PctUsed)
	}
	w.Flush()
}

func printProjectionsTable(ps []*funnel.Projection) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tVISITORS\tREVENUE\tCOST\tPROFIT\tROI")
	for _, p := range ps {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			p.Scenario,
			p.Visitors,
			dollars(p.RevenueCents),
			dollars(p.CostCents),
			dollars(p.ProfitCents),
			formatBps(p.ROIBps),
		)
	}
	w.Flush()
}

// formatBps renders basis points as a percentage with two decimals.
func formatBps(bps int64) string {
	sign := ""
	if bps < 0 {
		sign = "-"
		bps = -bps
	}
	return fmt.Sprintf("%s%d.%02d%%", sign, bps/100, bps%100)
}

// --- Audit log ---

func printEventsTable(evts []*model.BudgetEvent) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tACTION\tENTITY\tACTOR\tIMPACT\tROLLBACK")
	for _, e := range evts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.CreatedAt.Format(timeLayout),
			e.Action,
			e.EntityID,
			e.Actor,
			dollars(e.EstimatedImpactCents),
			e.RollbackToken,
		)
	}
	w.Flush()
	fmt.Fprintf(stdout, "\n%d events\n", len(evts))
}

func printConfigTable(c *model.Config) {
	fmt.Fprintf(stdout, "Key:    %s\n", c.Key)
	fmt.Fprintf(stdout, "Value:  %s\n", string(c.Value))
}
