package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/funnel"
	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/ui"
)

// captureStdout redirects command output to a buffer for the test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	ui.ForceNoColor()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func TestFormatBps(t *testing.T) {
	for bps, want := range map[int64]string{
		0:      "0.00%",
		5:      "0.05%",
		12345:  "123.45%",
		-50:    "-0.50%",
		-10000: "-100.00%",
	} {
		if got := formatBps(bps); got != want {
			t.Errorf("formatBps(%d) = %q, want %q", bps, got, want)
		}
	}
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		in      string
		want    model.SegmentRule
		wantErr bool
	}{
		{in: "all", want: model.SegmentRule{Kind: model.RuleAll}},
		{in: "tier=gold", want: model.SegmentRule{Kind: model.RuleTier, Value: "gold"}},
		{in: "platform = tiktok", want: model.SegmentRule{Kind: model.RulePlatform, Value: "tiktok"}},
		{in: "min_views=1000", want: model.SegmentRule{Kind: model.RuleMinViews, Min: 1000}},
		{in: "min_views=lots", wantErr: true},
		{in: "tier", wantErr: true},
		{in: "colour=red", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseRule(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseSegmentInput(t *testing.T) {
	got, err := parseSegmentInput("tier-a:1:250.50")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "tier-a" || got.Name != "tier-a" || got.Priority != 1 || got.WeeklyLimitCents != 25050 {
		t.Fatalf("got %+v", got)
	}
	for _, bad := range []string{"tier-a:1", "tier-a:x:10", "tier-a:1:ten", "tier-a:1:-5"} {
		if _, err := parseSegmentInput(bad); err == nil {
			t.Errorf("parseSegmentInput(%q) should fail", bad)
		}
	}
}

func TestParseStepOverride(t *testing.T) {
	idx, bps, err := parseStepOverride("4=2500")
	if err != nil || idx != 4 || bps != 2500 {
		t.Fatalf("got %d, %d, %v", idx, bps, err)
	}
	for _, bad := range []string{"4", "x=1", "4=y"} {
		if _, _, err := parseStepOverride(bad); err == nil {
			t.Errorf("parseStepOverride(%q) should fail", bad)
		}
	}
}

func TestFormatRules(t *testing.T) {
	got := formatRules([]model.SegmentRule{
		{Kind: model.RuleTier, Value: "gold"},
		{Kind: model.RuleMinViews, Min: 500},
		{Kind: model.RuleAll},
	})
	if got != "tier=gold,min_views>=500,all" {
		t.Fatalf("got %q", got)
	}
	if formatRules(nil) != "-" {
		t.Fatal("empty rules should render as -")
	}
}

func TestFormatWatchLine(t *testing.T) {
	ui.ForceNoColor()
	data, _ := json.Marshal(map[string]any{
		"event": &model.BudgetEvent{
			ID:                   7,
			CreatedAt:            time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
			Action:               model.ActionSegmentCycleThrottle,
			Actor:                "bob",
			EntityID:             "sc-1",
			CycleID:              "bc-1",
			EstimatedImpactCents: 1250,
		},
		"warning": "SOFT_THROTTLE",
	})

	line, ok := formatWatchLine("budgets.segment_cycle.throttle", data, "")
	if !ok {
		t.Fatal("event should be shown without a cycle filter")
	}
	for _, want := range []string{"segment_cycle.throttle", "sc-1 by bob", "impact $12.50", "SOFT_THROTTLE"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}

	if _, ok := formatWatchLine("budgets.segment_cycle.throttle", data, "bc-1"); !ok {
		t.Error("event of the filtered cycle should be shown")
	}
	if _, ok := formatWatchLine("budgets.segment_cycle.throttle", data, "bc-2"); ok {
		t.Error("event of another cycle should be hidden")
	}

	raw, ok := formatWatchLine("budgets.custom", []byte("not json"), "")
	if !ok || !strings.Contains(raw, "not json") {
		t.Errorf("undecodable payload = %q, %v", raw, ok)
	}
}

func TestPrintSegmentCycleViewsTable(t *testing.T) {
	buf := captureStdout(t)
	printSegmentCycleViewsTable([]*budget.SegmentCycleView{{
		SegmentCycle:     &model.SegmentCycle{ID: "sc-1", Status: model.SegmentStatusApproved, SpentCents: 95000, RemainingCents: 5000},
		SegmentName:      "tier-a",
		WeeklyLimitCents: 100000,
		PctUsed:          95,
		Warning:          budget.WarningSoftThrottle,
	}})
	out := buf.String()
	for _, want := range []string{"sc-1", "tier-a", "$1000.00", "$950.00", "$50.00", "95.0%", "SOFT_THROTTLE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintProjectionsTable(t *testing.T) {
	buf := captureStdout(t)
	printProjectionsTable([]*funnel.Projection{
		{Scenario: "base", Visitors: 1000, RevenueCents: 150000, CostCents: 100000, ProfitCents: 50000, ROIBps: 5000},
	})
	if out := buf.String(); !strings.Contains(out, "base") || !strings.Contains(out, "50.00%") || !strings.Contains(out, "$1500.00") {
		t.Errorf("output:\n%s", out)
	}
}

func TestOutput_JSON(t *testing.T) {
	buf := captureStdout(t)
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	called := false
	output(map[string]int{"n": 1}, func() { called = true })
	if called {
		t.Fatal("table printer should not run under --json")
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got["n"] != 1 {
		t.Fatalf("output %q: %v", buf.String(), err)
	}
}
