package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/client"
	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/server"
	"github.com/alfredjeanlab/budgets/internal/store/memory"
)

var weekStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// useTestServer points the package-level client at an in-memory server.
func useTestServer(t *testing.T) *memory.Store {
	t.Helper()
	mem := memory.New()
	srv := server.NewBudgetServer(mem, mem, nil, budget.Options{
		Now:    func() time.Time { return weekStart.Add(84 * time.Hour) },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(srv.NewHTTPHandler(""))
	t.Cleanup(ts.Close)

	old, oldActor := budgetClient, actor
	budgetClient = client.NewHTTPClient(ts.URL, "")
	actor = "tester"
	t.Cleanup(func() { budgetClient, actor = old, oldActor })
	return mem
}

// setFlags sets flags on cmd and restores them when the test ends.
func setFlags(t *testing.T, cmd *cobra.Command, kv ...string) {
	t.Helper()
	for i := 0; i < len(kv); i += 2 {
		f := cmd.Flags().Lookup(kv[i])
		if f == nil {
			t.Fatalf("%s has no flag %q", cmd.Name(), kv[i])
		}
		old := f.Value.String()
		if err := f.Value.Set(kv[i+1]); err != nil {
			t.Fatalf("set --%s: %v", kv[i], err)
		}
		f.Changed = true
		t.Cleanup(func() {
			_ = f.Value.Set(old)
			f.Changed = false
		})
	}
}

func subcommand(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range parent.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("%s has no subcommand %q", parent.Name(), name)
	return nil
}

// runJSON runs cmd with --json and decodes its output into out.
func runJSON(t *testing.T, cmd *cobra.Command, args []string, out any) {
	t.Helper()
	buf := captureStdout(t)
	jsonOutput = true
	defer func() { jsonOutput = false }()
	if err := cmd.RunE(cmd, args); err != nil {
		t.Fatalf("%s %v: %v", cmd.Name(), args, err)
	}
	if out != nil {
		if err := json.Unmarshal(buf.Bytes(), out); err != nil {
			t.Fatalf("%s output %q: %v", cmd.Name(), buf.String(), err)
		}
	}
}

// runTable runs cmd with table output and returns what it printed.
func runTable(t *testing.T, cmd *cobra.Command, args []string) string {
	t.Helper()
	buf := captureStdout(t)
	if err := cmd.RunE(cmd, args); err != nil {
		t.Fatalf("%s %v: %v", cmd.Name(), args, err)
	}
	return buf.String()
}

func TestCommands_CycleToPayout(t *testing.T) {
	mem := useTestServer(t)

	setFlags(t, cycleCreateCmd, "start", "2026-03-02", "weekly", "1000")
	var cycle model.BudgetCycle
	runJSON(t, cycleCreateCmd, nil, &cycle)
	if cycle.Status != model.CycleStatusPendingApproval || cycle.GlobalWeeklyLimitCents != 100000 {
		t.Fatalf("created cycle = %+v", cycle)
	}
	if !cycle.EndDate.Equal(weekStart.AddDate(0, 0, 7)) {
		t.Fatalf("end date = %s, want start+7d", cycle.EndDate)
	}

	setFlags(t, segmentCreateCmd, "weekly", "1000", "priority", "1")
	var seg model.BudgetSegment
	runJSON(t, segmentCreateCmd, []string{"tier-a"}, &seg)
	if seg.WeeklyLimitCents != 100000 || seg.Priority != 1 {
		t.Fatalf("created segment = %+v", seg)
	}

	var opened []*model.SegmentCycle
	runJSON(t, cycleOpenCmd, []string{cycle.ID}, &opened)
	if len(opened) != 1 || opened[0].SegmentID != seg.ID {
		t.Fatalf("opened = %+v", opened)
	}
	scID := opened[0].ID

	runJSON(t, subcommand(t, cycleCmd, "approve"), []string{cycle.ID}, nil)
	runJSON(t, subcommand(t, spendCmd, "approve"), []string{scID}, nil)

	mem.AddPayout(model.PayoutRecord{ID: "p1", SegmentID: seg.ID, AmountCents: 95000, Settled: true, Timestamp: weekStart.Add(time.Hour)})
	out := runTable(t, cycleRefreshCmd, []string{cycle.ID})
	if !strings.Contains(out, "tier-a") || !strings.Contains(out, "$950.00") || !strings.Contains(out, "SOFT_THROTTLE") {
		t.Fatalf("refresh output:\n%s", out)
	}

	runJSON(t, subcommand(t, spendCmd, "throttle"), []string{scID}, nil)
	var d budget.PayoutDecision
	runJSON(t, spendAuthorizeCmd, []string{scID, "20"}, &d)
	if !d.Allowed || d.RequestedCents != 2000 || d.ApprovedCents != 1000 {
		t.Fatalf("decision = %+v", d)
	}

	setFlags(t, eventsCmd, "cycle", cycle.ID, "limit", "0")
	var evts []*model.BudgetEvent
	runJSON(t, eventsCmd, nil, &evts)
	if len(evts) < 3 {
		t.Fatalf("expected at least 3 events for the cycle, got %d", len(evts))
	}
}

func TestCommands_CycleLimitsOnlyChangesGivenFlags(t *testing.T) {
	useTestServer(t)

	setFlags(t, cycleCreateCmd, "start", "2026-03-02", "weekly", "1000", "reserve", "50")
	var cycle model.BudgetCycle
	runJSON(t, cycleCreateCmd, nil, &cycle)

	setFlags(t, cycleLimitsCmd, "weekly", "1500.25", "notes", "more supply")
	var got model.BudgetCycle
	runJSON(t, cycleLimitsCmd, []string{cycle.ID}, &got)
	if got.GlobalWeeklyLimitCents != 150025 {
		t.Fatalf("weekly = %d", got.GlobalWeeklyLimitCents)
	}
	if got.EmergencyReserveCents != 5000 {
		t.Fatalf("reserve changed to %d", got.EmergencyReserveCents)
	}
}

func TestCommands_ThrottlePolicy(t *testing.T) {
	useTestServer(t)

	setFlags(t, segmentCreateCmd, "weekly", "100")
	var seg model.BudgetSegment
	runJSON(t, segmentCreateCmd, []string{"tier-b"}, &seg)

	setFlags(t, segmentThrottleSetCmd, "mode", "cap", "max", "5")
	var cfg model.Config
	runJSON(t, segmentThrottleSetCmd, []string{seg.ID}, &cfg)
	if cfg.Key != model.ThrottleConfigKey(seg.ID) {
		t.Fatalf("key = %q", cfg.Key)
	}
	var tc budget.ThrottleConfig
	if err := json.Unmarshal(cfg.Value, &tc); err != nil || tc.Mode != "cap" || tc.MaxCents != 500 {
		t.Fatalf("stored policy = %s (%v)", cfg.Value, err)
	}

	setFlags(t, segmentThrottleSetCmd, "mode", "bogus")
	if err := segmentThrottleSetCmd.RunE(segmentThrottleSetCmd, []string{seg.ID}); err == nil {
		t.Fatal("unknown mode should be rejected")
	}
}

func TestCommands_Simulate(t *testing.T) {
	useTestServer(t)

	setFlags(t, simulateCmd, "rpm", "2.22", "weekly", "5000")
	var fc budget.Forecast
	runJSON(t, simulateCmd, nil, &fc)
	if fc.MaxViews != 2252252 || fc.TotalClips != 1666 || fc.Day30ProjectionCents != 2150000 {
		t.Fatalf("forecast = %+v", fc)
	}
}

func TestCommands_RejectsBadInput(t *testing.T) {
	useTestServer(t)
	captureStdout(t)

	if err := spendAuthorizeCmd.RunE(spendAuthorizeCmd, []string{"sc-1", "-5"}); err == nil {
		t.Error("negative amount should be rejected")
	}
	if err := spendAuthorizeCmd.RunE(spendAuthorizeCmd, []string{"sc-1", "five"}); err == nil {
		t.Error("non-numeric amount should be rejected")
	}
	setFlags(t, cycleCreateCmd, "start", "03/02/2026", "weekly", "10")
	if err := cycleCreateCmd.RunE(cycleCreateCmd, nil); err == nil {
		t.Error("malformed start date should be rejected")
	}
	if err := cycleShowCmd.RunE(cycleShowCmd, []string{"bc-missing"}); err == nil {
		t.Error("unknown cycle should fail")
	}
}

func TestHTTPClientRequired(t *testing.T) {
	old := budgetClient
	t.Cleanup(func() { budgetClient = old })
	budgetClient = nil
	if _, err := httpClient(); err == nil {
		t.Fatal("httpClient should fail without an HTTP client")
	}
}
