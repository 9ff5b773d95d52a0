package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/store/memory"
)

var snapshotTime = time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

// seedStore fills a memory store with two cycles, two segments (one
// deleted), one segment cycle, a throttle config and two events.
func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	ms := memory.New()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	for _, c := range []*model.BudgetCycle{
		{ID: "bc-zzz", StartDate: start, EndDate: start.AddDate(0, 0, 7), Status: model.CycleStatusApproved, GlobalWeeklyLimitCents: 500000},
		{ID: "bc-aaa", StartDate: start.AddDate(0, 0, -7), EndDate: start, Status: model.CycleStatusLocked, GlobalWeeklyLimitCents: 400000},
	} {
		if err := ms.CreateCycle(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	deletedAt := start.Add(time.Hour)
	for _, seg := range []*model.BudgetSegment{
		{ID: "sg-b", Name: "tier-b", WeeklyLimitCents: 100000, Priority: 2},
		{ID: "sg-a", Name: "tier-a", WeeklyLimitCents: 200000, Priority: 1, DeletedAt: &deletedAt},
	} {
		if err := ms.CreateSegment(ctx, seg); err != nil {
			t.Fatal(err)
		}
	}
	if err := ms.CreateSegmentCycle(ctx, &model.SegmentCycle{ID: "sc-1", SegmentID: "sg-b", CycleID: "bc-zzz", Status: model.SegmentStatusApproved, SpentCents: 1234}); err != nil {
		t.Fatal(err)
	}
	if err := ms.SetConfig(ctx, &model.Config{Key: model.ThrottleConfigKey("sg-b"), Value: json.RawMessage(`{"mode":"cap","max_cents":500}`)}); err != nil {
		t.Fatal(err)
	}
	for _, action := range []string{model.ActionCycleCreate, model.ActionCycleApprove} {
		if err := ms.RecordEvent(ctx, &model.BudgetEvent{Action: action, Actor: "alice", EntityType: model.EntityCycle, EntityID: "bc-zzz", CycleID: "bc-zzz"}); err != nil {
			t.Fatal(err)
		}
	}
	return ms
}

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), memory.New(), &buf, snapshotTime); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || h.CycleCount != 0 || h.EventCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if !h.Timestamp.Equal(snapshotTime) {
		t.Fatalf("timestamp = %v", h.Timestamp)
	}
}

func TestExportJSONL_AllRecordTypes(t *testing.T) {
	ms := seedStore(t)

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf, snapshotTime); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	// 1 header + 2 cycles + 2 segments + 1 segment cycle + 1 config + 2 events
	if len(lines) != 9 {
		t.Fatalf("expected 9 lines, got %d:\n%s", len(lines), buf.String())
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.CycleCount != 2 || h.SegmentCount != 2 || h.SegmentCycleCount != 1 || h.ConfigCount != 1 || h.EventCount != 2 {
		t.Fatalf("header counts: %+v", h)
	}

	var types []string
	for _, line := range lines[1:] {
		var rec struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		types = append(types, rec.Type)
	}
	want := []string{"cycle", "cycle", "segment", "segment", "segment_cycle", "config", "event", "event"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("record order = %v, want %v", types, want)
	}
}

func TestExportJSONL_SortedByID(t *testing.T) {
	ms := seedStore(t)

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf, snapshotTime); err != nil {
		t.Fatal(err)
	}
	lines := nonEmptyLines(buf.String())

	var c1, c2 struct {
		Data model.BudgetCycle `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &c1); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[2]), &c2); err != nil {
		t.Fatal(err)
	}
	if c1.Data.ID != "bc-aaa" || c2.Data.ID != "bc-zzz" {
		t.Fatalf("cycles not sorted: got %q, %q", c1.Data.ID, c2.Data.ID)
	}

	var s1 struct {
		Data model.BudgetSegment `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[3]), &s1); err != nil {
		t.Fatal(err)
	}
	if s1.Data.ID != "sg-a" || !s1.Data.IsDeleted() {
		t.Fatalf("expected deleted segment sg-a first, got %+v", s1.Data)
	}

	var e1, e2 struct {
		Data model.BudgetEvent `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[7]), &e1); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[8]), &e2); err != nil {
		t.Fatal(err)
	}
	if e1.Data.ID >= e2.Data.ID || e1.Data.Action != model.ActionCycleCreate {
		t.Fatalf("events not oldest first: %+v, %+v", e1.Data, e2.Data)
	}
}

func TestExportJSONL_Deterministic(t *testing.T) {
	ms := seedStore(t)

	var a, b bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &a, snapshotTime); err != nil {
		t.Fatal(err)
	}
	if err := ExportJSONL(context.Background(), ms, &b, snapshotTime); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Fatal("two exports of the same state differ")
	}
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
