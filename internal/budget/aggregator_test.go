package budget

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alfredjeanlab/budgets/internal/model"
)

var weekStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func week() Window {
	return Window{Start: weekStart, End: weekStart.AddDate(0, 0, 7)}
}

func payout(id, segment string, cents int64, at time.Time) *model.PayoutRecord {
	return &model.PayoutRecord{ID: id, SegmentID: segment, AmountCents: cents, Settled: true, Timestamp: at}
}

func TestAggregate_SpentAndRemaining(t *testing.T) {
	segs := []*model.BudgetSegment{
		{ID: "sg-1", WeeklyLimitCents: 10000},
		{ID: "sg-2", WeeklyLimitCents: 50000},
	}
	records := []*model.PayoutRecord{
		payout("p1", "sg-1", 7000, weekStart.Add(time.Hour)),
		payout("p2", "sg-1", 5000, weekStart.Add(2*time.Hour)),
		payout("p3", "sg-2", 100, weekStart.Add(-time.Hour)),
		payout("p4", "sg-2", 100, weekStart.AddDate(0, 0, 7)),
		payout("p6", "sg-unknown", 400, weekStart.Add(time.Hour)),
	}
	unsettled := payout("p5", "sg-2", 900, weekStart.Add(time.Hour))
	unsettled.Settled = false
	records = append(records, unsettled)
	asOf := weekStart.AddDate(0, 0, 7)

	got, err := Aggregate(records, segs, week(), asOf)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if f := got["sg-1"]; f.SpentCents != 12000 || f.RemainingCents != -2000 {
		t.Errorf("sg-1 = %+v, want spent 12000 remaining -2000", f)
	}
	if f := got["sg-2"]; f.SpentCents != 0 || f.RemainingCents != 50000 || f.ProjectedCents != 0 {
		t.Errorf("sg-2 = %+v, want zero spend", f)
	}
	if _, ok := got["sg-unknown"]; ok {
		t.Error("unknown explicit segment should not be reported")
	}
}

func TestAggregate_Pure(t *testing.T) {
	segs := []*model.BudgetSegment{
		{ID: "sg-b", Priority: 1, WeeklyLimitCents: 1000, Rules: []model.SegmentRule{{Kind: model.RuleAll}}},
		{ID: "sg-a", Priority: 1, WeeklyLimitCents: 1000, Rules: []model.SegmentRule{{Kind: model.RuleAll}}},
	}
	records := []*model.PayoutRecord{
		payout("p1", "", 300, weekStart.Add(time.Hour)),
		payout("p2", "sg-b", 200, weekStart.Add(time.Hour)),
	}
	asOf := weekStart.AddDate(0, 0, 2)

	first, err := Aggregate(records, segs, week(), asOf)
	if err != nil {
		t.Fatal(err)
	}
	reversed := []*model.BudgetSegment{segs[1], segs[0]}
	second, err := Aggregate(records, reversed, week(), asOf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregate differs between calls:\n%+v\n%+v", first, second)
	}
	// Equal priority ties go to the lower id.
	if first["sg-a"].SpentCents != 300 || first["sg-b"].SpentCents != 200 {
		t.Errorf("attribution = %+v", first)
	}
}

func TestAggregate_StopsAtAsOf(t *testing.T) {
	segs := []*model.BudgetSegment{{ID: "sg-1", WeeklyLimitCents: 1000}}
	records := []*model.PayoutRecord{
		payout("p1", "sg-1", 100, weekStart.Add(time.Hour)),
		payout("p2", "sg-1", 100, weekStart.Add(48*time.Hour)),
	}
	got, err := Aggregate(records, segs, week(), weekStart.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if got["sg-1"].SpentCents != 100 {
		t.Errorf("spent = %d, want 100", got["sg-1"].SpentCents)
	}
}

func TestAggregate_Errors(t *testing.T) {
	segs := []*model.BudgetSegment{{ID: "sg-1"}}
	if _, err := Aggregate(nil, segs, Window{Start: weekStart, End: weekStart}, weekStart); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("empty window: got %v", err)
	}
	neg := []*model.PayoutRecord{payout("p1", "sg-1", -5, weekStart)}
	if _, err := Aggregate(neg, segs, week(), weekStart.Add(time.Hour)); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("negative amount: got %v", err)
	}
}

func TestAttribute(t *testing.T) {
	deletedAt := weekStart
	segs := []*model.BudgetSegment{
		{ID: "sg-all", Priority: 5, Rules: []model.SegmentRule{{Kind: model.RuleAll}}},
		{ID: "sg-tier", Priority: 1, Rules: []model.SegmentRule{{Kind: model.RuleTier, Value: "tier1"}}},
		{ID: "sg-gone", Priority: 0, Rules: []model.SegmentRule{{Kind: model.RuleAll}}, DeletedAt: &deletedAt},
		{ID: "sg-manual", Priority: 0},
	}
	for _, tc := range []struct {
		name string
		p    *model.PayoutRecord
		want string
	}{
		{"RuleByPriority", &model.PayoutRecord{PayeeTier: "Tier1"}, "sg-tier"},
		{"FallsThrough", &model.PayoutRecord{PayeeTier: "tier9"}, "sg-all"},
		{"Explicit", &model.PayoutRecord{SegmentID: "sg-manual", PayeeTier: "tier1"}, "sg-manual"},
		{"ExplicitDeleted", &model.PayoutRecord{SegmentID: "sg-gone"}, "sg-gone"},
		{"ExplicitUnknown", &model.PayoutRecord{SegmentID: "sg-nope"}, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Attribute(tc.p, segs); got != tc.want {
				t.Errorf("Attribute = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProject(t *testing.T) {
	for _, tc := range []struct {
		name string
		asOf time.Time
		want int64
	}{
		{"HalfWay", weekStart.Add(84 * time.Hour), 70000},
		{"DayZero", weekStart, 35000},
		{"BeforeStart", weekStart.Add(-time.Hour), 35000},
		{"AfterEnd", weekStart.AddDate(0, 0, 9), 35000},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Project(35000, week(), tc.asOf)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("Project = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestFigures_NegativeRemaining(t *testing.T) {
	f, err := Figures(12000, 10000, week(), weekStart.AddDate(0, 0, 7))
	if err != nil {
		t.Fatal(err)
	}
	if f.RemainingCents != -2000 {
		t.Errorf("remaining = %d, want -2000", f.RemainingCents)
	}
}
