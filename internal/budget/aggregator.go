package budget

import (
	"fmt"
	"sort"
	"time"

	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/money"
)

// SpendFigures are the derived spend numbers of one segment in one cycle.
type SpendFigures struct {
	SpentCents     int64 `json:"spent_cents"`
	ProjectedCents int64 `json:"projected_cents"`
	RemainingCents int64 `json:"remaining_cents"`
}

// Window is the half-open [Start, End) span a cycle covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowOf returns the window of a cycle.
func WindowOf(c *model.BudgetCycle) Window {
	return Window{Start: c.StartDate, End: c.EndDate}
}

func (w Window) contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Attribute resolves the segment a payout belongs to. An explicit segment id
// wins when it names a known segment; otherwise the live segment with the
// lowest priority whose rules match is chosen, ties broken by id. The empty
// string means the payout belongs to no segment.
func Attribute(p *model.PayoutRecord, segments []*model.BudgetSegment) string {
	if p.SegmentID != "" {
		for _, s := range segments {
			if s.ID == p.SegmentID {
				return s.ID
			}
		}
		return ""
	}
	var best *model.BudgetSegment
	for _, s := range segments {
		if s.IsDeleted() || !s.Matches(p) {
			continue
		}
		if best == nil || s.Priority < best.Priority || (s.Priority == best.Priority && s.ID < best.ID) {
			best = s
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// Aggregate computes spend figures for every segment from a ledger snapshot.
// Only settled records inside the window and not after asOf count. The
// result depends on nothing but its arguments.
func Aggregate(records []*model.PayoutRecord, segments []*model.BudgetSegment, w Window, asOf time.Time) (map[string]SpendFigures, error) {
	if !w.End.After(w.Start) {
		return nil, &model.ParameterError{Name: "window", Reason: "end must be after start"}
	}

	// Sort a copy so attribution never depends on caller ordering.
	segs := make([]*model.BudgetSegment, len(segments))
	copy(segs, segments)
	sort.Slice(segs, func(i, j int) bool { return segs[i].ID < segs[j].ID })

	spent := make(map[string]int64, len(segs))
	for _, r := range records {
		if r == nil || !r.Settled || !w.contains(r.Timestamp) || r.Timestamp.After(asOf) {
			continue
		}
		if r.AmountCents < 0 {
			return nil, &model.ParameterError{
				Name:   "amount_cents",
				Reason: fmt.Sprintf("payout %s has negative amount %d", r.ID, r.AmountCents),
			}
		}
		id := Attribute(r, segs)
		if id == "" {
			continue
		}
		total, err := money.Add(spent[id], r.AmountCents)
		if err != nil {
			return nil, fmt.Errorf("summing segment %s: %w", id, err)
		}
		spent[id] = total
	}

	out := make(map[string]SpendFigures, len(segs))
	for _, s := range segs {
		fig, err := Figures(spent[s.ID], s.WeeklyLimitCents, w, asOf)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", s.ID, err)
		}
		out[s.ID] = fig
	}
	return out, nil
}

// Figures derives projected and remaining from a spent amount.
//
// Projection extrapolates the current velocity to the full window:
// spent * length / elapsed, where elapsed is clamped to the window length.
// Before any time has elapsed the projection is spent itself.
func Figures(spentCents, weeklyLimitCents int64, w Window, asOf time.Time) (SpendFigures, error) {
	remaining, err := money.Sub(weeklyLimitCents, spentCents)
	if err != nil {
		return SpendFigures{}, err
	}
	projected, err := Project(spentCents, w, asOf)
	if err != nil {
		return SpendFigures{}, err
	}
	return SpendFigures{
		SpentCents:     spentCents,
		ProjectedCents: projected,
		RemainingCents: remaining,
	}, nil
}

// Project extrapolates spent to the end of the window as seen at asOf.
func Project(spentCents int64, w Window, asOf time.Time) (int64, error) {
	length := int64(w.End.Sub(w.Start) / time.Second)
	elapsed := int64(asOf.Sub(w.Start) / time.Second)
	if elapsed > length {
		elapsed = length
	}
	if elapsed <= 0 || length <= 0 {
		return spentCents, nil
	}
	return money.MulDiv(spentCents, length, elapsed)
}
