package budget

import (
	"fmt"
	"sort"

	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/money"
)

// Simulation constants. Ratios are basis points.
const (
	// DefaultAvgEarningsPerClipCents is used when no trailing earnings
	// average is supplied.
	DefaultAvgEarningsPerClipCents = 300

	// ViewsPerRPMUnit is the view count an RPM rate is quoted for.
	ViewsPerRPMUnit = 1000

	// WeeksPerMonthBps scales a week of spend to a month (4.3 weeks).
	WeeksPerMonthBps = 43000

	// DefaultGrowthBps is the neutral month-over-week growth multiplier.
	DefaultGrowthBps = 10000

	// WorstCaseMarginBps inflates the monthly projection for volume spikes.
	WorstCaseMarginBps = 12000

	// RiskAdjustedBps deflates the monthly projection for under-delivery.
	RiskAdjustedBps = 8500
)

// SimulationParams are the what-if inputs of a forecast. Every amount is
// integer cents. Optional fields are zero when unset.
type SimulationParams struct {
	RPMCents         int64 `json:"rpm_cents"`
	WeeklyLimitCents int64 `json:"weekly_limit_cents"`
	RealSpendCents   int64 `json:"real_spend_cents"`

	// AvgEarningsPerClipCents defaults to DefaultAvgEarningsPerClipCents.
	AvgEarningsPerClipCents int64 `json:"avg_earnings_per_clip_cents,omitempty"`
	// AvgViewsPerClip, when set, derives clip count from views instead of earnings.
	AvgViewsPerClip int64 `json:"avg_views_per_clip,omitempty"`
	// ClipSupply bounds the clips available in a week; zero is unbounded.
	ClipSupply int64 `json:"clip_supply,omitempty"`
	// GrowthBps defaults to DefaultGrowthBps.
	GrowthBps int64 `json:"growth_bps,omitempty"`
	// GlobalWeeklyLimitCents is the ceiling safeLimit solves against;
	// zero falls back to WeeklyLimitCents.
	GlobalWeeklyLimitCents int64 `json:"global_weekly_limit_cents,omitempty"`

	Segments []SegmentInput `json:"segments,omitempty"`
}

// SegmentInput is the current state of one segment fed into a simulation.
type SegmentInput struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Priority         int    `json:"priority"`
	WeeklyLimitCents int64  `json:"weekly_limit_cents"`
	SpentCents       int64  `json:"spent_cents"`
}

// Forecast is the output of Simulate.
type Forecast struct {
	MaxViews             int64               `json:"max_views"`
	TotalClips           int64               `json:"total_clips"`
	Day7ForecastCents    int64               `json:"day7_forecast_cents"`
	Day30ProjectionCents int64               `json:"day30_projection_cents"`
	WorstCaseCents       int64               `json:"worst_case_cents"`
	RiskAdjustedCents    int64               `json:"risk_adjusted_cents"`
	SafeLimitCents       int64               `json:"safe_limit_cents"`
	Segments             []SegmentAllocation `json:"segments"`
}

// SegmentAllocation is a segment's share of the simulated week.
type SegmentAllocation struct {
	SegmentID  string  `json:"segment_id"`
	Name       string  `json:"name"`
	Clips      int64   `json:"clips"`
	SpendCents int64   `json:"spend_cents"`
	PctUsed    float64 `json:"pct_used"`
}

func (p *SimulationParams) validate() error {
	if p.RPMCents <= 0 {
		return &model.ParameterError{Name: "rpm_cents", Reason: fmt.Sprintf("must be positive, got %d", p.RPMCents)}
	}
	fields := []struct {
		name string
		v    int64
	}{
		{"weekly_limit_cents", p.WeeklyLimitCents},
		{"real_spend_cents", p.RealSpendCents},
		{"avg_earnings_per_clip_cents", p.AvgEarningsPerClipCents},
		{"avg_views_per_clip", p.AvgViewsPerClip},
		{"clip_supply", p.ClipSupply},
		{"growth_bps", p.GrowthBps},
		{"global_weekly_limit_cents", p.GlobalWeeklyLimitCents},
	}
	for _, f := range fields {
		if f.v < 0 {
			return &model.ParameterError{Name: f.name, Reason: fmt.Sprintf("must be non-negative, got %d", f.v)}
		}
	}
	for i, s := range p.Segments {
		if s.Priority < 0 || s.WeeklyLimitCents < 0 || s.SpentCents < 0 {
			return &model.ParameterError{
				Name:   fmt.Sprintf("segments[%d]", i),
				Reason: "priority, weekly limit and spend must be non-negative",
			}
		}
		if s.Priority > model.MaxSegmentPriority {
			return &model.ParameterError{
				Name:   fmt.Sprintf("segments[%d].priority", i),
				Reason: fmt.Sprintf("must be at most %d, got %d", model.MaxSegmentPriority, s.Priority),
			}
		}
	}
	return nil
}

// Simulate produces a forecast from params. It is deterministic: the same
// params always yield the same forecast.
func Simulate(params SimulationParams) (*Forecast, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	segs := sortedSegments(params.Segments)

	if params.WeeklyLimitCents == 0 {
		f := &Forecast{Segments: make([]SegmentAllocation, len(segs))}
		for i, s := range segs {
			f.Segments[i] = SegmentAllocation{SegmentID: s.ID, Name: s.Name}
		}
		return f, nil
	}

	earningsPerClip := params.AvgEarningsPerClipCents
	if earningsPerClip == 0 {
		earningsPerClip = DefaultAvgEarningsPerClipCents
	}
	growth := params.GrowthBps
	if growth == 0 {
		growth = DefaultGrowthBps
	}

	maxViews, err := money.MulDiv(params.WeeklyLimitCents, ViewsPerRPMUnit, params.RPMCents)
	if err != nil {
		return nil, fmt.Errorf("max views: %w", err)
	}

	var clips int64
	if params.AvgViewsPerClip > 0 {
		clips = maxViews / params.AvgViewsPerClip
	} else {
		clips = params.WeeklyLimitCents / earningsPerClip
	}

	day7 := params.WeeklyLimitCents
	if params.ClipSupply > 0 && clips > params.ClipSupply {
		day7, err = money.MulDiv(params.WeeklyLimitCents, params.ClipSupply, clips)
		if err != nil {
			return nil, fmt.Errorf("supply-bounded week: %w", err)
		}
		clips = params.ClipSupply
	}
	if params.RealSpendCents > day7 {
		day7 = params.RealSpendCents
	}

	day30, err := money.ApplyBps(day7, WeeksPerMonthBps)
	if err != nil {
		return nil, fmt.Errorf("month projection: %w", err)
	}
	if day30, err = money.ApplyBps(day30, growth); err != nil {
		return nil, fmt.Errorf("month projection: %w", err)
	}
	worst, err := money.ApplyBps(day30, WorstCaseMarginBps)
	if err != nil {
		return nil, fmt.Errorf("worst case: %w", err)
	}
	risk, err := money.ApplyBps(day30, RiskAdjustedBps)
	if err != nil {
		return nil, fmt.Errorf("risk adjusted: %w", err)
	}

	ceiling := params.GlobalWeeklyLimitCents
	if ceiling == 0 {
		ceiling = params.WeeklyLimitCents
	}
	safe, err := safeLimit(ceiling, growth)
	if err != nil {
		return nil, fmt.Errorf("safe limit: %w", err)
	}

	alloc, err := distribute(segs, day7, clips)
	if err != nil {
		return nil, err
	}

	return &Forecast{
		MaxViews:             maxViews,
		TotalClips:           clips,
		Day7ForecastCents:    day7,
		Day30ProjectionCents: day30,
		WorstCaseCents:       worst,
		RiskAdjustedCents:    risk,
		SafeLimitCents:       safe,
		Segments:             alloc,
	}, nil
}

// safeLimit is the largest weekly limit whose worst case, per week of the
// month, stays within ceiling: ceiling / (growth * worst-case margin).
func safeLimit(ceiling, growthBps int64) (int64, error) {
	denom, err := money.MulDiv(growthBps, WorstCaseMarginBps, 1)
	if err != nil {
		return 0, err
	}
	return money.MulDiv(ceiling, money.BpsDenominator*money.BpsDenominator, denom)
}

func sortedSegments(in []SegmentInput) []SegmentInput {
	out := make([]SegmentInput, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// weightScale is the fixed-point scale of distribution weights. It is far
// finer than basis points so large segment counts keep non-zero shares.
const weightScale int64 = 1_000_000_000_000

// distribute splits total across segments. Each segment's weight is the sum
// of its priority share and its current spend share, both at weightScale;
// with no spend at all only priority counts. Shares are floored and the
// leftover cents go to the largest remainders so the parts sum to total.
func distribute(segs []SegmentInput, total, clips int64) ([]SegmentAllocation, error) {
	out := make([]SegmentAllocation, len(segs))
	if len(segs) == 0 {
		return out, nil
	}

	var maxPriority int64
	for _, s := range segs {
		maxPriority = max(maxPriority, int64(s.Priority))
	}
	rank := func(s SegmentInput) int64 { return maxPriority - int64(s.Priority) + 1 }

	var prioritySum, spentSum int64
	for _, s := range segs {
		var err error
		if prioritySum, err = money.Add(prioritySum, rank(s)); err != nil {
			return nil, fmt.Errorf("segment priority: %w", err)
		}
		if spentSum, err = money.Add(spentSum, s.SpentCents); err != nil {
			return nil, fmt.Errorf("segment spend: %w", err)
		}
	}

	weights := make([]int64, len(segs))
	var weightSum int64
	for i, s := range segs {
		w, err := money.MulDiv(rank(s), weightScale, prioritySum)
		if err != nil {
			return nil, err
		}
		if spentSum > 0 {
			share, err := money.MulDiv(s.SpentCents, weightScale, spentSum)
			if err != nil {
				return nil, err
			}
			w += share
		}
		weights[i] = w
		weightSum += w
	}
	if weightSum == 0 {
		for i := range weights {
			weights[i] = 1
		}
		weightSum = int64(len(weights))
	}

	type rem struct {
		idx int
		r   uint64
	}
	rems := make([]rem, len(segs))
	var assigned int64
	for i := range segs {
		part, err := money.MulDiv(total, weights[i], weightSum)
		if err != nil {
			return nil, fmt.Errorf("allocating segment %s: %w", segs[i].ID, err)
		}
		out[i].SpendCents = part
		assigned += part
		// Remainder of total*weight mod weightSum orders the leftover cents.
		hi, lo := money.Mul128(total, weights[i])
		_, r := money.DivMod128(hi, lo, uint64(weightSum))
		rems[i] = rem{idx: i, r: r}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].r > rems[b].r })
	for k := int64(0); k < total-assigned; k++ {
		out[rems[k].idx].SpendCents++
	}

	for i, s := range segs {
		out[i].SegmentID = s.ID
		out[i].Name = s.Name
		if total > 0 {
			c, err := money.MulDiv(clips, out[i].SpendCents, total)
			if err != nil {
				return nil, err
			}
			out[i].Clips = c
		}
		out[i].PctUsed = PercentUsed(out[i].SpendCents, s.WeeklyLimitCents)
	}
	return out, nil
}
