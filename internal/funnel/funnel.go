// Package funnel projects revenue through a multi-step conversion funnel fed
// by clip views. Counts are whole visitors, money is integer cents and every
// rate is in basis points.
package funnel

import (
	"fmt"

	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/money"
)

// Step is one stage of the funnel. Visitors who convert move on to the next
// step; of those who don't, DownsellBps take a flat-priced downsell and leave.
type Step struct {
	Name               string `json:"name"`
	ConversionBps      int64  `json:"conversion_bps"`
	PriceCents         int64  `json:"price_cents,omitempty"`
	DownsellBps        int64  `json:"downsell_bps,omitempty"`
	DownsellPriceCents int64  `json:"downsell_price_cents,omitempty"`
}

// DefaultSteps returns the standard ten-step funnel.
func DefaultSteps() []Step {
	return []Step{
		{Name: "landing visit", ConversionBps: 100},
		{Name: "lead opt-in", ConversionBps: 3500},
		{Name: "tripwire", ConversionBps: 800, PriceCents: 700},
		{Name: "order bump", ConversionBps: 3000, PriceCents: 1700},
		{Name: "core offer", ConversionBps: 2000, PriceCents: 4700, DownsellBps: 1000, DownsellPriceCents: 2700},
		{Name: "upsell", ConversionBps: 2500, PriceCents: 9700, DownsellBps: 1500, DownsellPriceCents: 4700},
		{Name: "second upsell", ConversionBps: 1500, PriceCents: 19700, DownsellBps: 1000, DownsellPriceCents: 9700},
		{Name: "membership", ConversionBps: 2000, PriceCents: 2900},
		{Name: "coaching application", ConversionBps: 500},
		{Name: "high ticket", ConversionBps: 2500, PriceCents: 200000},
	}
}

// Inputs are the top-of-funnel assumptions. Steps defaults to DefaultSteps.
type Inputs struct {
	Clippers          int64  `json:"clippers"`
	VideosPerClipper  int64  `json:"videos_per_clipper"`
	ViewsPerClip      int64  `json:"views_per_clip"`
	PricePerClipCents int64  `json:"price_per_clip_cents"`
	Steps             []Step `json:"steps,omitempty"`
}

// WithStepConversion returns a copy of in with step i's conversion rate
// replaced.
func (in Inputs) WithStepConversion(i int, bps int64) (Inputs, error) {
	steps := in.Steps
	if steps == nil {
		steps = DefaultSteps()
	}
	if i < 0 || i >= len(steps) {
		return in, &model.ParameterError{Name: "step", Reason: fmt.Sprintf("index %d out of range [0, %d)", i, len(steps))}
	}
	out := in
	out.Steps = append([]Step(nil), steps...)
	out.Steps[i].ConversionBps = bps
	return out, nil
}

// Scenario scales every conversion rate and the visitor volume.
type Scenario struct {
	Name          string `json:"name"`
	MultiplierBps int64  `json:"multiplier_bps"`
}

var (
	Conservative = Scenario{Name: "conservative", MultiplierBps: 7000}
	Base         = Scenario{Name: "base", MultiplierBps: 10000}
	Optimistic   = Scenario{Name: "optimistic", MultiplierBps: 13000}
)

// Scenarios lists the named scenarios in display order.
func Scenarios() []Scenario {
	return []Scenario{Conservative, Base, Optimistic}
}

// ScenarioByName looks up a named scenario.
func ScenarioByName(name string) (Scenario, bool) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// StepResult is the projected traffic and revenue of one step.
type StepResult struct {
	Name          string `json:"name"`
	ConversionBps int64  `json:"conversion_bps"`
	Entering      int64  `json:"entering"`
	Converted     int64  `json:"converted"`
	Downsold      int64  `json:"downsold"`
	RevenueCents  int64  `json:"revenue_cents"`
}

// Projection is the outcome of one scenario.
type Projection struct {
	Scenario     string       `json:"scenario"`
	Visitors     int64        `json:"visitors"`
	Steps        []StepResult `json:"steps"`
	RevenueCents int64        `json:"revenue_cents"`
	CostCents    int64        `json:"cost_cents"`
	ProfitCents  int64        `json:"profit_cents"`
	// ROIBps is profit over cost in basis points; zero when there is no cost.
	ROIBps int64 `json:"roi_bps"`
}

func (in *Inputs) validate() error {
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"clippers", in.Clippers},
		{"videos_per_clipper", in.VideosPerClipper},
		{"views_per_clip", in.ViewsPerClip},
		{"price_per_clip_cents", in.PricePerClipCents},
	} {
		if f.v < 0 {
			return &model.ParameterError{Name: f.name, Reason: fmt.Sprintf("must be non-negative, got %d", f.v)}
		}
	}
	for i, s := range in.Steps {
		if s.ConversionBps < 0 || s.ConversionBps > money.BpsDenominator ||
			s.DownsellBps < 0 || s.DownsellBps > money.BpsDenominator {
			return &model.ParameterError{
				Name:   fmt.Sprintf("steps[%d]", i),
				Reason: fmt.Sprintf("rates must be within [0, %d]", money.BpsDenominator),
			}
		}
		if s.PriceCents < 0 || s.DownsellPriceCents < 0 {
			return &model.ParameterError{Name: fmt.Sprintf("steps[%d]", i), Reason: "prices must be non-negative"}
		}
	}
	return nil
}

// Project runs the funnel under one scenario. It is a pure function of its
// arguments.
func Project(in Inputs, sc Scenario) (*Projection, error) {
	if in.Steps == nil {
		in.Steps = DefaultSteps()
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if sc.MultiplierBps < 0 {
		return nil, &model.ParameterError{Name: "multiplier_bps", Reason: "must be non-negative"}
	}

	clips, err := money.MulDiv(in.Clippers, in.VideosPerClipper, 1)
	if err != nil {
		return nil, fmt.Errorf("clips: %w", err)
	}
	views, err := money.MulDiv(clips, in.ViewsPerClip, 1)
	if err != nil {
		return nil, fmt.Errorf("views: %w", err)
	}
	visitors, err := money.ApplyBps(views, sc.MultiplierBps)
	if err != nil {
		return nil, fmt.Errorf("visitors: %w", err)
	}
	cost, err := money.MulDiv(clips, in.PricePerClipCents, 1)
	if err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}

	p := &Projection{
		Scenario:  sc.Name,
		Visitors:  visitors,
		Steps:     make([]StepResult, len(in.Steps)),
		CostCents: cost,
	}
	entering := visitors
	for i, s := range in.Steps {
		r, err := projectStep(s, sc, entering)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", s.Name, err)
		}
		p.Steps[i] = r
		if p.RevenueCents, err = money.Add(p.RevenueCents, r.RevenueCents); err != nil {
			return nil, err
		}
		entering = r.Converted
	}

	if p.ProfitCents, err = money.Sub(p.RevenueCents, p.CostCents); err != nil {
		return nil, err
	}
	if p.ROIBps, err = roiBps(p.ProfitCents, p.CostCents); err != nil {
		return nil, err
	}
	return p, nil
}

func projectStep(s Step, sc Scenario, entering int64) (StepResult, error) {
	rate, err := money.ApplyBps(s.ConversionBps, sc.MultiplierBps)
	if err != nil {
		return StepResult{}, err
	}
	rate = min(rate, money.BpsDenominator)

	converted, err := money.ApplyBps(entering, rate)
	if err != nil {
		return StepResult{}, err
	}
	downsold, err := money.ApplyBps(entering-converted, s.DownsellBps)
	if err != nil {
		return StepResult{}, err
	}
	primary, err := money.MulDiv(converted, s.PriceCents, 1)
	if err != nil {
		return StepResult{}, err
	}
	side, err := money.MulDiv(downsold, s.DownsellPriceCents, 1)
	if err != nil {
		return StepResult{}, err
	}
	revenue, err := money.Add(primary, side)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{
		Name:          s.Name,
		ConversionBps: rate,
		Entering:      entering,
		Converted:     converted,
		Downsold:      downsold,
		RevenueCents:  revenue,
	}, nil
}

// roiBps returns profit/cost in basis points, truncated toward zero.
func roiBps(profit, cost int64) (int64, error) {
	if cost == 0 {
		return 0, nil
	}
	if profit >= 0 {
		return money.MulDiv(profit, money.BpsDenominator, cost)
	}
	loss, err := money.Sub(0, profit)
	if err != nil {
		return 0, err
	}
	r, err := money.MulDiv(loss, money.BpsDenominator, cost)
	return -r, err
}

// ProjectAll runs every named scenario.
func ProjectAll(in Inputs) ([]*Projection, error) {
	var out []*Projection
	for _, sc := range Scenarios() {
		p, err := Project(in, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
