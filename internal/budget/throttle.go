package budget

import (
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/money"
)

// ThrottlePolicy reduces a payout requested for a throttled segment.
type ThrottlePolicy interface {
	// Name identifies the policy in decisions and logs.
	Name() string
	// Throttle returns the amount allowed out of requestedCents.
	Throttle(requestedCents int64) (int64, error)
}

// DefaultThrottleCutBps is the reduction applied when no policy is configured.
const DefaultThrottleCutBps = 5000

// PercentCutPolicy removes CutBps basis points from every payout.
type PercentCutPolicy struct {
	CutBps int64
}

func (p PercentCutPolicy) Name() string { return "percent_cut" }

func (p PercentCutPolicy) Throttle(requestedCents int64) (int64, error) {
	if p.CutBps < 0 || p.CutBps > money.BpsDenominator {
		return 0, &model.ParameterError{Name: "cut_bps", Reason: fmt.Sprintf("must be within [0, %d], got %d", money.BpsDenominator, p.CutBps)}
	}
	return money.ApplyBps(requestedCents, money.BpsDenominator-p.CutBps)
}

// CapPolicy allows at most MaxCents per payout.
type CapPolicy struct {
	MaxCents int64
}

func (p CapPolicy) Name() string { return "cap" }

func (p CapPolicy) Throttle(requestedCents int64) (int64, error) {
	if p.MaxCents < 0 {
		return 0, &model.ParameterError{Name: "max_cents", Reason: fmt.Sprintf("must be non-negative, got %d", p.MaxCents)}
	}
	return min(requestedCents, p.MaxCents), nil
}

// ThrottleConfig is the JSON stored under model.ThrottleConfigKey.
type ThrottleConfig struct {
	Mode     string `json:"mode"`
	CutBps   int64  `json:"cut_bps,omitempty"`
	MaxCents int64  `json:"max_cents,omitempty"`
}

// ParseThrottleConfig builds a policy from a stored config value.
func ParseThrottleConfig(raw json.RawMessage) (ThrottlePolicy, error) {
	var tc ThrottleConfig
	if err := json.Unmarshal(raw, &tc); err != nil {
		return nil, &model.ParameterError{Name: "throttle config", Reason: err.Error()}
	}
	return tc.Policy()
}

// Policy returns the policy the config describes.
func (tc ThrottleConfig) Policy() (ThrottlePolicy, error) {
	switch tc.Mode {
	case "percent_cut", "":
		p := PercentCutPolicy{CutBps: tc.CutBps}
		if _, err := p.Throttle(0); err != nil {
			return nil, err
		}
		return p, nil
	case "cap":
		p := CapPolicy{MaxCents: tc.MaxCents}
		if _, err := p.Throttle(0); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, &model.ParameterError{Name: "mode", Reason: fmt.Sprintf("unknown throttle mode %q", tc.Mode)}
}

// ConfigOf describes a built-in policy as a storable config. It reports
// false for policies defined outside this package.
func ConfigOf(p ThrottlePolicy) (ThrottleConfig, bool) {
	switch p := p.(type) {
	case PercentCutPolicy:
		return ThrottleConfig{Mode: p.Name(), CutBps: p.CutBps}, true
	case CapPolicy:
		return ThrottleConfig{Mode: p.Name(), MaxCents: p.MaxCents}, true
	}
	return ThrottleConfig{}, false
}
