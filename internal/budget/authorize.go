package budget

import "github.com/alfredjeanlab/budgets/internal/model"

// PayoutDecision is the outcome of authorizing one payout.
type PayoutDecision struct {
	Allowed        bool         `json:"allowed"`
	RequestedCents int64        `json:"requested_cents"`
	ApprovedCents  int64        `json:"approved_cents"`
	Reason         string       `json:"reason,omitempty"`
	Policy         string       `json:"policy,omitempty"`
	Warning        WarningLevel `json:"warning"`
}

// Block reasons.
const (
	ReasonCycleNotApproved   = "cycle not approved"
	ReasonCycleKilled        = "cycle killed"
	ReasonSegmentKilled      = "segment killed"
	ReasonSegmentNotApproved = "segment not approved"
)

// Authorize decides how much of a payout may go out. A killed or unapproved
// cycle blocks everything, a killed or pending segment blocks its payouts,
// a throttled segment goes through policy, and every payout is capped at the
// cycle's per-clip maximum when one is set.
func Authorize(cycle *model.BudgetCycle, sc *model.SegmentCycle, limitCents, requestedCents int64, policy ThrottlePolicy) (*PayoutDecision, error) {
	if requestedCents < 0 {
		return nil, &model.ParameterError{Name: "amount_cents", Reason: "must be non-negative"}
	}
	d := &PayoutDecision{
		RequestedCents: requestedCents,
		Warning:        Classify(sc.SpentCents, limitCents),
	}

	switch cycle.Status {
	case model.CycleStatusKilled:
		d.Reason = ReasonCycleKilled
		return d, nil
	case model.CycleStatusApproved:
	default:
		d.Reason = ReasonCycleNotApproved
		return d, nil
	}

	amount := requestedCents
	switch sc.Status {
	case model.SegmentStatusKilled:
		d.Reason = ReasonSegmentKilled
		return d, nil
	case model.SegmentStatusPending:
		d.Reason = ReasonSegmentNotApproved
		return d, nil
	case model.SegmentStatusThrottled:
		if policy == nil {
			policy = PercentCutPolicy{CutBps: DefaultThrottleCutBps}
		}
		reduced, err := policy.Throttle(amount)
		if err != nil {
			return nil, err
		}
		amount = reduced
		d.Policy = policy.Name()
	}

	if cycle.MaxPayoutPerClipCents > 0 && amount > cycle.MaxPayoutPerClipCents {
		amount = cycle.MaxPayoutPerClipCents
	}
	d.Allowed = true
	d.ApprovedCents = amount
	return d, nil
}
