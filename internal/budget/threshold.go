package budget

import "github.com/alfredjeanlab/budgets/internal/money"

// WarningLevel is the advisory spend band of a segment. It is derived from
// spend at read time and never changes a status by itself.
type WarningLevel string

const (
	WarningNone         WarningLevel = "NONE"
	WarningWarn         WarningLevel = "WARNING"
	WarningSoftThrottle WarningLevel = "SOFT_THROTTLE"
	WarningHardFreeze   WarningLevel = "HARD_FREEZE"
)

// Band lower bounds in basis points of the weekly limit. Each band is
// inclusive at its lower bound.
const (
	WarningThresholdBps      = 8000
	SoftThrottleThresholdBps = 9500
	HardFreezeThresholdBps   = 10000
)

// String returns the string representation of the warning level.
func (w WarningLevel) String() string {
	return string(w)
}

// Classify returns the warning band for spent against limit. Comparisons are
// done by cross-multiplication so no precision is lost. A zero limit is
// frozen as soon as anything is spent.
func Classify(spentCents, limitCents int64) WarningLevel {
	if limitCents <= 0 {
		if spentCents > 0 {
			return WarningHardFreeze
		}
		return WarningNone
	}
	if spentCents <= 0 {
		return WarningNone
	}
	switch {
	case atLeastBps(spentCents, limitCents, HardFreezeThresholdBps):
		return WarningHardFreeze
	case atLeastBps(spentCents, limitCents, SoftThrottleThresholdBps):
		return WarningSoftThrottle
	case atLeastBps(spentCents, limitCents, WarningThresholdBps):
		return WarningWarn
	}
	return WarningNone
}

// atLeastBps reports spent/limit >= bps/10000 without overflowing.
func atLeastBps(spent, limit, bps int64) bool {
	// spent*10000 >= limit*bps, evaluated in 128 bits.
	lhsHi, lhsLo := money.Mul128(spent, money.BpsDenominator)
	rhsHi, rhsLo := money.Mul128(limit, bps)
	if lhsHi != rhsHi {
		return lhsHi > rhsHi
	}
	return lhsLo >= rhsLo
}

// PercentUsed returns spent as a percentage of limit for display.
// It is zero when limit is zero.
func PercentUsed(spentCents, limitCents int64) float64 {
	if limitCents == 0 {
		return 0
	}
	return float64(spentCents) / float64(limitCents) * 100
}
