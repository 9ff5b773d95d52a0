package model

import "time"

// CycleStatus is the approval state of a global budget cycle.
type CycleStatus string

const (
	CycleStatusPendingApproval CycleStatus = "pending_approval"
	CycleStatusApproved        CycleStatus = "approved"
	CycleStatusLocked          CycleStatus = "locked"
	CycleStatusKilled          CycleStatus = "killed"
)

// String returns the string representation of the cycle status.
func (s CycleStatus) String() string {
	return string(s)
}

// IsValid checks whether the cycle status is a known value.
func (s CycleStatus) IsValid() bool {
	switch s {
	case CycleStatusPendingApproval, CycleStatusApproved, CycleStatusLocked, CycleStatusKilled:
		return true
	}
	return false
}

// BudgetCycle is the global spend envelope for one period.
// All monetary fields are integer cents.
type BudgetCycle struct {
	ID        string      `json:"id"`
	StartDate time.Time   `json:"start_date"`
	EndDate   time.Time   `json:"end_date"`
	Status    CycleStatus `json:"status"`

	GlobalWeeklyLimitCents       int64 `json:"global_weekly_limit_cents"`
	GlobalMonthlyLimitCents      int64 `json:"global_monthly_limit_cents"`
	EmergencyReserveCents        int64 `json:"emergency_reserve_cents"`
	MaxPayoutPerClipCents        int64 `json:"max_payout_per_clip_cents"`
	MaxPayoutPerClipperWeekCents int64 `json:"max_payout_per_clipper_week_cents"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Length returns the duration of the cycle window.
func (c *BudgetCycle) Length() time.Duration {
	return c.EndDate.Sub(c.StartDate)
}

// Contains reports whether t falls inside the half-open window [start, end).
func (c *BudgetCycle) Contains(t time.Time) bool {
	return !t.Before(c.StartDate) && t.Before(c.EndDate)
}

// CycleLimits holds the editable caps of a cycle. Nil fields mean "don't change".
type CycleLimits struct {
	GlobalWeeklyLimitCents       *int64 `json:"global_weekly_limit_cents,omitempty"`
	GlobalMonthlyLimitCents      *int64 `json:"global_monthly_limit_cents,omitempty"`
	EmergencyReserveCents        *int64 `json:"emergency_reserve_cents,omitempty"`
	MaxPayoutPerClipCents        *int64 `json:"max_payout_per_clip_cents,omitempty"`
	MaxPayoutPerClipperWeekCents *int64 `json:"max_payout_per_clipper_week_cents,omitempty"`
}

// Apply copies every non-nil limit onto c.
func (l CycleLimits) Apply(c *BudgetCycle) {
	if l.GlobalWeeklyLimitCents != nil {
		c.GlobalWeeklyLimitCents = *l.GlobalWeeklyLimitCents
	}
	if l.GlobalMonthlyLimitCents != nil {
		c.GlobalMonthlyLimitCents = *l.GlobalMonthlyLimitCents
	}
	if l.EmergencyReserveCents != nil {
		c.EmergencyReserveCents = *l.EmergencyReserveCents
	}
	if l.MaxPayoutPerClipCents != nil {
		c.MaxPayoutPerClipCents = *l.MaxPayoutPerClipCents
	}
	if l.MaxPayoutPerClipperWeekCents != nil {
		c.MaxPayoutPerClipperWeekCents = *l.MaxPayoutPerClipperWeekCents
	}
}
