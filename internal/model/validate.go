package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets callers match validation failures with ErrInvalidParameter.
func (e *ValidationError) Unwrap() error { return ErrInvalidParameter }

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) nonNegative(field string, v int64) {
	if v < 0 {
		e.add(field, "must be non-negative, got %d", v)
	}
}

// ValidateCycle checks a BudgetCycle for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the cycle is valid.
func ValidateCycle(c *BudgetCycle) error {
	var ve ValidationError

	if c.StartDate.IsZero() {
		ve.add("start_date", "is required")
	}
	if c.EndDate.IsZero() {
		ve.add("end_date", "is required")
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && !c.EndDate.After(c.StartDate) {
		ve.add("end_date", "must be after start_date")
	}

	if !c.Status.IsValid() {
		ve.add("status", "invalid value %q", c.Status)
	}

	ve.nonNegative("global_weekly_limit_cents", c.GlobalWeeklyLimitCents)
	ve.nonNegative("global_monthly_limit_cents", c.GlobalMonthlyLimitCents)
	ve.nonNegative("emergency_reserve_cents", c.EmergencyReserveCents)
	ve.nonNegative("max_payout_per_clip_cents", c.MaxPayoutPerClipCents)
	ve.nonNegative("max_payout_per_clipper_week_cents", c.MaxPayoutPerClipperWeekCents)

	// A pending cycle has never been approved.
	if c.Status == CycleStatusPendingApproval && c.ApprovedAt != nil {
		ve.add("approved_at", "must be nil while status is %s", c.Status)
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateSegment checks a BudgetSegment for constraint violations.
func ValidateSegment(s *BudgetSegment) error {
	var ve ValidationError

	name := strings.TrimSpace(s.Name)
	if name == "" {
		ve.add("name", "is required")
	} else if len([]rune(name)) > 200 {
		ve.add("name", "must be 200 characters or fewer")
	}

	ve.nonNegative("weekly_limit_cents", s.WeeklyLimitCents)
	ve.nonNegative("monthly_limit_cents", s.MonthlyLimitCents)

	if s.Priority < 0 {
		ve.add("priority", "must be non-negative, got %d", s.Priority)
	} else if s.Priority > MaxSegmentPriority {
		ve.add("priority", "must be at most %d, got %d", MaxSegmentPriority, s.Priority)
	}

	for i, r := range s.Rules {
		if err := r.Validate(); err != nil {
			ve.add(fmt.Sprintf("rules[%d]", i), "%v", err)
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
