package model

import (
	"fmt"
	"strings"
	"time"
)

// RuleKind discriminates the SegmentRule variants.
type RuleKind string

const (
	RuleAll      RuleKind = "all"
	RuleTier     RuleKind = "tier"
	RulePlatform RuleKind = "platform"
	RuleMinViews RuleKind = "min_views"
)

// String returns the string representation of the rule kind.
func (k RuleKind) String() string {
	return string(k)
}

// IsValid checks whether the rule kind is a known value.
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleAll, RuleTier, RulePlatform, RuleMinViews:
		return true
	}
	return false
}

// SegmentRule is one membership predicate of a segment. Which fields are
// meaningful depends on Kind:
//
//	all        matches every payee
//	tier       Value is compared case-insensitively with the payee tier
//	platform   Value is compared case-insensitively with the payout platform
//	min_views  Min is the lowest view count that qualifies
type SegmentRule struct {
	Kind  RuleKind `json:"kind"`
	Value string   `json:"value,omitempty"`
	Min   int64    `json:"min,omitempty"`
}

// Validate checks that the rule carries the fields its kind requires.
func (r SegmentRule) Validate() error {
	switch r.Kind {
	case RuleAll:
		return nil
	case RuleTier, RulePlatform:
		if strings.TrimSpace(r.Value) == "" {
			return fmt.Errorf("rule %s: value is required", r.Kind)
		}
		return nil
	case RuleMinViews:
		if r.Min < 0 {
			return fmt.Errorf("rule %s: min must be non-negative, got %d", r.Kind, r.Min)
		}
		return nil
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
}

// Matches reports whether the payout satisfies the rule.
func (r SegmentRule) Matches(p *PayoutRecord) bool {
	switch r.Kind {
	case RuleAll:
		return true
	case RuleTier:
		return strings.EqualFold(r.Value, p.PayeeTier)
	case RulePlatform:
		return strings.EqualFold(r.Value, p.Platform)
	case RuleMinViews:
		return p.Views >= r.Min
	}
	return false
}

// MaxSegmentPriority bounds Priority so priority ranks fit in int64 math.
const MaxSegmentPriority = 1_000_000

// BudgetSegment is a named cohort of payees with its own caps.
// Lower Priority values take precedence.
type BudgetSegment struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	WeeklyLimitCents  int64         `json:"weekly_limit_cents"`
	MonthlyLimitCents int64         `json:"monthly_limit_cents"`
	Priority          int           `json:"priority"`
	Rules             []SegmentRule `json:"rules,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	DeletedAt         *time.Time    `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the segment has been soft-deleted.
func (s *BudgetSegment) IsDeleted() bool {
	return s.DeletedAt != nil
}

// Matches reports whether every rule of the segment accepts the payout.
// A segment without rules only receives explicitly attributed payouts.
func (s *BudgetSegment) Matches(p *PayoutRecord) bool {
	if len(s.Rules) == 0 {
		return false
	}
	for _, r := range s.Rules {
		if !r.Matches(p) {
			return false
		}
	}
	return true
}

// SegmentUpdate holds optional changes to a segment.
// Nil pointer fields mean "don't change"; a nil Rules slice keeps the rules.
type SegmentUpdate struct {
	Name              *string       `json:"name,omitempty"`
	WeeklyLimitCents  *int64        `json:"weekly_limit_cents,omitempty"`
	MonthlyLimitCents *int64        `json:"monthly_limit_cents,omitempty"`
	Priority          *int          `json:"priority,omitempty"`
	Rules             []SegmentRule `json:"rules,omitempty"`
}

// Apply copies every set field onto s.
func (u SegmentUpdate) Apply(s *BudgetSegment) {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.WeeklyLimitCents != nil {
		s.WeeklyLimitCents = *u.WeeklyLimitCents
	}
	if u.MonthlyLimitCents != nil {
		s.MonthlyLimitCents = *u.MonthlyLimitCents
	}
	if u.Priority != nil {
		s.Priority = *u.Priority
	}
	if u.Rules != nil {
		s.Rules = u.Rules
	}
}
