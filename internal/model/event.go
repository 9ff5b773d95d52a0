package model

import (
	"encoding/json"
	"time"
)

// EntityType names the kind of record an event refers to.
type EntityType string

const (
	EntityCycle        EntityType = "cycle"
	EntitySegment      EntityType = "segment"
	EntitySegmentCycle EntityType = "segment_cycle"
)

// Event actions. Status-changing actions carry before/after snapshots whose
// "status" fields differ.
const (
	ActionCycleCreate     = "cycle.create"
	ActionCycleApprove    = "cycle.approve"
	ActionCycleKill       = "cycle.kill"
	ActionCycleReactivate = "cycle.reactivate"
	ActionCycleLock       = "cycle.lock"
	ActionCycleLimits     = "cycle.update_limits"

	ActionSegmentCreate = "segment.create"
	ActionSegmentUpdate = "segment.update"
	ActionSegmentDelete = "segment.delete"

	ActionSegmentCycleOpen     = "segment_cycle.open"
	ActionSegmentCycleApprove  = "segment_cycle.approve"
	ActionSegmentCycleThrottle = "segment_cycle.throttle"
	ActionSegmentCycleKill     = "segment_cycle.kill"
	ActionSegmentCycleReopen   = "segment_cycle.reopen"
)

// BudgetEvent is an append-only audit record of a mutating action.
type BudgetEvent struct {
	ID                   int64           `json:"id"`
	CreatedAt            time.Time       `json:"created_at"`
	Action               string          `json:"action"`
	Actor                string          `json:"actor"`
	Notes                string          `json:"notes,omitempty"`
	EntityType           EntityType      `json:"entity_type"`
	EntityID             string          `json:"entity_id"`
	CycleID              string          `json:"cycle_id,omitempty"`
	EstimatedImpactCents int64           `json:"estimated_impact_cents"`
	BeforeState          json.RawMessage `json:"before_state,omitempty"`
	AfterState           json.RawMessage `json:"after_state,omitempty"`
	ImpactedSegments     []string        `json:"impacted_segments,omitempty"`
	RollbackToken        string          `json:"rollback_token,omitempty"`
	// RevertsEventID is set on the event a rollback records and names the
	// event it undid. Each event can be reverted once.
	RevertsEventID *int64 `json:"reverts_event_id,omitempty"`
}

// EventFilter holds criteria for querying the audit log.
type EventFilter struct {
	CycleID  string     `json:"cycle_id,omitempty"`
	EntityID string     `json:"entity_id,omitempty"`
	Actions  []string   `json:"actions,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Limit    int        `json:"limit,omitempty"`

	RollbackToken  string `json:"rollback_token,omitempty"`
	RevertsEventID int64  `json:"reverts_event_id,omitempty"`
}
