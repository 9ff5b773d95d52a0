package model

import "time"

// SegmentStatus is the approval state of a segment within a cycle.
type SegmentStatus string

const (
	SegmentStatusPending   SegmentStatus = "pending"
	SegmentStatusApproved  SegmentStatus = "approved"
	SegmentStatusThrottled SegmentStatus = "throttled"
	SegmentStatusKilled    SegmentStatus = "killed"
)

// String returns the string representation of the segment status.
func (s SegmentStatus) String() string {
	return string(s)
}

// IsValid checks whether the segment status is a known value.
func (s SegmentStatus) IsValid() bool {
	switch s {
	case SegmentStatusPending, SegmentStatusApproved, SegmentStatusThrottled, SegmentStatusKilled:
		return true
	}
	return false
}

// SegmentCycle is the live spend state of one segment inside one cycle.
// RemainingCents is the segment weekly limit minus SpentCents and is
// negative when the segment has overspent.
type SegmentCycle struct {
	ID             string        `json:"id"`
	SegmentID      string        `json:"segment_id"`
	CycleID        string        `json:"cycle_id"`
	Status         SegmentStatus `json:"status"`
	SpentCents     int64         `json:"spent_cents"`
	ProjectedCents int64         `json:"projected_cents"`
	RemainingCents int64         `json:"remaining_cents"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
