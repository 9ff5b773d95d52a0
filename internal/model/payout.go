package model

import "time"

// PayoutRecord is one settled (or pending) payout read from the payout ledger.
// SegmentID may be empty, in which case membership is resolved from segment rules.
type PayoutRecord struct {
	ID          string    `json:"id"`
	SegmentID   string    `json:"segment_id,omitempty"`
	PayeeID     string    `json:"payee_id,omitempty"`
	PayeeTier   string    `json:"payee_tier,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	Views       int64     `json:"views,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Settled     bool      `json:"settled"`
	Timestamp   time.Time `json:"timestamp"`
}
