package model

import (
	"encoding/json"
	"time"
)

// Config is a key-value configuration record stored as JSONB.
// Keys use the format "{namespace}:{name}" (e.g. "throttle:sg-abc123").
type Config struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ThrottleConfigKey returns the config key holding the soft-throttle
// settings of a segment.
func ThrottleConfigKey(segmentID string) string {
	return "throttle:" + segmentID
}
