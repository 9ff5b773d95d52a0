package events

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/budgets/internal/model"
)

// TopicPrefix is prepended to every audit action to form its subject.
const TopicPrefix = "budgets."

// Subject wildcards for subscribers.
const (
	TopicAll           = "budgets.>"
	TopicCycles        = "budgets.cycle.>"
	TopicSegments      = "budgets.segment.>"
	TopicSegmentCycles = "budgets.segment_cycle.>"
)

// Topic returns the subject an audit action is published on,
// e.g. "cycle.kill" becomes "budgets.cycle.kill".
func Topic(action string) string {
	return TopicPrefix + action
}

// ActionOf is the inverse of Topic. It returns "" for foreign subjects.
func ActionOf(topic string) string {
	if !strings.HasPrefix(topic, TopicPrefix) {
		return ""
	}
	return strings.TrimPrefix(topic, TopicPrefix)
}

// Event payloads. Each carries the committed audit record plus the entity
// as it stands after the change.

type CycleChanged struct {
	Event *model.BudgetEvent `json:"event"`
	Cycle *model.BudgetCycle `json:"cycle"`
}

type SegmentChanged struct {
	Event   *model.BudgetEvent   `json:"event"`
	Segment *model.BudgetSegment `json:"segment"`
}

type SegmentCycleChanged struct {
	Event        *model.BudgetEvent  `json:"event"`
	SegmentCycle *model.SegmentCycle `json:"segment_cycle"`
	Warning      string              `json:"warning,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
