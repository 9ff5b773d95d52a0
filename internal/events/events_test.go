package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/budgets/internal/model"
)

func TestTopic(t *testing.T) {
	for _, tc := range []struct {
		action string
		want   string
	}{
		{model.ActionCycleKill, "budgets.cycle.kill"},
		{model.ActionSegmentCreate, "budgets.segment.create"},
		{model.ActionSegmentCycleThrottle, "budgets.segment_cycle.throttle"},
	} {
		got := Topic(tc.action)
		if got != tc.want {
			t.Errorf("Topic(%q) = %q, want %q", tc.action, got, tc.want)
		}
		if back := ActionOf(got); back != tc.action {
			t.Errorf("ActionOf(%q) = %q, want %q", got, back, tc.action)
		}
	}
	if got := ActionOf("other.cycle.kill"); got != "" {
		t.Errorf("ActionOf(foreign) = %q, want empty", got)
	}
}

func TestNoopPublisher_Publish(t *testing.T) {
	pub := &NoopPublisher{}
	err := pub.Publish(context.Background(), Topic(model.ActionCycleApprove), CycleChanged{})
	if err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if got := pub.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
}

func TestNoopPublisher_Close(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestPublishers_ImplementPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	topic := Topic(model.ActionCycleKill)
	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(topic, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := CycleChanged{
		Event: &model.BudgetEvent{ID: 3, Action: model.ActionCycleKill, EntityID: "bc-pub1"},
		Cycle: &model.BudgetCycle{ID: "bc-pub1", Status: model.CycleStatusKilled},
	}
	if err := pub.Publish(context.Background(), topic, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got CycleChanged
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Cycle.ID != "bc-pub1" || got.Cycle.Status != model.CycleStatusKilled {
			t.Errorf("got cycle %+v", got.Cycle)
		}
		if got.Event.Action != model.ActionCycleKill {
			t.Errorf("got action %q", got.Event.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishMultipleTopics(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 3)
	sub, err := nc.ChanSubscribe(TopicAll, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	for _, tc := range []struct {
		topic string
		event any
	}{
		{Topic(model.ActionCycleApprove), CycleChanged{Cycle: &model.BudgetCycle{ID: "bc-1"}}},
		{Topic(model.ActionSegmentDelete), SegmentChanged{Segment: &model.BudgetSegment{ID: "sg-1"}}},
		{Topic(model.ActionSegmentCycleKill), SegmentCycleChanged{SegmentCycle: &model.SegmentCycle{ID: "sc-1"}}},
	} {
		if err := pub.Publish(context.Background(), tc.topic, tc.event); err != nil {
			t.Fatalf("Publish(%s): %v", tc.topic, err)
		}
	}
	pub.conn.Flush()

	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, Topic(model.ActionCycleKill), CycleChanged{}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Publishing after close should fail.
	if err := pub.Publish(context.Background(), Topic(model.ActionCycleKill), CycleChanged{}); err == nil {
		t.Error("expected error publishing after close")
	}
}
