package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/events"
	"github.com/alfredjeanlab/budgets/internal/store"
)

// BudgetServer exposes a budget.Service over HTTP and gRPC.
type BudgetServer struct {
	svc    *budget.Service
	store  store.Store
	sseHub *sseHub
}

// NewBudgetServer builds the budget engine over the given store and ledger.
// Committed events go to connected SSE clients first and then to p.
func NewBudgetServer(s store.Store, l store.Ledger, p events.Publisher, opts budget.Options) *BudgetServer {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	srv := &BudgetServer{
		store:  s,
		sseHub: newSSEHub(),
	}
	srv.svc = budget.NewService(s, l, &ssePublisher{hub: srv.sseHub, next: p}, opts)
	return srv
}

// Service returns the engine the server wraps.
func (s *BudgetServer) Service() *budget.Service {
	return s.svc
}

// budgetService marks the gRPC handler type.
func (s *BudgetServer) budgetService() {}

// ssePublisher broadcasts every published event to SSE subscribers before
// handing it to the next publisher.
type ssePublisher struct {
	hub  *sseHub
	next events.Publisher
}

func (p *ssePublisher) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
	} else {
		p.hub.broadcast(topic, cycleOf(event), payload)
	}
	return p.next.Publish(ctx, topic, event)
}

// cycleOf returns the budget cycle an event payload belongs to.
func cycleOf(event any) string {
	switch e := event.(type) {
	case events.CycleChanged:
		if e.Cycle != nil {
			return e.Cycle.ID
		}
	case events.SegmentCycleChanged:
		if e.SegmentCycle != nil {
			return e.SegmentCycle.CycleID
		}
	case events.SegmentChanged:
		if e.Event != nil {
			return e.Event.CycleID
		}
	}
	return ""
}

func (p *ssePublisher) Close() error {
	return p.next.Close()
}
