// Package client provides a transport-agnostic interface for the budgets
// service with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/funnel"
	"github.com/alfredjeanlab/budgets/internal/model"
)

// BudgetClient is the interface that all bctl commands use to talk to the
// budgets server. It is implemented by HTTPClient (default) and GRPCClient.
type BudgetClient interface {
	// Cycles
	CreateCycle(ctx context.Context, req *CreateCycleRequest) (*model.BudgetCycle, error)
	GetCycle(ctx context.Context, id string) (*model.BudgetCycle, error)
	CurrentCycle(ctx context.Context) (*model.BudgetCycle, error)
	ListCycles(ctx context.Context, limit int) ([]*model.BudgetCycle, error)
	TransitionCycle(ctx context.Context, req *TransitionRequest) (*model.BudgetCycle, error)
	UpdateCycleLimits(ctx context.Context, req *UpdateLimitsRequest) (*model.BudgetCycle, error)
	RefreshSpend(ctx context.Context, cycleID string, asOf time.Time) ([]*budget.SegmentCycleView, error)

	// Segment cycles
	ListSegmentCycles(ctx context.Context, cycleID string) ([]*budget.SegmentCycleView, error)
	OpenSegmentCycles(ctx context.Context, req *OpenSegmentCyclesRequest) ([]*model.SegmentCycle, error)
	GetSegmentCycle(ctx context.Context, id string) (*model.SegmentCycle, error)
	TransitionSegmentCycle(ctx context.Context, req *TransitionRequest) (*model.SegmentCycle, error)
	AuthorizePayout(ctx context.Context, segmentCycleID string, amountCents int64) (*budget.PayoutDecision, error)

	// Segments
	CreateSegment(ctx context.Context, req *CreateSegmentRequest) (*model.BudgetSegment, error)
	GetSegment(ctx context.Context, id string) (*model.BudgetSegment, error)
	ListSegments(ctx context.Context, includeDeleted bool) ([]*model.BudgetSegment, error)
	UpdateSegment(ctx context.Context, req *UpdateSegmentRequest) (*model.BudgetSegment, error)
	DeleteSegment(ctx context.Context, id, actor, notes string) error
	GetThrottleConfig(ctx context.Context, segmentID string) (*model.Config, error)
	SetThrottleConfig(ctx context.Context, segmentID string, tc budget.ThrottleConfig) (*model.Config, error)

	// Forecasting
	Simulate(ctx context.Context, req *SimulateRequest) (*budget.Forecast, error)
	ProjectFunnel(ctx context.Context, req *FunnelRequest) ([]*funnel.Projection, error)

	// Audit log
	ListEvents(ctx context.Context, filter *model.EventFilter) ([]*model.BudgetEvent, error)
	Rollback(ctx context.Context, token, actor string) (*model.BudgetEvent, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// CreateCycleRequest holds parameters for creating a budget cycle.
type CreateCycleRequest struct {
	StartDate                    time.Time `json:"start_date"`
	EndDate                      time.Time `json:"end_date"`
	GlobalWeeklyLimitCents       int64     `json:"global_weekly_limit_cents"`
	GlobalMonthlyLimitCents      int64     `json:"global_monthly_limit_cents,omitempty"`
	EmergencyReserveCents        int64     `json:"emergency_reserve_cents,omitempty"`
	MaxPayoutPerClipCents        int64     `json:"max_payout_per_clip_cents,omitempty"`
	MaxPayoutPerClipperWeekCents int64     `json:"max_payout_per_clipper_week_cents,omitempty"`
	Actor                        string    `json:"actor"`
}

// TransitionRequest moves a cycle or segment cycle to a new status.
type TransitionRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Notes  string `json:"notes,omitempty"`
}

// UpdateLimitsRequest edits the caps of a cycle. Nil limits are unchanged.
type UpdateLimitsRequest struct {
	model.CycleLimits
	ID    string `json:"id"`
	Actor string `json:"actor"`
	Notes string `json:"notes,omitempty"`
}

// OpenSegmentCyclesRequest opens one segment (or every live segment when
// SegmentID is empty) inside a cycle.
type OpenSegmentCyclesRequest struct {
	CycleID   string `json:"cycle_id"`
	SegmentID string `json:"segment_id,omitempty"`
	Actor     string `json:"actor"`
}

// CreateSegmentRequest holds parameters for creating a segment.
type CreateSegmentRequest struct {
	Name              string              `json:"name"`
	WeeklyLimitCents  int64               `json:"weekly_limit_cents"`
	MonthlyLimitCents int64               `json:"monthly_limit_cents,omitempty"`
	Priority          int                 `json:"priority"`
	Rules             []model.SegmentRule `json:"rules,omitempty"`
	Actor             string              `json:"actor"`
}

// UpdateSegmentRequest holds optional segment changes.
type UpdateSegmentRequest struct {
	model.SegmentUpdate
	ID    string `json:"id"`
	Actor string `json:"actor"`
	Notes string `json:"notes,omitempty"`
}

// SimulateRequest runs a what-if forecast, optionally seeded from a cycle.
type SimulateRequest struct {
	budget.SimulationParams
	CycleID string `json:"cycle_id,omitempty"`
}

// FunnelRequest projects the funnel for one scenario, or all of them when
// Scenario is empty.
type FunnelRequest struct {
	funnel.Inputs
	Scenario string `json:"scenario,omitempty"`
}

// Response envelopes shared by both transports.
type (
	cyclesResponse struct {
		Cycles []*model.BudgetCycle `json:"cycles"`
	}
	segmentCycleViewsResponse struct {
		SegmentCycles []*budget.SegmentCycleView `json:"segment_cycles"`
	}
	segmentCyclesResponse struct {
		SegmentCycles []*model.SegmentCycle `json:"segment_cycles"`
	}
	segmentsResponse struct {
		Segments []*model.BudgetSegment `json:"segments"`
	}
	projectionsResponse struct {
		Projections []*funnel.Projection `json:"projections"`
	}
	eventsResponse struct {
		Events []*model.BudgetEvent `json:"events"`
	}
	healthResponse struct {
		Status string `json:"status"`
	}
)
