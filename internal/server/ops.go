package server

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/funnel"
	"github.com/alfredjeanlab/budgets/internal/model"
)

// Request and response shapes shared by the HTTP routes and the gRPC
// methods. HTTP fills id fields from the path; gRPC carries them in the
// message.

type healthResponse struct {
	Status string `json:"status"`
}

type idRequest struct {
	ID string `json:"id"`
}

type createCycleRequest struct {
	model.BudgetCycle
	Actor string `json:"actor"`
}

type listCyclesRequest struct {
	Limit int `json:"limit,omitempty"`
}

type cyclesResponse struct {
	Cycles []*model.BudgetCycle `json:"cycles"`
}

type transitionRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Notes  string `json:"notes,omitempty"`
}

type cycleLimitsRequest struct {
	model.CycleLimits
	ID    string `json:"id"`
	Actor string `json:"actor"`
	Notes string `json:"notes,omitempty"`
}

type refreshRequest struct {
	ID   string     `json:"id"`
	AsOf *time.Time `json:"as_of,omitempty"`
}

type segmentCycleViewsResponse struct {
	SegmentCycles []*budget.SegmentCycleView `json:"segment_cycles"`
}

type openSegmentCyclesRequest struct {
	CycleID string `json:"cycle_id"`
	// SegmentID selects one segment; empty opens every live segment.
	SegmentID string `json:"segment_id,omitempty"`
	Actor     string `json:"actor"`
}

type segmentCyclesResponse struct {
	SegmentCycles []*model.SegmentCycle `json:"segment_cycles"`
}

type authorizeRequest struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
}

type createSegmentRequest struct {
	model.BudgetSegment
	Actor string `json:"actor"`
}

type listSegmentsRequest struct {
	IncludeDeleted bool `json:"include_deleted,omitempty"`
}

type segmentsResponse struct {
	Segments []*model.BudgetSegment `json:"segments"`
}

type updateSegmentRequest struct {
	model.SegmentUpdate
	ID    string `json:"id"`
	Actor string `json:"actor"`
	Notes string `json:"notes,omitempty"`
}

type deleteSegmentRequest struct {
	ID    string `json:"id"`
	Actor string `json:"actor"`
	Notes string `json:"notes,omitempty"`
}

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type throttleRequest struct {
	budget.ThrottleConfig
	SegmentID string `json:"segment_id"`
}

type simulateRequest struct {
	budget.SimulationParams
	// CycleID fills unset parameters from a stored cycle.
	CycleID string `json:"cycle_id,omitempty"`
}

type funnelRequest struct {
	funnel.Inputs
	// Scenario limits the projection to one named scenario.
	Scenario string `json:"scenario,omitempty"`
}

type projectionsResponse struct {
	Projections []*funnel.Projection `json:"projections"`
}

type listEventsRequest struct {
	model.EventFilter
}

type eventsResponse struct {
	Events []*model.BudgetEvent `json:"events"`
}

type rollbackRequest struct {
	Token string `json:"token"`
	Actor string `json:"actor"`
}

func (s *BudgetServer) health(_ context.Context, _ *struct{}) (any, error) {
	return &healthResponse{Status: "ok"}, nil
}

// --- Cycles ---

func (s *BudgetServer) createCycle(ctx context.Context, req *createCycleRequest) (any, error) {
	c := req.BudgetCycle
	return s.svc.CreateCycle(ctx, &c, req.Actor)
}

func (s *BudgetServer) getCycle(ctx context.Context, req *idRequest) (any, error) {
	return s.svc.GetCycle(ctx, req.ID)
}

func (s *BudgetServer) currentCycle(ctx context.Context, _ *struct{}) (any, error) {
	return s.svc.CurrentCycle(ctx)
}

func (s *BudgetServer) listCycles(ctx context.Context, req *listCyclesRequest) (any, error) {
	if req.Limit < 0 {
		return nil, &model.ParameterError{Name: "limit", Reason: "must be non-negative"}
	}
	cycles, err := s.svc.ListCycles(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	return &cyclesResponse{Cycles: nonNil(cycles)}, nil
}

func (s *BudgetServer) transitionCycle(ctx context.Context, req *transitionRequest) (any, error) {
	if req.Status == "" {
		return nil, &model.ParameterError{Name: "status", Reason: "is required"}
	}
	return s.svc.TransitionCycle(ctx, req.ID, model.CycleStatus(req.Status), req.Actor, req.Notes)
}

func (s *BudgetServer) updateCycleLimits(ctx context.Context, req *cycleLimitsRequest) (any, error) {
	return s.svc.UpdateCycleLimits(ctx, req.ID, req.CycleLimits, req.Actor, req.Notes)
}

func (s *BudgetServer) refreshSpend(ctx context.Context, req *refreshRequest) (any, error) {
	var asOf time.Time
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	views, err := s.svc.RefreshSpend(ctx, req.ID, asOf)
	if err != nil {
		return nil, err
	}
	return &segmentCycleViewsResponse{SegmentCycles: nonNil(views)}, nil
}

func (s *BudgetServer) listSegmentCycles(ctx context.Context, req *idRequest) (any, error) {
	views, err := s.svc.SegmentCycleViews(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &segmentCycleViewsResponse{SegmentCycles: nonNil(views)}, nil
}

func (s *BudgetServer) openSegmentCycles(ctx context.Context, req *openSegmentCyclesRequest) (any, error) {
	if req.SegmentID != "" {
		sc, err := s.svc.OpenSegmentCycle(ctx, req.CycleID, req.SegmentID, req.Actor)
		if err != nil {
			return nil, err
		}
		return &segmentCyclesResponse{SegmentCycles: []*model.SegmentCycle{sc}}, nil
	}
	scs, err := s.svc.OpenAllSegmentCycles(ctx, req.CycleID, req.Actor)
	if err != nil {
		return nil, err
	}
	return &segmentCyclesResponse{SegmentCycles: nonNil(scs)}, nil
}

// --- Segment cycles ---

func (s *BudgetServer) getSegmentCycle(ctx context.Context, req *idRequest) (any, error) {
	return s.svc.GetSegmentCycle(ctx, req.ID)
}

func (s *BudgetServer) transitionSegmentCycle(ctx context.Context, req *transitionRequest) (any, error) {
	if req.Status == "" {
		return nil, &model.ParameterError{Name: "status", Reason: "is required"}
	}
	return s.svc.TransitionSegmentCycle(ctx, req.ID, model.SegmentStatus(req.Status), req.Actor, req.Notes)
}

func (s *BudgetServer) authorizePayout(ctx context.Context, req *authorizeRequest) (any, error) {
	return s.svc.AuthorizePayout(ctx, req.ID, req.AmountCents)
}

// --- Segments ---

func (s *BudgetServer) createSegment(ctx context.Context, req *createSegmentRequest) (any, error) {
	seg := req.BudgetSegment
	return s.svc.CreateSegment(ctx, &seg, req.Actor)
}

func (s *BudgetServer) getSegment(ctx context.Context, req *idRequest) (any, error) {
	return s.svc.GetSegment(ctx, req.ID)
}

func (s *BudgetServer) listSegments(ctx context.Context, req *listSegmentsRequest) (any, error) {
	segs, err := s.svc.ListSegments(ctx, req.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	return &segmentsResponse{Segments: nonNil(segs)}, nil
}

func (s *BudgetServer) updateSegment(ctx context.Context, req *updateSegmentRequest) (any, error) {
	return s.svc.UpdateSegment(ctx, req.ID, req.SegmentUpdate, req.Actor, req.Notes)
}

func (s *BudgetServer) deleteSegment(ctx context.Context, req *deleteSegmentRequest) (any, error) {
	if err := s.svc.DeleteSegment(ctx, req.ID, req.Actor, req.Notes); err != nil {
		return nil, err
	}
	return &deleteResponse{ID: req.ID, Deleted: true}, nil
}

// getThrottleConfig returns the stored throttle config of a segment, or the
// builtin default when it has none.
func (s *BudgetServer) getThrottleConfig(ctx context.Context, req *idRequest) (any, error) {
	key := model.ThrottleConfigKey(req.ID)
	if _, err := s.svc.GetSegment(ctx, req.ID); err != nil {
		return nil, err
	}
	cfg, err := s.store.GetConfig(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		if builtin, ok := s.builtinConfigs()[defaultThrottleKey]; ok {
			return builtin, nil
		}
		return nil, &model.NotFoundError{Entity: "config", ID: key}
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *BudgetServer) setThrottleConfig(ctx context.Context, req *throttleRequest) (any, error) {
	if err := s.svc.SetThrottleConfig(ctx, req.SegmentID, req.ThrottleConfig); err != nil {
		return nil, err
	}
	return s.getThrottleConfig(ctx, &idRequest{ID: req.SegmentID})
}

// --- Forecasting ---

func (s *BudgetServer) simulate(ctx context.Context, req *simulateRequest) (any, error) {
	if req.CycleID != "" {
		return s.svc.SimulateCycle(ctx, req.CycleID, req.SimulationParams)
	}
	return s.svc.Simulate(req.SimulationParams)
}

func (s *BudgetServer) projectFunnel(_ context.Context, req *funnelRequest) (any, error) {
	if req.Scenario == "" {
		projections, err := funnel.ProjectAll(req.Inputs)
		if err != nil {
			return nil, err
		}
		return &projectionsResponse{Projections: projections}, nil
	}
	sc, ok := funnel.ScenarioByName(req.Scenario)
	if !ok {
		return nil, &model.ParameterError{Name: "scenario", Reason: "unknown scenario " + req.Scenario}
	}
	p, err := funnel.Project(req.Inputs, sc)
	if err != nil {
		return nil, err
	}
	return &projectionsResponse{Projections: []*funnel.Projection{p}}, nil
}

// --- Events ---

func (s *BudgetServer) listEvents(ctx context.Context, req *listEventsRequest) (any, error) {
	if req.Limit < 0 {
		return nil, &model.ParameterError{Name: "limit", Reason: "must be non-negative"}
	}
	evts, err := s.svc.ListEvents(ctx, req.EventFilter)
	if err != nil {
		return nil, err
	}
	return &eventsResponse{Events: nonNil(evts)}, nil
}

func (s *BudgetServer) rollback(ctx context.Context, req *rollbackRequest) (any, error) {
	if req.Token == "" {
		return nil, &model.ParameterError{Name: "token", Reason: "is required"}
	}
	return s.svc.Rollback(ctx, req.Token, req.Actor)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
