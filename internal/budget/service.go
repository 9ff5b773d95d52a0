package budget

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/budgets/internal/events"
	"github.com/alfredjeanlab/budgets/internal/idgen"
	"github.com/alfredjeanlab/budgets/internal/metrics"
	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/money"
	"github.com/alfredjeanlab/budgets/internal/store"
)

// Options tunes a Service. The zero value is usable.
type Options struct {
	// Now returns the current time; defaults to time.Now in UTC.
	Now func() time.Time
	// DefaultThrottle applies to throttled segments without a stored
	// throttle config; defaults to a DefaultThrottleCutBps percent cut.
	DefaultThrottle ThrottlePolicy
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service is the budget engine: it validates and persists state changes,
// records one audit event per mutation in the same transaction, and
// publishes the committed event afterwards.
type Service struct {
	store     store.Store
	ledger    store.Ledger
	publisher events.Publisher
	now       func() time.Time
	throttle  ThrottlePolicy
	log       *slog.Logger
}

// NewService returns a Service backed by the given store, ledger and publisher.
func NewService(s store.Store, l store.Ledger, p events.Publisher, opts Options) *Service {
	svc := &Service{
		store:     s,
		ledger:    l,
		publisher: p,
		now:       opts.Now,
		throttle:  opts.DefaultThrottle,
		log:       opts.Logger,
	}
	if svc.publisher == nil {
		svc.publisher = &events.NoopPublisher{}
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.throttle == nil {
		svc.throttle = PercentCutPolicy{CutBps: DefaultThrottleCutBps}
	}
	if svc.log == nil {
		svc.log = slog.Default()
	}
	return svc
}

// publish emits a committed event. Failures are logged and never returned.
func (s *Service) publish(ctx context.Context, action string, payload any) {
	topic := events.Topic(action)
	err := s.publisher.Publish(ctx, topic, payload)
	metrics.ObserveEventPublish(action, err)
	if err != nil {
		s.log.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// missing converts sql.ErrNoRows into a NotFoundError.
func missing(entity model.EntityType, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Entity: entity, ID: id}
	}
	return err
}

func snapshot(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return b, nil
}

// newEvent builds an audit event with before/after snapshots.
func newEvent(action, actor, notes string, entity model.EntityType, entityID, cycleID string, before, after any) (*model.BudgetEvent, error) {
	e := &model.BudgetEvent{
		Action:     action,
		Actor:      actor,
		Notes:      notes,
		EntityType: entity,
		EntityID:   entityID,
		CycleID:    cycleID,
	}
	var err error
	if before != nil {
		if e.BeforeState, err = snapshot(before); err != nil {
			return nil, err
		}
	}
	if after != nil {
		if e.AfterState, err = snapshot(after); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func requireActor(actor string) error {
	if actor == "" {
		return &model.ParameterError{Name: "actor", Reason: "is required"}
	}
	return nil
}

// --- Cycles ---

// CreateCycle persists a new cycle in pending_approval.
func (s *Service) CreateCycle(ctx context.Context, c *model.BudgetCycle, actor string) (*model.BudgetCycle, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	id, err := idgen.NewCycleID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}
	now := s.now()
	cycle := *c
	cycle.ID = id
	cycle.Status = model.CycleStatusPendingApproval
	cycle.ApprovedAt = nil
	cycle.ApprovedBy = ""
	cycle.CreatedAt = now
	cycle.UpdatedAt = now
	if err := model.ValidateCycle(&cycle); err != nil {
		return nil, err
	}

	ev, err := newEvent(model.ActionCycleCreate, actor, "", model.EntityCycle, cycle.ID, cycle.ID, nil, &cycle)
	if err != nil {
		return nil, err
	}
	ev.EstimatedImpactCents = cycle.GlobalWeeklyLimitCents
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateCycle(ctx, &cycle); err != nil {
			return fmt.Errorf("failed to create cycle: %w", err)
		}
		return tx.RecordEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev.Action, events.CycleChanged{Event: ev, Cycle: &cycle})
	return &cycle, nil
}

// GetCycle returns a cycle by id.
func (s *Service) GetCycle(ctx context.Context, id string) (*model.BudgetCycle, error) {
	c, err := s.store.GetCycle(ctx, id)
	if err != nil {
		return nil, missing(model.EntityCycle, id, err)
	}
	return c, nil
}

// CurrentCycle returns the most recent cycle by start date.
func (s *Service) CurrentCycle(ctx context.Context) (*model.BudgetCycle, error) {
	c, err := s.store.GetCurrentCycle(ctx)
	if err != nil {
		return nil, missing(model.EntityCycle, "current", err)
	}
	return c, nil
}

// ListCycles returns cycles newest first.
func (s *Service) ListCycles(ctx context.Context, limit int) ([]*model.BudgetCycle, error) {
	return s.store.ListCycles(ctx, limit)
}

// TransitionCycle moves a cycle to a new status. Illegal moves fail with a
// TransitionError and change nothing; a concurrent writer that changed the
// status first yields a ConflictError.
func (s *Service) TransitionCycle(ctx context.Context, id string, to model.CycleStatus, actor, notes string) (*model.BudgetCycle, error) {
	c, _, err := s.transitionCycle(ctx, id, to, actor, notes, nil)
	return c, err
}

// transitionCycle applies a cycle transition. A non-nil reverts marks the
// recorded event as the rollback of that event.
func (s *Service) transitionCycle(ctx context.Context, id string, to model.CycleStatus, actor, notes string, reverts *model.BudgetEvent) (*model.BudgetCycle, *model.BudgetEvent, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	var (
		next model.BudgetCycle
		ev   *model.BudgetEvent
	)
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		cur, err := tx.GetCycle(ctx, id)
		if err != nil {
			return missing(model.EntityCycle, id, err)
		}
		action, err := checkCycleTransition(cur, to)
		if err != nil {
			return err
		}
		if err := checkNotReverted(ctx, tx, reverts); err != nil {
			return err
		}

		now := s.now()
		next = *cur
		next.Status = to
		next.UpdatedAt = now
		if to == model.CycleStatusApproved {
			next.ApprovedAt = &now
			next.ApprovedBy = actor
		}
		if err := tx.UpdateCycleStatus(ctx, &next, cur.Status); err != nil {
			return s.cycleConflict(ctx, tx, cur, err)
		}

		scs, err := tx.ListSegmentCycles(ctx, id)
		if err != nil {
			return fmt.Errorf("list segment cycles: %w", err)
		}
		if ev, err = newEvent(action, actor, notes, model.EntityCycle, id, id, cur, &next); err != nil {
			return err
		}
		ev.RollbackToken = uuid.NewString()
		ev.RevertsEventID = revertedID(reverts)
		ev.EstimatedImpactCents = cur.GlobalWeeklyLimitCents
		for _, sc := range scs {
			ev.ImpactedSegments = append(ev.ImpactedSegments, sc.SegmentID)
		}
		return tx.RecordEvent(ctx, ev)
	})
	if err != nil {
		metrics.ObserveTransition(string(model.EntityCycle), string(to), outcomeOf(err))
		return nil, nil, err
	}
	metrics.ObserveTransition(string(model.EntityCycle), string(to), metrics.OutcomeOK)

	s.publish(ctx, ev.Action, events.CycleChanged{Event: ev, Cycle: &next})
	return &next, ev, nil
}

// cycleConflict explains a failed conditional update.
func (s *Service) cycleConflict(ctx context.Context, tx store.Store, cur *model.BudgetCycle, updateErr error) error {
	if !errors.Is(updateErr, sql.ErrNoRows) {
		return fmt.Errorf("failed to update cycle status: %w", updateErr)
	}
	latest, err := tx.GetCycle(ctx, cur.ID)
	if err != nil {
		return missing(model.EntityCycle, cur.ID, err)
	}
	metrics.ConflictsTotal.WithLabelValues(string(model.EntityCycle)).Inc()
	return &model.ConflictError{
		Entity:   model.EntityCycle,
		ID:       cur.ID,
		Expected: string(cur.Status),
		Actual:   string(latest.Status),
	}
}

func (s *Service) ApproveCycle(ctx context.Context, id, actor, notes string) (*model.BudgetCycle, error) {
	return s.TransitionCycle(ctx, id, model.CycleStatusApproved, actor, notes)
}

// KillCycle is the global kill switch; every payout is blocked until the
// cycle is reactivated.
func (s *Service) KillCycle(ctx context.Context, id, actor, notes string) (*model.BudgetCycle, error) {
	return s.TransitionCycle(ctx, id, model.CycleStatusKilled, actor, notes)
}

func (s *Service) ReactivateCycle(ctx context.Context, id, actor, notes string) (*model.BudgetCycle, error) {
	return s.TransitionCycle(ctx, id, model.CycleStatusApproved, actor, notes)
}

func (s *Service) LockCycle(ctx context.Context, id, actor, notes string) (*model.BudgetCycle, error) {
	return s.TransitionCycle(ctx, id, model.CycleStatusLocked, actor, notes)
}

// UpdateCycleLimits changes the caps of a cycle that is not locked.
func (s *Service) UpdateCycleLimits(ctx context.Context, id string, limits model.CycleLimits, actor, notes string) (*model.BudgetCycle, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var (
		next model.BudgetCycle
		ev   *model.BudgetEvent
	)
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		cur, err := tx.GetCycle(ctx, id)
		if err != nil {
			return missing(model.EntityCycle, id, err)
		}
		if cur.Status == model.CycleStatusLocked {
			return &model.TransitionError{
				Entity: model.EntityCycle, ID: id,
				From: string(cur.Status), To: string(cur.Status),
				Reason: "locked cycles are read-only",
			}
		}
		next = *cur
		limits.Apply(&next)
		next.UpdatedAt = s.now()
		if err := model.ValidateCycle(&next); err != nil {
			return err
		}
		if err := tx.UpdateCycleLimits(ctx, &next); err != nil {
			return missing(model.EntityCycle, id, err)
		}
		if ev, err = newEvent(model.ActionCycleLimits, actor, notes, model.EntityCycle, id, id, cur, &next); err != nil {
			return err
		}
		ev.EstimatedImpactCents = next.GlobalWeeklyLimitCents - cur.GlobalWeeklyLimitCents
		return tx.RecordEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev.Action, events.CycleChanged{Event: ev, Cycle: &next})
	return &next, nil
}

// --- Segments ---

// CreateSegment persists a new segment.
func (s *Service) CreateSegment(ctx context.Context, seg *model.BudgetSegment, actor string) (*model.BudgetSegment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	id, err := idgen.NewSegmentID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}
	now := s.now()
	out := *seg
	out.ID = id
	out.CreatedAt = now
	out.UpdatedAt = now
	out.DeletedAt = nil
	if err := model.ValidateSegment(&out); err != nil {
		return nil, err
	}

	ev, err := newEvent(model.ActionSegmentCreate, actor, "", model.EntitySegment, id, "", nil, &out)
	if err != nil {
		return nil, err
	}
	ev.EstimatedImpactCents = out.WeeklyLimitCents
	ev.ImpactedSegments = []string{id}
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateSegment(ctx, &out); err != nil {
			return fmt.Errorf("failed to create segment: %w", err)
		}
		return tx.RecordEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev.Action, events.SegmentChanged{Event: ev, Segment: &out})
	return &out, nil
}

// GetSegment returns a segment by id, including soft-deleted ones.
func (s *Service) GetSegment(ctx context.Context, id string) (*model.BudgetSegment, error) {
	seg, err := s.store.GetSegment(ctx, id)
	if err != nil {
		return nil, missing(model.EntitySegment, id, err)
	}
	return seg, nil
}

// ListSegments returns segments ordered by priority.
func (s *Service) ListSegments(ctx context.Context, includeDeleted bool) ([]*model.BudgetSegment, error) {
	return s.store.ListSegments(ctx, includeDeleted)
}

// UpdateSegment applies changes to a live segment.
func (s *Service) UpdateSegment(ctx context.Context, id string, upd model.SegmentUpdate, actor, notes string) (*model.BudgetSegment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var (
		next model.BudgetSegment
		ev   *model.BudgetEvent
	)
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		cur, err := tx.GetSegment(ctx, id)
		if err != nil {
			return missing(model.EntitySegment, id, err)
		}
		if cur.IsDeleted() {
			return &model.NotFoundError{Entity: model.EntitySegment, ID: id}
		}
		next = *cur
		upd.Apply(&next)
		next.UpdatedAt = s.now()
		if err := model.ValidateSegment(&next); err != nil {
			return err
		}
		if err := tx.UpdateSegment(ctx, &next); err != nil {
			return missing(model.EntitySegment, id, err)
		}
		if ev, err = newEvent(model.ActionSegmentUpdate, actor, notes, model.EntitySegment, id, "", cur, &next); err != nil {
			return err
		}
		ev.EstimatedImpactCents = next.WeeklyLimitCents - cur.WeeklyLimitCents
		ev.ImpactedSegments = []string{id}
		return tx.RecordEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev.Action, events.SegmentChanged{Event: ev, Segment: &next})
	return &next, nil
}

// DeleteSegment soft-deletes a segment. Its segment cycles and events are
// kept for audit; it no longer matches payouts by rule and cannot be opened
// in new cycles.
func (s *Service) DeleteSegment(ctx context.Context, id, actor, notes string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	var (
		next model.BudgetSegment
		ev   *model.BudgetEvent
	)
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		cur, err := tx.GetSegment(ctx, id)
		if err != nil {
			return missing(model.EntitySegment, id, err)
		}
		if cur.IsDeleted() {
			return &model.NotFoundError{Entity: model.EntitySegment, ID: id}
		}
		now := s.now()
		if err := tx.SoftDeleteSegment(ctx, id, now); err != nil {
			return missing(model.EntitySegment, id, err)
		}
		next = *cur
		next.DeletedAt = &now
		next.UpdatedAt = now
		if ev, err = newEvent(model.ActionSegmentDelete, actor, notes, model.EntitySegment, id, "", cur, &next); err != nil {
			return err
		}
		ev.EstimatedImpactCents = -cur.WeeklyLimitCents
		ev.ImpactedSegments = []string{id}
		return tx.RecordEvent(ctx, ev)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, ev.Action, events.SegmentChanged{Event: ev, Segment: &next})
	return nil
}

// --- Segment cycles ---

// OpenSegmentCycle instantiates a segment inside a cycle in pending status.
func (s *Service) OpenSegmentCycle(ctx context.Context, cycleID, segmentID, actor string) (*model.SegmentCycle, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var (
		sc model.SegmentCycle
		ev *model.BudgetEvent
	)
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		sc, ev, err = s.openSegmentCycle(ctx, tx, cycleID, segmentID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev.Action, events.SegmentCycleChanged{Event: ev, SegmentCycle: &sc})
	return &sc, nil
}

// OpenAllSegmentCycles opens every live segment that is not yet part of the
// cycle, in one transaction.
func (s *Service) OpenAllSegmentCycles(ctx context.Context, cycleID, actor string) ([]*model.SegmentCycle, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var (
		opened []*model.SegmentCycle
		evs    []*model.BudgetEvent
	)
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		existing, err := tx.ListSegmentCycles(ctx, cycleID)
		if err != nil {
			return fmt.Errorf("list segment cycles: %w", err)
		}
		have := make(map[string]bool, len(existing))
		for _, sc := range existing {
			have[sc.SegmentID] = true
		}
		segs, err := tx.ListSegments(ctx, false)
		if err != nil {
			return fmt.Errorf("list segments: %w", err)
		}
		for _, seg := range segs {
			if have[seg.ID] {
				continue
			}
			sc, ev, err := s.openSegmentCycle(ctx, tx, cycleID, seg.ID, actor)
			if err != nil {
				return err
			}
			opened = append(opened, &sc)
			evs = append(evs, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, ev := range evs {
		s.publish(ctx, ev.Action, events.SegmentCycleChanged{Event: ev, SegmentCycle: opened[i]})
	}
	return opened, nil
}

func (s *Service) openSegmentCycle(ctx context.Context, tx store.Store, cycleID, segmentID, actor string) (model.SegmentCycle, *model.BudgetEvent, error) {
	cycle, err := tx.GetCycle(ctx, cycleID)
	if err != nil {
		return model.SegmentCycle{}, nil, missing(model.EntityCycle, cycleID, err)
	}
	if cycle.Status == model.CycleStatusLocked {
		return model.SegmentCycle{}, nil, &model.TransitionError{
			Entity: model.EntityCycle, ID: cycleID,
			From: string(cycle.Status), To: string(cycle.Status),
			Reason: "cannot open segments in a locked cycle",
		}
	}
	seg, err := tx.GetSegment(ctx, segmentID)
	if err != nil {
		return model.SegmentCycle{}, nil, missing(model.EntitySegment, segmentID, err)
	}
	if seg.IsDeleted() {
		return model.SegmentCycle{}, nil, &model.NotFoundError{Entity: model.EntitySegment, ID: segmentID}
	}
	existing, err := tx.ListSegmentCycles(ctx, cycleID)
	if err != nil {
		return model.SegmentCycle{}, nil, fmt.Errorf("list segment cycles: %w", err)
	}
	for _, sc := range existing {
		if sc.SegmentID == segmentID {
			return model.SegmentCycle{}, nil, &model.ParameterError{
				Name:   "segment_id",
				Reason: fmt.Sprintf("segment %s is already open in cycle %s as %s", segmentID, cycleID, sc.ID),
			}
		}
	}

	id, err := idgen.NewSegmentCycleID()
	if err != nil {
		return model.SegmentCycle{}, nil, fmt.Errorf("failed to generate ID: %w", err)
	}
	now := s.now()
	sc := model.SegmentCycle{
		ID:             id,
		SegmentID:      segmentID,
		CycleID:        cycleID,
		Status:         model.SegmentStatusPending,
		RemainingCents: seg.WeeklyLimitCents,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.CreateSegmentCycle(ctx, &sc); err != nil {
		return model.SegmentCycle{}, nil, fmt.Errorf("failed to create segment cycle: %w", err)
	}
	ev, err := newEvent(model.ActionSegmentCycleOpen, actor, "", model.EntitySegmentCycle, id, cycleID, nil, &sc)
	if err != nil {
		return model.SegmentCycle{}, nil, err
	}
	ev.EstimatedImpactCents = seg.WeeklyLimitCents
	ev.ImpactedSegments = []string{segmentID}
	if err := tx.RecordEvent(ctx, ev); err != nil {
		return model.SegmentCycle{}, nil, err
	}
	return sc, ev, nil
}

// GetSegmentCycle returns a segment cycle by id.
func (s *Service) GetSegmentCycle(ctx context.Context, id string) (*model.SegmentCycle, error) {
	sc, err := s.store.GetSegmentCycle(ctx, id)
	if err != nil {
		return nil, missing(model.EntitySegmentCycle, id, err)
	}
	return sc, nil
}

// TransitionSegmentCycle moves a segment cycle to a new status. While the
// owning cycle is killed or locked only kills are accepted.
func (s *Service) TransitionSegmentCycle(ctx context.Context, id string, to model.SegmentStatus, actor, notes string) (*model.SegmentCycle, error) {
	sc, _, err := s.transitionSegmentCycle(ctx, id, to, actor, notes, nil)
	return sc, err
}

func (s *Service) transitionSegmentCycle(ctx context.Context, id string, to model.SegmentStatus, actor, notes string, reverts *model.BudgetEvent) (*model.SegmentCycle, *model.BudgetEvent, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	var (
		next    model.SegmentCycle
		ev      *model.BudgetEvent
		warning WarningLevel
	)
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		cur, err := tx.GetSegmentCycle(ctx, id)
		if err != nil {
			return missing(model.EntitySegmentCycle, id, err)
		}
		cycle, err := tx.GetCycle(ctx, cur.CycleID)
		if err != nil {
			return missing(model.EntityCycle, cur.CycleID, err)
		}
		action, err := checkSegmentTransition(cur, cycle, to)
		if err != nil {
			return err
		}
		if err := checkNotReverted(ctx, tx, reverts); err != nil {
			return err
		}
		seg, err := tx.GetSegment(ctx, cur.SegmentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get segment: %w", err)
		}

		next = *cur
		next.Status = to
		next.UpdatedAt = s.now()
		if err := tx.UpdateSegmentCycleStatus(ctx, &next, cur.Status); err != nil {
			return s.segmentConflict(ctx, tx, cur, err)
		}

		if ev, err = newEvent(action, actor, notes, model.EntitySegmentCycle, id, cur.CycleID, cur, &next); err != nil {
			return err
		}
		ev.RollbackToken = uuid.NewString()
		ev.RevertsEventID = revertedID(reverts)
		ev.EstimatedImpactCents = max(cur.RemainingCents, 0)
		ev.ImpactedSegments = []string{cur.SegmentID}
		if err := tx.RecordEvent(ctx, ev); err != nil {
			return err
		}

		warning = viewOf(cur, seg).Warning
		return nil
	})
	if err != nil {
		metrics.ObserveTransition(string(model.EntitySegmentCycle), string(to), outcomeOf(err))
		return nil, nil, err
	}
	metrics.ObserveTransition(string(model.EntitySegmentCycle), string(to), metrics.OutcomeOK)

	s.publish(ctx, ev.Action, events.SegmentCycleChanged{Event: ev, SegmentCycle: &next, Warning: string(warning)})
	return &next, ev, nil
}

func (s *Service) segmentConflict(ctx context.Context, tx store.Store, cur *model.SegmentCycle, updateErr error) error {
	if !errors.Is(updateErr, sql.ErrNoRows) {
		return fmt.Errorf("failed to update segment cycle status: %w", updateErr)
	}
	latest, err := tx.GetSegmentCycle(ctx, cur.ID)
	if err != nil {
		return missing(model.EntitySegmentCycle, cur.ID, err)
	}
	metrics.ConflictsTotal.WithLabelValues(string(model.EntitySegmentCycle)).Inc()
	return &model.ConflictError{
		Entity:   model.EntitySegmentCycle,
		ID:       cur.ID,
		Expected: string(cur.Status),
		Actual:   string(latest.Status),
	}
}

// Rollback reverts the status change recorded under token by applying the
// inverse transition, and returns the event recording it. The inverse must
// itself be a legal transition. Each token can be used once.
func (s *Service) Rollback(ctx context.Context, token, actor string) (*model.BudgetEvent, error) {
	if token == "" {
		return nil, &model.ParameterError{Name: "rollback_token", Reason: "is required"}
	}
	evs, err := s.store.ListEvents(ctx, model.EventFilter{RollbackToken: token, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, &model.NotFoundError{Entity: "event", ID: token}
	}
	orig := evs[0]
	var before struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(orig.BeforeState, &before); err != nil || before.Status == "" {
		return nil, &model.ParameterError{Name: "rollback_token", Reason: "event has no prior status"}
	}
	notes := "rollback of event " + fmt.Sprint(orig.ID)

	var ev *model.BudgetEvent
	switch orig.EntityType {
	case model.EntityCycle:
		_, ev, err = s.transitionCycle(ctx, orig.EntityID, model.CycleStatus(before.Status), actor, notes, orig)
	case model.EntitySegmentCycle:
		_, ev, err = s.transitionSegmentCycle(ctx, orig.EntityID, model.SegmentStatus(before.Status), actor, notes, orig)
	default:
		return nil, &model.ParameterError{Name: "rollback_token", Reason: "event is not a status change"}
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// checkNotReverted fails when reverts has already been rolled back.
func checkNotReverted(ctx context.Context, tx store.Store, reverts *model.BudgetEvent) error {
	if reverts == nil {
		return nil
	}
	prior, err := tx.ListEvents(ctx, model.EventFilter{RevertsEventID: reverts.ID, Limit: 1})
	if err != nil {
		return fmt.Errorf("list rollbacks: %w", err)
	}
	if len(prior) > 0 {
		return &model.RollbackUsedError{EventID: reverts.ID, RevertedBy: prior[0].ID}
	}
	return nil
}

func revertedID(reverts *model.BudgetEvent) *int64 {
	if reverts == nil {
		return nil
	}
	id := reverts.ID
	return &id
}

// --- Spend ---

// SegmentCycleView is a segment cycle with its read-time warning band.
type SegmentCycleView struct {
	*model.SegmentCycle
	SegmentName      string       `json:"segment_name"`
	Priority         int          `json:"priority"`
	WeeklyLimitCents int64        `json:"weekly_limit_cents"`
	PctUsed          float64      `json:"pct_used"`
	Warning          WarningLevel `json:"warning"`
}

func viewOf(sc *model.SegmentCycle, seg *model.BudgetSegment) *SegmentCycleView {
	v := &SegmentCycleView{SegmentCycle: sc}
	if seg != nil {
		v.SegmentName = seg.Name
		v.Priority = seg.Priority
		v.WeeklyLimitCents = seg.WeeklyLimitCents
	}
	v.PctUsed = PercentUsed(sc.SpentCents, v.WeeklyLimitCents)
	v.Warning = Classify(sc.SpentCents, v.WeeklyLimitCents)
	return v
}

func segmentsByID(segs []*model.BudgetSegment) map[string]*model.BudgetSegment {
	m := make(map[string]*model.BudgetSegment, len(segs))
	for _, s := range segs {
		m[s.ID] = s
	}
	return m
}

// SegmentCycleViews returns the segment cycles of a cycle with warning bands
// computed from the stored spend figures.
func (s *Service) SegmentCycleViews(ctx context.Context, cycleID string) ([]*SegmentCycleView, error) {
	if _, err := s.GetCycle(ctx, cycleID); err != nil {
		return nil, err
	}
	scs, err := s.store.ListSegmentCycles(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	segs, err := s.store.ListSegments(ctx, true)
	if err != nil {
		return nil, err
	}
	byID := segmentsByID(segs)
	out := make([]*SegmentCycleView, 0, len(scs))
	for _, sc := range scs {
		out = append(out, viewOf(sc, byID[sc.SegmentID]))
	}
	return out, nil
}

// RefreshSpend aggregates the ledger for a cycle as of asOf (now when zero)
// and stores the spent, projected and remaining figures of every segment
// cycle. Warning bands are advisory and never change a status. Repeating the
// call against the same ledger state and asOf stores the same figures.
func (s *Service) RefreshSpend(ctx context.Context, cycleID string, asOf time.Time) ([]*SegmentCycleView, error) {
	start := time.Now()
	defer func() { metrics.SpendRefreshDuration.Observe(time.Since(start).Seconds()) }()

	if s.ledger == nil {
		return nil, fmt.Errorf("no payout ledger configured")
	}
	cycle, err := s.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	segs, err := s.store.ListSegments(ctx, true)
	if err != nil {
		return nil, err
	}
	records, err := s.ledger.ListPayouts(ctx, cycle.StartDate, cycle.EndDate)
	if err != nil {
		return nil, fmt.Errorf("read payout ledger: %w", err)
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	figures, err := Aggregate(records, segs, WindowOf(cycle), asOf)
	if err != nil {
		return nil, err
	}

	byID := segmentsByID(segs)
	var out []*SegmentCycleView
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		out = out[:0]
		scs, err := tx.ListSegmentCycles(ctx, cycleID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, sc := range scs {
			fig := figures[sc.SegmentID]
			sc.SpentCents = fig.SpentCents
			sc.ProjectedCents = fig.ProjectedCents
			sc.RemainingCents = fig.RemainingCents
			sc.UpdatedAt = now
			if err := tx.UpdateSegmentCycleSpend(ctx, sc); err != nil {
				return missing(model.EntitySegmentCycle, sc.ID, err)
			}
			out = append(out, viewOf(sc, byID[sc.SegmentID]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, v := range out {
		if v.Warning != WarningNone {
			s.log.Info("segment spend warning",
				"cycle_id", cycleID, "segment_id", v.SegmentID, "warning", v.Warning, "pct_used", v.PctUsed)
		}
	}
	return out, nil
}

// --- Simulation ---

// Simulate runs the forecast engine on explicit parameters.
func (s *Service) Simulate(params SimulationParams) (*Forecast, error) {
	f, err := Simulate(params)
	metrics.SimulationsTotal.WithLabelValues(outcomeOf(err)).Inc()
	return f, err
}

// SimulateCycle runs a forecast for a cycle, filling whatever params leaves
// unset from current state: real spend and per-segment spend from the stored
// segment cycles, the global cap from the cycle, and the average earnings
// per clip from settled payouts in the cycle window.
func (s *Service) SimulateCycle(ctx context.Context, cycleID string, params SimulationParams) (*Forecast, error) {
	cycle, err := s.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	views, err := s.SegmentCycleViews(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if params.GlobalWeeklyLimitCents == 0 {
		params.GlobalWeeklyLimitCents = cycle.GlobalWeeklyLimitCents
	}
	if params.RealSpendCents == 0 {
		var total int64
		for _, v := range views {
			if total, err = money.Add(total, v.SpentCents); err != nil {
				return nil, err
			}
		}
		params.RealSpendCents = total
	}
	if params.Segments == nil {
		for _, v := range views {
			params.Segments = append(params.Segments, SegmentInput{
				ID:               v.SegmentID,
				Name:             v.SegmentName,
				Priority:         v.Priority,
				WeeklyLimitCents: v.WeeklyLimitCents,
				SpentCents:       v.SpentCents,
			})
		}
	}
	if params.AvgEarningsPerClipCents == 0 && s.ledger != nil {
		records, err := s.ledger.ListPayouts(ctx, cycle.StartDate, cycle.EndDate)
		if err != nil {
			return nil, fmt.Errorf("read payout ledger: %w", err)
		}
		avg, err := averageEarnings(records)
		if err != nil {
			return nil, err
		}
		params.AvgEarningsPerClipCents = avg
	}
	return s.Simulate(params)
}

// averageEarnings is the mean settled payout, zero when there is none.
func averageEarnings(records []*model.PayoutRecord) (int64, error) {
	var sum, n int64
	for _, r := range records {
		if r == nil || !r.Settled || r.AmountCents < 0 {
			continue
		}
		var err error
		if sum, err = money.Add(sum, r.AmountCents); err != nil {
			return 0, err
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return sum / n, nil
}

// --- Payouts ---

// AuthorizePayout decides how much of a requested payout for a segment cycle
// may go out. Throttled segments use the policy stored under
// model.ThrottleConfigKey, falling back to the service default.
func (s *Service) AuthorizePayout(ctx context.Context, segmentCycleID string, amountCents int64) (*PayoutDecision, error) {
	sc, err := s.GetSegmentCycle(ctx, segmentCycleID)
	if err != nil {
		return nil, err
	}
	cycle, err := s.GetCycle(ctx, sc.CycleID)
	if err != nil {
		return nil, err
	}
	seg, err := s.GetSegment(ctx, sc.SegmentID)
	if err != nil {
		return nil, err
	}

	policy := s.throttle
	if sc.Status == model.SegmentStatusThrottled {
		if policy, err = s.ThrottlePolicyFor(ctx, seg.ID); err != nil {
			return nil, err
		}
	}

	d, err := Authorize(cycle, sc, seg.WeeklyLimitCents, amountCents, policy)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAuthorization(d.Allowed, d.Reason)
	return d, nil
}

// ThrottlePolicyFor returns the throttle policy of a segment.
func (s *Service) ThrottlePolicyFor(ctx context.Context, segmentID string) (ThrottlePolicy, error) {
	cfg, err := s.store.GetConfig(ctx, model.ThrottleConfigKey(segmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return s.throttle, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load throttle config: %w", err)
	}
	return ParseThrottleConfig(cfg.Value)
}

// DefaultThrottle returns the policy applied to throttled segments without
// a stored config.
func (s *Service) DefaultThrottle() ThrottlePolicy {
	return s.throttle
}

// SetThrottleConfig stores a per-segment throttle policy after validating it.
func (s *Service) SetThrottleConfig(ctx context.Context, segmentID string, tc ThrottleConfig) error {
	if _, err := s.GetSegment(ctx, segmentID); err != nil {
		return err
	}
	if _, err := tc.Policy(); err != nil {
		return err
	}
	raw, err := json.Marshal(tc)
	if err != nil {
		return err
	}
	return s.store.SetConfig(ctx, &model.Config{Key: model.ThrottleConfigKey(segmentID), Value: raw})
}

// --- Events ---

// ListEvents returns audit events newest first.
func (s *Service) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.BudgetEvent, error) {
	return s.store.ListEvents(ctx, filter)
}

// outcomeOf maps an error to a metrics outcome label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrInvalidParameter),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrConcurrentModification):
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
