// Package memory is an in-process implementation of store.Store and
// store.Ledger. It backs tests and `bctl serve --memory`; nothing is
// persisted across restarts.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/store"
)

type state struct {
	cycles        map[string]model.BudgetCycle
	segments      map[string]model.BudgetSegment
	segmentCycles map[string]model.SegmentCycle
	events        []model.BudgetEvent
	nextEventID   int64
	configs       map[string]model.Config
	payouts       []model.PayoutRecord
}

func (s *state) clone() state {
	c := state{
		cycles:        make(map[string]model.BudgetCycle, len(s.cycles)),
		segments:      make(map[string]model.BudgetSegment, len(s.segments)),
		segmentCycles: make(map[string]model.SegmentCycle, len(s.segmentCycles)),
		events:        append([]model.BudgetEvent(nil), s.events...),
		nextEventID:   s.nextEventID,
		configs:       make(map[string]model.Config, len(s.configs)),
		payouts:       append([]model.PayoutRecord(nil), s.payouts...),
	}
	for k, v := range s.cycles {
		c.cycles[k] = v
	}
	for k, v := range s.segments {
		c.segments[k] = v
	}
	for k, v := range s.segmentCycles {
		c.segmentCycles[k] = v
	}
	for k, v := range s.configs {
		c.configs[k] = v
	}
	return c
}

// op is one write. Transactions log their ops and replay them onto the
// shared state at commit.
type op func(d *state) error

// Store keeps every record in maps guarded by a mutex. Transactions are
// serialized and run on a private working copy, so readers never see
// uncommitted writes and a failed transaction leaves the shared state
// untouched, including writes made outside it in the meantime.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *state

	// pending is non-nil on a transaction's working copy.
	pending *[]op
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Ledger = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{data: &state{
		cycles:        make(map[string]model.BudgetCycle),
		segments:      make(map[string]model.BudgetSegment),
		segmentCycles: make(map[string]model.SegmentCycle),
		configs:       make(map[string]model.Config),
		nextEventID:   1,
	}}
}

// write applies o and, inside a transaction, logs it for commit.
func (s *Store) write(o op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := o(s.data); err != nil {
		return err
	}
	if s.pending != nil {
		*s.pending = append(*s.pending, o)
	}
	return nil
}

// read runs fn against the current state.
func (s *Store) read(fn func(d *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// --- Cycles ---

func (s *Store) CreateCycle(_ context.Context, c *model.BudgetCycle) error {
	v := *c
	return s.write(func(d *state) error {
		if _, ok := d.cycles[v.ID]; ok {
			return fmt.Errorf("create cycle: duplicate id %s", v.ID)
		}
		d.cycles[v.ID] = v
		return nil
	})
}

func (s *Store) GetCycle(_ context.Context, id string) (*model.BudgetCycle, error) {
	var (
		c  model.BudgetCycle
		ok bool
	)
	s.read(func(d *state) { c, ok = d.cycles[id] })
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *Store) GetCurrentCycle(ctx context.Context) (*model.BudgetCycle, error) {
	cycles, err := s.ListCycles(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, sql.ErrNoRows
	}
	return cycles[0], nil
}

func (s *Store) ListCycles(_ context.Context, limit int) ([]*model.BudgetCycle, error) {
	var out []*model.BudgetCycle
	s.read(func(d *state) {
		out = make([]*model.BudgetCycle, 0, len(d.cycles))
		for _, c := range d.cycles {
			c := c
			out = append(out, &c)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateCycleLimits(_ context.Context, c *model.BudgetCycle) error {
	v := *c
	return s.write(func(d *state) error {
		cur, ok := d.cycles[v.ID]
		if !ok {
			return sql.ErrNoRows
		}
		cur.GlobalWeeklyLimitCents = v.GlobalWeeklyLimitCents
		cur.GlobalMonthlyLimitCents = v.GlobalMonthlyLimitCents
		cur.EmergencyReserveCents = v.EmergencyReserveCents
		cur.MaxPayoutPerClipCents = v.MaxPayoutPerClipCents
		cur.MaxPayoutPerClipperWeekCents = v.MaxPayoutPerClipperWeekCents
		cur.UpdatedAt = v.UpdatedAt
		d.cycles[v.ID] = cur
		return nil
	})
}

func (s *Store) UpdateCycleStatus(_ context.Context, c *model.BudgetCycle, expected model.CycleStatus) error {
	v := *c
	return s.write(func(d *state) error {
		cur, ok := d.cycles[v.ID]
		if !ok || cur.Status != expected {
			return sql.ErrNoRows
		}
		cur.Status = v.Status
		cur.ApprovedAt = v.ApprovedAt
		cur.ApprovedBy = v.ApprovedBy
		cur.UpdatedAt = v.UpdatedAt
		d.cycles[v.ID] = cur
		return nil
	})
}

// --- Segments ---

func (s *Store) CreateSegment(_ context.Context, seg *model.BudgetSegment) error {
	v := *seg
	return s.write(func(d *state) error {
		if _, ok := d.segments[v.ID]; ok {
			return fmt.Errorf("create segment: duplicate id %s", v.ID)
		}
		d.segments[v.ID] = v
		return nil
	})
}

func (s *Store) GetSegment(_ context.Context, id string) (*model.BudgetSegment, error) {
	var (
		seg model.BudgetSegment
		ok  bool
	)
	s.read(func(d *state) { seg, ok = d.segments[id] })
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &seg, nil
}

func (s *Store) ListSegments(_ context.Context, includeDeleted bool) ([]*model.BudgetSegment, error) {
	var out []*model.BudgetSegment
	s.read(func(d *state) {
		for _, seg := range d.segments {
			if seg.DeletedAt != nil && !includeDeleted {
				continue
			}
			seg := seg
			out = append(out, &seg)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateSegment(_ context.Context, seg *model.BudgetSegment) error {
	v := *seg
	return s.write(func(d *state) error {
		cur, ok := d.segments[v.ID]
		if !ok || cur.DeletedAt != nil {
			return sql.ErrNoRows
		}
		next := v
		next.CreatedAt = cur.CreatedAt
		next.DeletedAt = nil
		d.segments[v.ID] = next
		return nil
	})
}

func (s *Store) SoftDeleteSegment(_ context.Context, id string, at time.Time) error {
	return s.write(func(d *state) error {
		cur, ok := d.segments[id]
		if !ok || cur.DeletedAt != nil {
			return sql.ErrNoRows
		}
		deletedAt := at
		cur.DeletedAt = &deletedAt
		cur.UpdatedAt = at
		d.segments[id] = cur
		return nil
	})
}

// --- Segment cycles ---

func (s *Store) CreateSegmentCycle(_ context.Context, sc *model.SegmentCycle) error {
	v := *sc
	return s.write(func(d *state) error {
		for _, existing := range d.segmentCycles {
			if existing.SegmentID == v.SegmentID && existing.CycleID == v.CycleID {
				return fmt.Errorf("create segment cycle: segment %s already in cycle %s", v.SegmentID, v.CycleID)
			}
		}
		d.segmentCycles[v.ID] = v
		return nil
	})
}

func (s *Store) GetSegmentCycle(_ context.Context, id string) (*model.SegmentCycle, error) {
	var (
		sc model.SegmentCycle
		ok bool
	)
	s.read(func(d *state) { sc, ok = d.segmentCycles[id] })
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &sc, nil
}

func (s *Store) ListSegmentCycles(_ context.Context, cycleID string) ([]*model.SegmentCycle, error) {
	var out []*model.SegmentCycle
	s.read(func(d *state) {
		for _, sc := range d.segmentCycles {
			if sc.CycleID != cycleID {
				continue
			}
			sc := sc
			out = append(out, &sc)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateSegmentCycleStatus(_ context.Context, sc *model.SegmentCycle, expected model.SegmentStatus) error {
	v := *sc
	return s.write(func(d *state) error {
		cur, ok := d.segmentCycles[v.ID]
		if !ok || cur.Status != expected {
			return sql.ErrNoRows
		}
		cur.Status = v.Status
		cur.UpdatedAt = v.UpdatedAt
		d.segmentCycles[v.ID] = cur
		return nil
	})
}

func (s *Store) UpdateSegmentCycleSpend(_ context.Context, sc *model.SegmentCycle) error {
	v := *sc
	return s.write(func(d *state) error {
		cur, ok := d.segmentCycles[v.ID]
		if !ok {
			return sql.ErrNoRows
		}
		cur.SpentCents = v.SpentCents
		cur.ProjectedCents = v.ProjectedCents
		cur.RemainingCents = v.RemainingCents
		cur.UpdatedAt = v.UpdatedAt
		d.segmentCycles[v.ID] = cur
		return nil
	})
}

// --- Events ---

// RecordEvent appends e and sets its ID and CreatedAt. At commit the ID is
// reassigned from the shared sequence. An event may be reverted only once.
func (s *Store) RecordEvent(_ context.Context, e *model.BudgetEvent) error {
	v := *e
	return s.write(func(d *state) error {
		if v.RevertsEventID != nil {
			for _, prior := range d.events {
				if prior.RevertsEventID != nil && *prior.RevertsEventID == *v.RevertsEventID {
					return &model.RollbackUsedError{EventID: *v.RevertsEventID, RevertedBy: prior.ID}
				}
			}
		}
		v.ID = d.nextEventID
		v.CreatedAt = time.Now().UTC()
		d.nextEventID++
		d.events = append(d.events, v)
		e.ID, e.CreatedAt = v.ID, v.CreatedAt
		return nil
	})
}

func (s *Store) ListEvents(_ context.Context, filter model.EventFilter) ([]*model.BudgetEvent, error) {
	var out []*model.BudgetEvent
	s.read(func(d *state) {
		for i := len(d.events) - 1; i >= 0; i-- {
			e := d.events[i]
			if !matches(&e, filter) {
				continue
			}
			out = append(out, &e)
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
	})
	return out, nil
}

func matches(e *model.BudgetEvent, filter model.EventFilter) bool {
	switch {
	case filter.CycleID != "" && e.CycleID != filter.CycleID,
		filter.EntityID != "" && e.EntityID != filter.EntityID,
		len(filter.Actions) > 0 && !slices.Contains(filter.Actions, e.Action),
		filter.Since != nil && e.CreatedAt.Before(*filter.Since),
		filter.RollbackToken != "" && e.RollbackToken != filter.RollbackToken,
		filter.RevertsEventID != 0 && (e.RevertsEventID == nil || *e.RevertsEventID != filter.RevertsEventID):
		return false
	}
	return true
}

// --- Configs ---

func (s *Store) SetConfig(_ context.Context, c *model.Config) error {
	v := *c
	return s.write(func(d *state) error {
		now := time.Now().UTC()
		v.CreatedAt = now
		if cur, ok := d.configs[v.Key]; ok {
			v.CreatedAt = cur.CreatedAt
		}
		v.UpdatedAt = now
		d.configs[v.Key] = v
		c.CreatedAt, c.UpdatedAt = v.CreatedAt, v.UpdatedAt
		return nil
	})
}

func (s *Store) GetConfig(_ context.Context, key string) (*model.Config, error) {
	var (
		c  model.Config
		ok bool
	)
	s.read(func(d *state) { c, ok = d.configs[key] })
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *Store) ListConfigs(_ context.Context, namespace string) ([]*model.Config, error) {
	var out []*model.Config
	s.read(func(d *state) {
		for k, c := range d.configs {
			if !strings.HasPrefix(k, namespace+":") {
				continue
			}
			c := c
			out = append(out, &c)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) DeleteConfig(_ context.Context, key string) error {
	return s.write(func(d *state) error {
		if _, ok := d.configs[key]; !ok {
			return sql.ErrNoRows
		}
		delete(d.configs, key)
		return nil
	})
}

// --- Ledger ---

// AddPayout appends a record to the payout ledger.
func (s *Store) AddPayout(p model.PayoutRecord) {
	_ = s.write(func(d *state) error {
		d.payouts = append(d.payouts, p)
		return nil
	})
}

func (s *Store) ListPayouts(_ context.Context, start, end time.Time) ([]*model.PayoutRecord, error) {
	var out []*model.PayoutRecord
	s.read(func(d *state) {
		for _, p := range d.payouts {
			if p.Timestamp.Before(start) || !p.Timestamp.Before(end) {
				continue
			}
			p := p
			out = append(out, &p)
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- Transactions ---

// RunInTransaction runs fn against a working copy of the store. When fn
// succeeds its writes are replayed onto the shared state in one step; if
// any write no longer applies the transaction fails and nothing changes.
// Calls on the working copy join the running transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.pending != nil {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	work := s.data.clone()
	s.mu.Unlock()

	var ops []op
	tx := &Store{data: &work, pending: &ops}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.clone()
	for _, o := range ops {
		if err := o(&next); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	s.data = &next
	return nil
}

func (s *Store) Close() error {
	return nil
}
