package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/budgets/internal/model"
)

// Store defines the persistence interface for budget records.
//
// Lookups of missing rows and conditional updates that match no row return
// sql.ErrNoRows; callers translate that into domain errors.
type Store interface {
	// Cycles
	CreateCycle(ctx context.Context, cycle *model.BudgetCycle) error
	GetCycle(ctx context.Context, id string) (*model.BudgetCycle, error)
	GetCurrentCycle(ctx context.Context) (*model.BudgetCycle, error) // most recent by start_date
	ListCycles(ctx context.Context, limit int) ([]*model.BudgetCycle, error)
	UpdateCycleLimits(ctx context.Context, cycle *model.BudgetCycle) error
	// UpdateCycleStatus sets the cycle status only if it still equals expected.
	UpdateCycleStatus(ctx context.Context, cycle *model.BudgetCycle, expected model.CycleStatus) error

	// Segments
	CreateSegment(ctx context.Context, seg *model.BudgetSegment) error
	GetSegment(ctx context.Context, id string) (*model.BudgetSegment, error)
	ListSegments(ctx context.Context, includeDeleted bool) ([]*model.BudgetSegment, error)
	UpdateSegment(ctx context.Context, seg *model.BudgetSegment) error
	SoftDeleteSegment(ctx context.Context, id string, at time.Time) error

	// Segment cycles
	CreateSegmentCycle(ctx context.Context, sc *model.SegmentCycle) error
	GetSegmentCycle(ctx context.Context, id string) (*model.SegmentCycle, error)
	ListSegmentCycles(ctx context.Context, cycleID string) ([]*model.SegmentCycle, error)
	// UpdateSegmentCycleStatus sets the status only if it still equals expected.
	UpdateSegmentCycleStatus(ctx context.Context, sc *model.SegmentCycle, expected model.SegmentStatus) error
	UpdateSegmentCycleSpend(ctx context.Context, sc *model.SegmentCycle) error

	// Events
	RecordEvent(ctx context.Context, event *model.BudgetEvent) error
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.BudgetEvent, error)

	// Configs
	SetConfig(ctx context.Context, config *model.Config) error
	GetConfig(ctx context.Context, key string) (*model.Config, error)
	ListConfigs(ctx context.Context, namespace string) ([]*model.Config, error)
	DeleteConfig(ctx context.Context, key string) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

// Ledger is the read-only payout feed the spend aggregator consumes.
type Ledger interface {
	// ListPayouts returns payout records with timestamps in [start, end).
	ListPayouts(ctx context.Context, start, end time.Time) ([]*model.PayoutRecord, error)
}
