// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store and store.Ledger backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time checks that PostgresStore implements store.Store and store.Ledger.
var (
	_ store.Store  = (*PostgresStore)(nil)
	_ store.Ledger = (*PostgresStore)(nil)
)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateCycle(ctx context.Context, cycle *model.BudgetCycle) error {
	return queryCreateCycle(ctx, s.db, cycle)
}

func (s *PostgresStore) GetCycle(ctx context.Context, id string) (*model.BudgetCycle, error) {
	return queryGetCycle(ctx, s.db, id)
}

func (s *PostgresStore) GetCurrentCycle(ctx context.Context) (*model.BudgetCycle, error) {
	return queryGetCurrentCycle(ctx, s.db)
}

func (s *PostgresStore) ListCycles(ctx context.Context, limit int) ([]*model.BudgetCycle, error) {
	return queryListCycles(ctx, s.db, limit)
}

func (s *PostgresStore) UpdateCycleLimits(ctx context.Context, cycle *model.BudgetCycle) error {
	return queryUpdateCycleLimits(ctx, s.db, cycle)
}

func (s *PostgresStore) UpdateCycleStatus(ctx context.Context, cycle *model.BudgetCycle, expected model.CycleStatus) error {
	return queryUpdateCycleStatus(ctx, s.db, cycle, expected)
}

func (s *PostgresStore) CreateSegment(ctx context.Context, seg *model.BudgetSegment) error {
	return queryCreateSegment(ctx, s.db, seg)
}

func (s *PostgresStore) GetSegment(ctx context.Context, id string) (*model.BudgetSegment, error) {
	return queryGetSegment(ctx, s.db, id)
}

func (s *PostgresStore) ListSegments(ctx context.Context, includeDeleted bool) ([]*model.BudgetSegment, error) {
	return queryListSegments(ctx, s.db, includeDeleted)
}

func (s *PostgresStore) UpdateSegment(ctx context.Context, seg *model.BudgetSegment) error {
	return queryUpdateSegment(ctx, s.db, seg)
}

func (s *PostgresStore) SoftDeleteSegment(ctx context.Context, id string, at time.Time) error {
	return querySoftDeleteSegment(ctx, s.db, id, at)
}

func (s *PostgresStore) CreateSegmentCycle(ctx context.Context, sc *model.SegmentCycle) error {
	return queryCreateSegmentCycle(ctx, s.db, sc)
}

func (s *PostgresStore) GetSegmentCycle(ctx context.Context, id string) (*model.SegmentCycle, error) {
	return queryGetSegmentCycle(ctx, s.db, id)
}

func (s *PostgresStore) ListSegmentCycles(ctx context.Context, cycleID string) ([]*model.SegmentCycle, error) {
	return queryListSegmentCycles(ctx, s.db, cycleID)
}

func (s *PostgresStore) UpdateSegmentCycleStatus(ctx context.Context, sc *model.SegmentCycle, expected model.SegmentStatus) error {
	return queryUpdateSegmentCycleStatus(ctx, s.db, sc, expected)
}

func (s *PostgresStore) UpdateSegmentCycleSpend(ctx context.Context, sc *model.SegmentCycle) error {
	return queryUpdateSegmentCycleSpend(ctx, s.db, sc)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *model.BudgetEvent) error {
	return queryRecordEvent(ctx, s.db, event)
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.BudgetEvent, error) {
	return queryListEvents(ctx, s.db, filter)
}

func (s *PostgresStore) SetConfig(ctx context.Context, config *model.Config) error {
	return querySetConfig(ctx, s.db, config)
}

func (s *PostgresStore) GetConfig(ctx context.Context, key string) (*model.Config, error) {
	return queryGetConfig(ctx, s.db, key)
}

func (s *PostgresStore) ListConfigs(ctx context.Context, namespace string) ([]*model.Config, error) {
	return queryListConfigs(ctx, s.db, namespace)
}

func (s *PostgresStore) DeleteConfig(ctx context.Context, key string) error {
	return queryDeleteConfig(ctx, s.db, key)
}

// ListPayouts reads the payout ledger for [start, end).
func (s *PostgresStore) ListPayouts(ctx context.Context, start, end time.Time) ([]*model.PayoutRecord, error) {
	return queryListPayouts(ctx, s.db, start, end)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateCycle(ctx context.Context, cycle *model.BudgetCycle) error {
	return queryCreateCycle(ctx, s.tx, cycle)
}

func (s *txStore) GetCycle(ctx context.Context, id string) (*model.BudgetCycle, error) {
	return queryGetCycle(ctx, s.tx, id)
}

func (s *txStore) GetCurrentCycle(ctx context.Context) (*model.BudgetCycle, error) {
	return queryGetCurrentCycle(ctx, s.tx)
}

func (s *txStore) ListCycles(ctx context.Context, limit int) ([]*model.BudgetCycle, error) {
	return queryListCycles(ctx, s.tx, limit)
}

func (s *txStore) UpdateCycleLimits(ctx context.Context, cycle *model.BudgetCycle) error {
	return queryUpdateCycleLimits(ctx, s.tx, cycle)
}

func (s *txStore) UpdateCycleStatus(ctx context.Context, cycle *model.BudgetCycle, expected model.CycleStatus) error {
	return queryUpdateCycleStatus(ctx, s.tx, cycle, expected)
}

func (s *txStore) CreateSegment(ctx context.Context, seg *model.BudgetSegment) error {
	return queryCreateSegment(ctx, s.tx, seg)
}

func (s *txStore) GetSegment(ctx context.Context, id string) (*model.BudgetSegment, error) {
	return queryGetSegment(ctx, s.tx, id)
}

func (s *txStore) ListSegments(ctx context.Context, includeDeleted bool) ([]*model.BudgetSegment, error) {
	return queryListSegments(ctx, s.tx, includeDeleted)
}

func (s *txStore) UpdateSegment(ctx context.Context, seg *model.BudgetSegment) error {
	return queryUpdateSegment(ctx, s.tx, seg)
}

func (s *txStore) SoftDeleteSegment(ctx context.Context, id string, at time.Time) error {
	return querySoftDeleteSegment(ctx, s.tx, id, at)
}

func (s *txStore) CreateSegmentCycle(ctx context.Context, sc *model.SegmentCycle) error {
	return queryCreateSegmentCycle(ctx, s.tx, sc)
}

func (s *txStore) GetSegmentCycle(ctx context.Context, id string) (*model.SegmentCycle, error) {
	return queryGetSegmentCycle(ctx, s.tx, id)
}

func (s *txStore) ListSegmentCycles(ctx context.Context, cycleID string) ([]*model.SegmentCycle, error) {
	return queryListSegmentCycles(ctx, s.tx, cycleID)
}

func (s *txStore) UpdateSegmentCycleStatus(ctx context.Context, sc *model.SegmentCycle, expected model.SegmentStatus) error {
	return queryUpdateSegmentCycleStatus(ctx, s.tx, sc, expected)
}

func (s *txStore) UpdateSegmentCycleSpend(ctx context.Context, sc *model.SegmentCycle) error {
	return queryUpdateSegmentCycleSpend(ctx, s.tx, sc)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.BudgetEvent) error {
	return queryRecordEvent(ctx, s.tx, event)
}

func (s *txStore) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.BudgetEvent, error) {
	return queryListEvents(ctx, s.tx, filter)
}

func (s *txStore) SetConfig(ctx context.Context, config *model.Config) error {
	return querySetConfig(ctx, s.tx, config)
}

func (s *txStore) GetConfig(ctx context.Context, key string) (*model.Config, error) {
	return queryGetConfig(ctx, s.tx, key)
}

func (s *txStore) ListConfigs(ctx context.Context, namespace string) ([]*model.Config, error) {
	return queryListConfigs(ctx, s.tx, namespace)
}

func (s *txStore) DeleteConfig(ctx context.Context, key string) error {
	return queryDeleteConfig(ctx, s.tx, key)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
