package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/budgets/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanAll drains rows through scan.
func scanAll[T any](rows *sql.Rows, scan func(scannable) (*T, error)) ([]*T, error) {
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanCycle scans a single row into a model.BudgetCycle.
// The row must contain columns in the order defined by cycleColumns.
func scanCycle(row scannable) (*model.BudgetCycle, error) {
	var c model.BudgetCycle
	var (
		approvedAt sql.NullTime
		approvedBy sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.StartDate,
		&c.EndDate,
		&c.Status,
		&c.GlobalWeeklyLimitCents,
		&c.GlobalMonthlyLimitCents,
		&c.EmergencyReserveCents,
		&c.MaxPayoutPerClipCents,
		&c.MaxPayoutPerClipperWeekCents,
		&approvedAt,
		&approvedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		c.ApprovedAt = &t
	}
	c.ApprovedBy = approvedBy.String
	return &c, nil
}

func scanCycles(rows *sql.Rows) ([]*model.BudgetCycle, error) {
	return scanAll(rows, scanCycle)
}

// scanSegment scans a single row into a model.BudgetSegment.
// The row must contain columns in the order defined by segmentColumns.
func scanSegment(row scannable) (*model.BudgetSegment, error) {
	var s model.BudgetSegment
	var (
		rules     []byte
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.WeeklyLimitCents,
		&s.MonthlyLimitCents,
		&s.Priority,
		&rules,
		&s.CreatedAt,
		&s.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &s.Rules); err != nil {
			return nil, fmt.Errorf("decode rules of segment %s: %w", s.ID, err)
		}
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		s.DeletedAt = &t
	}
	return &s, nil
}

func scanSegments(rows *sql.Rows) ([]*model.BudgetSegment, error) {
	return scanAll(rows, scanSegment)
}

// scanSegmentCycle scans a single row into a model.SegmentCycle.
func scanSegmentCycle(row scannable) (*model.SegmentCycle, error) {
	var sc model.SegmentCycle
	err := row.Scan(
		&sc.ID,
		&sc.SegmentID,
		&sc.CycleID,
		&sc.Status,
		&sc.SpentCents,
		&sc.ProjectedCents,
		&sc.RemainingCents,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func scanSegmentCycles(rows *sql.Rows) ([]*model.SegmentCycle, error) {
	return scanAll(rows, scanSegmentCycle)
}

// scanEvent scans a single row into a model.BudgetEvent.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.BudgetEvent, error) {
	var e model.BudgetEvent
	var (
		notes    sql.NullString
		cycleID  sql.NullString
		before   []byte
		after    []byte
		impacted pq.StringArray
		rollback sql.NullString
		reverts  sql.NullInt64
	)
	err := row.Scan(
		&e.ID,
		&e.CreatedAt,
		&e.Action,
		&e.Actor,
		&notes,
		&e.EntityType,
		&e.EntityID,
		&cycleID,
		&e.EstimatedImpactCents,
		&before,
		&after,
		&impacted,
		&rollback,
		&reverts,
	)
	if err != nil {
		return nil, err
	}
	if reverts.Valid {
		e.RevertsEventID = &reverts.Int64
	}
	e.Notes = notes.String
	e.CycleID = cycleID.String
	e.RollbackToken = rollback.String
	if len(before) > 0 {
		e.BeforeState = json.RawMessage(before)
	}
	if len(after) > 0 {
		e.AfterState = json.RawMessage(after)
	}
	if len(impacted) > 0 {
		e.ImpactedSegments = []string(impacted)
	}
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.BudgetEvent, error) {
	return scanAll(rows, scanEvent)
}

// scanConfig scans a single row into a model.Config.
func scanConfig(row scannable) (*model.Config, error) {
	var c model.Config
	var value []byte
	err := row.Scan(&c.Key, &value, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Value = json.RawMessage(value)
	return &c, nil
}

func scanConfigs(rows *sql.Rows) ([]*model.Config, error) {
	return scanAll(rows, scanConfig)
}

// scanPayout scans a single ledger row into a model.PayoutRecord.
func scanPayout(row scannable) (*model.PayoutRecord, error) {
	var p model.PayoutRecord
	var segmentID, payeeID, tier, platform sql.NullString
	err := row.Scan(
		&p.ID,
		&segmentID,
		&payeeID,
		&tier,
		&platform,
		&p.Views,
		&p.AmountCents,
		&p.Settled,
		&p.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	p.SegmentID = segmentID.String
	p.PayeeID = payeeID.String
	p.PayeeTier = tier.String
	p.Platform = platform.String
	return &p, nil
}

func scanPayouts(rows *sql.Rows) ([]*model.PayoutRecord, error) {
	return scanAll(rows, scanPayout)
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
