package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/budgets/internal/model"
)

// cycleColumns is the column list used for SELECT statements on budget_cycles.
const cycleColumns = `id, start_date, end_date, status,
	global_weekly_limit_cents, global_monthly_limit_cents, emergency_reserve_cents,
	max_payout_per_clip_cents, max_payout_per_clipper_week_cents,
	approved_at, approved_by, created_at, updated_at`

// segmentColumns is the column list used for SELECT statements on budget_segments.
const segmentColumns = `id, name, weekly_limit_cents, monthly_limit_cents, priority,
	rules, created_at, updated_at, deleted_at`

// segmentCycleColumns is the column list used for SELECT statements on segment_cycles.
const segmentCycleColumns = `id, segment_id, cycle_id, status,
	spent_cents, projected_cents, remaining_cents, created_at, updated_at`

// eventColumns is the column list used for SELECT statements on budget_events.
const eventColumns = `id, created_at, action, actor, notes, entity_type, entity_id, cycle_id,
	estimated_impact_cents, before_state, after_state, impacted_segments, rollback_token, reverts_event_id`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// expectOneRow turns a zero-row result into sql.ErrNoRows.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryCreateCycle(ctx context.Context, db executor, c *model.BudgetCycle) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO budget_cycles (
			id, start_date, end_date, status,
			global_weekly_limit_cents, global_monthly_limit_cents, emergency_reserve_cents,
			max_payout_per_clip_cents, max_payout_per_clipper_week_cents,
			approved_at, approved_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9,
			$10, $11, $12, $13
		)`,
		c.ID,
		c.StartDate,
		c.EndDate,
		string(c.Status),
		c.GlobalWeeklyLimitCents,
		c.GlobalMonthlyLimitCents,
		c.EmergencyReserveCents,
		c.MaxPayoutPerClipCents,
		c.MaxPayoutPerClipperWeekCents,
		nullTimePtr(c.ApprovedAt),
		nullString(c.ApprovedBy),
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func queryGetCycle(ctx context.Context, db executor, id string) (*model.BudgetCycle, error) {
	row := db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM budget_cycles WHERE id = $1`, id)
	return scanCycle(row)
}

func queryGetCurrentCycle(ctx context.Context, db executor) (*model.BudgetCycle, error) {
	row := db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM budget_cycles ORDER BY start_date DESC, id DESC LIMIT 1`)
	return scanCycle(row)
}

func queryListCycles(ctx context.Context, db executor, limit int) ([]*model.BudgetCycle, error) {
	q := `SELECT ` + cycleColumns + ` FROM budget_cycles ORDER BY start_date DESC, id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()
	return scanCycles(rows)
}

func queryUpdateCycleLimits(ctx context.Context, db executor, c *model.BudgetCycle) error {
	res, err := db.ExecContext(ctx, `
		UPDATE budget_cycles SET
			global_weekly_limit_cents = $2,
			global_monthly_limit_cents = $3,
			emergency_reserve_cents = $4,
			max_payout_per_clip_cents = $5,
			max_payout_per_clipper_week_cents = $6,
			updated_at = $7
		WHERE id = $1`,
		c.ID,
		c.GlobalWeeklyLimitCents,
		c.GlobalMonthlyLimitCents,
		c.EmergencyReserveCents,
		c.MaxPayoutPerClipCents,
		c.MaxPayoutPerClipperWeekCents,
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// queryUpdateCycleStatus is a conditional update: it only applies when the
// stored status still equals expected.
func queryUpdateCycleStatus(ctx context.Context, db executor, c *model.BudgetCycle, expected model.CycleStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE budget_cycles SET
			status = $3,
			approved_at = $4,
			approved_by = $5,
			updated_at = $6
		WHERE id = $1 AND status = $2`,
		c.ID,
		string(expected),
		string(c.Status),
		nullTimePtr(c.ApprovedAt),
		nullString(c.ApprovedBy),
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func queryCreateSegment(ctx context.Context, db executor, s *model.BudgetSegment) error {
	rules, err := rulesJSON(s.Rules)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO budget_segments (
			id, name, weekly_limit_cents, monthly_limit_cents, priority,
			rules, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID,
		s.Name,
		s.WeeklyLimitCents,
		s.MonthlyLimitCents,
		s.Priority,
		rules,
		s.CreatedAt,
		s.UpdatedAt,
		nullTimePtr(s.DeletedAt),
	)
	return err
}

func queryGetSegment(ctx context.Context, db executor, id string) (*model.BudgetSegment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM budget_segments WHERE id = $1`, id)
	return scanSegment(row)
}

func queryListSegments(ctx context.Context, db executor, includeDeleted bool) ([]*model.BudgetSegment, error) {
	q := `SELECT ` + segmentColumns + ` FROM budget_segments`
	if !includeDeleted {
		q += ` WHERE deleted_at IS NULL`
	}
	q += ` ORDER BY priority ASC, id ASC`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()
	return scanSegments(rows)
}

func queryUpdateSegment(ctx context.Context, db executor, s *model.BudgetSegment) error {
	rules, err := rulesJSON(s.Rules)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE budget_segments SET
			name = $2,
			weekly_limit_cents = $3,
			monthly_limit_cents = $4,
			priority = $5,
			rules = $6,
			updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL`,
		s.ID,
		s.Name,
		s.WeeklyLimitCents,
		s.MonthlyLimitCents,
		s.Priority,
		rules,
		s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func querySoftDeleteSegment(ctx context.Context, db executor, id string, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE budget_segments SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func queryCreateSegmentCycle(ctx context.Context, db executor, sc *model.SegmentCycle) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO segment_cycles (
			id, segment_id, cycle_id, status,
			spent_cents, projected_cents, remaining_cents, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sc.ID,
		sc.SegmentID,
		sc.CycleID,
		string(sc.Status),
		sc.SpentCents,
		sc.ProjectedCents,
		sc.RemainingCents,
		sc.CreatedAt,
		sc.UpdatedAt,
	)
	return err
}

func queryGetSegmentCycle(ctx context.Context, db executor, id string) (*model.SegmentCycle, error) {
	row := db.QueryRowContext(ctx, `SELECT `+segmentCycleColumns+` FROM segment_cycles WHERE id = $1`, id)
	return scanSegmentCycle(row)
}

func queryListSegmentCycles(ctx context.Context, db executor, cycleID string) ([]*model.SegmentCycle, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+segmentCycleColumns+`
		FROM segment_cycles
		WHERE cycle_id = $1
		ORDER BY created_at ASC, id ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list segment cycles: %w", err)
	}
	defer rows.Close()
	return scanSegmentCycles(rows)
}

// queryUpdateSegmentCycleStatus is a conditional update: it only applies
// when the stored status still equals expected.
func queryUpdateSegmentCycleStatus(ctx context.Context, db executor, sc *model.SegmentCycle, expected model.SegmentStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE segment_cycles SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		sc.ID, string(expected), string(sc.Status), sc.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func queryUpdateSegmentCycleSpend(ctx context.Context, db executor, sc *model.SegmentCycle) error {
	res, err := db.ExecContext(ctx, `
		UPDATE segment_cycles SET
			spent_cents = $2,
			projected_cents = $3,
			remaining_cents = $4,
			updated_at = $5
		WHERE id = $1`,
		sc.ID, sc.SpentCents, sc.ProjectedCents, sc.RemainingCents, sc.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func queryRecordEvent(ctx context.Context, db executor, e *model.BudgetEvent) error {
	impacted := e.ImpactedSegments
	if impacted == nil {
		impacted = []string{}
	}
	var reverts sql.NullInt64
	if e.RevertsEventID != nil {
		reverts = sql.NullInt64{Int64: *e.RevertsEventID, Valid: true}
	}
	err := db.QueryRowContext(ctx, `
		INSERT INTO budget_events (
			action, actor, notes, entity_type, entity_id, cycle_id,
			estimated_impact_cents, before_state, after_state, impacted_segments, rollback_token,
			reverts_event_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		e.Action,
		e.Actor,
		nullString(e.Notes),
		string(e.EntityType),
		e.EntityID,
		nullString(e.CycleID),
		e.EstimatedImpactCents,
		jsonbBytes(e.BeforeState),
		jsonbBytes(e.AfterState),
		pq.Array(impacted),
		nullString(e.RollbackToken),
		reverts,
	).Scan(&e.ID, &e.CreatedAt)
	if isUniqueViolation(err, "idx_budget_events_reverts") {
		return &model.RollbackUsedError{EventID: reverts.Int64}
	}
	return err
}

// isUniqueViolation reports whether err is a unique_violation on the named
// constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

func queryListEvents(ctx context.Context, db executor, filter model.EventFilter) ([]*model.BudgetEvent, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.CycleID != "" {
		whereClauses = append(whereClauses, "cycle_id = "+nextArg())
		args = append(args, filter.CycleID)
	}
	if filter.EntityID != "" {
		whereClauses = append(whereClauses, "entity_id = "+nextArg())
		args = append(args, filter.EntityID)
	}
	if len(filter.Actions) > 0 {
		whereClauses = append(whereClauses, "action = ANY("+nextArg()+")")
		args = append(args, pq.Array(filter.Actions))
	}
	if filter.Since != nil {
		whereClauses = append(whereClauses, "created_at >= "+nextArg())
		args = append(args, *filter.Since)
	}
	if filter.RollbackToken != "" {
		whereClauses = append(whereClauses, "rollback_token = "+nextArg())
		args = append(args, filter.RollbackToken)
	}
	if filter.RevertsEventID != 0 {
		whereClauses = append(whereClauses, "reverts_event_id = "+nextArg())
		args = append(args, filter.RevertsEventID)
	}

	q := "SELECT " + eventColumns + " FROM budget_events"
	if len(whereClauses) > 0 {
		q += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	q += " ORDER BY id DESC"
	if filter.Limit > 0 {
		q += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func querySetConfig(ctx context.Context, db executor, c *model.Config) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO configs (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
		RETURNING created_at, updated_at`,
		c.Key, []byte(c.Value),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func queryGetConfig(ctx context.Context, db executor, key string) (*model.Config, error) {
	row := db.QueryRowContext(ctx, `
		SELECT key, value, created_at, updated_at
		FROM configs WHERE key = $1`, key)
	return scanConfig(row)
}

func queryListConfigs(ctx context.Context, db executor, namespace string) ([]*model.Config, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT key, value, created_at, updated_at
		FROM configs WHERE key LIKE $1 || ':%'
		ORDER BY key`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows)
}

func queryDeleteConfig(ctx context.Context, db executor, key string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM configs WHERE key = $1`, key)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func queryListPayouts(ctx context.Context, db executor, start, end time.Time) ([]*model.PayoutRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, segment_id, payee_id, payee_tier, platform, views, amount_cents, settled, paid_at
		FROM payouts
		WHERE paid_at >= $1 AND paid_at < $2
		ORDER BY paid_at ASC, id ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()
	return scanPayouts(rows)
}

// rulesJSON encodes segment rules for the JSONB rules column.
func rulesJSON(rules []model.SegmentRule) ([]byte, error) {
	if rules == nil {
		rules = []model.SegmentRule{}
	}
	b, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return b, nil
}
