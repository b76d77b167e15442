package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

// ScheduleRow is the persisted representation of a Schedule.
type ScheduleRow struct {
	ScheduleID     string
	CronExpr       string
	Timezone       string
	BadgeTypesMask string
	Enabled        bool
	NextRunAt      sql.NullTime
	LastRunJobID   sql.NullString
}

// InsertSchedule creates a new schedule row.
func (s *Store) InsertSchedule(ctx context.Context, r ScheduleRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO schedules (schedule_id, cron_expr, timezone, badge_types_mask, enabled, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ScheduleID, r.CronExpr, r.Timezone, r.BadgeTypesMask, r.Enabled, r.NextRunAt)
	if err != nil {
		return apperr.New("store.InsertSchedule", apperr.StorageIO, err)
	}
	return nil
}

// ListEnabledSchedules returns every schedule eligible to fire.
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]ScheduleRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT schedule_id, cron_expr, timezone, badge_types_mask, enabled, next_run_at, last_run_job_id
		FROM schedules WHERE enabled = TRUE`)
	if err != nil {
		return nil, apperr.New("store.ListEnabledSchedules", apperr.StorageIO, err)
	}
	defer rows.Close()

	var out []ScheduleRow
	for rows.Next() {
		var r ScheduleRow
		if err := rows.Scan(&r.ScheduleID, &r.CronExpr, &r.Timezone, &r.BadgeTypesMask, &r.Enabled, &r.NextRunAt, &r.LastRunJobID); err != nil {
			return nil, apperr.New("store.ListEnabledSchedules", apperr.StorageIO, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TargetsForSchedule returns the item IDs a schedule should be applied to.
// Empty means "all items known to the catalog", resolved by the caller.
func (s *Store) TargetsForSchedule(ctx context.Context, scheduleID string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT item_id FROM schedule_targets WHERE schedule_id = ?`, scheduleID)
	if err != nil {
		return nil, apperr.New("store.TargetsForSchedule", apperr.StorageIO, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.New("store.TargetsForSchedule", apperr.StorageIO, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkScheduleRun updates next_run_at and last_run_job_id after a trigger.
func (s *Store) MarkScheduleRun(ctx context.Context, scheduleID string, nextRun time.Time, jobID string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE schedules SET next_run_at = ?, last_run_job_id = ? WHERE schedule_id = ?`,
		nextRun, jobID, scheduleID)
	if err != nil {
		return apperr.New("store.MarkScheduleRun", apperr.StorageIO, err)
	}
	return nil
}

// TagStateRow is the persisted "processed" marker for a catalog item.
type TagStateRow struct {
	ItemID          string
	Processed       bool
	BadgeTypesJSON  string
}

// GetTagState fetches the tag state for an item, returning the zero value
// (not processed) if none is recorded.
func (s *Store) GetTagState(ctx context.Context, itemID string) (TagStateRow, error) {
	var r TagStateRow
	row := s.conn.QueryRowContext(ctx, `SELECT item_id, processed, badge_types_json FROM tag_state WHERE item_id = ?`, itemID)
	err := row.Scan(&r.ItemID, &r.Processed, &r.BadgeTypesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return TagStateRow{ItemID: itemID, BadgeTypesJSON: "[]"}, nil
	}
	if err != nil {
		return TagStateRow{}, apperr.New("store.GetTagState", apperr.StorageIO, err)
	}
	return r, nil
}

// SetTagState upserts the tag state for an item.
func (s *Store) SetTagState(ctx context.Context, r TagStateRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO tag_state (item_id, processed, badge_types_json) VALUES (?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET processed = EXCLUDED.processed, badge_types_json = EXCLUDED.badge_types_json`,
		r.ItemID, r.Processed, r.BadgeTypesJSON)
	if err != nil {
		return apperr.New("store.SetTagState", apperr.StorageIO, err)
	}
	return nil
}

// ClearTagState removes the processed marker for an item.
func (s *Store) ClearTagState(ctx context.Context, itemID string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM tag_state WHERE item_id = ?`, itemID)
	if err != nil {
		return apperr.New("store.ClearTagState", apperr.StorageIO, err)
	}
	return nil
}
