package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

// JobRow is the persisted representation of a Job.
type JobRow struct {
	JobID             string
	JobType           string
	Status            string
	InputsJSON        string
	ProgressTotal     int
	ProgressDone      int
	ProgressFailed    int
	ProgressSkipped   int
	CancelRequested   bool
	ResultSummaryJSON sql.NullString
	CreatedAt         time.Time
	StartedAt         sql.NullTime
	FinishedAt        sql.NullTime
	Version           int
}

// ErrNotFound is returned when a lookup by primary key finds nothing.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by compare-and-set updates when the row's version
// changed between read and write.
var ErrConflict = errors.New("conflict")

// InsertJob persists a newly created job in status "queued".
func (s *Store) InsertJob(ctx context.Context, j JobRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO jobs (job_id, job_type, status, inputs_json, progress_total, version)
		VALUES (?, ?, ?, ?, ?, 1)`,
		j.JobID, j.JobType, j.Status, j.InputsJSON, j.ProgressTotal)
	if err != nil {
		return apperr.New("store.InsertJob", apperr.StorageIO, err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (JobRow, error) {
	var j JobRow
	row := s.conn.QueryRowContext(ctx, `
		SELECT job_id, job_type, status, inputs_json, progress_total, progress_done,
		       progress_failed, progress_skipped, cancel_requested, result_summary_json,
		       created_at, started_at, finished_at, version
		FROM jobs WHERE job_id = ?`, jobID)
	err := row.Scan(&j.JobID, &j.JobType, &j.Status, &j.InputsJSON, &j.ProgressTotal,
		&j.ProgressDone, &j.ProgressFailed, &j.ProgressSkipped, &j.CancelRequested,
		&j.ResultSummaryJSON, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRow{}, ErrNotFound
	}
	if err != nil {
		return JobRow{}, apperr.New("store.GetJob", apperr.StorageIO, err)
	}
	return j, nil
}

// ListJobs returns jobs ordered newest-first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status string, limit int) ([]JobRow, error) {
	query := `SELECT job_id, job_type, status, inputs_json, progress_total, progress_done,
		       progress_failed, progress_skipped, cancel_requested, result_summary_json,
		       created_at, started_at, finished_at, version
		FROM jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.New("store.ListJobs", apperr.StorageIO, err)
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		var j JobRow
		if err := rows.Scan(&j.JobID, &j.JobType, &j.Status, &j.InputsJSON, &j.ProgressTotal,
			&j.ProgressDone, &j.ProgressFailed, &j.ProgressSkipped, &j.CancelRequested,
			&j.ResultSummaryJSON, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.Version); err != nil {
			return nil, apperr.New("store.ListJobs", apperr.StorageIO, err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkJobStarted transitions a job to running and records started_at.
func (s *Store) MarkJobStarted(ctx context.Context, jobID string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', started_at = CURRENT_TIMESTAMP, version = version + 1
		WHERE job_id = ? AND status = 'queued'`, jobID)
	if err != nil {
		return apperr.New("store.MarkJobStarted", apperr.StorageIO, err)
	}
	return nil
}

// RequestCancel sets cancel_requested; idempotent.
func (s *Store) RequestCancel(ctx context.Context, jobID string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE jobs SET cancel_requested = TRUE, version = version + 1 WHERE job_id = ?`, jobID)
	if err != nil {
		return apperr.New("store.RequestCancel", apperr.StorageIO, err)
	}
	return nil
}

// CASUpdateProgress applies a progress delta only if the row's version still
// matches expectVersion, returning ErrConflict otherwise so the caller can
// re-read and retry. This is the compare-and-set discipline the job engine
// uses to avoid lost updates when many workers finish items concurrently.
func (s *Store) CASUpdateProgress(ctx context.Context, jobID string, expectVersion, doneDelta, failedDelta, skippedDelta int) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE jobs SET
			progress_done = progress_done + ?,
			progress_failed = progress_failed + ?,
			progress_skipped = progress_skipped + ?,
			version = version + 1
		WHERE job_id = ? AND version = ?`,
		doneDelta, failedDelta, skippedDelta, jobID, expectVersion)
	if err != nil {
		return apperr.New("store.CASUpdateProgress", apperr.StorageIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.New("store.CASUpdateProgress", apperr.StorageIO, err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// FinishJob sets the terminal status and result summary. status must be one
// of succeeded|partial|failed|cancelled.
func (s *Store) FinishJob(ctx context.Context, jobID, status, resultSummaryJSON string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result_summary_json = ?, finished_at = CURRENT_TIMESTAMP, version = version + 1
		WHERE job_id = ?`, status, resultSummaryJSON, jobID)
	if err != nil {
		return apperr.New("store.FinishJob", apperr.StorageIO, err)
	}
	return nil
}

// JobItemRow is the persisted per-(job,item) terminal result.
type JobItemRow struct {
	JobID             string
	ItemID            string
	Status            string
	ErrorKind         sql.NullString
	BadgesAppliedJSON string
	Attempts          int
	DurationMS        int64
}

// UpsertJobItem records (or overwrites, on retry) the result for one item of
// a job.
func (s *Store) UpsertJobItem(ctx context.Context, r JobItemRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO job_items (job_id, item_id, status, error_kind, badges_applied_json, attempts, duration_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (job_id, item_id) DO UPDATE SET
			status = EXCLUDED.status,
			error_kind = EXCLUDED.error_kind,
			badges_applied_json = EXCLUDED.badges_applied_json,
			attempts = EXCLUDED.attempts,
			duration_ms = EXCLUDED.duration_ms,
			updated_at = CURRENT_TIMESTAMP`,
		r.JobID, r.ItemID, r.Status, r.ErrorKind, r.BadgesAppliedJSON, r.Attempts, r.DurationMS)
	if err != nil {
		return apperr.New("store.UpsertJobItem", apperr.StorageIO, err)
	}
	return nil
}

// ListJobItems returns every recorded item result for a job.
func (s *Store) ListJobItems(ctx context.Context, jobID string) ([]JobItemRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT job_id, item_id, status, error_kind, badges_applied_json, attempts, duration_ms
		FROM job_items WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, apperr.New("store.ListJobItems", apperr.StorageIO, err)
	}
	defer rows.Close()

	var out []JobItemRow
	for rows.Next() {
		var r JobItemRow
		if err := rows.Scan(&r.JobID, &r.ItemID, &r.Status, &r.ErrorKind, &r.BadgesAppliedJSON, &r.Attempts, &r.DurationMS); err != nil {
			return nil, apperr.New("store.ListJobItems", apperr.StorageIO, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordHistory appends an immutable audit row.
func (s *Store) RecordHistory(ctx context.Context, jobID, itemID, event, detail string) error {
	var itemArg any
	if itemID != "" {
		itemArg = itemID
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO job_history (id, job_id, item_id, event, detail)
		VALUES (nextval('job_history_id_seq'), ?, ?, ?, ?)`,
		jobID, itemArg, event, detail)
	if err != nil {
		return apperr.New("store.RecordHistory", apperr.StorageIO, err)
	}
	return nil
}
