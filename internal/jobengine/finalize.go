package jobengine

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/metrics"
	"github.com/aphrodite-badges/aphrodite/internal/store"
)

func storeJobItemRow(unit workUnit, status string, errKind apperr.Kind, badgesAppliedJSON string, duration time.Duration) store.JobItemRow {
	row := store.JobItemRow{
		JobID:             unit.jobID,
		ItemID:            unit.itemID,
		Status:            status,
		BadgesAppliedJSON: badgesAppliedJSON,
		Attempts:          1,
		DurationMS:        duration.Milliseconds(),
	}
	if errKind != "" {
		row.ErrorKind = sql.NullString{String: string(errKind), Valid: true}
	}
	return row
}

// maybeFinishJob checks whether every item of a batch/single/revert job has
// reached a terminal per-item state and, if so, transitions the job to its
// final status: succeeded iff all items ok; failed when no item succeeded
// and every item failed, whatever the error kinds; otherwise partial.
// Infrastructure failures are not told apart from per-item failures.
func (e *Engine) maybeFinishJob(ctx context.Context, jobID string) {
	job, err := e.db.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	if isTerminal(job.Status) {
		return
	}

	completed := job.ProgressDone + job.ProgressFailed + job.ProgressSkipped
	if completed < job.ProgressTotal {
		return
	}

	status := "succeeded"
	switch {
	case job.ProgressDone == 0 && job.ProgressFailed == job.ProgressTotal:
		status = "failed"
	case job.ProgressFailed > 0 || job.ProgressSkipped > 0:
		status = "partial"
	}
	if e.isCancelled(jobID) && job.ProgressDone == 0 {
		status = "cancelled"
	}

	summary, _ := json.Marshal(map[string]any{
		"done": job.ProgressDone, "failed": job.ProgressFailed, "skipped": job.ProgressSkipped,
	})
	if err := e.db.FinishJob(ctx, jobID, status, string(summary)); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("failed to finalize job")
		return
	}

	metrics.JobsFinishedTotal.WithLabelValues(status).Inc()
	e.publishEvent(jobID, ProgressEvent{JobID: jobID, Event: "job_status", Status: status})

	e.streamsMu.Lock()
	s, ok := e.streams[jobID]
	e.streamsMu.Unlock()
	if ok {
		s.closeAll()
	}
}
