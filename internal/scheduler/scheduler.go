// Package scheduler implements the Scheduler Hook (spec.md §4.9): a
// polling loop that checks stored schedules against a cron expression and
// submits a batch job to the Job Engine when one comes due. Grounded on
// the teacher's newsletter scheduler polling loop (internal/newsletter/scheduler/scheduler.go),
// adapted to submit badge jobs instead of delivering newsletters, and run
// as a suture.Service rather than owning its own Start/Stop lifecycle.
package scheduler

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/aphrodite-badges/aphrodite/internal/badges"
	"github.com/aphrodite-badges/aphrodite/internal/jobengine"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/metrics"
	"github.com/aphrodite-badges/aphrodite/internal/store"
)

// CatalogLister resolves "all items" when a schedule names no explicit
// targets.
type CatalogLister interface {
	ListAllItemIDs(ctx context.Context) ([]string, error)
}

// Config controls the scheduler's polling cadence.
type Config struct {
	CheckInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{CheckInterval: time.Minute}
}

// Scheduler polls for due schedules and submits batch jobs to the Job
// Engine. It owns no retry or cancellation logic of its own: a submitted
// job inherits the Job Engine's retry and cancellation behavior.
type Scheduler struct {
	db      *store.Store
	engine  *jobengine.Engine
	catalog CatalogLister
	cfg     Config
}

// New builds a Scheduler.
func New(db *store.Store, engine *jobengine.Engine, catalog CatalogLister, cfg Config) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Scheduler{db: db, engine: engine, catalog: catalog, cfg: cfg}
}

func (s *Scheduler) String() string { return "scheduler" }

// Serve runs the polling loop until ctx is cancelled, per the
// suture.Service contract.
func (s *Scheduler) Serve(ctx context.Context) error {
	log := logging.WithComponent("scheduler")
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.checkAndSubmit(ctx, log)

	for {
		select {
		case <-ticker.C:
			s.checkAndSubmit(ctx, log)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) checkAndSubmit(ctx context.Context, log zerolog.Logger) {
	schedules, err := s.db.ListEnabledSchedules(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list schedules")
		return
	}

	now := time.Now().UTC()
	for _, sched := range schedules {
		if sched.NextRunAt.Valid && sched.NextRunAt.Time.After(now) {
			continue
		}
		s.run(ctx, sched, log)
	}
}

func (s *Scheduler) run(ctx context.Context, sched store.ScheduleRow, log zerolog.Logger) {
	targets, err := s.db.TargetsForSchedule(ctx, sched.ScheduleID)
	if err != nil {
		log.Error().Err(err).Str("schedule_id", sched.ScheduleID).Msg("failed to resolve schedule targets")
		return
	}
	if len(targets) == 0 && s.catalog != nil {
		targets, err = s.catalog.ListAllItemIDs(ctx)
		if err != nil {
			log.Error().Err(err).Str("schedule_id", sched.ScheduleID).Msg("failed to list catalog items")
			return
		}
	}

	mask := decodeMask(sched.BadgeTypesMask)
	jobID, err := s.engine.SubmitBatch(ctx, targets, mask, jobengine.Options{})
	if err != nil {
		log.Error().Err(err).Str("schedule_id", sched.ScheduleID).Msg("failed to submit scheduled job")
		return
	}

	next, err := calculateNextRun(sched.CronExpr, now(), sched.Timezone)
	if err != nil {
		log.Error().Err(err).Str("schedule_id", sched.ScheduleID).Str("cron", sched.CronExpr).Msg("failed to compute next run")
		return
	}
	if err := s.db.MarkScheduleRun(ctx, sched.ScheduleID, next, jobID); err != nil {
		log.Error().Err(err).Str("schedule_id", sched.ScheduleID).Msg("failed to record schedule run")
		return
	}
	_ = s.db.RecordHistory(ctx, jobID, "", "schedule_triggered", sched.ScheduleID)
	metrics.ScheduleRunsTotal.WithLabelValues(sched.ScheduleID).Inc()

	log.Info().Str("schedule_id", sched.ScheduleID).Str("job_id", jobID).Int("items", len(targets)).Msg("scheduled job submitted")
}

func now() time.Time { return time.Now().UTC() }

// EncodeMask serializes a badge type mask for storage in a schedule row.
func EncodeMask(mask badges.TypeMask) string {
	if len(mask) == 0 {
		return "{}"
	}
	data, err := json.Marshal(mask)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeMask(raw string) badges.TypeMask {
	if raw == "" {
		return nil
	}
	var mask badges.TypeMask
	if err := json.Unmarshal([]byte(raw), &mask); err != nil {
		return nil
	}
	return mask
}
