// Package jobengine implements Aphrodite's core orchestrator: a fixed-size
// worker pool that claims queued items, runs the fetch -> resolve ->
// render -> upload -> tag pipeline for each, and persists progress to
// DuckDB write-ahead of any externally visible side effect. It is
// supervised as a suture.Service, grounded on the teacher's
// supervisor/services adapter shape.
package jobengine

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/attributes"
	"github.com/aphrodite-badges/aphrodite/internal/badges"
	"github.com/aphrodite-badges/aphrodite/internal/catalog"
	"github.com/aphrodite-badges/aphrodite/internal/enrichment"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/metrics"
	"github.com/aphrodite-badges/aphrodite/internal/posterstore"
	"github.com/aphrodite-badges/aphrodite/internal/render"
	"github.com/aphrodite-badges/aphrodite/internal/store"
)

type jobKind string

const (
	kindBatch  jobKind = "batch"
	kindSingle jobKind = "single"
	kindRevert jobKind = "revert"
)

// Options carries per-job overrides. SkipCache is filled from the control
// surface's skip_cache request option; no part of the pipeline reads it, so
// it has no effect on how a job runs.
type Options struct {
	SkipCache bool
}

// Reverter is the capability SubmitRevert jobs delegate to, satisfied by
// *revert.Manager. Declared here rather than imported to avoid a
// jobengine<->revert import cycle.
type Reverter interface {
	Revert(ctx context.Context, itemID string) error
}

// Config configures engine sizing and pipeline policy.
type Config struct {
	Workers             int
	QueueSize           int
	MaxAttempts         int
	ItemTimeout         time.Duration
	Tag                 string
	MaxReviewBadges     int
	AllowMultipleAwards bool
	ReviewPriorities    []attributes.SourcePriority
	AwardPriorities     []attributes.SourcePriority
	ResolutionTieBreak  attributes.ResolutionTieBreak
	SeriesRangePolicy   attributes.SeriesDynamicRangePolicy
	SeriesSampleSize    int
}

// DefaultConfig matches the teacher's worker-pool defaults.
func DefaultConfig() Config {
	return Config{
		Workers:            4,
		QueueSize:          256,
		MaxAttempts:        3,
		ItemTimeout:        60 * time.Second,
		Tag:                "aphrodite-overlay",
		MaxReviewBadges:    3,
		ResolutionTieBreak: attributes.TieBreakHigherClass,
		SeriesRangePolicy:  attributes.SeriesRangeOR,
		SeriesSampleSize:   5,
	}
}

// Engine is the Job Engine: public contract submit_batch/submit_single/
// submit_revert/get_job/stream_progress/cancel, plus the worker pool that
// drains queued items.
type Engine struct {
	cfg Config

	catalogClient catalog.Client
	registry      *enrichment.Registry
	badgeCatalog  *badges.Catalog
	renderer      *render.Renderer
	posters       *posterstore.Store
	db            *store.Store
	reverter      Reverter

	units  chan workUnit
	notify chan struct{}

	mu      sync.Mutex
	queues  []*jobQueue
	cursor  int
	inFlight sync.Map // itemID -> jobID

	overrides sync.Map // itemID -> overridePayload, consumed once by the next attempt

	cancelled sync.Map // jobID -> struct{}

	streamsMu sync.Mutex
	streams   map[string]*jobStream
}

type jobQueue struct {
	jobID string
	kind  jobKind
	mask  badges.TypeMask
	opts  Options
	items []string
}

type workUnit struct {
	jobID  string
	itemID string
	kind   jobKind
	mask   badges.TypeMask
	opts   Options
}

// Deps bundles the components the Job Engine drives per item.
type Deps struct {
	CatalogClient catalog.Client
	Registry      *enrichment.Registry
	BadgeCatalog  *badges.Catalog
	Renderer      *render.Renderer
	Posters       *posterstore.Store
	DB            *store.Store
	Reverter      Reverter
}

// New builds an Engine ready to be run as a suture.Service via NewPool.
func New(cfg Config, deps Deps) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 60 * time.Second
	}
	if cfg.SeriesSampleSize <= 0 {
		cfg.SeriesSampleSize = 5
	}
	return &Engine{
		cfg:           cfg,
		catalogClient: deps.CatalogClient,
		registry:      deps.Registry,
		badgeCatalog:  deps.BadgeCatalog,
		renderer:      deps.Renderer,
		posters:       deps.Posters,
		db:            deps.DB,
		reverter:      deps.Reverter,
		units:         make(chan workUnit, cfg.QueueSize),
		notify:        make(chan struct{}, 1),
		streams:       make(map[string]*jobStream),
	}
}

func (e *Engine) wake() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// SubmitBatch enqueues itemIDs as one job and returns its job_id.
func (e *Engine) SubmitBatch(ctx context.Context, itemIDs []string, mask badges.TypeMask, opts Options) (string, error) {
	return e.submit(ctx, kindBatch, itemIDs, mask, opts)
}

// SubmitSingle enqueues one item as its own job.
func (e *Engine) SubmitSingle(ctx context.Context, itemID string, mask badges.TypeMask, opts Options) (string, error) {
	return e.submit(ctx, kindSingle, []string{itemID}, mask, opts)
}

// SubmitRevert enqueues a revert job; items are processed via e.reverter
// instead of the badge pipeline.
func (e *Engine) SubmitRevert(ctx context.Context, itemIDs []string) (string, error) {
	return e.submit(ctx, kindRevert, itemIDs, nil, Options{})
}

// overridePayload supplies a pre-fetched source image for the next attempt
// at an item, bypassing the catalog's primary image fetch. Consumed once.
type overridePayload struct {
	data        []byte
	mime        string
	applyBadges bool
	mask        badges.TypeMask
}

// SubmitReplace enqueues a single-item job that badges data instead of the
// item's current catalog image, for posters.replace.
func (e *Engine) SubmitReplace(ctx context.Context, itemID string, data []byte, mime string, mask badges.TypeMask) (string, error) {
	e.overrides.Store(itemID, overridePayload{data: data, mime: mime, applyBadges: true, mask: mask})
	return e.SubmitSingle(ctx, itemID, mask, Options{})
}

// SubmitUploadCustom enqueues a single-item job that uploads data as-is or
// runs it through the badge pipeline first, for posters.upload_custom.
func (e *Engine) SubmitUploadCustom(ctx context.Context, itemID string, data []byte, mime string, applyBadges bool, mask badges.TypeMask) (string, error) {
	e.overrides.Store(itemID, overridePayload{data: data, mime: mime, applyBadges: applyBadges, mask: mask})
	return e.SubmitSingle(ctx, itemID, mask, Options{})
}

func (e *Engine) takeOverride(itemID string) (overridePayload, bool) {
	v, ok := e.overrides.LoadAndDelete(itemID)
	if !ok {
		return overridePayload{}, false
	}
	return v.(overridePayload), true
}

func (e *Engine) submit(ctx context.Context, kind jobKind, itemIDs []string, mask badges.TypeMask, opts Options) (string, error) {
	jobID := uuid.New().String()
	inputs, _ := json.Marshal(map[string]any{"item_ids": itemIDs})
	now := time.Now()

	if err := e.db.InsertJob(ctx, store.JobRow{
		JobID:         jobID,
		JobType:       string(kind),
		Status:        "queued",
		InputsJSON:    string(inputs),
		ProgressTotal: len(itemIDs),
		CreatedAt:     now,
		Version:       1,
	}); err != nil {
		return "", err
	}

	e.streamsMu.Lock()
	e.streams[jobID] = newJobStream()
	e.streamsMu.Unlock()

	e.mu.Lock()
	e.queues = append(e.queues, &jobQueue{jobID: jobID, kind: kind, mask: mask, opts: opts, items: append([]string(nil), itemIDs...)})
	e.mu.Unlock()
	e.wake()

	metrics.JobsSubmittedTotal.WithLabelValues(string(kind)).Inc()
	metrics.QueueDepth.Add(float64(len(itemIDs)))
	logging.Ctx(ctx).Info().Str("job_id", jobID).Str("kind", string(kind)).Int("items", len(itemIDs)).Msg("job submitted")
	return jobID, nil
}

// GetJob returns the current persisted state of a job.
func (e *Engine) GetJob(ctx context.Context, jobID string) (store.JobRow, error) {
	return e.db.GetJob(ctx, jobID)
}

// ListJobs returns the most recent jobs, optionally filtered by status.
func (e *Engine) ListJobs(ctx context.Context, status string, limit int) ([]store.JobRow, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.db.ListJobs(ctx, status, limit)
}

// Cancel requests cancellation; returns whether the job was found and not
// already terminal. Idempotent.
func (e *Engine) Cancel(ctx context.Context, jobID string) bool {
	job, err := e.db.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	if isTerminal(job.Status) {
		return false
	}
	e.cancelled.Store(jobID, struct{}{})
	_ = e.db.RequestCancel(ctx, jobID)
	return true
}

func (e *Engine) isCancelled(jobID string) bool {
	_, ok := e.cancelled.Load(jobID)
	return ok
}

// StreamProgress returns a finite channel of progress events for jobID,
// closed when the job reaches a terminal status.
func (e *Engine) StreamProgress(jobID string) (<-chan ProgressEvent, error) {
	e.streamsMu.Lock()
	defer e.streamsMu.Unlock()
	s, ok := e.streams[jobID]
	if !ok {
		return nil, apperr.New("jobengine.StreamProgress", apperr.JobNotFound, nil)
	}
	return s.subscribe(), nil
}

func isTerminal(status string) bool {
	switch status {
	case "succeeded", "failed", "cancelled", "partial":
		return true
	default:
		return false
	}
}
