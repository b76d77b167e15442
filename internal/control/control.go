package control

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aphrodite-badges/aphrodite/internal/catalog"
	"github.com/aphrodite-badges/aphrodite/internal/configstore"
	"github.com/aphrodite-badges/aphrodite/internal/enrichment"
	"github.com/aphrodite-badges/aphrodite/internal/jobengine"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/revert"
)

// Reverter is the capability items.revert/items.restore_all drive,
// satisfied by *revert.Manager.
type Reverter interface {
	Revert(ctx context.Context, itemID string) error
	RestoreAll(ctx context.Context, itemIDs []string) []revert.RestoreResult
}

// Router builds the control surface's http.Handler. It is deliberately
// thin: every handler decodes JSON, calls one of these fields, and
// serializes the result.
type Router struct {
	engine   *jobengine.Engine
	reverter Reverter
	config   *configstore.Store
	sources  *sourceFetcher

	corsOrigins []string
}

// New builds a Router over the already-constructed core components.
func New(engine *jobengine.Engine, reverter Reverter, config *configstore.Store, catalogClient catalog.Client, registry *enrichment.Registry, corsOrigins []string) *Router {
	return &Router{
		engine:      engine,
		reverter:    reverter,
		config:      config,
		sources:     newSourceFetcher(catalogClient, registry),
		corsOrigins: corsOrigins,
	}
}

// Handler assembles the chi.Router, grouping routes by resource the way
// the teacher's SetupChi does: a global middleware stack, then one
// r.Route block per domain area.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Post("/submit_batch", rt.jobsSubmitBatch)
		r.Post("/submit_single", rt.jobsSubmitSingle)
		r.Post("/submit_revert", rt.jobsSubmitRevert)
		r.Get("/", rt.jobsList)
		r.Get("/{jobID}", rt.jobsGet)
		r.Post("/{jobID}/cancel", rt.jobsCancel)
		r.Get("/{jobID}/stream_progress", rt.jobsStreamProgress)
	})

	r.Route("/api/v1/posters/{itemID}", func(r chi.Router) {
		r.Get("/fetch_sources", rt.postersFetchSources)
		r.Post("/replace", rt.postersReplace)
		r.Post("/upload_custom", rt.postersUploadCustom)
	})

	r.Route("/api/v1/items/{itemID}", func(r chi.Router) {
		r.Post("/revert", rt.itemsRevert)
	})
	r.Post("/api/v1/items/restore_all", rt.itemsRestoreAll)

	r.Route("/api/v1/config/{category}", func(r chi.Router) {
		r.Get("/", rt.configGet)
		r.Put("/", rt.configSet)
	})

	return r
}

// requestLogger logs each request's method, path, status, and duration via
// the component-scoped zerolog logger, grounded on the teacher's
// RequestIDWithLogging shape but using this project's logging package.
func requestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logging.WithComponent("control").Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Dur("duration", time.Since(start)).
				Msg("request handled")
		})
	}
}
