// Package supervisor builds Aphrodite's suture supervisor tree: a root
// supervisor with a core layer (job engine pool, scheduler) and an http
// layer (the control surface), so a crash restarts only the affected
// layer. Grounded on the teacher's internal/supervisor/tree.go layering,
// scaled down to the two layers Aphrodite actually has.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Config holds supervisor tree tuning, defaulting to suture's own
// built-in defaults.
type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultConfig mirrors suture's documented defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is Aphrodite's two-layer supervisor: core (job engine, scheduler)
// and http (control surface).
type Tree struct {
	root *suture.Supervisor
	core *suture.Supervisor
	http *suture.Supervisor
}

// New builds a Tree logging suture lifecycle events through logger.
func New(logger *slog.Logger, cfg Config) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	eventHook := (&sutureslog.Handler{Logger: logger}).MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	root := suture.New("aphrodite", rootSpec)
	core := suture.New("core-layer", childSpec)
	http := suture.New("http-layer", childSpec)
	root.Add(core)
	root.Add(http)

	return &Tree{root: root, core: core, http: http}
}

// AddCoreService adds a service to the core layer: job engine pool,
// scheduler.
func (t *Tree) AddCoreService(svc suture.Service) suture.ServiceToken {
	return t.core.Add(svc)
}

// AddHTTPService adds a service to the http layer: the control surface.
func (t *Tree) AddHTTPService(svc suture.Service) suture.ServiceToken {
	return t.http.Add(svc)
}

// ServeBackground runs the tree until ctx is cancelled.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
