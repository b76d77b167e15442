package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aphrodite-badges/aphrodite/internal/logging"
)

// Service wraps Router's handler as a suture.Service, adapting
// net/http.Server's ListenAndServe/Shutdown lifecycle to suture's
// Serve/String contract, grounded on the teacher's WAL service wrappers
// (internal/supervisor/services/wal_service.go).
type Service struct {
	addr   string
	router *Router
}

// NewService builds a supervised HTTP server for rt listening on addr.
func NewService(addr string, rt *Router) *Service {
	return &Service{addr: addr, router: rt}
}

func (s *Service) String() string { return "control-http" }

func (s *Service) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log := logging.WithComponent("control")
		log.Info().Str("addr", s.addr).Msg("control surface listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}
