package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/cache"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/metrics"
)

// httpSource is the shared machinery every HTTP-backed Fetcher embeds:
// a rate limiter, a circuit breaker, an HTTP client with a single 10s
// overall timeout (no separate connect or read timeout), and a cache. Concrete sources provide only their URL-building
// and response-parsing logic.
type httpSource struct {
	sourceName string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	cache      cache.Cacher
	minGap     time.Duration // extra per-call floor beyond the token bucket, e.g. AniDB's 1s

	gapMu      sync.Mutex
	lastCallAt time.Time
}

// newHTTPSource builds the shared machinery for a named source. The breaker
// trips on the same shape as the catalog client's: 10+ requests seen in the
// rolling interval with a 60% failure ratio opens it for a 2-minute cooldown.
func newHTTPSource(name string, rps float64, burst int, c cache.Cacher) httpSource {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", breakerName).Str("from", from.String()).Str("to", to.String()).Msg("enrichment circuit breaker state change")
			metrics.RecordCircuitBreakerTransition(breakerName, from.String(), to.String())
		},
	}
	return httpSource{
		sourceName: name,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		cache:      c,
	}
}

// acquire blocks for the rate limiter and, if configured, an additional
// fixed minimum gap since the last call (AniDB requires this regardless of
// its token bucket state). lastCallAt is guarded by gapMu since a single
// Fetcher instance is called concurrently by the pipeline's per-source
// worker goroutines.
func (h *httpSource) acquire(ctx context.Context) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return apperr.New(h.sourceName+".acquire", apperr.Timeout, err)
	}
	if h.minGap > 0 {
		// Hold gapMu across the wait so concurrent callers are serialized
		// and each one sees the previous caller's lastCallAt.
		h.gapMu.Lock()
		defer h.gapMu.Unlock()
		if wait := h.minGap - time.Since(h.lastCallAt); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return apperr.New(h.sourceName+".acquire", apperr.Cancelled, ctx.Err())
			case <-timer.C:
			}
		}
		h.lastCallAt = time.Now()
		return nil
	}
	h.gapMu.Lock()
	h.lastCallAt = time.Now()
	h.gapMu.Unlock()
	return nil
}

// translateBreakerErr converts gobreaker's own open-circuit sentinel into
// the source_unreachable kind so callers never need to know about the
// breaker's existence.
func (h *httpSource) translateBreakerErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.New(h.sourceName+".breaker", apperr.SourceUnreachable, err)
	}
	return err
}

// get performs a rate-limited GET, classifying non-2xx responses into the
// source_* error kinds and respecting Retry-After on 429 by sleeping once
// before surfacing a retryable error to the caller.
func (h *httpSource) get(ctx context.Context, url string) ([]byte, error) {
	return h.getWithHeaders(ctx, url, nil)
}

// getWithHeaders is get plus caller-supplied request headers, for sources
// that authenticate via a header instead of a query parameter (e.g. MAL's
// X-MAL-CLIENT-ID). The round trip and response classification run inside
// the circuit breaker so a struggling source degrades into fast failures.
func (h *httpSource) getWithHeaders(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if err := h.acquire(ctx); err != nil {
		return nil, err
	}

	body, err := h.breaker.Execute(func() ([]byte, error) { return h.doGet(ctx, url, headers) })
	if err != nil {
		return nil, h.translateBreakerErr(err)
	}
	return body, nil
}

func (h *httpSource) doGet(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.New(h.sourceName+".get", apperr.SourceUnreachable, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, apperr.New(h.sourceName+".get", apperr.SourceUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.New(h.sourceName+".get", apperr.SourceInvalidResponse, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait := parseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil, apperr.New(h.sourceName+".get", apperr.Cancelled, ctx.Err())
			case <-timer.C:
			}
		}
		return nil, apperr.New(h.sourceName+".get", apperr.SourceRateLimited, fmt.Errorf("429 from %s", h.sourceName))
	case resp.StatusCode >= 500:
		return nil, apperr.New(h.sourceName+".get", apperr.SourceUnreachable, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return nil, apperr.New(h.sourceName+".get", apperr.SourceInvalidResponse, fmt.Errorf("status %d", resp.StatusCode))
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when)
	}
	return 0
}
