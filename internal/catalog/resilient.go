package catalog

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/metrics"
)

// ResilientClient wraps a Client with a per-host token-bucket rate limiter
// and a circuit breaker, so a struggling catalog server degrades into fast
// failures instead of piling up blocked workers.
type ResilientClient struct {
	inner   Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
}

// NewResilientClient wraps inner. rps/burst configure the shared rate
// limiter; the circuit breaker trips once at least 10 requests have been
// seen in the rolling interval and 60% or more failed, mirroring the
// Tautulli circuit breaker settings this is adapted from.
func NewResilientClient(inner Client, rps float64, burst int) *ResilientClient {
	settings := gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("catalog circuit breaker state change")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
	}
	return &ResilientClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

var _ Client = (*ResilientClient)(nil)

func (c *ResilientClient) guard(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.New("catalog.guard", apperr.Timeout, err)
	}
	return nil
}

func castResult[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}
	return v.(T)
}

func (c *ResilientClient) ListLibraries(ctx context.Context) ([]Library, error) {
	if err := c.guard(ctx); err != nil {
		return nil, err
	}
	v, err := c.breaker.Execute(func() (any, error) { return c.inner.ListLibraries(ctx) })
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return castResult[[]Library](v), nil
}

func (c *ResilientClient) ListItems(ctx context.Context, libraryID string, filters ItemFilters) (ItemIterator, error) {
	if err := c.guard(ctx); err != nil {
		return nil, err
	}
	return c.inner.ListItems(ctx, libraryID, filters)
}

func (c *ResilientClient) GetItem(ctx context.Context, itemID string) (ItemMetadata, error) {
	if err := c.guard(ctx); err != nil {
		return ItemMetadata{}, err
	}
	v, err := c.breaker.Execute(func() (any, error) { return c.inner.GetItem(ctx, itemID) })
	if err != nil {
		return ItemMetadata{}, translateBreakerErr(err)
	}
	return castResult[ItemMetadata](v), nil
}

func (c *ResilientClient) GetPrimaryImage(ctx context.Context, itemID string) ([]byte, string, error) {
	if err := c.guard(ctx); err != nil {
		return nil, "", err
	}
	type result struct {
		data []byte
		mime string
	}
	v, err := c.breaker.Execute(func() (any, error) {
		data, mime, err := c.inner.GetPrimaryImage(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return result{data: data, mime: mime}, nil
	})
	if err != nil {
		return nil, "", translateBreakerErr(err)
	}
	r := castResult[result](v)
	return r.data, r.mime, nil
}

func (c *ResilientClient) PutPrimaryImage(ctx context.Context, itemID string, data []byte, mime string) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (any, error) { return nil, c.inner.PutPrimaryImage(ctx, itemID, data, mime) })
	if err != nil {
		return translateBreakerErr(err)
	}
	return nil
}

func (c *ResilientClient) AddTag(ctx context.Context, itemID, tag string) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (any, error) { return nil, c.inner.AddTag(ctx, itemID, tag) })
	if err != nil {
		return translateBreakerErr(err)
	}
	return nil
}

func (c *ResilientClient) RemoveTag(ctx context.Context, itemID, tag string) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (any, error) { return nil, c.inner.RemoveTag(ctx, itemID, tag) })
	if err != nil {
		return translateBreakerErr(err)
	}
	return nil
}

func (c *ResilientClient) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}

// translateBreakerErr converts gobreaker's own open-circuit sentinel into
// the catalog_unreachable kind so callers never need to know about the
// breaker's existence.
func translateBreakerErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.New("catalog.breaker", apperr.CatalogUnreachable, err)
	}
	return err
}
