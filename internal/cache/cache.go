// Package cache implements the per-source enrichment cache: an in-memory
// TTL layer in front of the durable CacheEntry rows in internal/store, so a
// process restart does not force every enrichment client to re-fetch.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/store"
)

// Stats reports cache effectiveness, mirroring the hit/miss accounting a
// caller would want when tuning per-source TTLs.
type Stats struct {
	Hits      int64
	Misses    int64
	TotalKeys int64
}

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// Cacher is a per-source cache: keyed by a caller-chosen logical key
// (typically an external ID, or normalized title+year), values are
// serialized with goccy/go-json.
type Cacher interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Stats() Stats
}

// SourceCache is the default Cacher: an in-memory map guarding a durable
// backing store, scoped to one enrichment source name.
type SourceCache struct {
	source string
	store  *store.Store
	ttl    time.Duration

	mu   sync.RWMutex
	mem  map[string]entry
	hits int64
	miss int64
}

// New returns a Cacher for source, using defaultTTL when callers don't pass
// an explicit one to Set.
func New(st *store.Store, source string, defaultTTL time.Duration) *SourceCache {
	return &SourceCache{
		source: source,
		store:  st,
		ttl:    defaultTTL,
		mem:    make(map[string]entry),
	}
}

// Get looks up key, consulting the in-memory layer first and falling back
// to the durable store on miss. An expired entry is treated as absent per
// the CacheEntry invariant.
func (c *SourceCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	now := time.Now()

	c.mu.RLock()
	if e, ok := c.mem[key]; ok {
		c.mu.RUnlock()
		if now.After(e.expiresAt) {
			c.recordMiss()
			return false, nil
		}
		c.recordHit()
		return true, json.Unmarshal(e.payload, dest)
	}
	c.mu.RUnlock()

	row, err := c.store.GetCacheEntry(ctx, c.source, key)
	if err == store.ErrNotFound {
		c.recordMiss()
		return false, nil
	}
	if err != nil {
		return false, apperr.New("cache.Get", apperr.StorageIO, err)
	}
	if now.After(row.ExpiresAt) {
		c.recordMiss()
		return false, nil
	}

	c.mu.Lock()
	c.mem[key] = entry{payload: []byte(row.Payload), expiresAt: row.ExpiresAt}
	c.mu.Unlock()

	c.recordHit()
	return true, json.Unmarshal([]byte(row.Payload), dest)
}

// Set stores value under key with ttl (or the cache's default TTL if ttl is
// zero), writing through to the durable store so it survives a restart.
func (c *SourceCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return apperr.New("cache.Set", apperr.StorageIO, err)
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	c.mu.Lock()
	c.mem[key] = entry{payload: payload, expiresAt: expiresAt}
	c.mu.Unlock()

	if err := c.store.PutCacheEntry(ctx, store.CacheEntryRow{
		Source:    c.source,
		Key:       key,
		Payload:   string(payload),
		FetchedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return apperr.New("cache.Set", apperr.StorageIO, err)
	}
	return nil
}

// Delete removes key from both layers.
func (c *SourceCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()
	if err := c.store.DeleteCacheEntry(ctx, c.source, key); err != nil {
		return apperr.New("cache.Delete", apperr.StorageIO, err)
	}
	return nil
}

// Stats returns hit/miss counters accumulated since process start.
func (c *SourceCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.miss, TotalKeys: int64(len(c.mem))}
}

func (c *SourceCache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *SourceCache) recordMiss() {
	c.mu.Lock()
	c.miss++
	c.mu.Unlock()
}
