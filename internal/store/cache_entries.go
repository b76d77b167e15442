package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

// CacheEntryRow is the durable form of a CacheEntry.
type CacheEntryRow struct {
	Source    string
	Key       string
	Payload   string
	FetchedAt time.Time
	ExpiresAt time.Time
}

// GetCacheEntry fetches a cache row by (source, key). Returns ErrNotFound if
// absent; the caller is responsible for treating an expired row as absent.
func (s *Store) GetCacheEntry(ctx context.Context, source, key string) (CacheEntryRow, error) {
	var r CacheEntryRow
	row := s.conn.QueryRowContext(ctx, `
		SELECT source, key, payload, fetched_at, expires_at FROM cache_entries WHERE source = ? AND key = ?`,
		source, key)
	err := row.Scan(&r.Source, &r.Key, &r.Payload, &r.FetchedAt, &r.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntryRow{}, ErrNotFound
	}
	if err != nil {
		return CacheEntryRow{}, apperr.New("store.GetCacheEntry", apperr.StorageIO, err)
	}
	return r, nil
}

// PutCacheEntry writes (or overwrites, last-writer-wins) a cache row.
func (s *Store) PutCacheEntry(ctx context.Context, r CacheEntryRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO cache_entries (source, key, payload, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source, key) DO UPDATE SET
			payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at, expires_at = EXCLUDED.expires_at`,
		r.Source, r.Key, r.Payload, r.FetchedAt, r.ExpiresAt)
	if err != nil {
		return apperr.New("store.PutCacheEntry", apperr.StorageIO, err)
	}
	return nil
}

// DeleteCacheEntry removes a single cache row.
func (s *Store) DeleteCacheEntry(ctx context.Context, source, key string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE source = ? AND key = ?`, source, key)
	if err != nil {
		return apperr.New("store.DeleteCacheEntry", apperr.StorageIO, err)
	}
	return nil
}

// SweepExpiredCacheEntries deletes rows whose expires_at is in the past.
// Nothing in the service calls it, neither the scheduler loop nor a timer.
func (s *Store) SweepExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < ?`, now)
	if err != nil {
		return 0, apperr.New("store.SweepExpiredCacheEntries", apperr.StorageIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.New("store.SweepExpiredCacheEntries", apperr.StorageIO, err)
	}
	return n, nil
}
