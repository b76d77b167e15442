package configstore

import (
	"context"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

// APIKey is a single credential for an enrichment or catalog service.
type APIKey struct {
	Service string
	Name    string
	Value   string
	Group   string
}

// APIKeys returns every stored credential for a service (e.g. "omdb").
func (s *Store) APIKeys(ctx context.Context, service string) ([]APIKey, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT service, name, value, "group" FROM api_keys WHERE service = ?`, service)
	if err != nil {
		return nil, apperr.New("configstore.APIKeys", apperr.StorageIO, err)
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.Service, &k.Name, &k.Value, &k.Group); err != nil {
			return nil, apperr.New("configstore.APIKeys", apperr.StorageIO, err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// SetAPIKey upserts a single credential.
func (s *Store) SetAPIKey(ctx context.Context, k APIKey) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO api_keys (service, name, value, "group") VALUES (?, ?, ?, ?)
		ON CONFLICT (service, name) DO UPDATE SET value = EXCLUDED.value, "group" = EXCLUDED."group"`,
		k.Service, k.Name, k.Value, k.Group)
	if err != nil {
		return apperr.New("configstore.SetAPIKey", apperr.StorageIO, err)
	}
	return nil
}

// BadgeSetting is one named styling value for a badge type (e.g. font,
// size, anchor), looked up by the Badge Catalog when building BadgeInstance
// style blocks.
type BadgeSetting struct {
	BadgeType string
	Name      string
	Value     string
}

// BadgeSettings returns all settings recorded for a badge type.
func (s *Store) BadgeSettings(ctx context.Context, badgeType string) ([]BadgeSetting, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT badge_type, name, value FROM badge_settings WHERE badge_type = ?`, badgeType)
	if err != nil {
		return nil, apperr.New("configstore.BadgeSettings", apperr.StorageIO, err)
	}
	defer rows.Close()

	var out []BadgeSetting
	for rows.Next() {
		var b BadgeSetting
		if err := rows.Scan(&b.BadgeType, &b.Name, &b.Value); err != nil {
			return nil, apperr.New("configstore.BadgeSettings", apperr.StorageIO, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetBadgeSetting upserts one styling value.
func (s *Store) SetBadgeSetting(ctx context.Context, b BadgeSetting) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO badge_settings (badge_type, name, value) VALUES (?, ?, ?)
		ON CONFLICT (badge_type, name) DO UPDATE SET value = EXCLUDED.value`,
		b.BadgeType, b.Name, b.Value)
	if err != nil {
		return apperr.New("configstore.SetBadgeSetting", apperr.StorageIO, err)
	}
	return nil
}

// ReviewSource is one enrichment source's enablement, priority, and
// arbitrary match conditions, consulted by the Attribute Resolver when
// ordering review aggregation.
type ReviewSource struct {
	Name           string
	Enabled        bool
	Priority       int
	ConditionsJSON string
}

// ReviewSources returns every configured review source ordered by priority,
// highest first.
func (s *Store) ReviewSources(ctx context.Context) ([]ReviewSource, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT name, enabled, priority, conditions_json FROM review_sources ORDER BY priority DESC`)
	if err != nil {
		return nil, apperr.New("configstore.ReviewSources", apperr.StorageIO, err)
	}
	defer rows.Close()

	var out []ReviewSource
	for rows.Next() {
		var r ReviewSource
		if err := rows.Scan(&r.Name, &r.Enabled, &r.Priority, &r.ConditionsJSON); err != nil {
			return nil, apperr.New("configstore.ReviewSources", apperr.StorageIO, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetReviewSource upserts one source's enablement/priority.
func (s *Store) SetReviewSource(ctx context.Context, r ReviewSource) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO review_sources (name, enabled, priority, conditions_json) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, priority = EXCLUDED.priority, conditions_json = EXCLUDED.conditions_json`,
		r.Name, r.Enabled, r.Priority, r.ConditionsJSON)
	if err != nil {
		return apperr.New("configstore.SetReviewSource", apperr.StorageIO, err)
	}
	return nil
}
