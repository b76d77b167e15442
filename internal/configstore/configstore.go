// Package configstore is the runtime Config Store: typed key-value settings
// plus structured tables (api keys, badge style, review source priority),
// shared-read and serialized-write as required by the concurrency model.
// Every setting carries an explicit type tag; reading with the wrong type
// is config_invalid rather than inferred.
package configstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"

	"github.com/goccy/go-json"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/store"
)

// ValueType is the declared type of a setting's stored value.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeInteger ValueType = "integer"
	TypeFloat   ValueType = "float"
	TypeBoolean ValueType = "boolean"
	TypeJSON    ValueType = "json"
)

// Store is the runtime, persisted configuration handle. Components receive
// one at construction rather than reaching for a package-level singleton.
type Store struct {
	db *store.Store

	// writeMu serializes writers; reads go straight to the database, which
	// already serves many concurrent readers safely.
	writeMu sync.Mutex
}

// New wraps a *store.Store as a Config Store handle.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// GetString reads a string setting by key.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	val, typ, err := s.rawGet(ctx, key)
	if err != nil {
		return "", err
	}
	if typ != TypeString {
		return "", apperr.New("configstore.GetString", apperr.ConfigInvalid, errWrongType(key, TypeString, typ))
	}
	return val, nil
}

// GetInt reads an integer setting by key.
func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	val, typ, err := s.rawGet(ctx, key)
	if err != nil {
		return 0, err
	}
	if typ != TypeInteger {
		return 0, apperr.New("configstore.GetInt", apperr.ConfigInvalid, errWrongType(key, TypeInteger, typ))
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, apperr.New("configstore.GetInt", apperr.ConfigInvalid, err)
	}
	return n, nil
}

// GetFloat reads a float setting by key.
func (s *Store) GetFloat(ctx context.Context, key string) (float64, error) {
	val, typ, err := s.rawGet(ctx, key)
	if err != nil {
		return 0, err
	}
	if typ != TypeFloat {
		return 0, apperr.New("configstore.GetFloat", apperr.ConfigInvalid, errWrongType(key, TypeFloat, typ))
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, apperr.New("configstore.GetFloat", apperr.ConfigInvalid, err)
	}
	return f, nil
}

// GetBool reads a boolean setting by key.
func (s *Store) GetBool(ctx context.Context, key string) (bool, error) {
	val, typ, err := s.rawGet(ctx, key)
	if err != nil {
		return false, err
	}
	if typ != TypeBoolean {
		return false, apperr.New("configstore.GetBool", apperr.ConfigInvalid, errWrongType(key, TypeBoolean, typ))
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, apperr.New("configstore.GetBool", apperr.ConfigInvalid, err)
	}
	return b, nil
}

// GetJSON reads a json setting by key and unmarshals it into dest.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) error {
	val, typ, err := s.rawGet(ctx, key)
	if err != nil {
		return err
	}
	if typ != TypeJSON {
		return apperr.New("configstore.GetJSON", apperr.ConfigInvalid, errWrongType(key, TypeJSON, typ))
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return apperr.New("configstore.GetJSON", apperr.ConfigInvalid, err)
	}
	return nil
}

func (s *Store) rawGet(ctx context.Context, key string) (string, ValueType, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT value, type FROM settings WHERE key = ?`, key)
	var value, typ string
	if err := row.Scan(&value, &typ); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", apperr.New("configstore.Get", apperr.ConfigMissing, errors.New(key))
		}
		return "", "", apperr.New("configstore.Get", apperr.StorageIO, err)
	}
	return value, ValueType(typ), nil
}

// Set writes a setting transactionally, bumping settings_version. Writers
// are serialized within the process; the database enforces atomicity of
// the write itself.
func (s *Store) Set(ctx context.Context, category, key string, typ ValueType, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return apperr.New("configstore.Set", apperr.StorageIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value, type, category) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, type = EXCLUDED.type, category = EXCLUDED.category`,
		key, value, string(typ), category); err != nil {
		return apperr.New("configstore.Set", apperr.StorageIO, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE settings_version SET version = version + 1 WHERE id = 1`); err != nil {
		return apperr.New("configstore.Set", apperr.StorageIO, err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.New("configstore.Set", apperr.StorageIO, err)
	}
	return nil
}

// SetJSON marshals value and stores it as a json-typed setting.
func (s *Store) SetJSON(ctx context.Context, category, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return apperr.New("configstore.SetJSON", apperr.ConfigInvalid, err)
	}
	return s.Set(ctx, category, key, TypeJSON, string(payload))
}

// GetByCategory returns every setting in a category, for config.get(category).
func (s *Store) GetByCategory(ctx context.Context, category string) (map[string]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT key, value FROM settings WHERE category = ?`, category)
	if err != nil {
		return nil, apperr.New("configstore.GetByCategory", apperr.StorageIO, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, apperr.New("configstore.GetByCategory", apperr.StorageIO, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func errWrongType(key string, want, got ValueType) error {
	return errors.New("setting " + key + ": expected type " + string(want) + ", got " + string(got))
}
