package storage

import (
	"context"
	"database/sql"
)

// Preference is a versioned JSON document stored under a key.
type Preference struct {
	Key     string
	Version int
	Value   []byte
}

// PreferenceRepository stores small versioned documents such as reader
// settings.
type PreferenceRepository struct {
	db *DB
}

// NewPreferenceRepository creates a repository over db.
func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get returns the preference stored under key.
func (r *PreferenceRepository) Get(ctx context.Context, key string) (Preference, bool, error) {
	pref := Preference{Key: key}
	var value string
	err := r.db.db.QueryRowContext(ctx,
		"SELECT version, value FROM preferences WHERE key = ?", key,
	).Scan(&pref.Version, &value)
	if err == sql.ErrNoRows {
		return Preference{}, false, nil
	}
	if err != nil {
		return Preference{}, false, wrapErr("get preference", err)
	}
	pref.Value = []byte(value)
	return pref, true, nil
}

// Put inserts or replaces a preference.
func (r *PreferenceRepository) Put(ctx context.Context, pref Preference) error {
	_, err := r.db.db.ExecContext(ctx, `
	INSERT INTO preferences (key, version, value) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET version = excluded.version, value = excluded.value
	`, pref.Key, pref.Version, string(pref.Value))
	if err != nil {
		return wrapErr("put preference", err)
	}
	return nil
}
