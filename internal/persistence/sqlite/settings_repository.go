package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/movienight/internal/persistence"
)

// SettingsRepository implements persistence.SettingsRepository using SQLite
type SettingsRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSettingsRepository creates a new SQLite settings repository
func NewSettingsRepository(pool *ConnectionPool) *SettingsRepository {
	return &SettingsRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// GetSetting returns a single value or ErrNotFound
func (r *SettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.helper.QueryRow(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", persistence.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// ListSettings returns every stored setting
func (r *SettingsRepository) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.helper.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}
	return settings, nil
}

// SetSettings upserts all values in one transaction. An empty value deletes
// the key.
func (r *SettingsRepository) SetSettings(ctx context.Context, values map[string]string, updatedAt time.Time) error {
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "" {
			return persistence.ErrConstraintViolation
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			var err error
			if values[key] == "" {
				_, err = tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
			} else {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
					ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
				`, key, values[key], formatTime(updatedAt))
			}
			if err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}
