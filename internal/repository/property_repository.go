package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PropertyRepository is the Postgres key/value property table
type PropertyRepository struct {
	db *sql.DB
}

// NewPropertyRepository creates a new property repository
func NewPropertyRepository(db *sql.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// Get returns the value under key and whether it exists
func (r *PropertyRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM properties WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get property %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key, replacing any previous value
func (r *PropertyRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO properties (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set property %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent inserts value under key and reports false when the key already exists
func (r *PropertyRepository) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	query := `
		INSERT INTO properties (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, key, value)
	if err != nil {
		return false, fmt.Errorf("failed to set property %s: %w", key, err)
	}
	return applied(result)
}

// Delete removes key; deleting a missing key is not an error
func (r *PropertyRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM properties WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete property %s: %w", key, err)
	}
	return nil
}

// List returns the keys starting with prefix
func (r *PropertyRepository) List(ctx context.Context, prefix string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)

	rows, err := r.db.QueryContext(ctx, `SELECT key FROM properties WHERE key LIKE $1 ORDER BY key`, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan property key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
