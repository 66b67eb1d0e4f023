package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KVRepository stores string values by key. It satisfies kv.Store.
type KVRepository struct {
	db    *DB
	retry retryPolicy
}

// NewKVRepository creates a KVRepository.
func NewKVRepository(db *DB) *KVRepository {
	return &KVRepository{db: db, retry: defaultRetry}
}

// Get returns the value stored under key.
func (r *KVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (r *KVRepository) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("key is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)

	return r.retry.run(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now)
		if err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
		return nil
	})
}

// SetMany stores every value in one transaction, retried while SQLite is
// busy. Either all keys are written or none.
func (r *KVRepository) SetMany(ctx context.Context, values map[string]string) error {
	for key := range values {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("key is required")
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)

	return r.db.TransactionWithRetry(ctx, r.retry.attempts, r.retry.backoff, func(tx *sql.Tx) error {
		for key, value := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, strings.TrimSpace(key), value, now)
			if err != nil {
				return fmt.Errorf("failed to set %s: %w", key, err)
			}
		}
		return nil
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (r *KVRepository) Delete(ctx context.Context, key string) error {
	return r.retry.run(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
		return nil
	})
}

// Keys lists every stored key in order.
func (r *KVRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close is a no-op. The DB is shared with other repositories and is
// closed by its owner.
func (r *KVRepository) Close() error {
	return nil
}
