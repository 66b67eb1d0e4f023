package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// retryPolicy bounds how often a write is repeated while SQLite reports the
// database as busy. The delay doubles after every attempt.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

var defaultRetry = retryPolicy{attempts: 3, backoff: 50 * time.Millisecond}

func (p retryPolicy) orDefault() retryPolicy {
	if p.attempts <= 0 {
		p.attempts = defaultRetry.attempts
	}
	if p.backoff <= 0 {
		p.backoff = defaultRetry.backoff
	}
	return p
}

// TransactionWithRetry runs fn in a transaction and repeats the whole
// transaction while SQLite is busy. Non-positive arguments use the
// defaults.
func (db *DB) TransactionWithRetry(ctx context.Context, maxAttempts int, baseBackoff time.Duration, fn func(*sql.Tx) error) error {
	policy := retryPolicy{attempts: maxAttempts, backoff: baseBackoff}
	return policy.run(ctx, func() error {
		return db.Transaction(ctx, fn)
	})
}

func (p retryPolicy) run(ctx context.Context, fn func() error) error {
	p = p.orDefault()
	delay := p.backoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil || attempt >= p.attempts || !isBusyError(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

// isBusyError reports SQLITE_BUSY and SQLITE_LOCKED, by result code when
// the driver error survives wrapping and by message otherwise.
func isBusyError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	message := strings.ToLower(err.Error())
	for _, marker := range []string{"database is locked", "database is busy", "sqlite_busy", "sqlite_locked"} {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
