package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"resonance/internal/moderation"
)

// CounterStore is a sliding-window log of rate limit hits kept in SQLite.
// Each Hit runs in its own immediate transaction, so concurrent callers for
// the same key cannot both pass the check.
type CounterStore struct {
	db *sql.DB
}

// NewCounterStore creates a CounterStore backed by the given database
func NewCounterStore(db *sql.DB) *CounterStore {
	return &CounterStore{db: db}
}

var _ moderation.WindowStore = (*CounterStore)(nil)

// Hit records a hit for key at now when fewer than limit hits fall within
// (now-window, now]. Hits that have left the window are pruned.
func (c *CounterStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin rate limit transaction: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := formatTime(now.Add(-window))
	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE bucket = ? AND hit_at <= ?`, key, cutoff); err != nil {
		return false, fmt.Errorf("prune rate limit events: %w", classify(err))
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_limit_events WHERE bucket = ?`, key).Scan(&count); err != nil {
		return false, fmt.Errorf("count rate limit events: %w", classify(err))
	}

	allowed := count < limit
	if allowed {
		if _, err := tx.ExecContext(ctx, `INSERT INTO rate_limit_events (bucket, hit_at) VALUES (?, ?)`, key, formatTime(now)); err != nil {
			return false, fmt.Errorf("record rate limit event: %w", classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit rate limit transaction: %w", classify(err))
	}
	return allowed, nil
}
