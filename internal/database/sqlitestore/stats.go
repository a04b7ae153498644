package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"resonance/internal/moderation"
)

// Stats computes the aggregate figures used by the metrics collector.
// Active restrictions are counted with the same expiry check as reads.
func (s *ModerationStore) Stats(ctx context.Context, now time.Time) (moderation.Stats, error) {
	stats := moderation.Stats{
		ReportsByStatus:          make(map[moderation.ReportStatus]int),
		ActiveRestrictionsByType: make(map[moderation.RestrictionType]int),
		ActionsByType:            make(map[moderation.ActionType]int),
	}
	ts := formatTime(now)

	if err := s.groupCount(ctx, `SELECT status, COUNT(*) FROM reports GROUP BY status`, nil, func(k string, n int) {
		stats.ReportsByStatus[moderation.ReportStatus(k)] = n
	}); err != nil {
		return stats, fmt.Errorf("count reports: %w", err)
	}

	if err := s.groupCount(ctx, `
		SELECT restriction_type, COUNT(*) FROM user_restrictions
		WHERE is_active = 1 AND (expires_at IS NULL OR expires_at > ?)
		GROUP BY restriction_type
	`, []any{ts}, func(k string, n int) {
		stats.ActiveRestrictionsByType[moderation.RestrictionType(k)] = n
	}); err != nil {
		return stats, fmt.Errorf("count restrictions: %w", err)
	}

	if err := s.groupCount(ctx, `SELECT action_type, COUNT(*) FROM moderation_actions GROUP BY action_type`, nil, func(k string, n int) {
		stats.ActionsByType[moderation.ActionType(k)] = n
	}); err != nil {
		return stats, fmt.Errorf("count actions: %w", err)
	}

	singles := []struct {
		query string
		args  []any
		dest  *int
	}{
		{`SELECT COUNT(*) FROM moderation_actions WHERE revoked_at IS NOT NULL`, nil, &stats.RevokedActions},
		{`SELECT COUNT(*) FROM notification_outbox WHERE delivered_at IS NULL`, nil, &stats.PendingNotifications},
		{`SELECT COUNT(*) FROM user_restrictions WHERE is_active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`, []any{ts}, &stats.ExpiredAwaitingDeactivation},
	}
	for _, q := range singles {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dest); err != nil {
			return stats, fmt.Errorf("count: %w", err)
		}
	}
	return stats, nil
}

func (s *ModerationStore) groupCount(ctx context.Context, query string, args []any, fn func(key string, n int)) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return rows.Err()
}
