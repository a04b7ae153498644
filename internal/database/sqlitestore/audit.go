package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"resonance/internal/moderation"
)

// ========== Audit Log ==========

func (t *modTx) LogAction(ctx context.Context, entry moderation.AuditEntry) error {
	details := []byte("{}")
	if entry.Details != nil {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO moderation_audit_log (id, action, actor_id, target_id, reason, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, string(entry.Action), entry.ActorID, entry.TargetID, entry.Reason,
		string(details), formatTime(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

func (s *ModerationStore) ListAuditLog(ctx context.Context, limit int) ([]moderation.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, actor_id, target_id, reason, details, timestamp
		FROM moderation_audit_log ORDER BY timestamp DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var entries []moderation.AuditEntry
	for rows.Next() {
		var e moderation.AuditEntry
		var timestampStr, detailsStr string
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.TargetID, &e.Reason,
			&detailsStr, &timestampStr); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		var d rowDecoder
		e.Timestamp = d.time("timestamp", timestampStr)
		d.json("details", detailsStr, &e.Details)
		if d.err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", e.ID, d.err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ========== Notification Outbox ==========

func (t *modTx) EnqueueNotification(ctx context.Context, n moderation.Notification) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO notification_outbox (id, user_id, kind, action_id, restriction_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, string(n.Kind), strArg(n.ActionID), strArg(n.RestrictionID), n.Message,
		formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// PendingNotifications returns undelivered events, oldest first
func (s *ModerationStore) PendingNotifications(ctx context.Context, limit int) ([]moderation.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, action_id, restriction_id, message, created_at
		FROM notification_outbox WHERE delivered_at IS NULL
		ORDER BY created_at ASC, id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	var out []moderation.Notification
	for rows.Next() {
		var n moderation.Notification
		var actionID, restrictionID sql.NullString
		var createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &actionID, &restrictionID, &n.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ActionID = nullStr(actionID)
		n.RestrictionID = nullStr(restrictionID)
		var d rowDecoder
		n.CreatedAt = d.time("created_at", createdAt)
		if d.err != nil {
			return nil, fmt.Errorf("notification %s: %w", n.ID, d.err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkDelivered records that an event was handed to the notifier.
// Marking an already delivered event is a no-op.
func (s *ModerationStore) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_outbox SET delivered_at = ? WHERE id = ? AND delivered_at IS NULL
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", classify(err))
	}
	return nil
}
