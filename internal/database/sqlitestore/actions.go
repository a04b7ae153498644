package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resonance/internal/moderation"
)

const actionColumns = `id, moderator_id, target_user_id, action_type, target_type, target_id, reason,
	duration_days, expires_at, related_report_id, internal_notes, notification_sent,
	notification_message, created_at, revoked_at, revoked_by, metadata`

// ========== Reads ==========

func (s *ModerationStore) GetAction(ctx context.Context, id string) (*moderation.ModerationAction, error) {
	return getAction(ctx, s.db, id)
}

// ListActions returns one page of actions, newest first, and the total
// number of actions matching the filter.
func (s *ModerationStore) ListActions(ctx context.Context, filter moderation.LogFilter) ([]moderation.ModerationAction, int, error) {
	var where []string
	var args []any

	if filter.ModeratorID != "" {
		where = append(where, "moderator_id = ?")
		args = append(args, filter.ModeratorID)
	}
	if filter.TargetUserID != "" {
		where = append(where, "target_user_id = ?")
		args = append(args, filter.TargetUserID)
	}
	if filter.ActionType != "" {
		where = append(where, "action_type = ?")
		args = append(args, string(filter.ActionType))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(*filter.Until))
	}
	if filter.Revoked != nil {
		if *filter.Revoked {
			where = append(where, "revoked_at IS NOT NULL")
		} else {
			where = append(where, "revoked_at IS NULL")
		}
	}

	clause := ""
	if len(where) > 0 {
		clause = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM moderation_actions`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count actions: %w", err)
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+actionColumns+` FROM moderation_actions`+clause+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []moderation.ModerationAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return actions, total, nil
}

// ========== Transactional ==========

func (t *modTx) CreateAction(ctx context.Context, a moderation.ModerationAction) error {
	metadata, err := encodeMetadata(a.Metadata)
	if err != nil {
		return err
	}
	var targetType, durationDays any
	if a.TargetType != nil {
		targetType = string(*a.TargetType)
	}
	if a.DurationDays != nil {
		durationDays = *a.DurationDays
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO moderation_actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ModeratorID, a.TargetUserID, string(a.ActionType), targetType, strArg(a.TargetID),
		a.Reason, durationDays, formatTimePtr(a.ExpiresAt), strArg(a.RelatedReportID),
		strArg(a.InternalNotes), boolInt(a.NotificationSent), strArg(a.NotificationMessage),
		formatTime(a.CreatedAt), formatTimePtr(a.RevokedAt), strArg(a.RevokedBy), metadata)
	if err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

func (t *modTx) GetAction(ctx context.Context, id string) (*moderation.ModerationAction, error) {
	return getAction(ctx, t.q, id)
}

// RevokeAction only matches a row that has not been revoked yet
func (t *modTx) RevokeAction(ctx context.Context, id string, revokedAt time.Time, revokedBy string, metadata map[string]string) (bool, error) {
	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return false, err
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE moderation_actions SET revoked_at = ?, revoked_by = ?, metadata = ?
		WHERE id = ? AND revoked_at IS NULL
	`, formatTime(revokedAt), revokedBy, encoded, id)
	if err != nil {
		return false, fmt.Errorf("revoke action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke action: %w", err)
	}
	return n == 1, nil
}

// ========== Helpers ==========

func getAction(ctx context.Context, q querier, id string) (*moderation.ModerationAction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM moderation_actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

func scanAction(sc scanner) (*moderation.ModerationAction, error) {
	var a moderation.ModerationAction
	var targetType, targetID, expiresAt, relatedReport, internalNotes, notificationMessage, revokedAt, revokedBy sql.NullString
	var durationDays sql.NullInt64
	var notificationSent int
	var createdAt, metadata string
	err := sc.Scan(&a.ID, &a.ModeratorID, &a.TargetUserID, &a.ActionType, &targetType, &targetID,
		&a.Reason, &durationDays, &expiresAt, &relatedReport, &internalNotes, &notificationSent,
		&notificationMessage, &createdAt, &revokedAt, &revokedBy, &metadata)
	if err != nil {
		return nil, err
	}
	var d rowDecoder
	if targetType.Valid {
		tt := moderation.ReportType(targetType.String)
		a.TargetType = &tt
	}
	a.TargetID = nullStr(targetID)
	if durationDays.Valid {
		d := int(durationDays.Int64)
		a.DurationDays = &d
	}
	a.ExpiresAt = d.timePtr("expires_at", expiresAt)
	a.RelatedReportID = nullStr(relatedReport)
	a.InternalNotes = nullStr(internalNotes)
	a.NotificationSent = notificationSent == 1
	a.NotificationMessage = nullStr(notificationMessage)
	a.CreatedAt = d.time("created_at", createdAt)
	a.RevokedAt = d.timePtr("revoked_at", revokedAt)
	a.RevokedBy = nullStr(revokedBy)
	d.json("metadata", metadata, &a.Metadata)
	if d.err != nil {
		return nil, fmt.Errorf("action %s: %w", a.ID, d.err)
	}
	return &a, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}
