package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"resonance/internal/moderation"
)

const restrictionColumns = `id, user_id, restriction_type, expires_at, is_active, reason,
	applied_by, related_action_id, created_at, updated_at`

// ========== Reads ==========

// ListRestrictions returns every restriction recorded for a user, newest first.
// The stored is_active flag is returned as is.
func (s *ModerationStore) ListRestrictions(ctx context.Context, userID string) ([]moderation.UserRestriction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+restrictionColumns+` FROM user_restrictions
		WHERE user_id = ? ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list restrictions: %w", err)
	}
	return collectRestrictions(rows)
}

// HasActiveRestriction reports whether any restriction of the given types is
// flagged active and has not expired at now.
func (s *ModerationStore) HasActiveRestriction(ctx context.Context, userID string, types []moderation.RestrictionType, now time.Time) (bool, error) {
	if len(types) == 0 {
		return false, nil
	}
	args := []any{userID}
	for _, t := range types {
		args = append(args, string(t))
	}
	args = append(args, formatTime(now))

	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_restrictions
			WHERE user_id = ? AND is_active = 1
			  AND restriction_type IN (`+placeholders(len(types))+`)
			  AND (expires_at IS NULL OR expires_at > ?)
		)
	`, args...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active restriction: %w", err)
	}
	return exists == 1, nil
}

// ========== Transactional ==========

func (t *modTx) FindActiveRestriction(ctx context.Context, userID string, restrictionType moderation.RestrictionType) (*moderation.UserRestriction, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT `+restrictionColumns+` FROM user_restrictions
		WHERE user_id = ? AND restriction_type = ? AND is_active = 1
	`, userID, string(restrictionType))
	r, err := scanRestriction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active restriction: %w", err)
	}
	return r, nil
}

func (t *modTx) CreateRestriction(ctx context.Context, r moderation.UserRestriction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO user_restrictions (`+restrictionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, string(r.RestrictionType), formatTimePtr(r.ExpiresAt), boolInt(r.IsActive),
		r.Reason, r.AppliedBy, strArg(r.RelatedActionID), formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create restriction: %w", err)
	}
	return nil
}

// SupersedeRestriction replaces the expiry and provenance of an active row.
// A row that is no longer active means another writer got there first.
func (t *modTx) SupersedeRestriction(ctx context.Context, id string, c moderation.RestrictionChange) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE user_restrictions SET
			expires_at        = ?,
			reason            = ?,
			applied_by        = ?,
			related_action_id = ?,
			updated_at        = ?
		WHERE id = ? AND is_active = 1
	`, formatTimePtr(c.ExpiresAt), c.Reason, c.AppliedBy, strArg(c.RelatedActionID), formatTime(c.UpdatedAt), id)
	if err != nil {
		return fmt.Errorf("supersede restriction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("supersede restriction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("supersede restriction %s: %w", id, moderation.ErrStoreBusy)
	}
	return nil
}

func (t *modTx) DeactivateRestriction(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE user_restrictions SET is_active = 0, updated_at = ?
		WHERE id = ? AND is_active = 1
	`, formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("deactivate restriction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate restriction: %w", err)
	}
	return n == 1, nil
}

func (t *modTx) ListActiveRestrictionsForAction(ctx context.Context, actionID string) ([]moderation.UserRestriction, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT `+restrictionColumns+` FROM user_restrictions
		WHERE related_action_id = ? AND is_active = 1
	`, actionID)
	if err != nil {
		return nil, fmt.Errorf("list action restrictions: %w", err)
	}
	return collectRestrictions(rows)
}

// ListExpiredRestrictions returns rows still flagged active whose expiry is
// at or before now. Permanent rows are never returned.
func (t *modTx) ListExpiredRestrictions(ctx context.Context, types []moderation.RestrictionType, now time.Time) ([]moderation.UserRestriction, error) {
	if len(types) == 0 {
		return nil, nil
	}
	var args []any
	for _, rt := range types {
		args = append(args, string(rt))
	}
	args = append(args, formatTime(now))

	rows, err := t.q.QueryContext(ctx, `
		SELECT `+restrictionColumns+` FROM user_restrictions
		WHERE is_active = 1 AND restriction_type IN (`+placeholders(len(types))+`)
		  AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list expired restrictions: %w", err)
	}
	return collectRestrictions(rows)
}

// ========== Helpers ==========

func collectRestrictions(rows *sql.Rows) ([]moderation.UserRestriction, error) {
	defer rows.Close()
	var out []moderation.UserRestriction
	for rows.Next() {
		r, err := scanRestriction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan restriction: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRestriction(sc scanner) (*moderation.UserRestriction, error) {
	var r moderation.UserRestriction
	var expiresAt, relatedAction sql.NullString
	var active int
	var createdAt, updatedAt string
	err := sc.Scan(&r.ID, &r.UserID, &r.RestrictionType, &expiresAt, &active, &r.Reason,
		&r.AppliedBy, &relatedAction, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	var d rowDecoder
	r.ExpiresAt = d.timePtr("expires_at", expiresAt)
	r.IsActive = active == 1
	r.RelatedActionID = nullStr(relatedAction)
	r.CreatedAt = d.time("created_at", createdAt)
	r.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return nil, fmt.Errorf("restriction %s: %w", r.ID, d.err)
	}
	return &r, nil
}
