package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"resonance/internal/moderation"
)

const reportColumns = `id, reporter_id, reported_user_id, report_type, target_id, reason, description,
	status, priority, moderator_flagged, flagged_by, internal_notes, reviewed_by, reviewed_at,
	resolution_notes, action_taken, version, created_at, updated_at`

var openStatuses = []any{string(moderation.ReportStatusPending), string(moderation.ReportStatusUnderReview)}

// ========== Reads ==========

func (s *ModerationStore) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	return getReport(ctx, s.db, id)
}

func (s *ModerationStore) HasOpenReport(ctx context.Context, reporterID string, reportType moderation.ReportType, targetID string) (bool, error) {
	return hasOpenReport(ctx, s.db, reporterID, reportType, targetID)
}

func (s *ModerationStore) ListQueue(ctx context.Context, filter moderation.QueueFilter) ([]moderation.Report, error) {
	var where []string
	var args []any

	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.ReportType != "" {
		where = append(where, "report_type = ?")
		args = append(args, string(filter.ReportType))
	}
	if filter.Reason != "" {
		where = append(where, "reason = ?")
		args = append(args, string(filter.Reason))
	}
	if filter.MaxPriority > 0 {
		where = append(where, "priority <= ?")
		args = append(args, filter.MaxPriority)
	}
	if filter.ModeratorFlagged != nil {
		where = append(where, "moderator_flagged = ?")
		args = append(args, boolInt(*filter.ModeratorFlagged))
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY moderator_flagged DESC, priority ASC, created_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var reports []moderation.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// ========== Transactional ==========

func (t *modTx) CreateReport(ctx context.Context, r moderation.Report) error {
	var actionTaken any
	if r.ActionTaken != nil {
		actionTaken = string(*r.ActionTaken)
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, strArg(r.ReporterID), strArg(r.ReportedUserID), string(r.ReportType), r.TargetID,
		string(r.Reason), r.Description, string(r.Status), r.Priority, boolInt(r.ModeratorFlagged),
		strArg(r.FlaggedBy), r.InternalNotes, strArg(r.ReviewedBy), formatTimePtr(r.ReviewedAt),
		strArg(r.ResolutionNotes), actionTaken, r.Version, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (t *modTx) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	return getReport(ctx, t.q, id)
}

func (t *modTx) HasOpenReport(ctx context.Context, reporterID string, reportType moderation.ReportType, targetID string) (bool, error) {
	return hasOpenReport(ctx, t.q, reporterID, reportType, targetID)
}

// ResolveReport only matches an open row at the expected version
func (t *modTx) ResolveReport(ctx context.Context, u moderation.ReportResolution) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE reports SET
			status           = ?,
			reviewed_by      = ?,
			reviewed_at      = ?,
			resolution_notes = ?,
			action_taken     = ?,
			version          = version + 1,
			updated_at       = ?
		WHERE id = ? AND version = ? AND status IN (?, ?)
	`, string(u.Status), u.ReviewedBy, formatTime(u.ReviewedAt), strArg(u.ResolutionNotes),
		string(u.ActionTaken), formatTime(u.ReviewedAt), u.ReportID, u.ExpectedVersion,
		openStatuses[0], openStatuses[1])
	if err != nil {
		return false, fmt.Errorf("resolve report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve report: %w", err)
	}
	return n == 1, nil
}

// ========== Helpers ==========

func getReport(ctx context.Context, q querier, id string) (*moderation.Report, error) {
	row := q.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func hasOpenReport(ctx context.Context, q querier, reporterID string, reportType moderation.ReportType, targetID string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reports
			WHERE reporter_id = ? AND report_type = ? AND target_id = ? AND status IN (?, ?)
		)
	`, reporterID, string(reportType), targetID, openStatuses[0], openStatuses[1]).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open report: %w", err)
	}
	return exists == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*moderation.Report, error) {
	var r moderation.Report
	var reporterID, reportedUserID, flaggedBy, reviewedBy, reviewedAt, resolutionNotes, actionTaken sql.NullString
	var flagged int
	var createdAt, updatedAt string
	err := sc.Scan(&r.ID, &reporterID, &reportedUserID, &r.ReportType, &r.TargetID, &r.Reason,
		&r.Description, &r.Status, &r.Priority, &flagged, &flaggedBy, &r.InternalNotes, &reviewedBy,
		&reviewedAt, &resolutionNotes, &actionTaken, &r.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	var d rowDecoder
	r.ReporterID = nullStr(reporterID)
	r.ReportedUserID = nullStr(reportedUserID)
	r.ModeratorFlagged = flagged == 1
	r.FlaggedBy = nullStr(flaggedBy)
	r.ReviewedBy = nullStr(reviewedBy)
	r.ReviewedAt = d.timePtr("reviewed_at", reviewedAt)
	r.ResolutionNotes = nullStr(resolutionNotes)
	if actionTaken.Valid {
		a := moderation.ActionType(actionTaken.String)
		r.ActionTaken = &a
	}
	r.CreatedAt = d.time("created_at", createdAt)
	r.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return nil, fmt.Errorf("report %s: %w", r.ID, d.err)
	}
	return &r, nil
}
