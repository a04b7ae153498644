package moderation

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"resonance/internal/metrics"
)

// ReportInput is a user report submission
type ReportInput struct {
	ReportType     ReportType   `json:"report_type"`
	TargetID       string       `json:"target_id"`
	ReportedUserID *string      `json:"reported_user_id,omitempty"`
	Reason         ReportReason `json:"reason"`
	Description    string       `json:"description,omitempty"`
}

// FlagInput is a moderator flag. Priority overrides the reason-derived value.
type FlagInput struct {
	ReportType     ReportType   `json:"report_type"`
	TargetID       string       `json:"target_id"`
	ReportedUserID *string      `json:"reported_user_id,omitempty"`
	Reason         ReportReason `json:"reason"`
	InternalNotes  string       `json:"internal_notes"`
	Priority       *int         `json:"priority,omitempty"`
}

func validateReportTarget(reportType ReportType, targetID string, reportedUserID *string, reason ReportReason) error {
	if !reportType.Valid() {
		return validationError("unknown report_type %q", reportType)
	}
	if err := validateText("target_id", targetID, MaxTargetIDLength, true); err != nil {
		return err
	}
	if reportedUserID != nil {
		if err := validateUserID("reported_user_id", *reportedUserID); err != nil {
			return err
		}
	}
	if !reason.Valid() {
		return validationError("unknown reason %q", reason)
	}
	return nil
}

// reportedUser returns the user a report points at. A user report targets
// the user itself.
func reportedUser(reportType ReportType, targetID string, reportedUserID *string) *string {
	if reportedUserID != nil {
		return reportedUserID
	}
	if reportType == ReportTypeUser {
		return strPtr(targetID)
	}
	return nil
}

// SubmitReport files a user report. Reports are rate limited per reporter
// and open duplicates from the same reporter are rejected.
func (s *Service) SubmitReport(ctx context.Context, actor Actor, in ReportInput) (report *Report, err error) {
	ctx, end := span(ctx, "submit_report", actor.ID)
	defer func() { end(err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateReportTarget(in.ReportType, in.TargetID, in.ReportedUserID, in.Reason); err != nil {
		return nil, err
	}
	if err := validateText("description", in.Description, MaxDescriptionLength, in.Reason == ReasonOther); err != nil {
		return nil, err
	}
	reported := reportedUser(in.ReportType, in.TargetID, in.ReportedUserID)
	if reported != nil && *reported == actor.ID {
		return nil, validationError("cannot report yourself")
	}
	if _, err := s.authorize(actor, s.subject(deref(reported)), Operation{Kind: OpSubmitReport}, ""); err != nil {
		return nil, err
	}

	dup, err := s.store.HasOpenReport(ctx, actor.ID, in.ReportType, in.TargetID)
	if err != nil {
		log.Error().Err(err).Str("reporter", actor.ID).Msg("moderation: failed to check duplicate")
		return nil, asEngineError("check duplicate report", err)
	}
	if dup {
		return nil, invalidAction("you have already reported this %s", in.ReportType)
	}

	if err := s.checkRate(ctx, actor.ID, BucketReports); err != nil {
		return nil, err
	}

	now := s.clock()
	r := Report{
		ID:             uuid.NewString(),
		ReporterID:     strPtr(actor.ID),
		ReportedUserID: reported,
		ReportType:     in.ReportType,
		TargetID:       in.TargetID,
		Reason:         in.Reason,
		Description:    in.Description,
		Status:         ReportStatusPending,
		Priority:       Priority(in.Reason),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		// Re-check inside the transaction so concurrent duplicates serialize
		dup, err := tx.HasOpenReport(ctx, actor.ID, r.ReportType, r.TargetID)
		if err != nil {
			return err
		}
		if dup {
			return invalidAction("you have already reported this %s", r.ReportType)
		}
		if err := tx.CreateReport(ctx, r); err != nil {
			return err
		}
		return tx.LogAction(ctx, audit(AuditActionReportSubmitted, actor.ID, r.ID, string(r.Reason), now, map[string]string{
			"report_type": string(r.ReportType),
			"target_id":   r.TargetID,
			"priority":    strconv.Itoa(r.Priority),
		}))
	})
	if err != nil {
		log.Error().Err(err).Str("reporter", actor.ID).Msg("moderation: failed to create report")
		return nil, asEngineError("create report", err)
	}

	metrics.ReportsTotal.WithLabelValues("user", string(r.Reason)).Inc()
	log.Info().
		Str("report_id", r.ID).
		Str("reporter", actor.ID).
		Str("target", r.TargetID).
		Str("reason", string(r.Reason)).
		Int("priority", r.Priority).
		Msg("moderation: report submitted")
	return &r, nil
}

// FlagContent creates a report on behalf of a moderator. Flags skip the
// pending state and are not rate limited.
func (s *Service) FlagContent(ctx context.Context, actor Actor, in FlagInput) (report *Report, err error) {
	ctx, end := span(ctx, "flag_content", actor.ID)
	defer func() { end(err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateReportTarget(in.ReportType, in.TargetID, in.ReportedUserID, in.Reason); err != nil {
		return nil, err
	}
	if err := validateText("internal_notes", in.InternalNotes, MaxInternalNotesLength, false); err != nil {
		return nil, err
	}
	priority := Priority(in.Reason)
	if in.Priority != nil {
		if *in.Priority < PriorityHighest || *in.Priority > PriorityLowest {
			return nil, validationError("priority must be between %d and %d", PriorityHighest, PriorityLowest)
		}
		priority = *in.Priority
	}
	reported := reportedUser(in.ReportType, in.TargetID, in.ReportedUserID)
	if _, err := s.authorize(actor, s.subject(deref(reported)), Operation{Kind: OpFlagContent}, ""); err != nil {
		return nil, err
	}

	now := s.clock()
	r := Report{
		ID:               uuid.NewString(),
		ReportedUserID:   reported,
		ReportType:       in.ReportType,
		TargetID:         in.TargetID,
		Reason:           in.Reason,
		Status:           ReportStatusUnderReview,
		Priority:         priority,
		ModeratorFlagged: true,
		FlaggedBy:        strPtr(actor.ID),
		InternalNotes:    in.InternalNotes,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.CreateReport(ctx, r); err != nil {
			return err
		}
		return tx.LogAction(ctx, audit(AuditActionContentFlagged, actor.ID, r.ID, string(r.Reason), now, map[string]string{
			"report_type": string(r.ReportType),
			"target_id":   r.TargetID,
			"priority":    strconv.Itoa(r.Priority),
		}))
	})
	if err != nil {
		log.Error().Err(err).Str("moderator", actor.ID).Msg("moderation: failed to create flag")
		return nil, asEngineError("create flag", err)
	}

	metrics.ReportsTotal.WithLabelValues("moderator", string(r.Reason)).Inc()
	log.Info().
		Str("report_id", r.ID).
		Str("moderator", actor.ID).
		Str("target", r.TargetID).
		Int("priority", r.Priority).
		Msg("moderation: content flagged")
	return &r, nil
}

// FetchModerationQueue lists open reports ordered moderator-flagged first,
// then by priority, then oldest first. Staff only.
func (s *Service) FetchModerationQueue(ctx context.Context, actor Actor, filter QueueFilter) (reports []Report, err error) {
	ctx, end := span(ctx, "fetch_queue", actor.ID)
	defer func() { end(err) }()

	if err := requireStaff(actor, OpViewQueue); err != nil {
		return nil, err
	}
	limit, offset, err := pageBounds(filter.Limit, filter.Offset, MaxPageSize)
	if err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = limit, offset
	if len(filter.Statuses) == 0 {
		filter.Statuses = []ReportStatus{ReportStatusPending, ReportStatusUnderReview}
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, validationError("unknown status %q", st)
		}
	}
	if filter.ReportType != "" && !filter.ReportType.Valid() {
		return nil, validationError("unknown report_type %q", filter.ReportType)
	}
	if filter.Reason != "" && !filter.Reason.Valid() {
		return nil, validationError("unknown reason %q", filter.Reason)
	}
	if filter.MaxPriority < 0 || filter.MaxPriority > PriorityLowest {
		return nil, validationError("max_priority must be between %d and %d", PriorityHighest, PriorityLowest)
	}

	reports, err = s.store.ListQueue(ctx, filter)
	if err != nil {
		return nil, asEngineError("list queue", err)
	}
	if reports == nil {
		reports = []Report{}
	}
	return reports, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
