package moderation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"resonance/internal/metrics"
)

// ActionInput describes a moderation action taken against a report.
// TargetUserID falls back to the report's reported user when empty.
// RestrictionType is required for restriction_applied.
type ActionInput struct {
	ReportID             string          `json:"report_id"`
	ActionType           ActionType      `json:"action_type"`
	TargetUserID         string          `json:"target_user_id,omitempty"`
	Reason               string          `json:"reason"`
	DurationDays         *int            `json:"duration_days,omitempty"`
	RestrictionType      RestrictionType `json:"restriction_type,omitempty"`
	InternalNotes        *string         `json:"internal_notes,omitempty"`
	NotificationMessage  *string         `json:"notification_message,omitempty"`
	SuppressNotification bool            `json:"suppress_notification,omitempty"`
}

// RestrictionInput describes a direct restriction on a user
type RestrictionInput struct {
	UserID           string          `json:"user_id"`
	RestrictionType  RestrictionType `json:"restriction_type"`
	Reason           string          `json:"reason"`
	DurationDays     *int            `json:"duration_days,omitempty"`
	RelatedActionID  *string         `json:"related_action_id,omitempty"`
	SendNotification bool            `json:"send_notification,omitempty"`
}

// restrictionPlan is the restriction an action writes, if any
type restrictionPlan struct {
	restrictionType RestrictionType
	expiresAt       *time.Time
}

// planRestriction maps an action to the restriction it writes. Every action
// type is listed so a new one fails loudly here.
func planRestriction(in ActionInput, now time.Time) (*restrictionPlan, error) {
	switch in.ActionType {
	case ActionContentRemoved, ActionContentApproved, ActionUserWarned:
		return nil, nil
	case ActionUserSuspended:
		return &restrictionPlan{restrictionType: RestrictionSuspended, expiresAt: expiryFrom(now, in.DurationDays)}, nil
	case ActionRestrictionApplied:
		return &restrictionPlan{restrictionType: in.RestrictionType, expiresAt: expiryFrom(now, in.DurationDays)}, nil
	case ActionUserBanned:
		return &restrictionPlan{restrictionType: RestrictionSuspended}, nil
	}
	return nil, fmt.Errorf("unhandled action type %q", in.ActionType)
}

// authorityFor returns the action type whose authority governs writing
// restrictionType for days. A permanent suspension is a ban whichever
// path writes it.
func authorityFor(t ActionType, restrictionType RestrictionType, days *int) ActionType {
	if restrictionType == RestrictionSuspended && days == nil {
		return ActionUserBanned
	}
	return t
}

// plannedRestrictionType is the restriction type an action input writes
func plannedRestrictionType(in ActionInput) RestrictionType {
	switch in.ActionType {
	case ActionUserSuspended, ActionUserBanned:
		return RestrictionSuspended
	case ActionRestrictionApplied:
		return in.RestrictionType
	}
	return ""
}

// reportOutcome is the terminal status an action moves its report to
func reportOutcome(t ActionType) ReportStatus {
	if t == ActionContentApproved {
		return ReportStatusDismissed
	}
	return ReportStatusResolved
}

func needsUserTarget(t ActionType) bool {
	switch t {
	case ActionUserWarned, ActionUserSuspended, ActionUserBanned, ActionRestrictionApplied:
		return true
	}
	return false
}

func validateActionInput(in ActionInput) error {
	if err := validateText("reason", in.Reason, MaxReasonLength, true); err != nil {
		return err
	}
	if err := validateOptionalText("internal_notes", in.InternalNotes, MaxInternalNotesLength); err != nil {
		return err
	}
	if err := validateOptionalText("notification_message", in.NotificationMessage, MaxNotificationMessageLength); err != nil {
		return err
	}
	switch in.ActionType {
	case ActionUserSuspended:
		if err := validateDuration(in.DurationDays); err != nil {
			return err
		}
	case ActionRestrictionApplied:
		if !in.RestrictionType.Valid() {
			return validationError("restriction_type is required for %s", in.ActionType)
		}
		if err := validateDuration(in.DurationDays); err != nil {
			return err
		}
	default:
		if in.DurationDays != nil {
			return validationError("duration_days is not allowed for %s", in.ActionType)
		}
	}
	return nil
}

// TakeModerationAction applies an action to a report. Validation,
// authorization and rate limiting fail fast with no side effects; the
// effect, the action row, the report resolution, the audit entries and the
// notification event commit together or not at all.
func (s *Service) TakeModerationAction(ctx context.Context, actor Actor, in ActionInput) (action *ModerationAction, err error) {
	ctx, end := span(ctx, "take_action", actor.ID)
	defer func() { end(err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateUUID("report_id", in.ReportID); err != nil {
		return nil, err
	}
	if !in.ActionType.Valid() {
		return nil, validationError("unknown action_type %q", in.ActionType)
	}

	report, err := s.store.GetReport(ctx, in.ReportID)
	if err != nil {
		return nil, asEngineError("load report", err)
	}
	if report == nil {
		return nil, notFound("report %s not found", in.ReportID)
	}
	if report.Status.Terminal() {
		return nil, invalidAction("report %s is already %s", report.ID, report.Status)
	}

	targetUserID := in.TargetUserID
	if targetUserID == "" {
		targetUserID = deref(report.ReportedUserID)
	}
	if targetUserID != "" {
		if err := validateUserID("target_user_id", targetUserID); err != nil {
			return nil, err
		}
	} else if needsUserTarget(in.ActionType) {
		return nil, validationError("target_user_id is required for %s", in.ActionType)
	}

	authority := authorityFor(in.ActionType, plannedRestrictionType(in), in.DurationDays)
	if _, err := s.authorize(actor, s.subject(targetUserID), Operation{Kind: OpApplyAction, Action: authority}, ""); err != nil {
		return nil, err
	}
	if err := s.checkRate(ctx, actor.ID, BucketActions); err != nil {
		return nil, err
	}
	if err := validateActionInput(in); err != nil {
		return nil, err
	}
	if in.ActionType == ActionContentRemoved {
		if report.ReportType == ReportTypeUser {
			return nil, invalidAction("cannot remove content for a user report")
		}
		if s.content == nil {
			return nil, invalidAction("content removal is not available")
		}
	}

	now := s.clock()
	plan, err := planRestriction(in, now)
	if err != nil {
		return nil, validationError("%s", err.Error())
	}

	notify := !in.SuppressNotification && in.ActionType != ActionContentApproved
	a := ModerationAction{
		ID:                  uuid.NewString(),
		ModeratorID:         actor.ID,
		TargetUserID:        targetUserID,
		ActionType:          in.ActionType,
		TargetType:          &report.ReportType,
		TargetID:            strPtr(report.TargetID),
		Reason:              in.Reason,
		DurationDays:        in.DurationDays,
		RelatedReportID:     strPtr(report.ID),
		InternalNotes:       nonEmptyPtr(in.InternalNotes),
		NotificationSent:    notify,
		NotificationMessage: nonEmptyPtr(in.NotificationMessage),
		CreatedAt:           now,
		Metadata:            map[string]string{},
	}
	if plan != nil {
		a.ExpiresAt = plan.expiresAt
		a.Metadata[MetaRestrictionType] = string(plan.restrictionType)
	}

	var written *upsertResult
	err = s.store.WithTx(ctx, func(tx Tx) error {
		current, err := tx.GetReport(ctx, report.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("report %s not found", report.ID)
		}
		if current.Status.Terminal() {
			return invalidAction("report %s is already %s", current.ID, current.Status)
		}

		if plan != nil {
			written, err = s.upsertRestriction(ctx, tx, restrictionWrite{
				userID:          targetUserID,
				restrictionType: plan.restrictionType,
				expiresAt:       plan.expiresAt,
				reason:          in.Reason,
				appliedBy:       actor.ID,
				actorRole:       actor.Role,
				actionID:        a.ID,
				now:             now,
			})
			if err != nil {
				return err
			}
			if written.updated {
				a.Metadata[MetaRestrictionUpdated] = "true"
				a.Metadata[MetaSupersededExpiresAt] = formatExpiry(written.previousExpiry)
			}
		}

		if err := tx.CreateAction(ctx, a); err != nil {
			return err
		}

		ok, err := tx.ResolveReport(ctx, ReportResolution{
			ReportID:        current.ID,
			ExpectedVersion: current.Version,
			Status:          reportOutcome(a.ActionType),
			ReviewedBy:      actor.ID,
			ReviewedAt:      now,
			ResolutionNotes: strPtr(in.Reason),
			ActionTaken:     a.ActionType,
		})
		if err != nil {
			return err
		}
		if !ok {
			return newError(KindConcurrentModification, "report %s changed while the action was applied", current.ID)
		}

		if err := tx.LogAction(ctx, audit(AuditActionActionTaken, actor.ID, current.ID, in.Reason, now, map[string]string{
			"action_id":      a.ID,
			"action_type":    string(a.ActionType),
			"target_user_id": targetUserID,
		})); err != nil {
			return err
		}
		if written != nil {
			if err := tx.LogAction(ctx, written.auditEntry(actor.ID, in.Reason, now)); err != nil {
				return err
			}
		}

		if notify && targetUserID != "" {
			if err := tx.EnqueueNotification(ctx, Notification{
				ID:        newTID(),
				UserID:    targetUserID,
				Kind:      NotificationActionTaken,
				ActionID:  strPtr(a.ID),
				Message:   actionMessage(a),
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		// Content removal is the last step so an earlier failure never deletes content
		if a.ActionType == ActionContentRemoved {
			if err := s.content.RemoveContent(ctx, report.ReportType, report.TargetID, a.ID); err != nil {
				return fmt.Errorf("remove content: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).
			Str("moderator", actor.ID).
			Str("report_id", report.ID).
			Str("action_type", string(in.ActionType)).
			Msg("moderation: failed to apply action")
		return nil, asEngineError("apply action", err)
	}

	metrics.ActionsTotal.WithLabelValues(string(a.ActionType)).Inc()
	if written != nil {
		metrics.RestrictionsAppliedTotal.WithLabelValues(string(written.restriction.RestrictionType), written.outcome()).Inc()
	}
	log.Info().
		Str("action_id", a.ID).
		Str("moderator", actor.ID).
		Str("target", targetUserID).
		Str("action_type", string(a.ActionType)).
		Str("report_id", report.ID).
		Msg("moderation: action taken")
	return &a, nil
}

// ApplyRestriction restricts a user directly. Without a related action the
// restriction gets its own action row so every restriction is reversible.
func (s *Service) ApplyRestriction(ctx context.Context, actor Actor, in RestrictionInput) (restriction *UserRestriction, err error) {
	ctx, end := span(ctx, "apply_restriction", actor.ID)
	defer func() { end(err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateUserID("user_id", in.UserID); err != nil {
		return nil, err
	}
	if !in.RestrictionType.Valid() {
		return nil, validationError("unknown restriction_type %q", in.RestrictionType)
	}
	if in.RelatedActionID != nil {
		if err := validateUUID("related_action_id", *in.RelatedActionID); err != nil {
			return nil, err
		}
	}

	actionType := ActionRestrictionApplied
	if in.RestrictionType == RestrictionSuspended {
		actionType = authorityFor(ActionUserSuspended, in.RestrictionType, in.DurationDays)
	}
	op := Operation{Kind: OpApplyRestrict, Action: actionType}
	if _, err := s.authorize(actor, s.subject(in.UserID), op, ""); err != nil {
		return nil, err
	}
	if err := s.checkRate(ctx, actor.ID, BucketActions); err != nil {
		return nil, err
	}
	if err := validateText("reason", in.Reason, MaxReasonLength, true); err != nil {
		return nil, err
	}
	if err := validateDuration(in.DurationDays); err != nil {
		return nil, err
	}

	now := s.clock()
	expiresAt := expiryFrom(now, in.DurationDays)

	var written *upsertResult
	var created *ModerationAction
	err = s.store.WithTx(ctx, func(tx Tx) error {
		actionID := ""
		if in.RelatedActionID != nil {
			related, err := tx.GetAction(ctx, *in.RelatedActionID)
			if err != nil {
				return err
			}
			if related == nil {
				return notFound("action %s not found", *in.RelatedActionID)
			}
			if related.Revoked() {
				return invalidAction("action %s has been reversed", related.ID)
			}
			if related.TargetUserID != in.UserID {
				return validationError("action %s targets a different user", related.ID)
			}
			actionID = related.ID
		} else {
			created = &ModerationAction{
				ID:               uuid.NewString(),
				ModeratorID:      actor.ID,
				TargetUserID:     in.UserID,
				ActionType:       actionType,
				Reason:           in.Reason,
				DurationDays:     in.DurationDays,
				ExpiresAt:        expiresAt,
				NotificationSent: in.SendNotification,
				CreatedAt:        now,
				Metadata:         map[string]string{MetaRestrictionType: string(in.RestrictionType)},
			}
			actionID = created.ID
		}

		var err error
		written, err = s.upsertRestriction(ctx, tx, restrictionWrite{
			userID:          in.UserID,
			restrictionType: in.RestrictionType,
			expiresAt:       expiresAt,
			reason:          in.Reason,
			appliedBy:       actor.ID,
			actorRole:       actor.Role,
			actionID:        actionID,
			now:             now,
		})
		if err != nil {
			return err
		}

		if created != nil {
			if written.updated {
				created.Metadata[MetaRestrictionUpdated] = "true"
				created.Metadata[MetaSupersededExpiresAt] = formatExpiry(written.previousExpiry)
			}
			if err := tx.CreateAction(ctx, *created); err != nil {
				return err
			}
		}

		entry := written.auditEntry(actor.ID, in.Reason, now)
		entry.Details["action_id"] = actionID
		if err := tx.LogAction(ctx, entry); err != nil {
			return err
		}

		if in.SendNotification {
			if err := tx.EnqueueNotification(ctx, Notification{
				ID:            newTID(),
				UserID:        in.UserID,
				Kind:          NotificationRestrictionApplied,
				ActionID:      strPtr(actionID),
				RestrictionID: strPtr(written.restriction.ID),
				Message:       restrictionMessage(written.restriction),
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).
			Str("moderator", actor.ID).
			Str("user", in.UserID).
			Str("restriction_type", string(in.RestrictionType)).
			Msg("moderation: failed to apply restriction")
		return nil, asEngineError("apply restriction", err)
	}

	if created != nil {
		metrics.ActionsTotal.WithLabelValues(string(created.ActionType)).Inc()
	}
	metrics.RestrictionsAppliedTotal.WithLabelValues(string(in.RestrictionType), written.outcome()).Inc()
	log.Info().
		Str("restriction_id", written.restriction.ID).
		Str("moderator", actor.ID).
		Str("user", in.UserID).
		Str("restriction_type", string(in.RestrictionType)).
		Bool("updated", written.updated).
		Msg("moderation: restriction applied")
	return &written.restriction, nil
}

// restrictionWrite is a request to set a restriction on a user
type restrictionWrite struct {
	userID          string
	restrictionType RestrictionType
	expiresAt       *time.Time
	reason          string
	appliedBy       string
	actorRole       Role
	actionID        string
	now             time.Time
}

type upsertResult struct {
	restriction    UserRestriction
	updated        bool
	previousExpiry *time.Time
}

func (r *upsertResult) outcome() string {
	if r.updated {
		return "updated"
	}
	return "created"
}

func (r *upsertResult) auditEntry(actorID, reason string, now time.Time) AuditEntry {
	kind := AuditActionRestrictionApplied
	details := map[string]string{
		"restriction_id":   r.restriction.ID,
		"restriction_type": string(r.restriction.RestrictionType),
		"expires_at":       formatExpiry(r.restriction.ExpiresAt),
	}
	if r.updated {
		kind = AuditActionRestrictionUpdated
		details["note"] = "updated"
		details["previous_expires_at"] = formatExpiry(r.previousExpiry)
	}
	return audit(kind, actorID, r.restriction.UserID, reason, now, details)
}

// upsertRestriction keeps at most one active restriction per user and type.
// An active row has its expiry replaced from now; a row that has lazily
// expired is retired and a fresh row is written. Only an admin may give an
// active ban an expiry.
func (s *Service) upsertRestriction(ctx context.Context, tx Tx, w restrictionWrite) (*upsertResult, error) {
	existing, err := tx.FindActiveRestriction(ctx, w.userID, w.restrictionType)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.ActiveAt(w.now) {
		if existing.IsBan() && w.expiresAt != nil && w.actorRole != RoleAdmin {
			return nil, banDenied(OpApplyRestrict, w.appliedBy, w.userID)
		}
		change := RestrictionChange{
			ExpiresAt:       w.expiresAt,
			Reason:          w.reason,
			AppliedBy:       w.appliedBy,
			RelatedActionID: strPtr(w.actionID),
			UpdatedAt:       w.now,
		}
		if err := tx.SupersedeRestriction(ctx, existing.ID, change); err != nil {
			return nil, err
		}
		res := &upsertResult{restriction: *existing, updated: true, previousExpiry: existing.ExpiresAt}
		res.restriction.ExpiresAt = w.expiresAt
		res.restriction.Reason = w.reason
		res.restriction.AppliedBy = w.appliedBy
		res.restriction.RelatedActionID = strPtr(w.actionID)
		res.restriction.UpdatedAt = w.now
		return res, nil
	}

	if existing != nil {
		if _, err := expireRow(ctx, tx, *existing, w.now); err != nil {
			return nil, err
		}
	}

	r := UserRestriction{
		ID:              uuid.NewString(),
		UserID:          w.userID,
		RestrictionType: w.restrictionType,
		ExpiresAt:       w.expiresAt,
		IsActive:        true,
		Reason:          w.reason,
		AppliedBy:       w.appliedBy,
		RelatedActionID: strPtr(w.actionID),
		CreatedAt:       w.now,
		UpdatedAt:       w.now,
	}
	if err := tx.CreateRestriction(ctx, r); err != nil {
		return nil, err
	}
	return &upsertResult{restriction: r}, nil
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "permanent"
	}
	return t.UTC().Format(time.RFC3339)
}

func actionMessage(a ModerationAction) string {
	if a.NotificationMessage != nil {
		return *a.NotificationMessage
	}
	switch a.ActionType {
	case ActionContentRemoved:
		return "Your content was removed for violating community guidelines."
	case ActionUserWarned:
		return "You have received a warning from the moderation team."
	case ActionUserSuspended:
		if a.DurationDays != nil {
			return "Your account has been suspended for " + strconv.Itoa(*a.DurationDays) + " days."
		}
		return "Your account has been suspended."
	case ActionUserBanned:
		return "Your account has been banned."
	case ActionRestrictionApplied:
		return "A restriction has been applied to your account."
	case ActionContentApproved:
		return "Your content was reviewed and approved."
	}
	return "A moderation action was applied to your account."
}

func restrictionMessage(r UserRestriction) string {
	switch r.RestrictionType {
	case RestrictionPostingDisabled:
		return "Posting has been disabled on your account."
	case RestrictionCommentingDisabled:
		return "Commenting has been disabled on your account."
	case RestrictionUploadDisabled:
		return "Uploads have been disabled on your account."
	case RestrictionSuspended:
		return "Your account has been suspended."
	}
	return "A restriction has been applied to your account."
}
