package moderation

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"resonance/internal/metrics"
)

// ReversalInput identifies the action to undo
type ReversalInput struct {
	ActionID string `json:"action_id"`
	Reason   string `json:"reason"`
}

// ReverseAction undoes a moderation action exactly once. Restrictions the
// action put in force are lifted; removed content is not restored. A second
// reversal of the same action fails with MODERATION_INVALID_ACTION.
func (s *Service) ReverseAction(ctx context.Context, actor Actor, in ReversalInput) (action *ModerationAction, err error) {
	ctx, end := span(ctx, "reverse_action", actor.ID)
	defer func() { end(err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateUUID("action_id", in.ActionID); err != nil {
		return nil, err
	}

	original, err := s.store.GetAction(ctx, in.ActionID)
	if err != nil {
		return nil, asEngineError("load action", err)
	}
	if original == nil {
		return nil, notFound("action %s not found", in.ActionID)
	}
	if original.Revoked() {
		return nil, invalidAction("action %s has already been reversed", original.ID)
	}

	op := Operation{Kind: OpReverseAction, Action: original.authority()}
	decision, err := s.authorize(actor, s.subject(original.TargetUserID), op, original.ModeratorID)
	if err != nil {
		return nil, err
	}
	if err := validateText("reason", in.Reason, MaxReasonLength, true); err != nil {
		return nil, err
	}

	now := s.clock()
	var reversed ModerationAction
	lifted := 0
	err = s.store.WithTx(ctx, func(tx Tx) error {
		current, err := tx.GetAction(ctx, original.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("action %s not found", original.ID)
		}
		if current.Revoked() {
			return invalidAction("action %s has already been reversed", current.ID)
		}

		restrictions, err := tx.ListActiveRestrictionsForAction(ctx, current.ID)
		if err != nil {
			return err
		}
		for _, r := range restrictions {
			if r.IsBan() && actor.Role != RoleAdmin {
				return banDenied(OpReverseAction, actor.ID, r.UserID)
			}
			ok, err := tx.DeactivateRestriction(ctx, r.ID, now)
			if err != nil {
				return err
			}
			if ok {
				lifted++
			}
		}

		metadata := make(map[string]string, len(current.Metadata)+4)
		for k, v := range current.Metadata {
			metadata[k] = v
		}
		metadata[MetaSelfReversal] = strconv.FormatBool(decision.SelfReversal)
		metadata[MetaReversalReason] = in.Reason
		metadata[MetaRestrictionsLifted] = strconv.Itoa(lifted)
		if current.ActionType == ActionContentRemoved {
			metadata[MetaContentRestored] = "false"
		}

		ok, err := tx.RevokeAction(ctx, current.ID, now, actor.ID, metadata)
		if err != nil {
			return err
		}
		if !ok {
			return invalidAction("action %s has already been reversed", current.ID)
		}

		if err := tx.LogAction(ctx, audit(AuditActionActionReversed, actor.ID, current.ID, in.Reason, now, map[string]string{
			"action_type":          string(current.ActionType),
			"target_user_id":       current.TargetUserID,
			"original_moderator":   current.ModeratorID,
			MetaSelfReversal:       metadata[MetaSelfReversal],
			MetaRestrictionsLifted: metadata[MetaRestrictionsLifted],
		})); err != nil {
			return err
		}

		if current.TargetUserID != "" {
			if err := tx.EnqueueNotification(ctx, Notification{
				ID:        newTID(),
				UserID:    current.TargetUserID,
				Kind:      NotificationActionReversed,
				ActionID:  strPtr(current.ID),
				Message:   "A moderation action on your account has been reversed.",
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		reversed = *current
		reversed.RevokedAt = &now
		reversed.RevokedBy = strPtr(actor.ID)
		reversed.Metadata = metadata
		return nil
	})
	if err != nil {
		log.Error().Err(err).
			Str("actor", actor.ID).
			Str("action_id", in.ActionID).
			Msg("moderation: failed to reverse action")
		return nil, asEngineError("reverse action", err)
	}

	metrics.ReversalsTotal.WithLabelValues(string(reversed.ActionType), strconv.FormatBool(decision.SelfReversal)).Inc()
	log.Info().
		Str("action_id", reversed.ID).
		Str("actor", actor.ID).
		Str("target", reversed.TargetUserID).
		Bool("self_reversal", decision.SelfReversal).
		Int("restrictions_lifted", lifted).
		Msg("moderation: action reversed")
	return &reversed, nil
}
