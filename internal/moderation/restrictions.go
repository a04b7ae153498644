package moderation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"resonance/internal/metrics"
)

// CanUserPerformAction reports whether userID may use capability. A
// suspension blocks every capability. Expiry is checked against the current
// time, so a lapsed restriction never blocks even before the scheduler runs.
func (s *Service) CanUserPerformAction(ctx context.Context, userID string, capability Capability) (bool, error) {
	if err := validateUserID("user_id", userID); err != nil {
		return false, err
	}
	restrictionType, ok := capability.RestrictionFor()
	if !ok {
		return false, validationError("unknown action %q", capability)
	}

	restricted, err := s.store.HasActiveRestriction(ctx, userID, []RestrictionType{restrictionType, RestrictionSuspended}, s.clock())
	if err != nil {
		return false, asEngineError("check restrictions", err)
	}
	return !restricted, nil
}

// CheckUserRestrictions returns every restriction recorded for userID, with
// IsActive reflecting expiry at the current time. Staff may look up anyone;
// users may look up themselves.
func (s *Service) CheckUserRestrictions(ctx context.Context, actor Actor, userID string) ([]UserRestriction, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateUserID("user_id", userID); err != nil {
		return nil, err
	}
	if actor.ID != userID {
		if _, err := s.authorize(actor, s.subject(userID), Operation{Kind: OpViewUser}, ""); err != nil {
			return nil, err
		}
	}

	restrictions, err := s.store.ListRestrictions(ctx, userID)
	if err != nil {
		return nil, asEngineError("list restrictions", err)
	}
	now := s.clock()
	out := make([]UserRestriction, 0, len(restrictions))
	for _, r := range restrictions {
		r.IsActive = r.ActiveAt(now)
		out = append(out, r)
	}
	return out, nil
}

// capabilityRestrictions are the restriction types retired by ExpireRestrictions
var capabilityRestrictions = []RestrictionType{
	RestrictionPostingDisabled,
	RestrictionCommentingDisabled,
	RestrictionUploadDisabled,
}

// ExpireRestrictions deactivates capability restrictions past their expiry
// and emits one expiration event per row. Safe to run repeatedly.
func (s *Service) ExpireRestrictions(ctx context.Context) (int, error) {
	return s.expire(ctx, "restrictions", capabilityRestrictions)
}

// ExpireSuspensions deactivates suspensions past their expiry. Permanent
// suspensions never expire.
func (s *Service) ExpireSuspensions(ctx context.Context) (int, error) {
	return s.expire(ctx, "suspensions", []RestrictionType{RestrictionSuspended})
}

func (s *Service) expire(ctx context.Context, kind string, types []RestrictionType) (count int, err error) {
	ctx, end := span(ctx, "expire_"+kind, SystemActorID)
	defer func() { end(err) }()

	now := s.clock()
	err = s.store.WithTx(ctx, func(tx Tx) error {
		count = 0
		expired, err := tx.ListExpiredRestrictions(ctx, types, now)
		if err != nil {
			return err
		}
		for _, r := range expired {
			ok, err := expireRow(ctx, tx, r, now)
			if err != nil {
				return err
			}
			if ok {
				count++
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("moderation: failed to expire restrictions")
		return 0, asEngineError("expire "+kind, err)
	}

	if count > 0 {
		metrics.ExpirationsTotal.WithLabelValues(kind).Add(float64(count))
		log.Info().Int("count", count).Str("kind", kind).Msg("moderation: restrictions expired")
	}
	return count, nil
}

// expireRow flips a lapsed restriction off, audits it and notifies the user.
// It reports false when the row was already inactive.
func expireRow(ctx context.Context, tx Tx, r UserRestriction, now time.Time) (bool, error) {
	ok, err := tx.DeactivateRestriction(ctx, r.ID, now)
	if err != nil || !ok {
		return false, err
	}
	if err := tx.LogAction(ctx, audit(AuditActionRestrictionExpired, SystemActorID, r.UserID, r.Reason, now, map[string]string{
		"restriction_id":   r.ID,
		"restriction_type": string(r.RestrictionType),
		"expires_at":       formatExpiry(r.ExpiresAt),
	})); err != nil {
		return false, err
	}
	if err := tx.EnqueueNotification(ctx, Notification{
		ID:            newTID(),
		UserID:        r.UserID,
		Kind:          NotificationRestrictionExpired,
		RestrictionID: strPtr(r.ID),
		Message:       expiredMessage(r.RestrictionType),
		CreatedAt:     now,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func expiredMessage(t RestrictionType) string {
	if t == RestrictionSuspended {
		return "Your suspension has ended."
	}
	return "A restriction on your account has expired."
}
