package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"resonance/internal/metrics"
	"resonance/internal/tracing"
)

// Page size bounds for read operations
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	MaxAuditLimit   = 500
)

// ServiceConfig holds the collaborators of a Service
type ServiceConfig struct {
	Store   Store
	Roles   RoleResolver
	Limiter *RateLimiter
	// Content is invoked for content_removed actions. Optional; when nil,
	// content_removed is rejected.
	Content ContentRemover
	// Now defaults to time.Now
	Now func() time.Time
}

// Service is the moderation engine. It owns report intake, the queue, the
// action and reversal state machines and the restriction reads. The actor is
// passed on every call; the service holds no session state.
type Service struct {
	store   Store
	roles   RoleResolver
	limiter *RateLimiter
	content ContentRemover
	guard   Guard
	now     func() time.Time
}

// NewService creates a moderation engine
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("moderation: store is required")
	}
	if cfg.Roles == nil {
		return nil, errors.New("moderation: role resolver is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("moderation: rate limiter is required")
	}
	now := cfg.Now
	limiter := cfg.Limiter
	if now == nil {
		now = time.Now
	} else {
		// Limiter windows follow the engine clock
		limiter = limiter.WithClock(now)
	}
	return &Service{
		store:   cfg.Store,
		roles:   cfg.Roles,
		limiter: limiter,
		content: cfg.Content,
		now:     now,
	}, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// subject resolves the role of a target user
func (s *Service) subject(userID string) Subject {
	if userID == "" {
		return Subject{}
	}
	return Subject{ID: userID, Role: s.roles.RoleOf(userID)}
}

func (s *Service) authorize(actor Actor, target Subject, op Operation, originalModeratorID string) (Decision, error) {
	d := s.guard.Authorize(actor, target, op, originalModeratorID)
	if !d.Allowed {
		metrics.AuthorizationDenialsTotal.WithLabelValues(string(op.Kind)).Inc()
		log.Warn().
			Str("actor", actor.ID).
			Str("role", string(actor.Role)).
			Str("target", target.ID).
			Str("operation", op.String()).
			Str("reason", d.Reason).
			Msg("moderation: denied")
		return d, d.Err()
	}
	return d, nil
}

// banDenied rejects a non-admin write that would lift or shorten a ban
func banDenied(kind OperationKind, actorID, targetID string) error {
	metrics.AuthorizationDenialsTotal.WithLabelValues(string(kind)).Inc()
	log.Warn().
		Str("actor", actorID).
		Str("target", targetID).
		Str("operation", string(kind)).
		Msg("moderation: denied, target is banned")
	return newError(KindInsufficientPermission, "only admins may ban or unban users")
}

func (s *Service) checkRate(ctx context.Context, actorID string, bucket Bucket) error {
	allowed, err := s.limiter.CheckAndIncrement(ctx, actorID, bucket)
	if err != nil {
		log.Error().Err(err).Str("actor", actorID).Str("bucket", string(bucket)).Msg("moderation: failed to check rate limit")
		return asEngineError("check rate limit", err)
	}
	if !allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues(string(bucket)).Inc()
		return newError(KindRateLimitExceeded, "%s limit reached, try again later", bucket)
	}
	return nil
}

func requireActor(actor Actor) error {
	if actor.ID == "" {
		return newError(KindUnauthorized, "authentication required")
	}
	return nil
}

func requireStaff(actor Actor, op OperationKind) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return Guard{}.Authorize(actor, Subject{}, Operation{Kind: op}, "").Err()
}

func pageBounds(limit, offset, max int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, validationError("limit and offset must not be negative")
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit > max {
		limit = max
	}
	return limit, offset, nil
}

// span starts an engine span; finish ends it and records err
func span(ctx context.Context, op string, actorID string) (context.Context, func(error)) {
	ctx, sp := tracing.EngineSpan(ctx, op, actorID)
	return ctx, func(err error) {
		finish(sp, err)
	}
}

func finish(sp trace.Span, err error) {
	tracing.EndWithError(sp, err)
	sp.End()
}

// tidClock never hands out the same identifier twice within a process
var tidClock = syntax.NewTIDClock(0)

// newTID returns a sortable timestamp identifier for audit and outbox rows
func newTID() string {
	return tidClock.Next().String()
}

func audit(action AuditAction, actorID, targetID, reason string, now time.Time, details map[string]string) AuditEntry {
	return AuditEntry{
		ID:        newTID(),
		Action:    action,
		ActorID:   actorID,
		TargetID:  targetID,
		Reason:    reason,
		Details:   details,
		Timestamp: now,
	}
}

// GetReport returns a single report. Staff only.
func (s *Service) GetReport(ctx context.Context, actor Actor, reportID string) (*Report, error) {
	if err := requireStaff(actor, OpViewQueue); err != nil {
		return nil, err
	}
	if err := validateUUID("report_id", reportID); err != nil {
		return nil, err
	}
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, asEngineError("load report", err)
	}
	if report == nil {
		return nil, notFound("report %s not found", reportID)
	}
	return report, nil
}

// GetAction returns a single moderation action. Staff only.
func (s *Service) GetAction(ctx context.Context, actor Actor, actionID string) (*ModerationAction, error) {
	if err := requireStaff(actor, OpViewLogs); err != nil {
		return nil, err
	}
	if err := validateUUID("action_id", actionID); err != nil {
		return nil, err
	}
	action, err := s.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, asEngineError("load action", err)
	}
	if action == nil {
		return nil, notFound("action %s not found", actionID)
	}
	return action, nil
}

// FetchModerationLogs returns a filtered page of the action log. Staff only.
func (s *Service) FetchModerationLogs(ctx context.Context, actor Actor, filter LogFilter) (*LogPage, error) {
	if err := requireStaff(actor, OpViewLogs); err != nil {
		return nil, err
	}
	limit, offset, err := pageBounds(filter.Limit, filter.Offset, MaxPageSize)
	if err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = limit, offset
	if filter.ActionType != "" && !filter.ActionType.Valid() {
		return nil, validationError("unknown action_type %q", filter.ActionType)
	}
	if filter.Since != nil && filter.Until != nil && filter.Since.After(*filter.Until) {
		return nil, validationError("since must not be after until")
	}

	actions, total, err := s.store.ListActions(ctx, filter)
	if err != nil {
		return nil, asEngineError("list actions", err)
	}
	if actions == nil {
		actions = []ModerationAction{}
	}
	return &LogPage{Actions: actions, Total: total}, nil
}

// ListAuditLog returns the most recent audit entries, newest first. Admin only.
func (s *Service) ListAuditLog(ctx context.Context, actor Actor, limit int) ([]AuditEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin {
		return nil, newError(KindInsufficientPermission, "only admins may view the audit log")
	}
	limit, _, err := pageBounds(limit, 0, MaxAuditLimit)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListAuditLog(ctx, limit)
	if err != nil {
		return nil, asEngineError("list audit log", err)
	}
	return entries, nil
}

// Stats returns the derived moderation figures
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats, err := s.store.Stats(ctx, s.clock())
	if err != nil {
		return Stats{}, asEngineError("load stats", err)
	}
	return stats, nil
}
