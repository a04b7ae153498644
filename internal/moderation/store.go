package moderation

import (
	"context"
	"time"
)

// Store defines the persistence interface for moderation data.
// Implementations must be safe for concurrent use. All writes happen
// through WithTx so a failed operation leaves no partial effect.
type Store interface {
	// WithTx runs fn inside a single transaction. A non-nil error from fn
	// rolls everything back. Transactions must not observe each other's
	// uncommitted writes.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Reports
	GetReport(ctx context.Context, id string) (*Report, error)
	HasOpenReport(ctx context.Context, reporterID string, reportType ReportType, targetID string) (bool, error)
	ListQueue(ctx context.Context, filter QueueFilter) ([]Report, error)

	// Actions
	GetAction(ctx context.Context, id string) (*ModerationAction, error)
	ListActions(ctx context.Context, filter LogFilter) ([]ModerationAction, int, error)

	// Restrictions
	ListRestrictions(ctx context.Context, userID string) ([]UserRestriction, error)
	HasActiveRestriction(ctx context.Context, userID string, types []RestrictionType, now time.Time) (bool, error)

	// Audit log
	ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error)

	// Aggregates
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// Tx is the set of operations available inside a transaction.
// Lookups return nil, nil when the row does not exist.
type Tx interface {
	CreateReport(ctx context.Context, report Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	HasOpenReport(ctx context.Context, reporterID string, reportType ReportType, targetID string) (bool, error)
	// ResolveReport moves an open report to a terminal status. It only
	// applies when the stored version still equals expectedVersion and the
	// report is open; otherwise it reports false.
	ResolveReport(ctx context.Context, update ReportResolution) (bool, error)

	CreateAction(ctx context.Context, action ModerationAction) error
	GetAction(ctx context.Context, id string) (*ModerationAction, error)
	// RevokeAction sets revoked_at/revoked_by once. It reports false when
	// the action was already revoked.
	RevokeAction(ctx context.Context, id string, revokedAt time.Time, revokedBy string, metadata map[string]string) (bool, error)

	// FindActiveRestriction returns the row flagged active for user+type,
	// whether or not it has lazily expired.
	FindActiveRestriction(ctx context.Context, userID string, restrictionType RestrictionType) (*UserRestriction, error)
	CreateRestriction(ctx context.Context, restriction UserRestriction) error
	SupersedeRestriction(ctx context.Context, id string, change RestrictionChange) error
	// DeactivateRestriction flips is_active off. It reports false when the
	// row was already inactive.
	DeactivateRestriction(ctx context.Context, id string, at time.Time) (bool, error)
	ListActiveRestrictionsForAction(ctx context.Context, actionID string) ([]UserRestriction, error)
	ListExpiredRestrictions(ctx context.Context, types []RestrictionType, now time.Time) ([]UserRestriction, error)

	LogAction(ctx context.Context, entry AuditEntry) error
	EnqueueNotification(ctx context.Context, notification Notification) error
}

// ReportResolution is the terminal update written when an action resolves a report
type ReportResolution struct {
	ReportID        string
	ExpectedVersion int
	Status          ReportStatus
	ReviewedBy      string
	ReviewedAt      time.Time
	ResolutionNotes *string
	ActionTaken     ActionType
}

// RestrictionChange replaces the expiry and provenance of an active restriction
type RestrictionChange struct {
	ExpiresAt       *time.Time
	Reason          string
	AppliedBy       string
	RelatedActionID *string
	UpdatedAt       time.Time
}

// QueueFilter narrows the moderation queue. Zero values mean "any".
type QueueFilter struct {
	Statuses         []ReportStatus
	ReportType       ReportType
	Reason           ReportReason
	MaxPriority      int
	ModeratorFlagged *bool
	Limit            int
	Offset           int
}

// LogFilter narrows the moderation action log. Zero values mean "any".
type LogFilter struct {
	ModeratorID  string
	TargetUserID string
	ActionType   ActionType
	Since        *time.Time
	Until        *time.Time
	Revoked      *bool
	Limit        int
	Offset       int
}

// LogPage is one page of the action log plus the total match count
type LogPage struct {
	Actions []ModerationAction `json:"actions"`
	Total   int                `json:"total"`
}

// Stats are the derived figures exposed to the metrics collector
type Stats struct {
	ReportsByStatus             map[ReportStatus]int    `json:"reports_by_status"`
	ActiveRestrictionsByType    map[RestrictionType]int `json:"active_restrictions_by_type"`
	ActionsByType               map[ActionType]int      `json:"actions_by_type"`
	RevokedActions              int                     `json:"revoked_actions"`
	PendingNotifications        int                     `json:"pending_notifications"`
	ExpiredAwaitingDeactivation int                     `json:"expired_awaiting_deactivation"`
}

// ContentRemover is the content-store collaborator invoked when a
// content_removed action is applied. Removal is not reversible.
type ContentRemover interface {
	RemoveContent(ctx context.Context, contentType ReportType, contentID string, actionID string) error
}
