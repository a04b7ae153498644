package moderation

import "time"

// Role is the platform role of an actor or a target user
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// IsStaff returns true for moderators and admins
func (r Role) IsStaff() bool {
	return r == RoleModerator || r == RoleAdmin
}

// Actor identifies who is performing an operation.
// It is always passed explicitly; the engine never reads it from ambient state.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// ReportType is the kind of object a report points at
type ReportType string

const (
	ReportTypePost    ReportType = "post"
	ReportTypeComment ReportType = "comment"
	ReportTypeTrack   ReportType = "track"
	ReportTypeUser    ReportType = "user"
)

// Valid reports whether t is a known report type
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypePost, ReportTypeComment, ReportTypeTrack, ReportTypeUser:
		return true
	}
	return false
}

// ReportReason is the reason a report was filed
type ReportReason string

const (
	ReasonSelfHarm             ReportReason = "self_harm"
	ReasonHateSpeech           ReportReason = "hate_speech"
	ReasonHarassment           ReportReason = "harassment"
	ReasonInappropriateContent ReportReason = "inappropriate_content"
	ReasonSpam                 ReportReason = "spam"
	ReasonCopyrightViolation   ReportReason = "copyright_violation"
	ReasonImpersonation        ReportReason = "impersonation"
	ReasonOther                ReportReason = "other"
)

// AllReasons returns every reason accepted at report intake
func AllReasons() []ReportReason {
	return []ReportReason{
		ReasonSelfHarm,
		ReasonHateSpeech,
		ReasonHarassment,
		ReasonInappropriateContent,
		ReasonSpam,
		ReasonCopyrightViolation,
		ReasonImpersonation,
		ReasonOther,
	}
}

// Valid reports whether r is one of the intake reasons
func (r ReportReason) Valid() bool {
	for _, known := range AllReasons() {
		if r == known {
			return true
		}
	}
	return false
}

// ReportStatus represents the status of a report
type ReportStatus string

const (
	ReportStatusPending     ReportStatus = "pending"
	ReportStatusUnderReview ReportStatus = "under_review"
	ReportStatusResolved    ReportStatus = "resolved"
	ReportStatusDismissed   ReportStatus = "dismissed"
)

// Terminal returns true once a report can no longer change status
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusResolved || s == ReportStatusDismissed
}

// Valid reports whether s is a known status
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusPending, ReportStatusUnderReview, ReportStatusResolved, ReportStatusDismissed:
		return true
	}
	return false
}

// Report represents a user report or a moderator flag on content or a user
type Report struct {
	ID               string       `json:"id"`
	ReporterID       *string      `json:"reporter_id,omitempty"` // nil for moderator flags
	ReportedUserID   *string      `json:"reported_user_id,omitempty"`
	ReportType       ReportType   `json:"report_type"`
	TargetID         string       `json:"target_id"`
	Reason           ReportReason `json:"reason"`
	Description      string       `json:"description,omitempty"`
	Status           ReportStatus `json:"status"`
	Priority         int          `json:"priority"`
	ModeratorFlagged bool         `json:"moderator_flagged"`
	FlaggedBy        *string      `json:"flagged_by,omitempty"`
	InternalNotes    string       `json:"internal_notes,omitempty"`
	ReviewedBy       *string      `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time   `json:"reviewed_at,omitempty"`
	ResolutionNotes  *string      `json:"resolution_notes,omitempty"`
	ActionTaken      *ActionType  `json:"action_taken,omitempty"`
	Version          int          `json:"version"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// ActionType is the closed set of moderation actions
type ActionType string

const (
	ActionContentRemoved     ActionType = "content_removed"
	ActionContentApproved    ActionType = "content_approved"
	ActionUserWarned         ActionType = "user_warned"
	ActionUserSuspended      ActionType = "user_suspended"
	ActionUserBanned         ActionType = "user_banned"
	ActionRestrictionApplied ActionType = "restriction_applied"
)

// Valid reports whether a is a known action type
func (a ActionType) Valid() bool {
	switch a {
	case ActionContentRemoved, ActionContentApproved, ActionUserWarned,
		ActionUserSuspended, ActionUserBanned, ActionRestrictionApplied:
		return true
	}
	return false
}

// Metadata keys written on actions
const (
	MetaSelfReversal        = "self_reversal"
	MetaReversalReason      = "reversal_reason"
	MetaRestrictionsLifted  = "restrictions_lifted"
	MetaContentRestored     = "content_restored"
	MetaRestrictionUpdated  = "restriction_updated"
	MetaRestrictionType     = "restriction_type"
	MetaSupersededExpiresAt = "superseded_expires_at"
)

// ModerationAction is an audited, append-only record of an applied action
type ModerationAction struct {
	ID                  string            `json:"id"`
	ModeratorID         string            `json:"moderator_id"`
	TargetUserID        string            `json:"target_user_id"`
	ActionType          ActionType        `json:"action_type"`
	TargetType          *ReportType       `json:"target_type,omitempty"`
	TargetID            *string           `json:"target_id,omitempty"`
	Reason              string            `json:"reason"`
	DurationDays        *int              `json:"duration_days,omitempty"`
	ExpiresAt           *time.Time        `json:"expires_at,omitempty"`
	RelatedReportID     *string           `json:"related_report_id,omitempty"`
	InternalNotes       *string           `json:"internal_notes,omitempty"`
	NotificationSent    bool              `json:"notification_sent"`
	NotificationMessage *string           `json:"notification_message,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	RevokedAt           *time.Time        `json:"revoked_at,omitempty"`
	RevokedBy           *string           `json:"revoked_by,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Revoked returns true once the action has been reversed
func (a *ModerationAction) Revoked() bool {
	return a.RevokedAt != nil
}

// authority is the action type whose rules govern reversing a
func (a *ModerationAction) authority() ActionType {
	return authorityFor(a.ActionType, RestrictionType(a.Metadata[MetaRestrictionType]), a.DurationDays)
}

// RestrictionType is the closed set of user restrictions
type RestrictionType string

const (
	RestrictionPostingDisabled    RestrictionType = "posting_disabled"
	RestrictionCommentingDisabled RestrictionType = "commenting_disabled"
	RestrictionUploadDisabled     RestrictionType = "upload_disabled"
	RestrictionSuspended          RestrictionType = "suspended"
)

// Valid reports whether t is a known restriction type
func (t RestrictionType) Valid() bool {
	switch t {
	case RestrictionPostingDisabled, RestrictionCommentingDisabled,
		RestrictionUploadDisabled, RestrictionSuspended:
		return true
	}
	return false
}

// UserRestriction is a possibly time-bound limitation applied to a user
type UserRestriction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	RestrictionType RestrictionType `json:"restriction_type"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"` // nil = permanent
	IsActive        bool            `json:"is_active"`
	Reason          string          `json:"reason"`
	AppliedBy       string          `json:"applied_by"`
	RelatedActionID *string         `json:"related_action_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ActiveAt reports whether the restriction is in force at t.
// Expiry is evaluated lazily: a stored is_active flag is not enough on its own.
func (r *UserRestriction) ActiveAt(t time.Time) bool {
	if !r.IsActive {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(t)
}

// IsBan reports whether the restriction is a permanent suspension
func (r *UserRestriction) IsBan() bool {
	return r.RestrictionType == RestrictionSuspended && r.ExpiresAt == nil
}

// Capability is something a user may be restricted from doing
type Capability string

const (
	CapabilityPost    Capability = "post"
	CapabilityComment Capability = "comment"
	CapabilityUpload  Capability = "upload"
)

// RestrictionFor returns the restriction type that blocks c
func (c Capability) RestrictionFor() (RestrictionType, bool) {
	switch c {
	case CapabilityPost:
		return RestrictionPostingDisabled, true
	case CapabilityComment:
		return RestrictionCommentingDisabled, true
	case CapabilityUpload:
		return RestrictionUploadDisabled, true
	}
	return "", false
}

// AuditAction represents a type of audited event
type AuditAction string

const (
	AuditActionReportSubmitted    AuditAction = "report_submitted"
	AuditActionContentFlagged     AuditAction = "content_flagged"
	AuditActionActionTaken        AuditAction = "action_taken"
	AuditActionRestrictionApplied AuditAction = "restriction_applied"
	AuditActionRestrictionUpdated AuditAction = "restriction_updated"
	AuditActionActionReversed     AuditAction = "action_reversed"
	AuditActionRestrictionExpired AuditAction = "restriction_expired"
)

// AuditEntry represents a logged moderation event
type AuditEntry struct {
	ID        string            `json:"id"`
	Action    AuditAction       `json:"action"`
	ActorID   string            `json:"actor_id"` // "system" for scheduler events
	TargetID  string            `json:"target_id"`
	Reason    string            `json:"reason"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// SystemActorID is recorded for events produced by background jobs
const SystemActorID = "system"

// NotificationKind classifies notification events sent to affected users
type NotificationKind string

const (
	NotificationActionTaken        NotificationKind = "action_taken"
	NotificationActionReversed     NotificationKind = "action_reversed"
	NotificationRestrictionApplied NotificationKind = "restriction_applied"
	NotificationRestrictionExpired NotificationKind = "restriction_expired"
)

// Notification is an event handed to the notification collaborator
type Notification struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Kind          NotificationKind `json:"kind"`
	ActionID      *string          `json:"action_id,omitempty"`
	RestrictionID *string          `json:"restriction_id,omitempty"`
	Message       string           `json:"message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	DeliveredAt   *time.Time       `json:"delivered_at,omitempty"`
}
