package moderation

import "fmt"

// OperationKind groups operations for authorization
type OperationKind string

const (
	OpSubmitReport  OperationKind = "submit_report"
	OpFlagContent   OperationKind = "flag_content"
	OpViewQueue     OperationKind = "view_queue"
	OpViewLogs      OperationKind = "view_logs"
	OpViewUser      OperationKind = "view_user_restrictions"
	OpApplyAction   OperationKind = "apply_action"
	OpApplyRestrict OperationKind = "apply_restriction"
	OpReverseAction OperationKind = "reverse_action"
)

// Operation is what an actor is attempting. Action is set for apply and
// reverse operations and names the action type being applied or undone.
type Operation struct {
	Kind   OperationKind
	Action ActionType
}

func (o Operation) String() string {
	if o.Action != "" {
		return string(o.Kind) + ":" + string(o.Action)
	}
	return string(o.Kind)
}

// Subject is the user an operation targets. An empty ID means the
// operation has no user target.
type Subject struct {
	ID   string
	Role Role
}

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	Reason  string
	// SelfReversal is set when a reversal is performed by the actor who
	// applied the original action.
	SelfReversal bool
}

// Guard evaluates whether an actor may perform an operation on a subject.
// It holds no state; identity and roles are always passed in.
type Guard struct{}

// Authorize applies the rules in order; the first match wins.
// originalModeratorID is only consulted for reversals.
func (Guard) Authorize(actor Actor, target Subject, op Operation, originalModeratorID string) Decision {
	// 1. Only staff may moderate
	if op.Kind != OpSubmitReport && !actor.Role.IsStaff() {
		return deny("role %q may not perform %s", actor.Role, op)
	}
	if op.Kind == OpSubmitReport {
		return Decision{Allowed: true}
	}

	// 2. Admin targets are reserved for admins
	if target.ID != "" && target.Role == RoleAdmin && actor.Role != RoleAdmin {
		return deny("only admins may act on admin accounts")
	}

	// 3. Bans and their reversal are admin only
	if op.Action == ActionUserBanned && op.Kind != OpFlagContent {
		if actor.Role != RoleAdmin {
			return deny("only admins may ban or unban users")
		}
	}

	// 4. No self-targeted suspensions, bans or restrictions
	if target.ID != "" && target.ID == actor.ID && selfTargetDenied(op) {
		return deny("cannot apply %s to yourself", op)
	}

	d := Decision{Allowed: true}
	if op.Kind == OpReverseAction && originalModeratorID != "" && originalModeratorID == actor.ID {
		d.SelfReversal = true
	}
	return d
}

func selfTargetDenied(op Operation) bool {
	switch op.Kind {
	case OpApplyRestrict:
		return true
	case OpApplyAction:
		switch op.Action {
		case ActionUserSuspended, ActionUserBanned, ActionRestrictionApplied:
			return true
		}
	}
	return false
}

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Err converts a denial into an INSUFFICIENT_PERMISSIONS error
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return newError(KindInsufficientPermission, "%s", d.Reason)
}
