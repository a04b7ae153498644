package moderation

// Priority bounds. 1 is the most urgent.
const (
	PriorityHighest = 1
	PriorityLowest  = 5
)

// Priority maps a report reason to its queue priority. It is evaluated once
// at report creation; the stored value is authoritative afterwards.
func Priority(reason ReportReason) int {
	switch reason {
	case ReasonSelfHarm:
		return 1
	case ReasonHateSpeech, ReasonHarassment:
		return 2
	case ReasonInappropriateContent, ReasonSpam, ReasonCopyrightViolation, ReasonImpersonation:
		return 3
	case ReasonOther:
		return 4
	default:
		return PriorityLowest
	}
}
