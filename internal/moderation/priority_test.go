package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriority(t *testing.T) {
	tests := []struct {
		reason   ReportReason
		expected int
	}{
		{ReasonSelfHarm, 1},
		{ReasonHateSpeech, 2},
		{ReasonHarassment, 2},
		{ReasonInappropriateContent, 3},
		{ReasonSpam, 3},
		{ReasonCopyrightViolation, 3},
		{ReasonImpersonation, 3},
		{ReasonOther, 4},
		{ReportReason("unknown"), 5},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			assert.Equal(t, tt.expected, Priority(tt.reason))
		})
	}

	for _, r := range AllReasons() {
		p := Priority(r)
		assert.GreaterOrEqual(t, p, PriorityHighest)
		assert.LessOrEqual(t, p, PriorityLowest)
	}
}
