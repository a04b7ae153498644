package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserRestriction_ActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name     string
		r        UserRestriction
		expected bool
	}{
		{"permanent", UserRestriction{IsActive: true}, true},
		{"future expiry", UserRestriction{IsActive: true, ExpiresAt: &future}, true},
		{"expires exactly now", UserRestriction{IsActive: true, ExpiresAt: &now}, false},
		{"lapsed", UserRestriction{IsActive: true, ExpiresAt: &past}, false},
		{"deactivated", UserRestriction{IsActive: false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.r.ActiveAt(now))
		})
	}
}

func TestCapability_RestrictionFor(t *testing.T) {
	rt, ok := CapabilityPost.RestrictionFor()
	assert.True(t, ok)
	assert.Equal(t, RestrictionPostingDisabled, rt)

	rt, ok = CapabilityComment.RestrictionFor()
	assert.True(t, ok)
	assert.Equal(t, RestrictionCommentingDisabled, rt)

	rt, ok = CapabilityUpload.RestrictionFor()
	assert.True(t, ok)
	assert.Equal(t, RestrictionUploadDisabled, rt)

	_, ok = Capability("stream").RestrictionFor()
	assert.False(t, ok)
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, RoleModerator.Valid())
	assert.False(t, Role("owner").Valid())
	assert.True(t, RoleAdmin.IsStaff())
	assert.False(t, RoleUser.IsStaff())

	assert.True(t, ReportTypeTrack.Valid())
	assert.False(t, ReportType("playlist").Valid())

	assert.True(t, ReportStatusDismissed.Terminal())
	assert.False(t, ReportStatusUnderReview.Terminal())

	assert.True(t, ActionRestrictionApplied.Valid())
	assert.False(t, ActionType("user_muted").Valid())

	assert.True(t, RestrictionSuspended.Valid())
	assert.False(t, RestrictionType("read_only").Valid())
}

func TestValidation(t *testing.T) {
	assert.NoError(t, validateUUID("id", "4f5c1a2e-0000-4000-8000-000000000001"))
	assert.Error(t, validateUUID("id", ""))
	assert.Error(t, validateUUID("id", "not-a-uuid"))

	assert.Error(t, validateText("reason", "   ", MaxReasonLength, true))
	assert.NoError(t, validateText("reason", "", MaxReasonLength, false))
	long := make([]rune, MaxReasonLength+1)
	for i := range long {
		long[i] = 'é'
	}
	assert.Error(t, validateText("reason", string(long), MaxReasonLength, true))
	assert.NoError(t, validateText("reason", string(long[:MaxReasonLength]), MaxReasonLength, true))

	zero, neg, ok, tooLong := 0, -1, 7, MaxDurationDays+1
	assert.NoError(t, validateDuration(nil))
	assert.Error(t, validateDuration(&zero))
	assert.Error(t, validateDuration(&neg))
	assert.NoError(t, validateDuration(&ok))
	assert.Error(t, validateDuration(&tooLong))
}

func TestExpiryFrom(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Nil(t, expiryFrom(now, nil))

	days := 7
	exp := expiryFrom(now, &days)
	if assert.NotNil(t, exp) {
		assert.Equal(t, now.AddDate(0, 0, 7), *exp)
	}
}

func TestValidateActionInput(t *testing.T) {
	days := 3
	base := ActionInput{Reason: "spam"}

	in := base
	in.ActionType = ActionUserWarned
	in.DurationDays = &days
	assert.Error(t, validateActionInput(in), "duration not allowed for warnings")

	in = base
	in.ActionType = ActionRestrictionApplied
	assert.Error(t, validateActionInput(in), "restriction type required")

	in.RestrictionType = RestrictionUploadDisabled
	in.DurationDays = &days
	assert.NoError(t, validateActionInput(in))

	in = base
	in.ActionType = ActionUserSuspended
	in.DurationDays = &days
	assert.NoError(t, validateActionInput(in))

	in = base
	in.ActionType = ActionContentRemoved
	in.Reason = ""
	assert.Error(t, validateActionInput(in))
}
