package moderation_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resonance/internal/database/sqlitestore"
	"resonance/internal/moderation"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingRemover struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (r *recordingRemover) RemoveContent(ctx context.Context, contentType moderation.ReportType, contentID string, actionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.removed = append(r.removed, string(contentType)+":"+contentID)
	return nil
}

type harness struct {
	svc     *moderation.Service
	store   *sqlitestore.ModerationStore
	dir     *moderation.Directory
	clock   *testClock
	content *recordingRemover
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlitestore.Open(filepath.Join(t.TempDir(), "moderation.db"), sqlitestore.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir, err := moderation.NewStaticDirectory(
		moderation.StaffMember{UserID: "mod-1", Role: moderation.RoleModerator},
		moderation.StaffMember{UserID: "mod-2", Role: moderation.RoleModerator},
		moderation.StaffMember{UserID: "admin-1", Role: moderation.RoleAdmin},
		moderation.StaffMember{UserID: "admin-2", Role: moderation.RoleAdmin},
	)
	require.NoError(t, err)

	store := sqlitestore.NewModerationStore(db)
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	content := &recordingRemover{}
	svc, err := moderation.NewService(moderation.ServiceConfig{
		Store:   store,
		Roles:   dir,
		Limiter: moderation.NewRateLimiter(sqlitestore.NewCounterStore(db), nil),
		Content: content,
		Now:     clock.Now,
	})
	require.NoError(t, err)

	return &harness{svc: svc, store: store, dir: dir, clock: clock, content: content}
}

func (h *harness) actor(id string) moderation.Actor {
	return h.dir.Actor(id)
}

func (h *harness) report(t *testing.T, reporter, reported string, reason moderation.ReportReason) *moderation.Report {
	t.Helper()
	r, err := h.svc.SubmitReport(context.Background(), h.actor(reporter), moderation.ReportInput{
		ReportType:     moderation.ReportTypePost,
		TargetID:       "post-" + uuid.NewString(),
		ReportedUserID: &reported,
		Reason:         reason,
		Description:    "details",
	})
	require.NoError(t, err)
	return r
}

func (h *harness) act(t *testing.T, moderator string, in moderation.ActionInput) *moderation.ModerationAction {
	t.Helper()
	a, err := h.svc.TakeModerationAction(context.Background(), h.actor(moderator), in)
	require.NoError(t, err)
	return a
}

func days(n int) *int { return &n }

func kindOf(err error) moderation.ErrorKind { return moderation.KindOf(err) }

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := moderation.NewService(moderation.ServiceConfig{})
	assert.Error(t, err)
}

func TestSubmitReport(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending report with derived priority", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSelfHarm)
		assert.Equal(t, moderation.ReportStatusPending, r.Status)
		assert.Equal(t, 1, r.Priority)
		assert.Equal(t, 1, r.Version)
		assert.False(t, r.ModeratorFlagged)
		assert.Equal(t, "user-1", *r.ReporterID)

		stored, err := h.svc.GetReport(ctx, h.actor("mod-1"), r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.TargetID, stored.TargetID)
	})

	t.Run("eleventh report in a day is rate limited", func(t *testing.T) {
		h := newHarness(t)
		for i := 0; i < 10; i++ {
			h.report(t, "user-1", "user-2", moderation.ReasonSpam)
			h.clock.Advance(time.Minute)
		}
		_, err := h.svc.SubmitReport(ctx, h.actor("user-1"), moderation.ReportInput{
			ReportType: moderation.ReportTypeTrack,
			TargetID:   "track-11",
			Reason:     moderation.ReasonSpam,
		})
		assert.Equal(t, moderation.KindRateLimitExceeded, kindOf(err))

		h.clock.Advance(24 * time.Hour)
		h.report(t, "user-1", "user-2", moderation.ReasonSpam)
	})

	t.Run("duplicate open report is rejected", func(t *testing.T) {
		h := newHarness(t)
		in := moderation.ReportInput{ReportType: moderation.ReportTypeComment, TargetID: "c-1", Reason: moderation.ReasonHarassment}
		_, err := h.svc.SubmitReport(ctx, h.actor("user-1"), in)
		require.NoError(t, err)

		_, err = h.svc.SubmitReport(ctx, h.actor("user-1"), in)
		assert.Equal(t, moderation.KindInvalidAction, kindOf(err))

		// another reporter may still report the same target
		_, err = h.svc.SubmitReport(ctx, h.actor("user-3"), in)
		assert.NoError(t, err)
	})

	t.Run("validation", func(t *testing.T) {
		h := newHarness(t)
		cases := map[string]moderation.ReportInput{
			"unknown type":         {ReportType: "playlist", TargetID: "x", Reason: moderation.ReasonSpam},
			"missing target":       {ReportType: moderation.ReportTypePost, Reason: moderation.ReasonSpam},
			"unknown reason":       {ReportType: moderation.ReportTypePost, TargetID: "x", Reason: "boring"},
			"other without detail": {ReportType: moderation.ReportTypePost, TargetID: "x", Reason: moderation.ReasonOther},
			"self report":          {ReportType: moderation.ReportTypeUser, TargetID: "user-1", Reason: moderation.ReasonSpam},
		}
		for name, in := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := h.svc.SubmitReport(ctx, h.actor("user-1"), in)
				assert.Equal(t, moderation.KindValidation, kindOf(err))
			})
		}
	})

	t.Run("anonymous actor", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.SubmitReport(ctx, moderation.Actor{}, moderation.ReportInput{
			ReportType: moderation.ReportTypePost, TargetID: "x", Reason: moderation.ReasonSpam,
		})
		assert.Equal(t, moderation.KindUnauthorized, kindOf(err))
	})
}

func TestFlagContent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	r, err := h.svc.FlagContent(ctx, h.actor("mod-1"), moderation.FlagInput{
		ReportType:    moderation.ReportTypeTrack,
		TargetID:      "track-1",
		Reason:        moderation.ReasonCopyrightViolation,
		InternalNotes: "matched fingerprint",
	})
	require.NoError(t, err)
	assert.Equal(t, moderation.ReportStatusUnderReview, r.Status)
	assert.True(t, r.ModeratorFlagged)
	assert.Equal(t, "mod-1", *r.FlaggedBy)
	assert.Nil(t, r.ReporterID)
	assert.Equal(t, 3, r.Priority)

	_, err = h.svc.FlagContent(ctx, h.actor("user-1"), moderation.FlagInput{
		ReportType: moderation.ReportTypeTrack, TargetID: "track-2", Reason: moderation.ReasonSpam,
	})
	assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

	bad := 9
	_, err = h.svc.FlagContent(ctx, h.actor("mod-1"), moderation.FlagInput{
		ReportType: moderation.ReportTypeTrack, TargetID: "track-2", Reason: moderation.ReasonSpam, Priority: &bad,
	})
	assert.Equal(t, moderation.KindValidation, kindOf(err))
}

func TestFetchModerationQueue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	spam := h.report(t, "user-1", "user-9", moderation.ReasonSpam)
	h.clock.Advance(time.Minute)
	other := h.report(t, "user-2", "user-9", moderation.ReasonOther)
	h.clock.Advance(time.Minute)
	harm := h.report(t, "user-3", "user-9", moderation.ReasonSelfHarm)
	h.clock.Advance(time.Minute)
	low := 5
	flag, err := h.svc.FlagContent(ctx, h.actor("mod-1"), moderation.FlagInput{
		ReportType: moderation.ReportTypePost, TargetID: "post-flagged", Reason: moderation.ReasonSpam, Priority: &low,
	})
	require.NoError(t, err)

	queue, err := h.svc.FetchModerationQueue(ctx, h.actor("mod-2"), moderation.QueueFilter{})
	require.NoError(t, err)
	require.Len(t, queue, 4)
	assert.Equal(t, flag.ID, queue[0].ID)
	assert.Equal(t, harm.ID, queue[1].ID)
	assert.Equal(t, spam.ID, queue[2].ID)
	assert.Equal(t, other.ID, queue[3].ID)

	// resolved reports leave the default queue
	h.act(t, "mod-1", moderation.ActionInput{ReportID: harm.ID, ActionType: moderation.ActionUserWarned, Reason: "check in"})
	queue, err = h.svc.FetchModerationQueue(ctx, h.actor("mod-2"), moderation.QueueFilter{})
	require.NoError(t, err)
	assert.Len(t, queue, 3)

	_, err = h.svc.FetchModerationQueue(ctx, h.actor("user-1"), moderation.QueueFilter{})
	assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

	_, err = h.svc.FetchModerationQueue(ctx, h.actor("mod-1"), moderation.QueueFilter{Limit: -1})
	assert.Equal(t, moderation.KindValidation, kindOf(err))
}

func TestTakeModerationAction(t *testing.T) {
	ctx := context.Background()

	t.Run("warning resolves report and notifies", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonHarassment)
		a := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "be kind"})

		assert.Equal(t, "user-2", a.TargetUserID)
		assert.Equal(t, r.ID, *a.RelatedReportID)
		assert.True(t, a.NotificationSent)

		stored, err := h.svc.GetReport(ctx, h.actor("mod-1"), r.ID)
		require.NoError(t, err)
		assert.Equal(t, moderation.ReportStatusResolved, stored.Status)
		assert.Equal(t, "mod-1", *stored.ReviewedBy)
		assert.Equal(t, moderation.ActionUserWarned, *stored.ActionTaken)

		pending, err := h.store.PendingNotifications(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "user-2", pending[0].UserID)
		assert.Equal(t, moderation.NotificationActionTaken, pending[0].Kind)

		_, err = h.svc.TakeModerationAction(ctx, h.actor("mod-2"), moderation.ActionInput{
			ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "again",
		})
		assert.Equal(t, moderation.KindInvalidAction, kindOf(err))
	})

	t.Run("approval dismisses without notification", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		a := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionContentApproved, Reason: "fine"})
		assert.False(t, a.NotificationSent)

		stored, err := h.svc.GetReport(ctx, h.actor("mod-1"), r.ID)
		require.NoError(t, err)
		assert.Equal(t, moderation.ReportStatusDismissed, stored.Status)

		pending, err := h.store.PendingNotifications(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("seven day suspension", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonHateSpeech)
		now := h.clock.Now()
		a := h.act(t, "mod-1", moderation.ActionInput{
			ReportID: r.ID, ActionType: moderation.ActionUserSuspended, Reason: "slurs", DurationDays: days(7),
		})
		require.NotNil(t, a.ExpiresAt)
		assert.Equal(t, now.AddDate(0, 0, 7), *a.ExpiresAt)

		restrictions, err := h.svc.CheckUserRestrictions(ctx, h.actor("mod-1"), "user-2")
		require.NoError(t, err)
		require.Len(t, restrictions, 1)
		assert.Equal(t, moderation.RestrictionSuspended, restrictions[0].RestrictionType)
		assert.True(t, restrictions[0].IsActive)
		assert.WithinDuration(t, now.Add(7*24*time.Hour), *restrictions[0].ExpiresAt, time.Second)

		ok, err := h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityPost)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("second suspension updates the active row", func(t *testing.T) {
		h := newHarness(t)
		first := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		second := h.report(t, "user-3", "user-2", moderation.ReasonSpam)
		h.act(t, "mod-1", moderation.ActionInput{ReportID: first.ID, ActionType: moderation.ActionUserSuspended, Reason: "r1", DurationDays: days(3)})
		a := h.act(t, "mod-2", moderation.ActionInput{ReportID: second.ID, ActionType: moderation.ActionUserSuspended, Reason: "r2", DurationDays: days(10)})
		assert.Equal(t, "true", a.Metadata[moderation.MetaRestrictionUpdated])

		restrictions, err := h.svc.CheckUserRestrictions(ctx, h.actor("mod-1"), "user-2")
		require.NoError(t, err)
		require.Len(t, restrictions, 1)
		assert.WithinDuration(t, h.clock.Now().AddDate(0, 0, 10), *restrictions[0].ExpiresAt, time.Second)

		entries, err := h.svc.ListAuditLog(ctx, h.actor("admin-1"), 50)
		require.NoError(t, err)
		var updated *moderation.AuditEntry
		for i := range entries {
			if entries[i].Action == moderation.AuditActionRestrictionUpdated {
				updated = &entries[i]
			}
		}
		require.NotNil(t, updated)
		assert.Equal(t, "updated", updated.Details["note"])
	})

	t.Run("content removal tombstones content", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonInappropriateContent)
		h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionContentRemoved, Reason: "nsfw"})
		assert.Equal(t, []string{"post:" + r.TargetID}, h.content.removed)
	})

	t.Run("failed content removal rolls back", func(t *testing.T) {
		h := newHarness(t)
		h.content.err = errors.New("content store down")
		r := h.report(t, "user-1", "user-2", moderation.ReasonInappropriateContent)

		_, err := h.svc.TakeModerationAction(ctx, h.actor("mod-1"), moderation.ActionInput{
			ReportID: r.ID, ActionType: moderation.ActionContentRemoved, Reason: "nsfw",
		})
		assert.Equal(t, moderation.KindDatabase, kindOf(err))

		stored, err := h.svc.GetReport(ctx, h.actor("mod-1"), r.ID)
		require.NoError(t, err)
		assert.Equal(t, moderation.ReportStatusPending, stored.Status)

		page, err := h.svc.FetchModerationLogs(ctx, h.actor("mod-1"), moderation.LogFilter{})
		require.NoError(t, err)
		assert.Zero(t, page.Total)
	})

	t.Run("admin target requires admin", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "admin-2", moderation.ReasonHarassment)

		_, err := h.svc.TakeModerationAction(ctx, h.actor("mod-1"), moderation.ActionInput{
			ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "tone",
		})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		h.act(t, "admin-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "tone"})
	})

	t.Run("ban is admin only and permanent", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonHateSpeech)

		_, err := h.svc.TakeModerationAction(ctx, h.actor("mod-1"), moderation.ActionInput{
			ReportID: r.ID, ActionType: moderation.ActionUserBanned, Reason: "repeat",
		})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		a := h.act(t, "admin-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserBanned, Reason: "repeat"})
		assert.Nil(t, a.ExpiresAt)

		h.clock.Advance(365 * 24 * time.Hour)
		ok, err := h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityComment)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("input errors", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)

		_, err := h.svc.TakeModerationAction(ctx, h.actor("mod-1"), moderation.ActionInput{
			ReportID: uuid.NewString(), ActionType: moderation.ActionUserWarned, Reason: "x",
		})
		assert.Equal(t, moderation.KindNotFound, kindOf(err))

		_, err = h.svc.TakeModerationAction(ctx, h.actor("mod-1"), moderation.ActionInput{
			ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "x", DurationDays: days(3),
		})
		assert.Equal(t, moderation.KindValidation, kindOf(err))

		_, err = h.svc.TakeModerationAction(ctx, h.actor("mod-1"), moderation.ActionInput{
			ReportID: r.ID, ActionType: moderation.ActionRestrictionApplied, Reason: "x",
		})
		assert.Equal(t, moderation.KindValidation, kindOf(err))

		_, err = h.svc.TakeModerationAction(ctx, h.actor("mod-1"), moderation.ActionInput{
			ReportID: "nope", ActionType: moderation.ActionUserWarned, Reason: "x",
		})
		assert.Equal(t, moderation.KindValidation, kindOf(err))

		_, err = h.svc.TakeModerationAction(ctx, h.actor("user-9"), moderation.ActionInput{
			ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "x",
		})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))
	})
}

func TestReverseAction(t *testing.T) {
	ctx := context.Background()

	t.Run("lifts restriction once", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		a := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserSuspended, Reason: "spam", DurationDays: days(7)})

		reversed, err := h.svc.ReverseAction(ctx, h.actor("mod-2"), moderation.ReversalInput{ActionID: a.ID, Reason: "appeal granted"})
		require.NoError(t, err)
		assert.NotNil(t, reversed.RevokedAt)
		assert.Equal(t, "mod-2", *reversed.RevokedBy)
		assert.Equal(t, "false", reversed.Metadata[moderation.MetaSelfReversal])
		assert.Equal(t, "1", reversed.Metadata[moderation.MetaRestrictionsLifted])

		ok, err := h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityPost)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = h.svc.ReverseAction(ctx, h.actor("mod-2"), moderation.ReversalInput{ActionID: a.ID, Reason: "again"})
		assert.Equal(t, moderation.KindInvalidAction, kindOf(err))
	})

	t.Run("self reversal is recorded", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		a := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "oops"})

		reversed, err := h.svc.ReverseAction(ctx, h.actor("mod-1"), moderation.ReversalInput{ActionID: a.ID, Reason: "wrong user"})
		require.NoError(t, err)
		assert.Equal(t, "true", reversed.Metadata[moderation.MetaSelfReversal])

		stored, err := h.svc.GetAction(ctx, h.actor("mod-2"), a.ID)
		require.NoError(t, err)
		assert.True(t, stored.Revoked())
		assert.Equal(t, "wrong user", stored.Metadata[moderation.MetaReversalReason])
	})

	t.Run("content is not restored", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		a := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionContentRemoved, Reason: "spam"})

		reversed, err := h.svc.ReverseAction(ctx, h.actor("mod-2"), moderation.ReversalInput{ActionID: a.ID, Reason: "mistake"})
		require.NoError(t, err)
		assert.Equal(t, "false", reversed.Metadata[moderation.MetaContentRestored])
	})

	t.Run("concurrent reversals succeed once", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		a := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserSuspended, Reason: "spam", DurationDays: days(2)})

		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := h.svc.ReverseAction(ctx, h.actor("mod-2"), moderation.ReversalInput{ActionID: a.ID, Reason: fmt.Sprintf("attempt %d", i)})
				results <- err
			}(i)
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.Equal(t, moderation.KindInvalidAction, kindOf(err))
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("unban is admin only", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		a := h.act(t, "admin-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserBanned, Reason: "spam"})

		_, err := h.svc.ReverseAction(ctx, h.actor("mod-1"), moderation.ReversalInput{ActionID: a.ID, Reason: "appeal"})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		_, err = h.svc.ReverseAction(ctx, h.actor("admin-2"), moderation.ReversalInput{ActionID: a.ID, Reason: "appeal"})
		assert.NoError(t, err)
	})

	t.Run("moderators cannot shorten a ban", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		h.act(t, "admin-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserBanned, Reason: "spam"})

		_, err := h.svc.ApplyRestriction(ctx, h.actor("mod-1"), moderation.RestrictionInput{
			UserID: "user-2", RestrictionType: moderation.RestrictionSuspended, Reason: "shorter", DurationDays: days(1),
		})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		second := h.report(t, "user-3", "user-2", moderation.ReasonSpam)
		_, err = h.svc.TakeModerationAction(ctx, h.actor("mod-1"), moderation.ActionInput{
			ReportID: second.ID, ActionType: moderation.ActionUserSuspended, Reason: "shorter", DurationDays: days(1),
		})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		h.clock.Advance(48 * time.Hour)
		ok, err := h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityPost)
		require.NoError(t, err)
		assert.False(t, ok)

		res, err := h.svc.ApplyRestriction(ctx, h.actor("admin-2"), moderation.RestrictionInput{
			UserID: "user-2", RestrictionType: moderation.RestrictionSuspended, Reason: "appeal", DurationDays: days(1),
		})
		require.NoError(t, err)
		require.NotNil(t, res.ExpiresAt)
	})

	t.Run("open-ended suspension is a ban", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)

		_, err := h.svc.TakeModerationAction(ctx, h.actor("mod-1"), moderation.ActionInput{
			ReportID: r.ID, ActionType: moderation.ActionUserSuspended, Reason: "spam",
		})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		a := h.act(t, "admin-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserSuspended, Reason: "spam"})
		assert.Nil(t, a.ExpiresAt)

		_, err = h.svc.ReverseAction(ctx, h.actor("mod-1"), moderation.ReversalInput{ActionID: a.ID, Reason: "appeal"})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		_, err = h.svc.ReverseAction(ctx, h.actor("admin-2"), moderation.ReversalInput{ActionID: a.ID, Reason: "appeal"})
		assert.NoError(t, err)
	})

	t.Run("reversing a linked action keeps an admin ban", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		warn := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "spam"})

		_, err := h.svc.ApplyRestriction(ctx, h.actor("admin-1"), moderation.RestrictionInput{
			UserID: "user-2", RestrictionType: moderation.RestrictionSuspended, Reason: "escalated", RelatedActionID: &warn.ID,
		})
		require.NoError(t, err)

		_, err = h.svc.ReverseAction(ctx, h.actor("mod-2"), moderation.ReversalInput{ActionID: warn.ID, Reason: "appeal"})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		ok, err := h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityComment)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reason required", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		a := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "x"})
		_, err := h.svc.ReverseAction(ctx, h.actor("mod-2"), moderation.ReversalInput{ActionID: a.ID})
		assert.Equal(t, moderation.KindValidation, kindOf(err))
	})
}

func TestApplyRestriction(t *testing.T) {
	ctx := context.Background()

	t.Run("standalone restriction is reversible", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.svc.ApplyRestriction(ctx, h.actor("mod-1"), moderation.RestrictionInput{
			UserID: "user-2", RestrictionType: moderation.RestrictionUploadDisabled, Reason: "malware", DurationDays: days(2), SendNotification: true,
		})
		require.NoError(t, err)
		require.NotNil(t, res.RelatedActionID)

		ok, err := h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityUpload)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityPost)
		require.NoError(t, err)
		assert.True(t, ok)

		pending, err := h.store.PendingNotifications(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, moderation.NotificationRestrictionApplied, pending[0].Kind)

		_, err = h.svc.ReverseAction(ctx, h.actor("mod-2"), moderation.ReversalInput{ActionID: *res.RelatedActionID, Reason: "cleared"})
		require.NoError(t, err)
		ok, err = h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityUpload)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("concurrent applications leave one active row", func(t *testing.T) {
		h := newHarness(t)
		var wg sync.WaitGroup
		errs := make(chan error, 6)
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := h.svc.ApplyRestriction(ctx, h.actor("mod-1"), moderation.RestrictionInput{
					UserID: "user-2", RestrictionType: moderation.RestrictionPostingDisabled, Reason: fmt.Sprintf("r%d", i), DurationDays: days(i + 1),
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		restrictions, err := h.svc.CheckUserRestrictions(ctx, h.actor("mod-1"), "user-2")
		require.NoError(t, err)
		active := 0
		for _, r := range restrictions {
			if r.IsActive {
				active++
			}
		}
		assert.Equal(t, 1, active)
	})

	t.Run("permanent suspension needs admin", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.ApplyRestriction(ctx, h.actor("mod-1"), moderation.RestrictionInput{
			UserID: "user-2", RestrictionType: moderation.RestrictionSuspended, Reason: "x",
		})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		_, err = h.svc.ApplyRestriction(ctx, h.actor("admin-1"), moderation.RestrictionInput{
			UserID: "user-2", RestrictionType: moderation.RestrictionSuspended, Reason: "x",
		})
		assert.NoError(t, err)
	})

	t.Run("no self restriction", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.ApplyRestriction(ctx, h.actor("mod-1"), moderation.RestrictionInput{
			UserID: "mod-1", RestrictionType: moderation.RestrictionCommentingDisabled, Reason: "x", DurationDays: days(1),
		})
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))
	})

	t.Run("related action must match", func(t *testing.T) {
		h := newHarness(t)
		r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
		a := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "x"})

		_, err := h.svc.ApplyRestriction(ctx, h.actor("mod-1"), moderation.RestrictionInput{
			UserID: "user-3", RestrictionType: moderation.RestrictionCommentingDisabled, Reason: "x", RelatedActionID: &a.ID,
		})
		assert.Equal(t, moderation.KindValidation, kindOf(err))

		missing := uuid.NewString()
		_, err = h.svc.ApplyRestriction(ctx, h.actor("mod-1"), moderation.RestrictionInput{
			UserID: "user-2", RestrictionType: moderation.RestrictionCommentingDisabled, Reason: "x", RelatedActionID: &missing,
		})
		assert.Equal(t, moderation.KindNotFound, kindOf(err))

		res, err := h.svc.ApplyRestriction(ctx, h.actor("mod-1"), moderation.RestrictionInput{
			UserID: "user-2", RestrictionType: moderation.RestrictionCommentingDisabled, Reason: "x", RelatedActionID: &a.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, a.ID, *res.RelatedActionID)
	})
}

func TestExpiration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.ApplyRestriction(ctx, h.actor("mod-1"), moderation.RestrictionInput{
		UserID: "user-2", RestrictionType: moderation.RestrictionCommentingDisabled, Reason: "heated", DurationDays: days(1),
	})
	require.NoError(t, err)
	r := h.report(t, "user-1", "user-3", moderation.ReasonSpam)
	h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserSuspended, Reason: "spam", DurationDays: days(1)})

	ok, err := h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityComment)
	require.NoError(t, err)
	assert.False(t, ok)

	h.clock.Advance(24*time.Hour + time.Second)

	// lapsed restrictions stop blocking before the job runs
	ok, err = h.svc.CanUserPerformAction(ctx, "user-2", moderation.CapabilityComment)
	require.NoError(t, err)
	assert.True(t, ok)
	restrictions, err := h.svc.CheckUserRestrictions(ctx, h.actor("user-2"), "user-2")
	require.NoError(t, err)
	require.Len(t, restrictions, 1)
	assert.False(t, restrictions[0].IsActive)

	stats, err := h.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ExpiredAwaitingDeactivation)

	sched := moderation.NewScheduler(h.svc, time.Hour)
	restricted, suspended, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restricted)
	assert.Equal(t, 1, suspended)

	restricted, suspended, err = sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, restricted)
	assert.Zero(t, suspended)

	entries, err := h.svc.ListAuditLog(ctx, h.actor("admin-1"), 100)
	require.NoError(t, err)
	expired := 0
	for _, e := range entries {
		if e.Action == moderation.AuditActionRestrictionExpired {
			expired++
			assert.Equal(t, moderation.SystemActorID, e.ActorID)
		}
	}
	assert.Equal(t, 2, expired)

	notes, err := h.store.PendingNotifications(ctx, 100)
	require.NoError(t, err)
	kinds := map[moderation.NotificationKind]int{}
	for _, n := range notes {
		kinds[n.Kind]++
	}
	assert.Equal(t, 2, kinds[moderation.NotificationRestrictionExpired])
}

func TestReads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.report(t, "user-1", "user-2", moderation.ReasonSpam)
	a := h.act(t, "mod-1", moderation.ActionInput{ReportID: r.ID, ActionType: moderation.ActionUserWarned, Reason: "x"})

	t.Run("logs filter by moderator", func(t *testing.T) {
		page, err := h.svc.FetchModerationLogs(ctx, h.actor("mod-2"), moderation.LogFilter{ModeratorID: "mod-1"})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, a.ID, page.Actions[0].ID)

		page, err = h.svc.FetchModerationLogs(ctx, h.actor("mod-2"), moderation.LogFilter{ModeratorID: "mod-2"})
		require.NoError(t, err)
		assert.Zero(t, page.Total)
		assert.NotNil(t, page.Actions)
	})

	t.Run("logs reject inverted range", func(t *testing.T) {
		since := h.clock.Now()
		until := since.Add(-time.Hour)
		_, err := h.svc.FetchModerationLogs(ctx, h.actor("mod-2"), moderation.LogFilter{Since: &since, Until: &until})
		assert.Equal(t, moderation.KindValidation, kindOf(err))
	})

	t.Run("audit log is admin only", func(t *testing.T) {
		_, err := h.svc.ListAuditLog(ctx, h.actor("mod-1"), 10)
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		entries, err := h.svc.ListAuditLog(ctx, h.actor("admin-1"), 10)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Equal(t, moderation.AuditActionActionTaken, entries[0].Action)
	})

	t.Run("users see only their own restrictions", func(t *testing.T) {
		_, err := h.svc.CheckUserRestrictions(ctx, h.actor("user-1"), "user-2")
		assert.Equal(t, moderation.KindInsufficientPermission, kindOf(err))

		_, err = h.svc.CheckUserRestrictions(ctx, h.actor("user-2"), "user-2")
		assert.NoError(t, err)
	})

	t.Run("capability validation", func(t *testing.T) {
		_, err := h.svc.CanUserPerformAction(ctx, "user-2", moderation.Capability("stream"))
		assert.Equal(t, moderation.KindValidation, kindOf(err))
		_, err = h.svc.CanUserPerformAction(ctx, "", moderation.CapabilityPost)
		assert.Equal(t, moderation.KindValidation, kindOf(err))
	})

	t.Run("unknown ids", func(t *testing.T) {
		_, err := h.svc.GetAction(ctx, h.actor("mod-1"), uuid.NewString())
		assert.Equal(t, moderation.KindNotFound, kindOf(err))
		_, err = h.svc.GetReport(ctx, h.actor("mod-1"), uuid.NewString())
		assert.Equal(t, moderation.KindNotFound, kindOf(err))
	})
}
