package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/conference-companion/internal/agenda"
	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/persistence"
	"github.com/example/conference-companion/internal/testfixtures"
)

func TestStoreErrMapsPersistenceSentinels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   error
		want error
	}{
		{persistence.ErrNotFound, application.ErrNotFound},
		{persistence.ErrForeignKeyViolation, application.ErrNotFound},
		{persistence.ErrDuplicate, application.ErrAlreadyExists},
		{persistence.ErrStateConflict, application.ErrInvalidTransition},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("query: %w", tc.in)
		got := storeErr(wrapped)
		assert.ErrorIs(t, got, tc.want)
		assert.ErrorIs(t, got, tc.in)
	}

	other := errors.New("disk full")
	assert.Same(t, other, storeErr(other))
	assert.NoError(t, storeErr(nil))
}

func TestUserAdaptersRoundTrip(t *testing.T) {
	t.Parallel()
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	repos := newRepositories(h.Pool)
	now := testfixtures.ReferenceTime()
	ids := testfixtures.NewIDGenerator("user")

	user := application.User{ID: ids.Next(), Email: "ana@example.com", DisplayName: "Ana", IsSpeaker: true, CreatedAt: now, UpdatedAt: now}
	stored, err := repos.users.CreateUser(ctx, user, "argon-hash")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
	assert.True(t, stored.IsSpeaker)

	_, err = repos.users.CreateUser(ctx, application.User{ID: ids.Next(), Email: "ana@example.com", DisplayName: "Again", CreatedAt: now}, "hash")
	assert.ErrorIs(t, err, application.ErrAlreadyExists)

	creds, err := repos.users.GetUserCredentialsByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "argon-hash", creds.PasswordHash)
	assert.Equal(t, user.ID, creds.ID)

	_, err = repos.users.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, application.ErrNotFound)

	require.NoError(t, repos.passes.SavePass(ctx, application.Pass{ID: ids.Next(), UserID: user.ID, Tier: application.TierVIP, Status: "active", CreatedAt: now, UpdatedAt: now}))
	pass, err := repos.passes.GetActivePass(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, application.TierVIP, pass.Tier)

	require.NoError(t, repos.speakers.SaveSpeaker(ctx, application.Speaker{ID: user.ID, Slug: "ana", Name: "Ana", IsActive: true}))
	speaker, err := repos.speakers.GetSpeakerBySlug(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, user.ID, speaker.ID)
	require.NoError(t, repos.speakers.TouchSpeaker(ctx, user.ID, now))
	speaker, err = repos.speakers.GetSpeaker(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, speaker.LastSeenAt)
	assert.True(t, speaker.LastSeenAt.Equal(now))
}

func TestAgendaAdapterRoundTripsOptionalFields(t *testing.T) {
	t.Parallel()
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	repos := newRepositories(h.Pool)

	items := []agenda.Item{
		testfixtures.Item("p1", "Scaling Payments", "09:30 - 10:30", agenda.TypePanel, testfixtures.WithSpeakers("Bo Chen", "Ana López")),
		testfixtures.Item("b1", "Coffee Break", "10:30 - 10:45", agenda.TypeBreak, testfixtures.WithDay("")),
		testfixtures.Item("k1", "Opening Keynote", "09:00 - 09:30", agenda.TypeKeynote, testfixtures.WithLocation("Main Hall"), testfixtures.WithDuration(25)),
	}
	require.NoError(t, repos.agenda.ReplaceAgenda(ctx, "main", items))

	got, err := repos.agenda.ListAgenda(ctx, "main")
	require.NoError(t, err)
	require.Len(t, got, 3)

	byID := make(map[string]agenda.Item, len(got))
	for _, item := range got {
		byID[item.ID] = item
	}
	assert.Equal(t, []string{"Bo Chen", "Ana López"}, byID["p1"].Speakers)
	assert.Equal(t, "", byID["b1"].Day)
	assert.Equal(t, "", byID["b1"].Location)
	assert.Equal(t, "Main Hall", byID["k1"].Location)
	require.NotNil(t, byID["k1"].DurationMinutes)
	assert.Equal(t, 25, *byID["k1"].DurationMinutes)
	assert.Equal(t, "main", byID["k1"].EventID)
}

func TestMeetingRequestAdapterTransitions(t *testing.T) {
	t.Parallel()
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	repos := newRepositories(h.Pool)
	now := testfixtures.ReferenceTime()
	ids := testfixtures.NewIDGenerator("mr")

	requester, speaker := ids.Next(), ids.Next()
	for _, id := range []string{requester, speaker} {
		_, err := repos.users.CreateUser(ctx, application.User{ID: id, Email: id + "@example.com", DisplayName: id, CreatedAt: now}, "hash")
		require.NoError(t, err)
	}
	require.NoError(t, repos.speakers.SaveSpeaker(ctx, application.Speaker{ID: speaker, Slug: "bo-chen", Name: "Bo Chen", IsActive: true}))

	req := application.MeetingRequest{
		ID:                  ids.Next(),
		RequesterID:         requester,
		SpeakerID:           speaker,
		Status:              application.StatusPending,
		RequesterTicketType: application.TierBusiness,
		DurationMinutes:     15,
		CreatedAt:           now,
		UpdatedAt:           now,
		ExpiresAt:           now.Add(72 * time.Hour),
	}
	require.NoError(t, repos.requests.CreateMeetingRequest(ctx, req))

	dup := req
	dup.ID = ids.Next()
	assert.ErrorIs(t, repos.requests.CreateMeetingRequest(ctx, dup), application.ErrAlreadyExists)

	pending, err := repos.requests.HasPendingRequest(ctx, requester, speaker)
	require.NoError(t, err)
	assert.True(t, pending)

	listed, err := repos.requests.ListMeetingRequests(ctx, application.MeetingRequestFilter{SpeakerID: speaker, Statuses: []application.RequestStatus{application.StatusPending}})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, application.TierBusiness, listed[0].RequesterTicketType)

	cancelled, err := repos.requests.TransitionMeetingRequest(ctx, application.StatusChange{
		ID: req.ID, From: application.StatusPending, To: application.StatusCancelled, At: now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, application.StatusCancelled, cancelled.Status)

	_, err = repos.requests.TransitionMeetingRequest(ctx, application.StatusChange{
		ID: req.ID, From: application.StatusPending, To: application.StatusDeclined, At: now.Add(2 * time.Minute),
	})
	assert.ErrorIs(t, err, application.ErrInvalidTransition)

	counts, err := repos.requests.CountRequestsByRequester(ctx, requester)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
	assert.Equal(t, 1, counts.Cancelled)

	blocked, err := repos.blocks.ToggleBlock(ctx, speaker, requester, now)
	require.NoError(t, err)
	assert.True(t, blocked)
	isBlocked, err := repos.blocks.IsBlocked(ctx, speaker, requester)
	require.NoError(t, err)
	assert.True(t, isBlocked)
	blocks, err := repos.blocks.ListBlocks(ctx, speaker)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, requester, blocks[0].BlockedID)
}
