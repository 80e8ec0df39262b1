package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/conference-companion/internal/realtime"
)

type requestHarness struct {
	store     *memoryStore
	publisher *recordingPublisher
	cache     *mapCache
	now       time.Time
	svc       *MeetingRequestService
	quota     *QuotaService
}

func newRequestHarness(t *testing.T, tier PassTier) *requestHarness {
	t.Helper()
	h := &requestHarness{
		store:     newMemoryStore(),
		publisher: &recordingPublisher{},
		cache:     newMapCache(),
		now:       testNow,
	}
	h.store.addUser(attendeeID, "attendee@example.com", tier, false)
	h.store.addUser(speakerID, "speaker@example.com", TierGeneral, true)
	h.store.addUser(otherID, "other@example.com", TierGeneral, true)

	clock := func() time.Time { return h.now }
	passes := NewPassService(h.store, h.store, nil)
	h.quota = NewQuotaService(h.store, passes, h.cache, 0, clock, nil)
	h.svc = NewMeetingRequestService(MeetingRequestDeps{
		Requests:    h.store,
		Speakers:    NewSpeakerDirectory(h.store, nil, time.Second, clock, nil),
		Quota:       h.quota,
		Passes:      passes,
		Blocks:      h.store,
		Chat:        h.store,
		Publisher:   h.publisher,
		IDGenerator: sequenceUUIDs(),
		Now:         clock,
	})
	return h
}

func (h *requestHarness) create(t *testing.T, speaker string) MeetingRequest {
	t.Helper()
	req, err := h.svc.Create(context.Background(), CreateMeetingRequestParams{
		Principal: Principal{UserID: attendeeID},
		SpeakerID: speaker,
		Message:   "Would love to chat about rollups",
	})
	require.NoError(t, err)
	return req
}

func TestMeetingRequestService_Create(t *testing.T) {
	t.Parallel()

	t.Run("creates a pending request with defaults", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierBusiness)

		req := h.create(t, speakerID)

		assert.Equal(t, StatusPending, req.Status)
		assert.Equal(t, TierBusiness, req.RequesterTicketType)
		assert.Equal(t, DefaultMeetingMinutes, req.DurationMinutes)
		assert.Equal(t, testNow.Add(72*time.Hour), req.ExpiresAt)
		require.NotNil(t, req.Message)
		assert.Equal(t, []string{realtime.TableMeetingRequests}, h.publisher.tables())
		assert.Equal(t, realtime.ChangeInsert, h.publisher.changes[0].Type)
	})

	t.Run("rejects a second request once the general quota is used", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierGeneral)
		h.create(t, speakerID)

		_, err := h.svc.Create(context.Background(), CreateMeetingRequestParams{
			Principal: Principal{UserID: attendeeID},
			SpeakerID: otherID,
		})
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("rejects a duplicate pending request", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierVIP)
		h.create(t, speakerID)

		_, err := h.svc.Create(context.Background(), CreateMeetingRequestParams{
			Principal: Principal{UserID: attendeeID},
			SpeakerID: speakerID,
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("rejects requests from blocked users", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierVIP)
		_, err := h.store.ToggleBlock(context.Background(), speakerID, attendeeID, testNow)
		require.NoError(t, err)

		_, err = h.svc.Create(context.Background(), CreateMeetingRequestParams{
			Principal: Principal{UserID: attendeeID},
			SpeakerID: speakerID,
		})
		assert.ErrorIs(t, err, ErrBlocked)
	})

	t.Run("rejects inactive and unknown speakers", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierVIP)
		inactive := h.store.speakers[otherID]
		inactive.IsActive = false
		h.store.speakers[otherID] = inactive

		_, err := h.svc.Create(context.Background(), CreateMeetingRequestParams{
			Principal: Principal{UserID: attendeeID},
			SpeakerID: otherID,
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "speaker_id")

		_, err = h.svc.Create(context.Background(), CreateMeetingRequestParams{
			Principal: Principal{UserID: attendeeID},
			SpeakerID: "0193a1b2-0000-7000-8000-0000000000ff",
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierVIP)

		_, err := h.svc.Create(context.Background(), CreateMeetingRequestParams{
			Principal:       Principal{UserID: attendeeID},
			SpeakerID:       attendeeID,
			Message:         strings.Repeat("x", maxMessageLength+1),
			BoostAmount:     -1,
			DurationMinutes: 500,
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Len(t, vErr.FieldErrors, 4)

		_, err = h.svc.Create(context.Background(), CreateMeetingRequestParams{
			Principal: Principal{UserID: attendeeID},
			SpeakerID: "not-a-uuid",
		})
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "speaker_id must be a UUID", vErr.FieldErrors["speaker_id"])
	})

	t.Run("requires a principal", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierVIP)
		_, err := h.svc.Create(context.Background(), CreateMeetingRequestParams{SpeakerID: speakerID})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestMeetingRequestService_CancelKeepsQuotaConsumed(t *testing.T) {
	t.Parallel()
	h := newRequestHarness(t, TierGeneral)
	req := h.create(t, speakerID)

	_, err := h.svc.Cancel(context.Background(), Principal{UserID: speakerID}, req.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	cancelled, err := h.svc.Cancel(context.Background(), Principal{UserID: attendeeID}, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	limits, err := h.quota.GetRequestLimits(context.Background(), attendeeID)
	require.NoError(t, err)
	assert.Equal(t, 0, limits.RemainingRequests)
	assert.False(t, limits.CanSendRequest)

	_, err = h.svc.Cancel(context.Background(), Principal{UserID: attendeeID}, req.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMeetingRequestService_Accept(t *testing.T) {
	t.Parallel()

	t.Run("creates meeting and system message", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierVIP)
		req := h.create(t, speakerID)
		h.now = h.now.Add(time.Hour)

		_, _, err := h.svc.Accept(context.Background(), Principal{UserID: attendeeID}, req.ID, "")
		assert.ErrorIs(t, err, ErrUnauthorized)

		accepted, meeting, err := h.svc.Accept(context.Background(), Principal{UserID: speakerID}, req.ID, "See you at booth 4")
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, accepted.Status)
		require.NotNil(t, accepted.SpeakerResponseAt)
		assert.Equal(t, h.now, *accepted.SpeakerResponseAt)
		assert.Equal(t, req.ID, meeting.MeetingRequestID)
		assert.Equal(t, "scheduled", meeting.Status)

		require.Len(t, h.store.chat, 1)
		assert.Equal(t, AcceptedSystemMessage, h.store.chat[0].Body)
		assert.Equal(t, "system", h.store.chat[0].MessageType)
		assert.Nil(t, h.store.chat[0].SenderID)
		assert.Equal(t, []string{
			realtime.TableMeetingRequests,
			realtime.TableMeetingRequests,
			realtime.TableMeetings,
		}, h.publisher.tables())
	})

	t.Run("chat failure does not fail the accept", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierVIP)
		req := h.create(t, speakerID)
		h.store.chatErr = errors.New("chat down")

		accepted, _, err := h.svc.Accept(context.Background(), Principal{UserID: speakerID}, req.ID, "")
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, accepted.Status)
		assert.Len(t, h.store.meetings, 1)
	})

	t.Run("rejects expired requests", func(t *testing.T) {
		t.Parallel()
		h := newRequestHarness(t, TierVIP)
		req := h.create(t, speakerID)
		h.now = req.ExpiresAt

		_, _, err := h.svc.Accept(context.Background(), Principal{UserID: speakerID}, req.ID, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Empty(t, h.store.meetings)
	})
}

func TestMeetingRequestService_Decline(t *testing.T) {
	t.Parallel()
	h := newRequestHarness(t, TierVIP)
	req := h.create(t, speakerID)

	_, err := h.svc.Decline(context.Background(), Principal{UserID: attendeeID}, req.ID, "no")
	assert.ErrorIs(t, err, ErrUnauthorized)

	declined, err := h.svc.Decline(context.Background(), Principal{UserID: speakerID}, req.ID, "Fully booked")
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, declined.Status)
	require.NotNil(t, declined.DeclineReason)
	assert.Equal(t, "Fully booked", *declined.DeclineReason)
	require.NotNil(t, declined.SpeakerResponseAt)

	_, _, err = h.svc.Accept(context.Background(), Principal{UserID: speakerID}, req.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMeetingRequestService_ExpireStale(t *testing.T) {
	t.Parallel()
	h := newRequestHarness(t, TierVIP)
	first := h.create(t, speakerID)
	h.now = h.now.Add(time.Hour)
	h.create(t, otherID)

	h.now = first.ExpiresAt
	expired, err := h.svc.ExpireStale(context.Background())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, first.ID, expired[0].ID)
	assert.Equal(t, StatusExpired, expired[0].Status)

	got, err := h.svc.Get(context.Background(), Principal{UserID: attendeeID}, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestMeetingRequestService_Listing(t *testing.T) {
	t.Parallel()
	h := newRequestHarness(t, TierVIP)
	first := h.create(t, speakerID)
	h.now = h.now.Add(time.Minute)
	second := h.create(t, otherID)

	outgoing, err := h.svc.ListForRequester(context.Background(), Principal{UserID: attendeeID})
	require.NoError(t, err)
	require.Len(t, outgoing, 2)
	assert.Equal(t, second.ID, outgoing[0].ID)

	incoming, err := h.svc.ListForSpeaker(context.Background(), Principal{UserID: speakerID}, StatusPending)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, first.ID, incoming[0].ID)

	_, err = h.svc.Get(context.Background(), Principal{UserID: otherID}, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.svc.Get(context.Background(), Principal{UserID: otherID, IsAdmin: true}, first.ID)
	assert.NoError(t, err)

	stats, err := h.svc.SpeakerStats(context.Background(), "speaker-example-com")
	require.NoError(t, err)
	assert.Equal(t, speakerID, stats.SpeakerID)
	assert.Equal(t, 1, stats.Pending)
}

func TestMeetingRequestService_TransitionsInvalidateLimits(t *testing.T) {
	t.Parallel()
	h := newRequestHarness(t, TierBusiness)

	limits, err := h.quota.GetRequestLimits(context.Background(), attendeeID)
	require.NoError(t, err)
	assert.Equal(t, 3, limits.RemainingRequests)

	h.create(t, speakerID)
	_, cached := h.cache.Get(context.Background(), attendeeID)
	assert.False(t, cached)

	limits, err = h.quota.GetRequestLimits(context.Background(), attendeeID)
	require.NoError(t, err)
	assert.Equal(t, 2, limits.RemainingRequests)
}
