package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/conference-companion/internal/agenda"
	"github.com/example/conference-companion/internal/client"
	"github.com/example/conference-companion/internal/realtime"
	"github.com/example/conference-companion/internal/testfixtures"
)

type agendaSourceStub struct {
	mu    sync.Mutex
	items []agenda.Item
	err   error
	calls int
}

func (s *agendaSourceStub) Agenda(context.Context, string) ([]agenda.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]agenda.Item(nil), s.items...), nil
}

func (s *agendaSourceStub) set(items []agenda.Item, err error) {
	s.mu.Lock()
	s.items, s.err = items, err
	s.mu.Unlock()
}

func (s *agendaSourceStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestAgendaTrackerRefresh(t *testing.T) {
	t.Parallel()
	clock := testfixtures.At(9, 15)
	source := &agendaSourceStub{items: testfixtures.DayOneAgenda()}
	tr := NewAgendaTracker(source, "devcon", testfixtures.EventDays(), Intervals{}, clock.NowFunc(), nil)

	require.NoError(t, tr.Refresh(context.Background()))
	state := tr.State()
	require.True(t, state.Snapshot.HasCurrent())
	assert.Equal(t, "k1", state.Snapshot.Current.ID)
	assert.Equal(t, "p1", state.Snapshot.Next.ID)
	assert.InDelta(t, 50, state.Progress.Percent, 0.001)
	assert.Equal(t, agenda.Countdown{Minutes: 15}, state.Progress.Remaining)
	assert.True(t, state.InEventPeriod)
	assert.Equal(t, 5, state.Items)

	source.set(nil, errors.New("agenda source offline"))
	require.Error(t, tr.Refresh(context.Background()))
	assert.Len(t, tr.Items(), 5, "failed fetch keeps the previous agenda")

	source.set([]agenda.Item{testfixtures.Item("x1", "Only", "09:00 - 10:00", agenda.TypePanel)}, nil)
	require.NoError(t, tr.Refresh(context.Background()))
	assert.Len(t, tr.Items(), 1, "fetch supersedes the agenda wholesale")
	assert.Equal(t, "x1", tr.Snapshot(clock.Now()).Current.ID)
	assert.Len(t, tr.Days(), 1)
}

func TestAgendaTrackerRun(t *testing.T) {
	t.Parallel()
	clock := testfixtures.At(9, 29)
	source := &agendaSourceStub{items: testfixtures.DayOneAgenda()}
	tr := NewAgendaTracker(source, "devcon", testfixtures.EventDays(),
		Intervals{Progress: 5 * time.Millisecond, Locate: 20 * time.Millisecond, Refetch: 15 * time.Millisecond},
		clock.NowFunc(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	first := <-tr.Updates()
	require.True(t, first.Snapshot.HasCurrent())
	assert.Equal(t, "k1", first.Snapshot.Current.ID)

	// The keynote ends; the next progress tick moves on to the panel.
	clock.Set(clock.Now().Add(2 * time.Minute))
	require.Eventually(t, func() bool {
		s := tr.State()
		return s.Snapshot.HasCurrent() && s.Snapshot.Current.ID == "p1"
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return source.callCount() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"refetch runs during the event period")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestAgendaTrackerSkipsRefetchOutsideEvent(t *testing.T) {
	t.Parallel()
	clock := testfixtures.NewClock(testfixtures.ReferenceTime().AddDate(0, 1, 0))
	source := &agendaSourceStub{items: testfixtures.DayOneAgenda()}
	tr := NewAgendaTracker(source, "devcon", testfixtures.EventDays(),
		Intervals{Progress: time.Millisecond, Locate: time.Millisecond, Refetch: time.Millisecond},
		clock.NowFunc(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, tr.Run(ctx))
	assert.Equal(t, 1, source.callCount())
	assert.False(t, tr.State().InEventPeriod)
	assert.False(t, tr.State().Snapshot.HasCurrent())
}

type limitsStub struct {
	mu     sync.Mutex
	limits client.RequestLimits
	err    error
}

func (s *limitsStub) Limits(context.Context) (client.RequestLimits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits, s.err
}

func TestQuotaTrackerDeniesOnFailure(t *testing.T) {
	t.Parallel()
	now := testfixtures.ReferenceTime()
	source := &limitsStub{limits: client.RequestLimits{TicketType: "business", RequestLimit: 3, TotalRequests: 1, RemainingRequests: 2, CanSendRequest: true}}
	q := NewQuotaTracker(source, nil)

	assert.False(t, q.CanSend(now), "no snapshot yet")

	_, err := q.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, q.CanSend(now))

	source.err = errors.New("rpc failed")
	limits, err := q.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, limits.RemainingRequests)
	assert.False(t, limits.CanSendRequest)
	assert.Equal(t, "business", limits.TicketType)
	assert.False(t, q.CanSend(now))
	assert.Error(t, q.Err())
}

func TestQuotaTrackerRespectsCooldown(t *testing.T) {
	t.Parallel()
	now := testfixtures.ReferenceTime()
	next := now.Add(time.Minute)
	q := NewQuotaTracker(&limitsStub{limits: client.RequestLimits{RemainingRequests: 1, CanSendRequest: true, NextRequestAllowedAt: &next}}, nil)
	_, err := q.Refresh(context.Background())
	require.NoError(t, err)

	assert.False(t, q.CanSend(now))
	assert.True(t, q.CanSend(next))

	q.Reset()
	assert.False(t, q.CanSend(next))
}

func request(id, requester, speaker, status string, updated time.Time) client.MeetingRequest {
	return client.MeetingRequest{ID: id, RequesterID: requester, SpeakerID: speaker, Status: status, CreatedAt: updated, UpdatedAt: updated}
}

func TestRequestBoard(t *testing.T) {
	t.Parallel()
	base := testfixtures.ReferenceTime()

	t.Run("authoritative fetch replaces provisional entries", func(t *testing.T) {
		t.Parallel()
		b := NewRequestBoard()
		b.ReplaceAll([]client.MeetingRequest{request("r0", "u1", "s0", "accepted", base)})
		b.AddProvisional(request("provisional-1", "u1", "s1", "pending", base))
		b.AddProvisional(request("provisional-2", "u1", "s2", "pending", base))

		entries := b.Entries()
		require.Len(t, entries, 3)
		assert.Equal(t, "provisional-2", entries[0].Request.ID)
		assert.True(t, entries[0].Provisional)

		b.ReplaceAll([]client.MeetingRequest{
			request("r1", "u1", "s1", "pending", base.Add(time.Second)),
			request("r0", "u1", "s0", "accepted", base),
		})
		entries = b.Entries()
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.False(t, e.Provisional)
		}
		assert.Equal(t, "r1", entries[0].Request.ID)
	})

	t.Run("upsert confirms the provisional entry of the pair", func(t *testing.T) {
		t.Parallel()
		b := NewRequestBoard()
		b.AddProvisional(request("provisional-1", "u1", "s1", "pending", base))
		b.Upsert(request("r1", "u1", "s1", "pending", base))

		entries := b.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "r1", entries[0].Request.ID)
		assert.False(t, entries[0].Provisional)

		b.DropProvisional("u1", "s1")
		assert.Len(t, b.Entries(), 1, "confirmed entries are not dropped")
	})

	t.Run("push changes are last write wins", func(t *testing.T) {
		t.Parallel()
		b := NewRequestBoard()
		b.ReplaceAll([]client.MeetingRequest{request("r1", "u1", "s1", "pending", base.Add(time.Minute))})

		stale := realtime.Change{Table: realtime.TableMeetingRequests, Type: realtime.ChangeUpdate, RecordID: "r1", Status: "cancelled", OccurredAt: base}
		assert.False(t, b.ApplyChange(stale))
		entry, _ := b.Get("r1")
		assert.Equal(t, "pending", entry.Request.Status)

		fresh := stale
		fresh.Status = "accepted"
		fresh.OccurredAt = base.Add(2 * time.Minute)
		assert.True(t, b.ApplyChange(fresh))
		entry, _ = b.Get("r1")
		assert.Equal(t, "accepted", entry.Request.Status)

		assert.False(t, b.ApplyChange(realtime.Change{Table: realtime.TableMeetings, Type: realtime.ChangeInsert, RecordID: "m1"}))

		assert.True(t, b.ApplyChange(realtime.Change{Table: realtime.TableMeetingRequests, Type: realtime.ChangeDelete, RecordID: "r1"}))
		assert.Empty(t, b.Entries())
	})

	t.Run("pushed insert confirms a provisional entry", func(t *testing.T) {
		t.Parallel()
		b := NewRequestBoard()
		b.AddProvisional(request("provisional-1", "u1", "s1", "pending", base))
		assert.True(t, b.ApplyChange(realtime.Change{
			Table: realtime.TableMeetingRequests, Type: realtime.ChangeInsert, RecordID: "r9",
			RequesterID: "u1", SpeakerID: "s1", Status: "pending", OccurredAt: base.Add(time.Second),
		}))
		entries := b.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "r9", entries[0].Request.ID)
		assert.False(t, entries[0].Provisional)
	})
}

// fakeAPI keeps server-side state the way the companion server does: every
// created request consumes quota for good.
type fakeAPI struct {
	mu        sync.Mutex
	limit     int
	created   int
	requests  []client.MeetingRequest
	createErr error
	limitsErr error
	listCalls int
	ids       *testfixtures.IDGenerator
	now       func() time.Time
}

func newFakeAPI(limit int, now func() time.Time) *fakeAPI {
	return &fakeAPI{limit: limit, ids: testfixtures.NewIDGenerator("request"), now: now}
}

func (f *fakeAPI) Limits(context.Context) (client.RequestLimits, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limitsErr != nil {
		return client.RequestLimits{}, f.limitsErr
	}
	remaining := max(0, f.limit-f.created)
	return client.RequestLimits{TicketType: "general", RequestLimit: f.limit, TotalRequests: f.created, RemainingRequests: remaining, CanSendRequest: remaining > 0}, nil
}

func (f *fakeAPI) MeetingRequests(context.Context, client.Role, ...string) ([]client.MeetingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]client.MeetingRequest(nil), f.requests...), nil
}

func (f *fakeAPI) CreateMeetingRequest(_ context.Context, params client.NewMeetingRequest) (client.MeetingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return client.MeetingRequest{}, f.createErr
	}
	f.created++
	req := request(f.ids.Next(), "u1", params.SpeakerID, "pending", f.now())
	f.requests = append([]client.MeetingRequest{req}, f.requests...)
	return req, nil
}

func (f *fakeAPI) setStatus(id, status string) (client.MeetingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.requests {
		if f.requests[i].ID == id {
			if f.requests[i].Status != "pending" {
				return client.MeetingRequest{}, &client.APIError{Status: 409, Code: "invalid_transition", Message: "request is no longer pending"}
			}
			f.requests[i].Status = status
			f.requests[i].UpdatedAt = f.now()
			return f.requests[i], nil
		}
	}
	return client.MeetingRequest{}, &client.APIError{Status: 404, Code: "not_found", Message: "not found"}
}

func (f *fakeAPI) CancelMeetingRequest(_ context.Context, id string) (client.MeetingRequest, error) {
	return f.setStatus(id, "cancelled")
}

func (f *fakeAPI) AcceptMeetingRequest(_ context.Context, id, _ string) (client.Acceptance, error) {
	req, err := f.setStatus(id, "accepted")
	if err != nil {
		return client.Acceptance{}, err
	}
	return client.Acceptance{Request: req, Meeting: client.Meeting{ID: "m-" + id, MeetingRequestID: id, Status: "scheduled"}}, nil
}

func (f *fakeAPI) DeclineMeetingRequest(_ context.Context, id, _ string) (client.MeetingRequest, error) {
	return f.setStatus(id, "declined")
}

func newTestController(t *testing.T, limit int) (*Controller, *fakeAPI) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	api := newFakeAPI(limit, clock.NowFunc())
	c := NewController(api, nil, nil, clock.NowFunc(), nil)
	require.NoError(t, c.SetIdentity(context.Background(), Identity{UserID: "u1"}))
	return c, api
}

func TestControllerLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cancel never gives quota back", func(t *testing.T) {
		t.Parallel()
		c, api := newTestController(t, 1)
		version := c.PassDisplayVersion()

		created, err := c.Create(ctx, client.NewMeetingRequest{SpeakerID: "s1"})
		require.NoError(t, err)
		assert.Greater(t, c.PassDisplayVersion(), version)
		assert.Equal(t, 0, c.Quota().Limits().RemainingRequests)
		require.Len(t, c.Board().Entries(), 1)
		assert.False(t, c.Board().Entries()[0].Provisional)

		cancelled, err := c.Cancel(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "cancelled", cancelled.Status)
		assert.Equal(t, 0, c.Quota().Limits().RemainingRequests)

		_, err = c.Create(ctx, client.NewMeetingRequest{SpeakerID: "s1"})
		require.ErrorIs(t, err, client.ErrLimitUnavailable)
		_, err = c.Create(ctx, client.NewMeetingRequest{SpeakerID: "s2"})
		require.ErrorIs(t, err, client.ErrLimitUnavailable)
		assert.Equal(t, 1, api.created, "refused creates never reach the server")
	})

	t.Run("server rejection drops the provisional entry", func(t *testing.T) {
		t.Parallel()
		c, api := newTestController(t, 3)
		api.createErr = &client.APIError{Status: 409, Code: "already_exists", Message: "a pending request already exists"}

		_, err := c.Create(ctx, client.NewMeetingRequest{SpeakerID: "s1"})
		require.ErrorIs(t, err, client.ErrAlreadyExists)
		assert.Empty(t, c.Board().Entries())
		assert.Equal(t, "You already have a pending request with this speaker.", client.Describe(err))
	})

	t.Run("limits failure denies further requests", func(t *testing.T) {
		t.Parallel()
		c, api := newTestController(t, 3)
		api.limitsErr = errors.New("aggregate unavailable")
		require.Error(t, c.Refresh(ctx))

		_, err := c.Create(ctx, client.NewMeetingRequest{SpeakerID: "s1"})
		require.ErrorIs(t, err, client.ErrLimitUnavailable)
	})

	t.Run("speaker transitions refresh the list", func(t *testing.T) {
		t.Parallel()
		c, api := newTestController(t, 3)
		first, err := c.Create(ctx, client.NewMeetingRequest{SpeakerID: "s1"})
		require.NoError(t, err)
		second, err := c.Create(ctx, client.NewMeetingRequest{SpeakerID: "s2"})
		require.NoError(t, err)

		calls := api.listCalls
		acceptance, err := c.Accept(ctx, first.ID, "see you at booth 4")
		require.NoError(t, err)
		assert.Equal(t, "m-"+first.ID, acceptance.Meeting.ID)
		assert.Equal(t, calls+1, api.listCalls)

		_, err = c.Decline(ctx, second.ID, "")
		require.NoError(t, err)

		_, err = c.Decline(ctx, first.ID, "")
		require.ErrorIs(t, err, client.ErrInvalidTransition)

		entry, ok := c.Board().Get(first.ID)
		require.True(t, ok)
		assert.Equal(t, "accepted", entry.Request.Status)
	})

	t.Run("identity change drops local state", func(t *testing.T) {
		t.Parallel()
		c, api := newTestController(t, 3)
		_, err := c.Create(ctx, client.NewMeetingRequest{SpeakerID: "s1"})
		require.NoError(t, err)

		api.mu.Lock()
		api.requests = nil
		api.mu.Unlock()
		require.NoError(t, c.SetIdentity(ctx, Identity{UserID: "s1", Role: client.RoleSpeaker}))
		assert.Empty(t, c.Board().Entries())
		assert.Equal(t, client.RoleSpeaker, c.Identity().Role)
	})
}

func TestSubscriberAppliesChanges(t *testing.T) {
	t.Parallel()

	changes := make(chan realtime.Change, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jwt-1" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for change := range changes {
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	board := NewRequestBoard()
	sub := NewSubscriber("ws"+strings.TrimPrefix(server.URL, "http"), func() string { return "jwt-1" }, board, nil)
	applied := make(chan realtime.Change, 1)
	sub.OnChange(func(c realtime.Change) { applied <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	changes <- realtime.Change{
		Table: realtime.TableMeetingRequests, Type: realtime.ChangeInsert, RecordID: "r1",
		RequesterID: "u1", SpeakerID: "s1", Status: "pending", OccurredAt: testfixtures.ReferenceTime(),
	}
	select {
	case c := <-applied:
		assert.Equal(t, "r1", c.RecordID)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
	entry, ok := board.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "pending", entry.Request.Status)

	cancel()
	close(changes)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
