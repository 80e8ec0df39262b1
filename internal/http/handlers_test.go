package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/realtime"
)

const (
	attendeeID = "0193a1b2-0000-7000-8000-000000000001"
	speakerID  = "0193a1b2-0000-7000-8000-000000000002"
)

var testNow = time.Date(2025, 11, 12, 15, 0, 0, 0, time.UTC)

type tokenValidatorStub map[string]application.Principal

func (s tokenValidatorStub) ValidateToken(_ context.Context, token string) (application.Principal, error) {
	switch token {
	case "expired":
		return application.Principal{}, application.ErrTokenExpired
	case "broken":
		return application.Principal{}, errors.New("database is locked")
	}
	principal, ok := s[token]
	if !ok {
		return application.Principal{}, application.ErrInvalidCredentials
	}
	return principal, nil
}

var testTokens = tokenValidatorStub{
	"attendee": {UserID: attendeeID},
	"speaker":  {UserID: speakerID},
	"admin":    {UserID: "admin", IsAdmin: true},
}

type meetingRequestServiceStub struct {
	mu        sync.Mutex
	createErr error
	created   []application.CreateMeetingRequestParams
	acceptErr error
}

func (s *meetingRequestServiceStub) Create(_ context.Context, params application.CreateMeetingRequestParams) (application.MeetingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return application.MeetingRequest{}, s.createErr
	}
	s.created = append(s.created, params)
	return application.MeetingRequest{
		ID:              "req-1",
		RequesterID:     params.Principal.UserID,
		SpeakerID:       params.SpeakerID,
		Status:          application.StatusPending,
		DurationMinutes: 15,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
		ExpiresAt:       testNow.Add(72 * time.Hour),
	}, nil
}

func (s *meetingRequestServiceStub) Get(_ context.Context, _ application.Principal, id string) (application.MeetingRequest, error) {
	if id != "req-1" {
		return application.MeetingRequest{}, application.ErrNotFound
	}
	return application.MeetingRequest{ID: id, Status: application.StatusPending}, nil
}

func (s *meetingRequestServiceStub) Cancel(_ context.Context, _ application.Principal, id string) (application.MeetingRequest, error) {
	return application.MeetingRequest{}, application.ErrInvalidTransition
}

func (s *meetingRequestServiceStub) Accept(_ context.Context, principal application.Principal, id, notes string) (application.MeetingRequest, application.Meeting, error) {
	if s.acceptErr != nil {
		return application.MeetingRequest{}, application.Meeting{}, s.acceptErr
	}
	return application.MeetingRequest{ID: id, Status: application.StatusAccepted, SpeakerNotes: &notes},
		application.Meeting{ID: "meeting-1", MeetingRequestID: id, SpeakerID: principal.UserID, Status: "scheduled"}, nil
}

func (s *meetingRequestServiceStub) Decline(_ context.Context, _ application.Principal, id, reason string) (application.MeetingRequest, error) {
	return application.MeetingRequest{ID: id, Status: application.StatusDeclined, DeclineReason: &reason}, nil
}

func (s *meetingRequestServiceStub) ListForRequester(_ context.Context, principal application.Principal, statuses ...application.RequestStatus) ([]application.MeetingRequest, error) {
	return []application.MeetingRequest{{ID: "out-" + string(joinStatuses(statuses)), RequesterID: principal.UserID}}, nil
}

func (s *meetingRequestServiceStub) ListForSpeaker(_ context.Context, principal application.Principal, statuses ...application.RequestStatus) ([]application.MeetingRequest, error) {
	return []application.MeetingRequest{{ID: "in-" + string(joinStatuses(statuses)), SpeakerID: principal.UserID}}, nil
}

func joinStatuses(statuses []application.RequestStatus) application.RequestStatus {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return application.RequestStatus(strings.Join(parts, "+"))
}

type agendaServiceStub struct {
	imported []agenda.Item
}

func (s *agendaServiceStub) List(_ context.Context, eventID string) ([]agenda.Item, error) {
	if eventID == "" {
		return nil, &application.ValidationError{FieldErrors: map[string]string{"eventId": "eventId is required"}}
	}
	return nil, nil
}

func (s *agendaServiceStub) Import(_ context.Context, principal application.Principal, eventID string, items []agenda.Item) (application.ImportResult, error) {
	if !principal.IsAdmin {
		return application.ImportResult{}, application.ErrUnauthorized
	}
	s.imported = items
	return application.ImportResult{EventID: eventID, Imported: len(items)}, nil
}

func (s *agendaServiceStub) SetStatus(_ context.Context, principal application.Principal, itemID string, status application.AgendaStatusValue, favorite bool) (application.AgendaStatus, error) {
	return application.AgendaStatus{UserID: principal.UserID, AgendaItemID: itemID, Status: status, IsFavorite: favorite}, nil
}

func (s *agendaServiceStub) ListStatus(context.Context, application.Principal) ([]application.AgendaStatus, error) {
	return nil, nil
}

type limitsServiceStub struct{}

func (limitsServiceStub) GetRequestLimits(_ context.Context, userID string) (application.RequestLimits, error) {
	return application.ComputeLimits(application.TierBusiness, application.RequestCounts{Total: 1}, 0), nil
}

type testServer struct {
	handler  http.Handler
	requests *meetingRequestServiceStub
	agenda   *agendaServiceStub
	hub      *realtime.Hub
	touched  chan string
}

type presenceStub chan string

func (p presenceStub) Touch(_ context.Context, userID string) error {
	select {
	case p <- userID:
	default:
	}
	return nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		requests: &meetingRequestServiceStub{},
		agenda:   &agendaServiceStub{},
		hub:      realtime.NewHub(nil),
		touched:  make(chan string, 4),
	}
	t.Cleanup(ts.hub.Close)
	ts.handler = NewRouter(RouterConfig{
		Agenda:          NewAgendaHandler(ts.agenda, nil),
		MeetingRequests: NewMeetingRequestHandler(ts.requests, nil),
		Account:         NewAccountHandler(limitsServiceStub{}, nil, nil, nil, nil),
		Realtime:        NewRealtimeHandler(ts.hub, presenceStub(ts.touched), nil, nil),
		Authenticate:    RequireAuth(testTokens, nil),
		Middleware:      []func(http.Handler) http.Handler{Recoverer(nil), RequestLogger(nil)},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	cases := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{name: "missing token", status: http.StatusUnauthorized, code: codeUnauthenticated},
		{name: "unknown token", token: "forged", status: http.StatusUnauthorized, code: codeUnauthenticated},
		{name: "expired token", token: "expired", status: http.StatusUnauthorized, code: codeTokenExpired},
		{name: "validator failure", token: "broken", status: http.StatusInternalServerError, code: codeInternal},
		{name: "valid token", token: "attendee", status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec, env := ts.do(t, http.MethodGet, "/api/limits", tc.token, nil)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, env.Code)
			assert.Equal(t, tc.status == http.StatusOK, env.Success)
		})
	}
}

func TestClassifyServiceErrors(t *testing.T) {
	t.Parallel()

	cases := map[error]int{
		application.ErrUnauthorized:                              http.StatusForbidden,
		application.ErrBlocked:                                   http.StatusForbidden,
		application.ErrNotFound:                                  http.StatusNotFound,
		application.ErrAlreadyExists:                             http.StatusConflict,
		fmt.Errorf("wrap: %w", application.ErrInvalidTransition): http.StatusConflict,
		application.ErrQuotaExceeded:                             http.StatusTooManyRequests,
		&application.ValidationError{}:                           http.StatusUnprocessableEntity,
		errors.New("boom"):                                       http.StatusInternalServerError,
	}
	for err, status := range cases {
		got, _, message := classify(err)
		assert.Equal(t, status, got, "error %v", err)
		assert.NotEmpty(t, message)
	}

	_, _, message := classify(application.ErrUnauthorized)
	assert.Contains(t, message, "permission")
	_, _, message = classify(application.ErrNotFound)
	assert.Contains(t, message, "not found")
	_, _, message = classify(application.ErrAlreadyExists)
	assert.Contains(t, message, "already exists")
}

func TestMeetingRequestHandlers(t *testing.T) {
	t.Parallel()

	t.Run("create returns the pending request", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		rec, env := ts.do(t, http.MethodPost, "/api/meeting-requests", "attendee", map[string]any{
			"speaker_id": speakerID,
			"message":    "hello",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.True(t, env.Success)
		data := env.Data.(map[string]any)
		assert.Equal(t, "pending", data["status"])
		assert.Equal(t, attendeeID, data["requester_id"])
		assert.Equal(t, "2025-11-15T15:00:00Z", data["expires_at"])
		require.Len(t, ts.requests.created, 1)
		assert.Equal(t, attendeeID, ts.requests.created[0].Principal.UserID)
	})

	t.Run("quota exhaustion maps to 429", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.requests.createErr = application.ErrQuotaExceeded
		rec, env := ts.do(t, http.MethodPost, "/api/meeting-requests", "attendee", map[string]any{"speaker_id": speakerID})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.False(t, env.Success)
		assert.Equal(t, codeQuotaExceeded, env.Code)
	})

	t.Run("validation errors carry fields", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.requests.createErr = &application.ValidationError{FieldErrors: map[string]string{"speaker_id": "speaker_id must be a UUID"}}
		rec, env := ts.do(t, http.MethodPost, "/api/meeting-requests", "attendee", map[string]any{"speaker_id": "x"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "speaker_id must be a UUID", env.Fields["speaker_id"])
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		rec, env := ts.do(t, http.MethodPost, "/api/meeting-requests", "attendee", `{"speaker_id":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, codeBadRequest, env.Code)
		rec, _ = ts.do(t, http.MethodPost, "/api/meeting-requests", "attendee", `{"unknown":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lists by role and status", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		_, env := ts.do(t, http.MethodGet, "/api/meeting-requests?role=speaker&status=pending,Accepted", "speaker", nil)
		items := env.Data.([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "in-pending+accepted", items[0].(map[string]any)["id"])

		_, env = ts.do(t, http.MethodGet, "/api/meeting-requests", "attendee", nil)
		assert.Equal(t, "out-", env.Data.([]any)[0].(map[string]any)["id"])

		rec, _ := ts.do(t, http.MethodGet, "/api/meeting-requests?role=admin", "attendee", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("transitions", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		rec, env := ts.do(t, http.MethodPost, "/api/meeting-requests/req-1/accept", "speaker", map[string]string{"notes": "booth 4"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		data := env.Data.(map[string]any)
		assert.Equal(t, "accepted", data["request"].(map[string]any)["status"])
		assert.Equal(t, "meeting-1", data["meeting"].(map[string]any)["id"])

		rec, env = ts.do(t, http.MethodPost, "/api/meeting-requests/req-1/decline", "speaker", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "declined", env.Data.(map[string]any)["status"])

		rec, env = ts.do(t, http.MethodPost, "/api/meeting-requests/req-1/cancel", "attendee", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, codeInvalidTransition, env.Code)

		rec, _ = ts.do(t, http.MethodGet, "/api/meeting-requests/missing", "attendee", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec, _ = ts.do(t, http.MethodDelete, "/api/meeting-requests/req-1", "attendee", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestAgendaHandlers(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/agenda?eventId=devcon", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, env.Data)

	rec, _ = ts.do(t, http.MethodGet, "/api/agenda", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := `{"data":{"data":[{"id":"k1","title":"Opening","time":"09:00 - 09:30","type":"keynote"}]}}`
	rec, _ = ts.do(t, http.MethodPut, "/api/agenda?eventId=devcon", "attendee", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = ts.do(t, http.MethodPut, "/api/agenda?eventId=devcon", "admin", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, env.Data.(map[string]any)["imported"])
	require.Len(t, ts.agenda.imported, 1)
	assert.Equal(t, "Opening", ts.agenda.imported[0].Title)

	rec, env = ts.do(t, http.MethodPut, "/api/agenda?eventId=devcon", "admin", `{"success":false,"error":"sheet offline"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, "sheet offline")

	rec, env = ts.do(t, http.MethodPut, "/api/agenda/status/k1", "attendee", map[string]any{"status": "Confirmed", "is_favorite": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", env.Data.(map[string]any)["status"])
}

func TestLimitsHandler(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/limits", "attendee", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, "business", data["ticket_type"])
	assert.EqualValues(t, 2, data["remaining_requests"])
	assert.Equal(t, true, data["can_send_request"])
}

func TestRealtimeHandler(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/realtime?table=meeting_requests"

	t.Run("rejects foreign scopes before upgrading", func(t *testing.T) {
		header := http.Header{"Authorization": {"Bearer attendee"}}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"&filter=speaker_id=eq."+speakerID, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("streams matching changes", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"&filter=speaker_id=eq."+speakerID+"&access_token=speaker", nil)
		require.NoError(t, err)
		defer conn.Close()

		select {
		case id := <-ts.touched:
			assert.Equal(t, speakerID, id)
		case <-time.After(2 * time.Second):
			t.Fatal("presence not recorded")
		}

		require.Eventually(t, func() bool { return ts.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
		ctx := context.Background()
		require.NoError(t, ts.hub.Publish(ctx, realtime.Change{Table: realtime.TableMeetingRequests, Type: realtime.ChangeInsert, RecordID: "other", SpeakerID: "someone-else"}))
		require.NoError(t, ts.hub.Publish(ctx, realtime.Change{Table: realtime.TableMeetingRequests, Type: realtime.ChangeInsert, RecordID: "mine", SpeakerID: speakerID, Status: "pending"}))

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var change realtime.Change
		require.NoError(t, conn.ReadJSON(&change))
		assert.Equal(t, "mine", change.RecordID)
		assert.Equal(t, realtime.ChangeInsert, change.Type)
	})
}

type accountStub struct {
	mu      sync.Mutex
	blocked map[string]bool
}

func (s *accountStub) GetPassInfo(_ context.Context, userID string) (application.PassInfo, error) {
	return application.PassInfo{UserID: userID, DisplayName: "Ana", Tier: application.TierVIP, TierLabel: application.TierVIP.DisplayName(), Status: "active", HasPass: true}, nil
}

func (s *accountStub) Stats(_ context.Context, principal application.Principal) (application.NetworkingStats, error) {
	return application.NetworkingStats{TotalRequests: 3, Accepted: 1, BlockedUsers: len(s.blocked), ScheduledMeetings: 1}, nil
}

func (s *accountStub) ListMeetings(_ context.Context, principal application.Principal) ([]application.Meeting, error) {
	return []application.Meeting{{ID: "meeting-1", MeetingRequestID: "req-1", RequesterID: principal.UserID, SpeakerID: speakerID, Status: "scheduled", DurationMinutes: 15, CreatedAt: testNow}}, nil
}

func (s *accountStub) Toggle(_ context.Context, principal application.Principal, targetID string) (bool, error) {
	if targetID == principal.UserID {
		return false, &application.ValidationError{FieldErrors: map[string]string{"user_id": "cannot block yourself"}}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked == nil {
		s.blocked = map[string]bool{}
	}
	s.blocked[targetID] = !s.blocked[targetID]
	return s.blocked[targetID], nil
}

func (s *accountStub) List(_ context.Context, _ application.Principal) ([]application.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []application.Block
	for id, on := range s.blocked {
		if on {
			out = append(out, application.Block{BlockerID: speakerID, BlockedID: id, CreatedAt: testNow})
		}
	}
	return out, nil
}

type speakerDirectoryStub struct{}

func (speakerDirectoryStub) Lookup(_ context.Context, idOrSlug string) (application.Speaker, error) {
	if idOrSlug != "bo-chen" && idOrSlug != speakerID {
		return application.Speaker{}, application.ErrNotFound
	}
	seen := testNow.Add(-2 * time.Minute)
	return application.Speaker{ID: speakerID, Slug: "bo-chen", Name: "Bo Chen", IsActive: true, LastSeenAt: &seen}, nil
}

func (speakerDirectoryStub) IsOnline(_ context.Context, idOrSlug string) (bool, error) {
	return idOrSlug == speakerID, nil
}

func (speakerDirectoryStub) SpeakerStats(_ context.Context, idOrSlug string) (application.SpeakerStats, error) {
	return application.SpeakerStats{SpeakerID: speakerID, Pending: 2, Accepted: 1, AverageResponseHours: 1.5}, nil
}

func newAccountServer(t *testing.T) http.Handler {
	t.Helper()
	account := &accountStub{}
	directory := speakerDirectoryStub{}
	return NewRouter(RouterConfig{
		Account:      NewAccountHandler(limitsServiceStub{}, account, account, account, nil),
		Speakers:     NewSpeakerHandler(directory, directory, nil),
		Authenticate: RequireAuth(testTokens, nil),
	})
}

func TestAccountHandlers(t *testing.T) {
	t.Parallel()
	ts := &testServer{handler: newAccountServer(t)}

	rec, env := ts.do(t, http.MethodGet, "/api/pass", "attendee", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pass := env.Data.(map[string]any)
	assert.Equal(t, "vip", pass["ticket_type"])
	assert.Equal(t, "VIP Pass", pass["ticket_label"])

	rec, env = ts.do(t, http.MethodPost, "/api/blocks/"+attendeeID, "speaker", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, env.Data.(map[string]any)["blocked"])

	_, env = ts.do(t, http.MethodGet, "/api/blocks", "speaker", nil)
	blocks := env.Data.([]any)
	require.Len(t, blocks, 1)
	assert.Equal(t, attendeeID, blocks[0].(map[string]any)["blocked_id"])

	_, env = ts.do(t, http.MethodPost, "/api/blocks/"+attendeeID, "speaker", nil)
	assert.Equal(t, false, env.Data.(map[string]any)["blocked"])
	_, env = ts.do(t, http.MethodGet, "/api/blocks", "speaker", nil)
	assert.Equal(t, []any{}, env.Data)

	rec, env = ts.do(t, http.MethodPost, "/api/blocks/"+speakerID, "speaker", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "cannot block yourself", env.Fields["user_id"])

	_, env = ts.do(t, http.MethodGet, "/api/networking/stats", "attendee", nil)
	stats := env.Data.(map[string]any)
	assert.EqualValues(t, 3, stats["total_requests"])
	assert.EqualValues(t, 1, stats["scheduled_meetings"])

	_, env = ts.do(t, http.MethodGet, "/api/meetings", "attendee", nil)
	meetings := env.Data.([]any)
	require.Len(t, meetings, 1)
	assert.Equal(t, "req-1", meetings[0].(map[string]any)["meeting_request_id"])

	rec, _ = ts.do(t, http.MethodGet, "/api/meetings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSpeakerHandlers(t *testing.T) {
	t.Parallel()
	ts := &testServer{handler: newAccountServer(t)}

	rec, env := ts.do(t, http.MethodGet, "/api/speakers/bo-chen", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	speaker := env.Data.(map[string]any)
	assert.Equal(t, speakerID, speaker["id"])
	assert.Equal(t, true, speaker["is_online"])
	assert.Equal(t, "2025-11-12T14:58:00Z", speaker["last_seen_at"])

	rec, env = ts.do(t, http.MethodGet, "/api/speakers/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, env.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/speakers/bo-chen/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, env = ts.do(t, http.MethodGet, "/api/speakers/bo-chen/stats", "speaker", nil)
	stats := env.Data.(map[string]any)
	assert.EqualValues(t, 2, stats["pending"])
	assert.InDelta(t, 1.5, stats["average_response_hours"], 0.001)
}
