package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/conference-companion/internal/agenda"
	"github.com/example/conference-companion/internal/realtime"
)

var testNow = time.Date(2025, 11, 12, 15, 0, 0, 0, time.UTC)

const (
	attendeeID = "0193a1b2-0000-7000-8000-000000000001"
	speakerID  = "0193a1b2-0000-7000-8000-000000000002"
	otherID    = "0193a1b2-0000-7000-8000-000000000003"
)

// sequenceUUIDs returns deterministic, well-formed UUIDs.
func sequenceUUIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("0193a1b2-0000-7000-9000-%012d", n)
	}
}

// memoryStore backs every repository interface of the package in memory.
type memoryStore struct {
	mu sync.Mutex

	users    map[string]UserCredentials
	passes   map[string]Pass
	speakers map[string]Speaker
	requests map[string]MeetingRequest
	meetings []Meeting
	chat     []ChatMessage
	blocks   map[[2]string]Block
	agendas  map[string][]agenda.Item
	statuses map[[2]string]AgendaStatus

	speakerErr error
	chatErr    error
	countCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    map[string]UserCredentials{},
		passes:   map[string]Pass{},
		speakers: map[string]Speaker{},
		requests: map[string]MeetingRequest{},
		blocks:   map[[2]string]Block{},
		agendas:  map[string][]agenda.Item{},
		statuses: map[[2]string]AgendaStatus{},
	}
}

func (m *memoryStore) addUser(id, email string, tier PassTier, isSpeaker bool) {
	m.users[id] = UserCredentials{User: User{ID: id, Email: email, DisplayName: email, IsSpeaker: isSpeaker}}
	if tier != "" {
		m.passes[id] = Pass{ID: "pass-" + id, UserID: id, Tier: tier, Status: "active"}
	}
	if isSpeaker {
		m.speakers[id] = Speaker{ID: id, Slug: Slugify(email), Name: email, IsActive: true}
	}
}

func (m *memoryStore) CreateUser(_ context.Context, user User, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return User{}, ErrAlreadyExists
		}
	}
	m.users[user.ID] = UserCredentials{User: user, PasswordHash: passwordHash}
	return user, nil
}

func (m *memoryStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return creds.User, nil
}

func (m *memoryStore) GetUserCredentialsByEmail(_ context.Context, email string) (UserCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, creds := range m.users {
		if creds.Email == email {
			return creds, nil
		}
	}
	return UserCredentials{}, ErrNotFound
}

func (m *memoryStore) ListUsers(context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, creds := range m.users {
		out = append(out, creds.User)
	}
	return out, nil
}

func (m *memoryStore) SavePass(_ context.Context, pass Pass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes[pass.UserID] = pass
	return nil
}

func (m *memoryStore) GetActivePass(_ context.Context, userID string) (Pass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pass, ok := m.passes[userID]
	if !ok {
		return Pass{}, ErrNotFound
	}
	return pass, nil
}

func (m *memoryStore) SaveSpeaker(_ context.Context, speaker Speaker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speakers[speaker.ID] = speaker
	return nil
}

func (m *memoryStore) GetSpeaker(_ context.Context, id string) (Speaker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.speakerErr != nil {
		return Speaker{}, m.speakerErr
	}
	speaker, ok := m.speakers[id]
	if !ok {
		return Speaker{}, ErrNotFound
	}
	return speaker, nil
}

func (m *memoryStore) GetSpeakerBySlug(_ context.Context, slug string) (Speaker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.speakerErr != nil {
		return Speaker{}, m.speakerErr
	}
	for _, speaker := range m.speakers {
		if speaker.Slug == slug {
			return speaker, nil
		}
	}
	return Speaker{}, ErrNotFound
}

func (m *memoryStore) TouchSpeaker(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	speaker, ok := m.speakers[id]
	if !ok {
		return ErrNotFound
	}
	speaker.LastSeenAt = &at
	m.speakers[id] = speaker
	return nil
}

func (m *memoryStore) CreateMeetingRequest(_ context.Context, req MeetingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.requests {
		if existing.Status == StatusPending && existing.RequesterID == req.RequesterID && existing.SpeakerID == req.SpeakerID {
			return ErrAlreadyExists
		}
	}
	m.requests[req.ID] = req
	return nil
}

func (m *memoryStore) GetMeetingRequest(_ context.Context, id string) (MeetingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return MeetingRequest{}, ErrNotFound
	}
	return req, nil
}

func (m *memoryStore) ListMeetingRequests(_ context.Context, filter MeetingRequestFilter) ([]MeetingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MeetingRequest
	for _, req := range m.requests {
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		if filter.SpeakerID != "" && req.SpeakerID != filter.SpeakerID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, req.Status) {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func containsStatus(statuses []RequestStatus, status RequestStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (m *memoryStore) HasPendingRequest(_ context.Context, requesterID, speakerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.requests {
		if req.Status == StatusPending && req.RequesterID == requesterID && req.SpeakerID == speakerID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) TransitionMeetingRequest(_ context.Context, change StatusChange) (MeetingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[change.ID]
	if !ok {
		return MeetingRequest{}, ErrNotFound
	}
	if req.Status != change.From {
		return MeetingRequest{}, ErrInvalidTransition
	}
	req.Status = change.To
	req.UpdatedAt = change.At
	if change.DeclineReason != nil {
		req.DeclineReason = change.DeclineReason
	}
	if change.SetResponseAt {
		at := change.At
		req.SpeakerResponseAt = &at
	}
	m.requests[req.ID] = req
	return req, nil
}

func (m *memoryStore) AcceptMeetingRequest(_ context.Context, id string, notes *string, meeting Meeting, at time.Time) (MeetingRequest, Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return MeetingRequest{}, Meeting{}, ErrNotFound
	}
	if req.Status != StatusPending || !at.Before(req.ExpiresAt) {
		return MeetingRequest{}, Meeting{}, ErrInvalidTransition
	}
	req.Status = StatusAccepted
	req.SpeakerNotes = notes
	req.UpdatedAt = at
	req.SpeakerResponseAt = &at
	m.requests[id] = req

	meeting.MeetingRequestID = id
	meeting.RequesterID = req.RequesterID
	meeting.SpeakerID = req.SpeakerID
	meeting.DurationMinutes = req.DurationMinutes
	m.meetings = append(m.meetings, meeting)
	return req, meeting, nil
}

func (m *memoryStore) ExpirePendingRequests(_ context.Context, now time.Time) ([]MeetingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []MeetingRequest
	for id, req := range m.requests {
		if req.Status == StatusPending && !req.ExpiresAt.After(now) {
			req.Status = StatusExpired
			req.UpdatedAt = now
			m.requests[id] = req
			expired = append(expired, req)
		}
	}
	return expired, nil
}

func (m *memoryStore) CountRequestsByRequester(_ context.Context, requesterID string) (RequestCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countCalls++
	var counts RequestCounts
	for _, req := range m.requests {
		if req.RequesterID != requesterID {
			continue
		}
		counts.Total++
		switch req.Status {
		case StatusPending:
			counts.Pending++
		case StatusAccepted:
			counts.Accepted++
		case StatusDeclined:
			counts.Declined++
		case StatusCancelled:
			counts.Cancelled++
		case StatusExpired:
			counts.Expired++
		}
		created := req.CreatedAt
		if counts.LastCreatedAt == nil || created.After(*counts.LastCreatedAt) {
			counts.LastCreatedAt = &created
		}
	}
	return counts, nil
}

func (m *memoryStore) SpeakerRequestStats(_ context.Context, speakerID string) (SpeakerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := SpeakerStats{SpeakerID: speakerID}
	for _, req := range m.requests {
		if req.SpeakerID != speakerID {
			continue
		}
		switch req.Status {
		case StatusPending:
			stats.Pending++
		case StatusAccepted:
			stats.Accepted++
		case StatusDeclined:
			stats.Declined++
		}
	}
	return stats, nil
}

func (m *memoryStore) ListMeetingsForUser(_ context.Context, userID string) ([]Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Meeting
	for _, meeting := range m.meetings {
		if meeting.RequesterID == userID || meeting.SpeakerID == userID {
			out = append(out, meeting)
		}
	}
	return out, nil
}

func (m *memoryStore) AddChatMessage(_ context.Context, message ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chatErr != nil {
		return m.chatErr
	}
	m.chat = append(m.chat, message)
	return nil
}

func (m *memoryStore) ToggleBlock(_ context.Context, blockerID, blockedID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{blockerID, blockedID}
	if _, ok := m.blocks[key]; ok {
		delete(m.blocks, key)
		return false, nil
	}
	m.blocks[key] = Block{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: at}
	return true, nil
}

func (m *memoryStore) IsBlocked(_ context.Context, blockerID, blockedID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocks[[2]string{blockerID, blockedID}]
	return ok, nil
}

func (m *memoryStore) ListBlocks(_ context.Context, blockerID string) ([]Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Block
	for key, block := range m.blocks {
		if key[0] == blockerID {
			out = append(out, block)
		}
	}
	return out, nil
}

func (m *memoryStore) ReplaceAgenda(_ context.Context, eventID string, items []agenda.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agendas[eventID] = append([]agenda.Item(nil), items...)
	return nil
}

func (m *memoryStore) ListAgenda(_ context.Context, eventID string) ([]agenda.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]agenda.Item(nil), m.agendas[eventID]...), nil
}

func (m *memoryStore) UpsertAgendaStatus(_ context.Context, status AgendaStatus) (AgendaStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, items := range m.agendas {
		for _, item := range items {
			if item.ID == status.AgendaItemID {
				found = true
			}
		}
	}
	if !found {
		return AgendaStatus{}, ErrNotFound
	}
	m.statuses[[2]string{status.UserID, status.AgendaItemID}] = status
	return status, nil
}

func (m *memoryStore) ListAgendaStatus(_ context.Context, userID string) ([]AgendaStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AgendaStatus
	for key, status := range m.statuses {
		if key[0] == userID {
			out = append(out, status)
		}
	}
	return out, nil
}

// recordingPublisher captures published changes.
type recordingPublisher struct {
	mu      sync.Mutex
	changes []realtime.Change
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, change realtime.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

func (p *recordingPublisher) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.changes))
	for i, c := range p.changes {
		out[i] = c.Table
	}
	return out
}

// mapCache is a LimitsCache over a plain map.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]RequestLimits
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]RequestLimits{}} }

func (c *mapCache) Get(_ context.Context, userID string) (RequestLimits, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	limits, ok := c.entries[userID]
	return limits, ok
}

func (c *mapCache) Set(_ context.Context, userID string, limits RequestLimits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = limits
}

func (c *mapCache) Delete(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
