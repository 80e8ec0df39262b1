package persistence

import (
	"context"
	"time"
)

// UserRepository stores accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// PassRepository stores ticket passes.
type PassRepository interface {
	UpsertPass(ctx context.Context, pass Pass) error
	GetActivePass(ctx context.Context, userID string) (Pass, error)
}

// SpeakerRepository stores speaker profiles.
type SpeakerRepository interface {
	UpsertSpeaker(ctx context.Context, speaker Speaker) error
	GetSpeaker(ctx context.Context, id string) (Speaker, error)
	GetSpeakerBySlug(ctx context.Context, slug string) (Speaker, error)
	TouchSpeaker(ctx context.Context, id string, seenAt time.Time) error
}

// AgendaRepository stores agenda sessions and per-user agenda status.
type AgendaRepository interface {
	ReplaceAgenda(ctx context.Context, eventID string, items []AgendaItem) error
	ListAgenda(ctx context.Context, eventID string) ([]AgendaItem, error)
	UpsertAgendaStatus(ctx context.Context, status UserAgendaStatus) (UserAgendaStatus, error)
	ListAgendaStatus(ctx context.Context, userID string) ([]UserAgendaStatus, error)
}

// MeetingRequestFilter narrows meeting request queries.
type MeetingRequestFilter struct {
	RequesterID string
	SpeakerID   string
	Statuses    []string
}

// StatusChange describes a conditional status transition.
type StatusChange struct {
	ID            string
	From          string
	To            string
	At            time.Time
	DeclineReason *string
	SetResponseAt bool
}

// MeetingRequestRepository stores meeting requests and performs the atomic
// state transitions on them.
type MeetingRequestRepository interface {
	CreateMeetingRequest(ctx context.Context, request MeetingRequest) error
	GetMeetingRequest(ctx context.Context, id string) (MeetingRequest, error)
	ListMeetingRequests(ctx context.Context, filter MeetingRequestFilter) ([]MeetingRequest, error)
	HasPendingRequest(ctx context.Context, requesterID, speakerID string) (bool, error)
	TransitionMeetingRequest(ctx context.Context, change StatusChange) (MeetingRequest, error)
	AcceptMeetingRequest(ctx context.Context, id string, speakerNotes *string, meeting Meeting, at time.Time) (MeetingRequest, Meeting, error)
	ExpirePendingRequests(ctx context.Context, now time.Time) ([]MeetingRequest, error)
	CountRequestsByRequester(ctx context.Context, requesterID string) (RequestCounts, error)
	SpeakerRequestStats(ctx context.Context, speakerID string) (SpeakerStats, error)
}

// MeetingRepository stores meetings and their chat threads.
type MeetingRepository interface {
	ListMeetingsForUser(ctx context.Context, userID string) ([]Meeting, error)
	AddChatMessage(ctx context.Context, message ChatMessage) error
	ListChatMessages(ctx context.Context, meetingID string) ([]ChatMessage, error)
}

// BlockRepository stores user blocks.
type BlockRepository interface {
	ToggleBlock(ctx context.Context, blockerID, blockedID string, at time.Time) (bool, error)
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	ListBlocks(ctx context.Context, blockerID string) ([]Block, error)
}
