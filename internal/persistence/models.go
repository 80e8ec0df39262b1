package persistence

import "time"

// User represents an attendee, speaker or administrator account.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	IsSpeaker    bool
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Pass is a purchased ticket granting a tier.
type Pass struct {
	ID        string
	UserID    string
	Tier      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Speaker is the public profile of a speaking user. ID equals the user ID.
type Speaker struct {
	ID         string
	Slug       string
	Name       string
	Title      *string
	Company    *string
	Bio        *string
	ImageURL   *string
	IsActive   bool
	LastSeenAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AgendaItem is one stored agenda session of an event.
type AgendaItem struct {
	ID              string
	EventID         string
	Position        int
	Title           string
	Description     *string
	Location        *string
	Speakers        []string
	Time            string
	Type            string
	DurationMinutes *int
	Day             *string
	CreatedAt       time.Time
}

// UserAgendaStatus is a user's bookmark of an agenda session.
type UserAgendaStatus struct {
	UserID       string
	AgendaItemID string
	Status       string
	IsFavorite   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MeetingRequest is a one-to-one meeting proposal addressed to a speaker.
type MeetingRequest struct {
	ID                  string
	RequesterID         string
	SpeakerID           string
	Status              string
	RequesterTicketType string
	Message             *string
	Note                *string
	SpeakerNotes        *string
	DeclineReason       *string
	BoostAmount         float64
	DurationMinutes     int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ExpiresAt           time.Time
	SpeakerResponseAt   *time.Time
}

// Meeting is created when a speaker accepts a meeting request.
type Meeting struct {
	ID               string
	MeetingRequestID string
	RequesterID      string
	SpeakerID        string
	Status           string
	DurationMinutes  int
	Notes            *string
	CreatedAt        time.Time
}

// ChatMessage belongs to the coordination thread of a meeting.
type ChatMessage struct {
	ID          string
	MeetingID   string
	SenderID    *string
	Body        string
	MessageType string
	CreatedAt   time.Time
}

// Block records that BlockerID does not want requests from BlockedID.
type Block struct {
	BlockerID string
	BlockedID string
	CreatedAt time.Time
}

// RequestCounts aggregates the meeting requests created by one requester.
type RequestCounts struct {
	Total         int
	Pending       int
	Accepted      int
	Declined      int
	Cancelled     int
	Expired       int
	LastCreatedAt *time.Time
}

// SpeakerStats aggregates the meeting requests addressed to one speaker.
type SpeakerStats struct {
	Pending              int
	Accepted             int
	Declined             int
	AverageResponseHours float64
}
