package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// User is an account of the companion.
type User struct {
	ID          string
	Email       string
	DisplayName string
	IsAdmin     bool
	IsSpeaker   bool
	Disabled    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials pairs a user with the stored password hash.
type UserCredentials struct {
	User
	PasswordHash string
}

// UserInput captures caller provided account fields.
type UserInput struct {
	Email       string
	DisplayName string
	Password    string
	Tier        PassTier
	IsAdmin     bool
	IsSpeaker   bool
	SpeakerSlug string
}

// CreateUserParams wraps the data required to create an account.
type CreateUserParams struct {
	Principal Principal
	Input     UserInput
}

// AuthenticateParams holds login credentials.
type AuthenticateParams struct {
	Email    string
	Password string
}

// AuthenticateResult is a successful login.
type AuthenticateResult struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

// PassTier is the ticket tier of an attendee.
type PassTier string

const (
	TierGeneral  PassTier = "general"
	TierBusiness PassTier = "business"
	TierVIP      PassTier = "vip"
)

// Valid reports whether t is a known tier.
func (t PassTier) Valid() bool {
	switch t {
	case TierGeneral, TierBusiness, TierVIP:
		return true
	}
	return false
}

// DisplayName returns the human readable pass name.
func (t PassTier) DisplayName() string {
	switch t {
	case TierBusiness:
		return "Business Pass"
	case TierVIP:
		return "VIP Pass"
	default:
		return "General Pass"
	}
}

// RequestLimit returns the lifetime meeting request allowance of the tier.
func (t PassTier) RequestLimit() int {
	switch t {
	case TierBusiness:
		return 3
	case TierVIP:
		return 999999
	default:
		return 1
	}
}

// Pass is a stored ticket.
type Pass struct {
	ID        string
	UserID    string
	Tier      PassTier
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PassInfo is the pass summary shown to a user.
type PassInfo struct {
	UserID      string
	DisplayName string
	Tier        PassTier
	TierLabel   string
	Status      string
	HasPass     bool
}

// RequestCounts aggregates the requests created by one requester.
type RequestCounts struct {
	Total         int
	Pending       int
	Accepted      int
	Declined      int
	Cancelled     int
	Expired       int
	LastCreatedAt *time.Time
}

// RequestLimits is the quota snapshot of a requester. Remaining is never
// negative and cancelling a request never gives quota back.
type RequestLimits struct {
	TicketType           PassTier   `json:"ticket_type"`
	TotalRequests        int        `json:"total_requests"`
	RemainingRequests    int        `json:"remaining_requests"`
	RequestLimit         int        `json:"request_limit"`
	CanSendRequest       bool       `json:"can_send_request"`
	NextRequestAllowedAt *time.Time `json:"next_request_allowed_at,omitempty"`
}

// Speaker is a public speaker profile.
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
	// Static marks profiles served from the fallback file.
	Static bool
}

// RequestStatus is the lifecycle state of a meeting request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAccepted  RequestStatus = "accepted"
	StatusDeclined  RequestStatus = "declined"
	StatusCancelled RequestStatus = "cancelled"
	StatusExpired   RequestStatus = "expired"
)

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s != StatusPending
}

// MeetingRequest is a proposal from a requester to a speaker.
type MeetingRequest struct {
	ID                  string
	RequesterID         string
	SpeakerID           string
	Status              RequestStatus
	RequesterTicketType PassTier
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

// CreateMeetingRequestParams holds the fields of a new request.
type CreateMeetingRequestParams struct {
	Principal       Principal
	SpeakerID       string
	Message         string
	Note            string
	BoostAmount     float64
	DurationMinutes int
}

// StatusChange is a conditional transition handed to the repository.
type StatusChange struct {
	ID            string
	From          RequestStatus
	To            RequestStatus
	At            time.Time
	DeclineReason *string
	SetResponseAt bool
}

// Meeting is created when a request is accepted.
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

// ChatMessage belongs to a meeting thread. SenderID is nil for system messages.
type ChatMessage struct {
	ID          string
	MeetingID   string
	SenderID    *string
	Body        string
	MessageType string
	CreatedAt   time.Time
}

// Block records that BlockerID does not accept requests from BlockedID.
type Block struct {
	BlockerID string
	BlockedID string
	CreatedAt time.Time
}

// SpeakerStats summarises the requests addressed to a speaker.
type SpeakerStats struct {
	SpeakerID            string  `json:"speaker_id"`
	Pending              int     `json:"pending"`
	Accepted             int     `json:"accepted"`
	Declined             int     `json:"declined"`
	AverageResponseHours float64 `json:"average_response_hours"`
}

// NetworkingStats summarises a user's networking activity.
type NetworkingStats struct {
	TotalRequests     int `json:"total_requests"`
	Pending           int `json:"pending"`
	Accepted          int `json:"accepted"`
	Declined          int `json:"declined"`
	Cancelled         int `json:"cancelled"`
	BlockedUsers      int `json:"blocked_users"`
	ScheduledMeetings int `json:"scheduled_meetings"`
}

// AgendaStatusValue is a user's plan for a session.
type AgendaStatusValue string

const (
	AgendaTentative AgendaStatusValue = "tentative"
	AgendaConfirmed AgendaStatusValue = "confirmed"
)

// AgendaStatus is a user's bookmark of a session.
type AgendaStatus struct {
	UserID       string
	AgendaItemID string
	Status       AgendaStatusValue
	IsFavorite   bool
	UpdatedAt    time.Time
}
