package client

import (
	"time"

	"github.com/example/conference-companion/internal/scheduler"
)

// Token is an issued access token.
type Token struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// User is an account as seen by clients.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
	IsSpeaker   bool   `json:"is_speaker"`
}

// RequestLimits is the caller's quota snapshot.
type RequestLimits struct {
	TicketType           string     `json:"ticket_type"`
	TotalRequests        int        `json:"total_requests"`
	RemainingRequests    int        `json:"remaining_requests"`
	RequestLimit         int        `json:"request_limit"`
	CanSendRequest       bool       `json:"can_send_request"`
	NextRequestAllowedAt *time.Time `json:"next_request_allowed_at,omitempty"`
}

// Pass is the caller's ticket summary.
type Pass struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	TicketType  string `json:"ticket_type"`
	TicketLabel string `json:"ticket_label"`
	Status      string `json:"status"`
	HasPass     bool   `json:"has_pass"`
}

// MeetingRequest mirrors the API representation of a request.
type MeetingRequest struct {
	ID                  string     `json:"id"`
	RequesterID         string     `json:"requester_id"`
	SpeakerID           string     `json:"speaker_id"`
	Status              string     `json:"status"`
	RequesterTicketType string     `json:"requester_ticket_type"`
	Message             *string    `json:"message"`
	Note                *string    `json:"note"`
	SpeakerNotes        *string    `json:"speaker_notes"`
	DeclineReason       *string    `json:"decline_reason"`
	BoostAmount         float64    `json:"boost_amount"`
	DurationMinutes     int        `json:"duration_minutes"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	ExpiresAt           time.Time  `json:"expires_at"`
	SpeakerResponseAt   *time.Time `json:"speaker_response_at"`
}

// NewMeetingRequest is the body of a create call.
type NewMeetingRequest struct {
	SpeakerID       string  `json:"speaker_id"`
	Message         string  `json:"message,omitempty"`
	Note            string  `json:"note,omitempty"`
	BoostAmount     float64 `json:"boost_amount,omitempty"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
}

// Meeting is a scheduled meeting.
type Meeting struct {
	ID               string    `json:"id"`
	MeetingRequestID string    `json:"meeting_request_id"`
	RequesterID      string    `json:"requester_id"`
	SpeakerID        string    `json:"speaker_id"`
	Status           string    `json:"status"`
	DurationMinutes  int       `json:"duration_minutes"`
	Notes            *string   `json:"notes"`
	CreatedAt        time.Time `json:"created_at"`
}

// Acceptance is the result of accepting a request.
type Acceptance struct {
	Request MeetingRequest `json:"request"`
	Meeting Meeting        `json:"meeting"`
}

// Speaker is a public speaker profile.
type Speaker struct {
	ID         string     `json:"id"`
	Slug       string     `json:"slug"`
	Name       string     `json:"name"`
	Title      *string    `json:"title"`
	Company    *string    `json:"company"`
	Bio        *string    `json:"bio"`
	ImageURL   *string    `json:"image_url"`
	IsActive   bool       `json:"is_active"`
	IsOnline   bool       `json:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

// NetworkingStats summarises the caller's networking activity.
type NetworkingStats struct {
	TotalRequests     int `json:"total_requests"`
	Pending           int `json:"pending"`
	Accepted          int `json:"accepted"`
	Declined          int `json:"declined"`
	Cancelled         int `json:"cancelled"`
	BlockedUsers      int `json:"blocked_users"`
	ScheduledMeetings int `json:"scheduled_meetings"`
}

// ImportResult reports an agenda import.
type ImportResult struct {
	EventID  string               `json:"event_id"`
	Imported int                  `json:"imported"`
	Warnings []scheduler.Conflict `json:"warnings"`
}
