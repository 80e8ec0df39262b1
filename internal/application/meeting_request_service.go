package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/example/conference-companion/internal/realtime"
)

const (
	// RequestTTL is how long a pending request waits for the speaker.
	RequestTTL = 72 * time.Hour
	// DefaultMeetingMinutes is used when a request names no duration.
	DefaultMeetingMinutes = 15
	// AcceptedSystemMessage opens the chat thread of an accepted meeting.
	AcceptedSystemMessage = "Meeting accepted! You can now coordinate the details here."

	maxMessageLength  = 500
	minMeetingMinutes = 5
	maxMeetingMinutes = 120
)

// MeetingRequestFilter narrows request listings.
type MeetingRequestFilter struct {
	RequesterID string
	SpeakerID   string
	Statuses    []RequestStatus
}

// MeetingRequestRepository stores meeting requests. Transitions are
// conditional on the current status and fail with ErrInvalidTransition when
// another writer got there first.
type MeetingRequestRepository interface {
	RequestCounter
	CreateMeetingRequest(ctx context.Context, request MeetingRequest) error
	GetMeetingRequest(ctx context.Context, id string) (MeetingRequest, error)
	ListMeetingRequests(ctx context.Context, filter MeetingRequestFilter) ([]MeetingRequest, error)
	HasPendingRequest(ctx context.Context, requesterID, speakerID string) (bool, error)
	TransitionMeetingRequest(ctx context.Context, change StatusChange) (MeetingRequest, error)
	AcceptMeetingRequest(ctx context.Context, id string, speakerNotes *string, meeting Meeting, at time.Time) (MeetingRequest, Meeting, error)
	ExpirePendingRequests(ctx context.Context, now time.Time) ([]MeetingRequest, error)
	SpeakerRequestStats(ctx context.Context, speakerID string) (SpeakerStats, error)
}

// ChatWriter appends messages to meeting threads.
type ChatWriter interface {
	AddChatMessage(ctx context.Context, message ChatMessage) error
}

// BlockChecker answers whether one user blocked another.
type BlockChecker interface {
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
}

// ChangePublisher announces committed changes to subscribers.
type ChangePublisher interface {
	Publish(ctx context.Context, change realtime.Change) error
}

// MeetingRequestDeps groups the collaborators of MeetingRequestService.
type MeetingRequestDeps struct {
	Requests    MeetingRequestRepository
	Speakers    *SpeakerDirectory
	Quota       *QuotaService
	Passes      *PassService
	Blocks      BlockChecker
	Chat        ChatWriter
	Publisher   ChangePublisher
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// MeetingRequestService runs the meeting request lifecycle:
// pending to accepted, declined, cancelled or expired.
type MeetingRequestService struct {
	requests    MeetingRequestRepository
	speakers    *SpeakerDirectory
	quota       *QuotaService
	passes      *PassService
	blocks      BlockChecker
	chat        ChatWriter
	publisher   ChangePublisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMeetingRequestService wires the lifecycle service.
func NewMeetingRequestService(deps MeetingRequestDeps) *MeetingRequestService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &MeetingRequestService{
		requests:    deps.Requests,
		speakers:    deps.Speakers,
		quota:       deps.Quota,
		passes:      deps.Passes,
		blocks:      deps.Blocks,
		chat:        deps.Chat,
		publisher:   deps.Publisher,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
	}
}

func (s *MeetingRequestService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MeetingRequestService", operation, attrs...)
}

// Create files a new pending request from the principal to a speaker.
func (s *MeetingRequestService) Create(ctx context.Context, params CreateMeetingRequestParams) (req MeetingRequest, err error) {
	if s == nil {
		return MeetingRequest{}, fmt.Errorf("MeetingRequestService is nil")
	}
	logger := s.loggerWith(ctx, "Create", "requester_id", params.Principal.UserID, "speaker_id", params.SpeakerID)
	defer func() { logOutcome(ctx, logger, err, "meeting request created", "request_id", req.ID) }()

	if params.Principal.UserID == "" {
		return MeetingRequest{}, ErrUnauthorized
	}
	params.SpeakerID = strings.TrimSpace(params.SpeakerID)
	if err = validateCreateParams(&params).orNil(); err != nil {
		return MeetingRequest{}, err
	}

	if s.speakers != nil {
		var speaker Speaker
		speaker, err = s.speakers.Lookup(ctx, params.SpeakerID)
		if err != nil {
			return MeetingRequest{}, err
		}
		if !speaker.IsActive {
			vErr := &ValidationError{}
			vErr.add("speaker_id", "speaker is not accepting meeting requests")
			return MeetingRequest{}, vErr
		}
	}

	if s.blocks != nil {
		var blocked bool
		if blocked, err = s.blocks.IsBlocked(ctx, params.SpeakerID, params.Principal.UserID); err != nil {
			return MeetingRequest{}, err
		}
		if blocked {
			return MeetingRequest{}, ErrBlocked
		}
	}

	var pending bool
	if pending, err = s.requests.HasPendingRequest(ctx, params.Principal.UserID, params.SpeakerID); err != nil {
		return MeetingRequest{}, err
	}
	if pending {
		return MeetingRequest{}, ErrAlreadyExists
	}

	tier := TierGeneral
	if s.quota != nil {
		var limits RequestLimits
		if limits, err = s.quota.GetRequestLimits(ctx, params.Principal.UserID); err != nil {
			return MeetingRequest{}, err
		}
		if !limits.CanSendRequest {
			return MeetingRequest{}, ErrQuotaExceeded
		}
		tier = limits.TicketType
	} else if s.passes != nil {
		var info PassInfo
		if info, err = s.passes.GetPassInfo(ctx, params.Principal.UserID); err != nil {
			return MeetingRequest{}, err
		}
		tier = info.Tier
	}

	now := s.now()
	req = MeetingRequest{
		ID:                  s.idGenerator(),
		RequesterID:         params.Principal.UserID,
		SpeakerID:           params.SpeakerID,
		Status:              StatusPending,
		RequesterTicketType: tier,
		Message:             optional(params.Message),
		Note:                optional(params.Note),
		BoostAmount:         params.BoostAmount,
		DurationMinutes:     params.DurationMinutes,
		CreatedAt:           now,
		UpdatedAt:           now,
		ExpiresAt:           now.Add(RequestTTL),
	}
	if err = s.requests.CreateMeetingRequest(ctx, req); err != nil {
		req = MeetingRequest{}
		return MeetingRequest{}, err
	}

	s.quota.Invalidate(ctx, req.RequesterID)
	s.publish(ctx, realtime.ChangeInsert, req)
	return req, nil
}

// Cancel withdraws a pending request. Only its requester may cancel and the
// consumed quota is not returned.
func (s *MeetingRequestService) Cancel(ctx context.Context, principal Principal, id string) (MeetingRequest, error) {
	return s.transition(ctx, "Cancel", "meeting request cancelled", principal, id, func(req MeetingRequest) (StatusChange, error) {
		if req.RequesterID != principal.UserID {
			return StatusChange{}, ErrUnauthorized
		}
		return StatusChange{ID: req.ID, From: StatusPending, To: StatusCancelled}, nil
	})
}

// Decline rejects a pending request. Only the addressed speaker may decline.
func (s *MeetingRequestService) Decline(ctx context.Context, principal Principal, id, reason string) (MeetingRequest, error) {
	return s.transition(ctx, "Decline", "meeting request declined", principal, id, func(req MeetingRequest) (StatusChange, error) {
		if req.SpeakerID != principal.UserID {
			return StatusChange{}, ErrUnauthorized
		}
		if utf8.RuneCountInString(reason) > maxMessageLength {
			vErr := &ValidationError{}
			vErr.add("reason", fmt.Sprintf("reason must be at most %d characters", maxMessageLength))
			return StatusChange{}, vErr
		}
		return StatusChange{ID: req.ID, From: StatusPending, To: StatusDeclined, DeclineReason: optional(reason), SetResponseAt: true}, nil
	})
}

func (s *MeetingRequestService) transition(ctx context.Context, operation, done string, principal Principal, id string, build func(MeetingRequest) (StatusChange, error)) (updated MeetingRequest, err error) {
	if s == nil {
		return MeetingRequest{}, fmt.Errorf("MeetingRequestService is nil")
	}
	logger := s.loggerWith(ctx, operation, "request_id", id, "principal_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, done, "status", updated.Status) }()

	req, err := s.load(ctx, principal, id)
	if err != nil {
		return MeetingRequest{}, err
	}
	change, err := build(req)
	if err != nil {
		return MeetingRequest{}, err
	}
	if req.Status != change.From {
		return MeetingRequest{}, ErrInvalidTransition
	}
	change.At = s.now()

	updated, err = s.requests.TransitionMeetingRequest(ctx, change)
	if err != nil {
		return MeetingRequest{}, err
	}
	s.quota.Invalidate(ctx, updated.RequesterID)
	s.publish(ctx, realtime.ChangeUpdate, updated)
	return updated, nil
}

// Accept confirms a pending, unexpired request for the addressed speaker.
// The request update and the meeting creation commit together; the opening
// chat message is best effort.
func (s *MeetingRequestService) Accept(ctx context.Context, principal Principal, id, notes string) (accepted MeetingRequest, meeting Meeting, err error) {
	if s == nil {
		return MeetingRequest{}, Meeting{}, fmt.Errorf("MeetingRequestService is nil")
	}
	logger := s.loggerWith(ctx, "Accept", "request_id", id, "principal_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "meeting request accepted", "meeting_id", meeting.ID) }()

	req, err := s.load(ctx, principal, id)
	if err != nil {
		return MeetingRequest{}, Meeting{}, err
	}
	if req.SpeakerID != principal.UserID {
		return MeetingRequest{}, Meeting{}, ErrUnauthorized
	}
	now := s.now()
	if req.Status != StatusPending || !now.Before(req.ExpiresAt) {
		return MeetingRequest{}, Meeting{}, ErrInvalidTransition
	}
	if utf8.RuneCountInString(notes) > maxMessageLength {
		vErr := &ValidationError{}
		vErr.add("notes", fmt.Sprintf("notes must be at most %d characters", maxMessageLength))
		return MeetingRequest{}, Meeting{}, vErr
	}

	accepted, meeting, err = s.requests.AcceptMeetingRequest(ctx, req.ID, optional(notes), Meeting{
		ID:        s.idGenerator(),
		Status:    "scheduled",
		CreatedAt: now,
	}, now)
	if err != nil {
		return MeetingRequest{}, Meeting{}, err
	}

	if s.chat != nil {
		if cerr := s.chat.AddChatMessage(ctx, ChatMessage{
			ID:          s.idGenerator(),
			MeetingID:   meeting.ID,
			Body:        AcceptedSystemMessage,
			MessageType: "system",
			CreatedAt:   now,
		}); cerr != nil {
			logger.WarnContext(ctx, "system chat message not posted", "error", cerr, "meeting_id", meeting.ID)
		}
	}

	s.quota.Invalidate(ctx, accepted.RequesterID)
	s.publish(ctx, realtime.ChangeUpdate, accepted)
	s.publishMeeting(ctx, meeting)
	return accepted, meeting, nil
}

// ExpireStale moves every pending request past its expiry to expired.
func (s *MeetingRequestService) ExpireStale(ctx context.Context) (expired []MeetingRequest, err error) {
	if s == nil {
		return nil, fmt.Errorf("MeetingRequestService is nil")
	}
	logger := s.loggerWith(ctx, "ExpireStale")
	defer func() { logOutcome(ctx, logger, err, "stale requests expired", "count", len(expired)) }()

	expired, err = s.requests.ExpirePendingRequests(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for _, req := range expired {
		s.quota.Invalidate(ctx, req.RequesterID)
		s.publish(ctx, realtime.ChangeUpdate, req)
	}
	return expired, nil
}

// Get returns a request to one of its participants or an administrator.
func (s *MeetingRequestService) Get(ctx context.Context, principal Principal, id string) (MeetingRequest, error) {
	if s == nil {
		return MeetingRequest{}, fmt.Errorf("MeetingRequestService is nil")
	}
	return s.load(ctx, principal, id)
}

// ListForRequester returns the principal's outgoing requests, newest first.
func (s *MeetingRequestService) ListForRequester(ctx context.Context, principal Principal, statuses ...RequestStatus) ([]MeetingRequest, error) {
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	return s.requests.ListMeetingRequests(ctx, MeetingRequestFilter{RequesterID: principal.UserID, Statuses: statuses})
}

// ListForSpeaker returns the requests addressed to the principal, newest first.
func (s *MeetingRequestService) ListForSpeaker(ctx context.Context, principal Principal, statuses ...RequestStatus) ([]MeetingRequest, error) {
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	return s.requests.ListMeetingRequests(ctx, MeetingRequestFilter{SpeakerID: principal.UserID, Statuses: statuses})
}

// SpeakerStats summarises the requests addressed to a speaker.
func (s *MeetingRequestService) SpeakerStats(ctx context.Context, speakerIDOrSlug string) (SpeakerStats, error) {
	if s == nil {
		return SpeakerStats{}, fmt.Errorf("MeetingRequestService is nil")
	}
	speakerID := speakerIDOrSlug
	if s.speakers != nil {
		speaker, err := s.speakers.Lookup(ctx, speakerIDOrSlug)
		if err != nil {
			return SpeakerStats{}, err
		}
		speakerID = speaker.ID
	}
	stats, err := s.requests.SpeakerRequestStats(ctx, speakerID)
	if err != nil {
		return SpeakerStats{}, err
	}
	stats.SpeakerID = speakerID
	return stats, nil
}

func (s *MeetingRequestService) load(ctx context.Context, principal Principal, id string) (MeetingRequest, error) {
	if principal.UserID == "" {
		return MeetingRequest{}, ErrUnauthorized
	}
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		vErr := &ValidationError{}
		vErr.add("id", "id must be a UUID")
		return MeetingRequest{}, vErr
	}
	req, err := s.requests.GetMeetingRequest(ctx, strings.TrimSpace(id))
	if err != nil {
		return MeetingRequest{}, err
	}
	if !principal.IsAdmin && req.RequesterID != principal.UserID && req.SpeakerID != principal.UserID {
		// Hide requests of other users.
		return MeetingRequest{}, ErrNotFound
	}
	return req, nil
}

func (s *MeetingRequestService) publish(ctx context.Context, kind realtime.ChangeType, req MeetingRequest) {
	s.emit(ctx, realtime.Change{
		Table:       realtime.TableMeetingRequests,
		Type:        kind,
		RecordID:    req.ID,
		RequesterID: req.RequesterID,
		SpeakerID:   req.SpeakerID,
		Status:      string(req.Status),
		OccurredAt:  req.UpdatedAt,
	})
}

func (s *MeetingRequestService) publishMeeting(ctx context.Context, meeting Meeting) {
	s.emit(ctx, realtime.Change{
		Table:       realtime.TableMeetings,
		Type:        realtime.ChangeInsert,
		RecordID:    meeting.ID,
		RequesterID: meeting.RequesterID,
		SpeakerID:   meeting.SpeakerID,
		Status:      meeting.Status,
		OccurredAt:  meeting.CreatedAt,
	})
}

func (s *MeetingRequestService) emit(ctx context.Context, change realtime.Change) {
	if s.publisher == nil {
		return
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = s.now()
	}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.loggerWith(ctx, "publish").WarnContext(ctx, "change not published", "error", err, "table", change.Table, "record_id", change.RecordID)
	}
}

func validateCreateParams(params *CreateMeetingRequestParams) *ValidationError {
	vErr := &ValidationError{}
	if params.SpeakerID == "" {
		vErr.add("speaker_id", "speaker_id is required")
	} else if _, err := uuid.Parse(params.SpeakerID); err != nil {
		vErr.add("speaker_id", "speaker_id must be a UUID")
	} else if params.SpeakerID == params.Principal.UserID {
		vErr.add("speaker_id", "you cannot request a meeting with yourself")
	}
	params.Message = strings.TrimSpace(params.Message)
	params.Note = strings.TrimSpace(params.Note)
	if utf8.RuneCountInString(params.Message) > maxMessageLength {
		vErr.add("message", fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}
	if utf8.RuneCountInString(params.Note) > maxMessageLength {
		vErr.add("note", fmt.Sprintf("note must be at most %d characters", maxMessageLength))
	}
	if params.BoostAmount < 0 {
		vErr.add("boost_amount", "boost_amount must not be negative")
	}
	if params.DurationMinutes == 0 {
		params.DurationMinutes = DefaultMeetingMinutes
	}
	if params.DurationMinutes < minMeetingMinutes || params.DurationMinutes > maxMeetingMinutes {
		vErr.add("duration_minutes", fmt.Sprintf("duration_minutes must be between %d and %d", minMeetingMinutes, maxMeetingMinutes))
	}
	return vErr
}

// IsMeetingRequestError reports whether err is one of the expected rejections
// of the request lifecycle rather than an infrastructure failure.
func IsMeetingRequestError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBlocked)
}
