package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/conference-companion/internal/application"
)

type meetingRequestService interface {
	Create(ctx context.Context, params application.CreateMeetingRequestParams) (application.MeetingRequest, error)
	Get(ctx context.Context, principal application.Principal, id string) (application.MeetingRequest, error)
	Cancel(ctx context.Context, principal application.Principal, id string) (application.MeetingRequest, error)
	Accept(ctx context.Context, principal application.Principal, id, notes string) (application.MeetingRequest, application.Meeting, error)
	Decline(ctx context.Context, principal application.Principal, id, reason string) (application.MeetingRequest, error)
	ListForRequester(ctx context.Context, principal application.Principal, statuses ...application.RequestStatus) ([]application.MeetingRequest, error)
	ListForSpeaker(ctx context.Context, principal application.Principal, statuses ...application.RequestStatus) ([]application.MeetingRequest, error)
}

// MeetingRequestHandler serves the meeting request lifecycle.
type MeetingRequestHandler struct {
	service   meetingRequestService
	responder responder
	logger    *slog.Logger
}

func NewMeetingRequestHandler(service meetingRequestService, logger *slog.Logger) *MeetingRequestHandler {
	base := defaultLogger(logger)
	return &MeetingRequestHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MeetingRequestHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "MeetingRequestHandler", operation, attrs...)
}

// List handles GET /api/meeting-requests?role=requester|speaker&status=pending,accepted.
func (h *MeetingRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	var statuses []application.RequestStatus
	for _, raw := range strings.Split(query.Get("status"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			statuses = append(statuses, application.RequestStatus(strings.ToLower(raw)))
		}
	}

	var (
		requests []application.MeetingRequest
		err      error
	)
	switch role := strings.ToLower(strings.TrimSpace(query.Get("role"))); role {
	case "", "requester":
		requests, err = h.service.ListForRequester(r.Context(), principal, statuses...)
	case "speaker":
		requests, err = h.service.ListForSpeaker(r.Context(), principal, statuses...)
	default:
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errors.New("role must be requester or speaker"))
		return
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]meetingRequestDTO, 0, len(requests))
	for _, req := range requests {
		out = append(out, toMeetingRequestDTO(req))
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, out)
}

// Create handles POST /api/meeting-requests.
func (h *MeetingRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req createMeetingRequestBody
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "speaker_id", req.SpeakerID)
	created, err := h.service.Create(r.Context(), application.CreateMeetingRequestParams{
		Principal:       principal,
		SpeakerID:       req.SpeakerID,
		Message:         req.Message,
		Note:            req.Note,
		BoostAmount:     req.BoostAmount,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		logger.InfoContext(r.Context(), "meeting request rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusCreated, toMeetingRequestDTO(created))
}

// Get handles GET /api/meeting-requests/{id}.
func (h *MeetingRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	req, err := h.service.Get(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toMeetingRequestDTO(req))
}

// Cancel handles POST /api/meeting-requests/{id}/cancel.
func (h *MeetingRequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	req, err := h.service.Cancel(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toMeetingRequestDTO(req))
}

// Accept handles POST /api/meeting-requests/{id}/accept.
func (h *MeetingRequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var body respondBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}

	req, meeting, err := h.service.Accept(r.Context(), principal, r.PathValue("id"), body.Notes)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, acceptResponse{
		Request: toMeetingRequestDTO(req),
		Meeting: toMeetingDTO(meeting),
	})
}

// Decline handles POST /api/meeting-requests/{id}/decline.
func (h *MeetingRequestHandler) Decline(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var body respondBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}

	req, err := h.service.Decline(r.Context(), principal, r.PathValue("id"), body.Reason)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toMeetingRequestDTO(req))
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := decodeJSON(r, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type createMeetingRequestBody struct {
	SpeakerID       string  `json:"speaker_id"`
	Message         string  `json:"message"`
	Note            string  `json:"note"`
	BoostAmount     float64 `json:"boost_amount"`
	DurationMinutes int     `json:"duration_minutes"`
}

type respondBody struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

type meetingRequestDTO struct {
	ID                  string  `json:"id"`
	RequesterID         string  `json:"requester_id"`
	SpeakerID           string  `json:"speaker_id"`
	Status              string  `json:"status"`
	RequesterTicketType string  `json:"requester_ticket_type"`
	Message             *string `json:"message"`
	Note                *string `json:"note"`
	SpeakerNotes        *string `json:"speaker_notes"`
	DeclineReason       *string `json:"decline_reason"`
	BoostAmount         float64 `json:"boost_amount"`
	DurationMinutes     int     `json:"duration_minutes"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
	ExpiresAt           string  `json:"expires_at"`
	SpeakerResponseAt   *string `json:"speaker_response_at"`
}

func toMeetingRequestDTO(req application.MeetingRequest) meetingRequestDTO {
	return meetingRequestDTO{
		ID:                  req.ID,
		RequesterID:         req.RequesterID,
		SpeakerID:           req.SpeakerID,
		Status:              string(req.Status),
		RequesterTicketType: string(req.RequesterTicketType),
		Message:             req.Message,
		Note:                req.Note,
		SpeakerNotes:        req.SpeakerNotes,
		DeclineReason:       req.DeclineReason,
		BoostAmount:         req.BoostAmount,
		DurationMinutes:     req.DurationMinutes,
		CreatedAt:           formatTime(req.CreatedAt),
		UpdatedAt:           formatTime(req.UpdatedAt),
		ExpiresAt:           formatTime(req.ExpiresAt),
		SpeakerResponseAt:   formatTimePtr(req.SpeakerResponseAt),
	}
}

type meetingDTO struct {
	ID               string  `json:"id"`
	MeetingRequestID string  `json:"meeting_request_id"`
	RequesterID      string  `json:"requester_id"`
	SpeakerID        string  `json:"speaker_id"`
	Status           string  `json:"status"`
	DurationMinutes  int     `json:"duration_minutes"`
	Notes            *string `json:"notes"`
	CreatedAt        string  `json:"created_at"`
}

func toMeetingDTO(m application.Meeting) meetingDTO {
	return meetingDTO{
		ID:               m.ID,
		MeetingRequestID: m.MeetingRequestID,
		RequesterID:      m.RequesterID,
		SpeakerID:        m.SpeakerID,
		Status:           m.Status,
		DurationMinutes:  m.DurationMinutes,
		Notes:            m.Notes,
		CreatedAt:        formatTime(m.CreatedAt),
	}
}

type acceptResponse struct {
	Request meetingRequestDTO `json:"request"`
	Meeting meetingDTO        `json:"meeting"`
}
