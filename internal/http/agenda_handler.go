package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/conference-companion/internal/agenda"
	"github.com/example/conference-companion/internal/application"
)

type agendaService interface {
	List(ctx context.Context, eventID string) ([]agenda.Item, error)
	Import(ctx context.Context, principal application.Principal, eventID string, items []agenda.Item) (application.ImportResult, error)
	SetStatus(ctx context.Context, principal application.Principal, itemID string, status application.AgendaStatusValue, favorite bool) (application.AgendaStatus, error)
	ListStatus(ctx context.Context, principal application.Principal) ([]application.AgendaStatus, error)
}

// AgendaHandler serves the event agenda and attendee bookmarks.
type AgendaHandler struct {
	service   agendaService
	responder responder
	logger    *slog.Logger
}

func NewAgendaHandler(service agendaService, logger *slog.Logger) *AgendaHandler {
	base := defaultLogger(logger)
	return &AgendaHandler{service: service, responder: newResponder(base), logger: base}
}

// List handles GET /api/agenda?eventId=.
func (h *AgendaHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), r.URL.Query().Get("eventId"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []agenda.Item{}
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, items)
}

// Import handles PUT /api/agenda?eventId=. The body may be a bare array or
// any envelope accepted by agenda.DecodeEnvelope.
func (h *AgendaHandler) Import(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 8<<20))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}
	items, err := agenda.DecodeEnvelope(body)
	if err != nil {
		var srcErr *agenda.SourceError
		if errors.As(err, &srcErr) {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, err)
			return
		}
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}

	eventID := r.URL.Query().Get("eventId")
	logger := handlerLogger(r.Context(), h.logger, "AgendaHandler", "Import", "event_id", eventID, "items", len(items))
	result, err := h.service.Import(r.Context(), principal, eventID, items)
	if err != nil {
		logger.WarnContext(r.Context(), "agenda import rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, result)
}

// ListStatus handles GET /api/agenda/status.
func (h *AgendaHandler) ListStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	statuses, err := h.service.ListStatus(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]agendaStatusDTO, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, toAgendaStatusDTO(s))
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, out)
}

// SetStatus handles PUT /api/agenda/status/{itemId}.
func (h *AgendaHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var body agendaStatusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}
	stored, err := h.service.SetStatus(r.Context(), principal, r.PathValue("itemId"),
		application.AgendaStatusValue(strings.ToLower(strings.TrimSpace(body.Status))), body.IsFavorite)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toAgendaStatusDTO(stored))
}

type agendaStatusBody struct {
	Status     string `json:"status"`
	IsFavorite bool   `json:"is_favorite"`
}

type agendaStatusDTO struct {
	AgendaItemID string `json:"agenda_item_id"`
	Status       string `json:"status"`
	IsFavorite   bool   `json:"is_favorite"`
	UpdatedAt    string `json:"updated_at"`
}

func toAgendaStatusDTO(s application.AgendaStatus) agendaStatusDTO {
	return agendaStatusDTO{
		AgendaItemID: s.AgendaItemID,
		Status:       string(s.Status),
		IsFavorite:   s.IsFavorite,
		UpdatedAt:    formatTime(s.UpdatedAt),
	}
}
