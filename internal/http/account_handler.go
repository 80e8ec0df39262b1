package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/conference-companion/internal/application"
)

type limitsService interface {
	GetRequestLimits(ctx context.Context, userID string) (application.RequestLimits, error)
}

type passService interface {
	GetPassInfo(ctx context.Context, userID string) (application.PassInfo, error)
}

type networkingService interface {
	Stats(ctx context.Context, principal application.Principal) (application.NetworkingStats, error)
	ListMeetings(ctx context.Context, principal application.Principal) ([]application.Meeting, error)
}

type blockService interface {
	Toggle(ctx context.Context, principal application.Principal, targetID string) (bool, error)
	List(ctx context.Context, principal application.Principal) ([]application.Block, error)
}

// AccountHandler serves the caller's pass, quota, blocks and networking data.
type AccountHandler struct {
	limits     limitsService
	passes     passService
	networking networkingService
	blocks     blockService
	responder  responder
	logger     *slog.Logger
}

func NewAccountHandler(limits limitsService, passes passService, networking networkingService, blocks blockService, logger *slog.Logger) *AccountHandler {
	base := defaultLogger(logger)
	return &AccountHandler{
		limits:     limits,
		passes:     passes,
		networking: networking,
		blocks:     blocks,
		responder:  newResponder(base),
		logger:     base,
	}
}

// Limits handles GET /api/limits.
func (h *AccountHandler) Limits(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	limits, err := h.limits.GetRequestLimits(r.Context(), principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, limits)
}

// Pass handles GET /api/pass.
func (h *AccountHandler) Pass(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	info, err := h.passes.GetPassInfo(r.Context(), principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, passDTO{
		UserID:      info.UserID,
		DisplayName: info.DisplayName,
		TicketType:  string(info.Tier),
		TicketLabel: info.TierLabel,
		Status:      info.Status,
		HasPass:     info.HasPass,
	})
}

// Stats handles GET /api/networking/stats.
func (h *AccountHandler) Stats(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	stats, err := h.networking.Stats(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, stats)
}

// Meetings handles GET /api/meetings.
func (h *AccountHandler) Meetings(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	meetings, err := h.networking.ListMeetings(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]meetingDTO, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, toMeetingDTO(m))
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, out)
}

// ListBlocks handles GET /api/blocks.
func (h *AccountHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	blocks, err := h.blocks.List(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]blockDTO, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, blockDTO{BlockedID: b.BlockedID, CreatedAt: formatTime(b.CreatedAt)})
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, out)
}

// ToggleBlock handles POST /api/blocks/{userId}.
func (h *AccountHandler) ToggleBlock(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	target := r.PathValue("userId")
	blocked, err := h.blocks.Toggle(r.Context(), principal, target)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "AccountHandler", "ToggleBlock").InfoContext(r.Context(), "block toggled", "target_id", target, "blocked", blocked)
	h.responder.writeData(r.Context(), w, http.StatusOK, map[string]any{"user_id": target, "blocked": blocked})
}

type passDTO struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	TicketType  string `json:"ticket_type"`
	TicketLabel string `json:"ticket_label"`
	Status      string `json:"status"`
	HasPass     bool   `json:"has_pass"`
}

type blockDTO struct {
	BlockedID string `json:"blocked_id"`
	CreatedAt string `json:"created_at"`
}
