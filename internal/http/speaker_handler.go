package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/conference-companion/internal/application"
)

type speakerDirectory interface {
	Lookup(ctx context.Context, idOrSlug string) (application.Speaker, error)
	IsOnline(ctx context.Context, idOrSlug string) (bool, error)
}

type speakerStatsService interface {
	SpeakerStats(ctx context.Context, speakerIDOrSlug string) (application.SpeakerStats, error)
}

// SpeakerHandler serves speaker profiles.
type SpeakerHandler struct {
	directory speakerDirectory
	stats     speakerStatsService
	responder responder
	logger    *slog.Logger
}

func NewSpeakerHandler(directory speakerDirectory, stats speakerStatsService, logger *slog.Logger) *SpeakerHandler {
	base := defaultLogger(logger)
	return &SpeakerHandler{directory: directory, stats: stats, responder: newResponder(base), logger: base}
}

// Get handles GET /api/speakers/{idOrSlug}.
func (h *SpeakerHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("idOrSlug")
	speaker, err := h.directory.Lookup(r.Context(), key)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	online, err := h.directory.IsOnline(r.Context(), speaker.ID)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "SpeakerHandler", "Get").WarnContext(r.Context(), "presence unavailable", "error", err)
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, speakerDTO{
		ID:         speaker.ID,
		Slug:       speaker.Slug,
		Name:       speaker.Name,
		Title:      speaker.Title,
		Company:    speaker.Company,
		Bio:        speaker.Bio,
		ImageURL:   speaker.ImageURL,
		IsActive:   speaker.IsActive,
		IsOnline:   online,
		LastSeenAt: formatTimePtr(speaker.LastSeenAt),
	})
}

// Stats handles GET /api/speakers/{idOrSlug}/stats.
func (h *SpeakerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.SpeakerStats(r.Context(), r.PathValue("idOrSlug"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, stats)
}

type speakerDTO struct {
	ID         string  `json:"id"`
	Slug       string  `json:"slug"`
	Name       string  `json:"name"`
	Title      *string `json:"title"`
	Company    *string `json:"company"`
	Bio        *string `json:"bio"`
	ImageURL   *string `json:"image_url"`
	IsActive   bool    `json:"is_active"`
	IsOnline   bool    `json:"is_online"`
	LastSeenAt *string `json:"last_seen_at"`
}
