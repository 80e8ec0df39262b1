package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/realtime"
)

const (
	realtimeWriteWait  = 10 * time.Second
	realtimePongWait   = 60 * time.Second
	realtimePingPeriod = 30 * time.Second
)

type changeSubscriber interface {
	Subscribe(filter realtime.Filter) *realtime.Subscription
}

type presenceRecorder interface {
	Touch(ctx context.Context, userID string) error
}

// RealtimeHandler streams row changes to websocket clients as JSON.
type RealtimeHandler struct {
	hub       changeSubscriber
	presence  presenceRecorder
	upgrader  websocket.Upgrader
	responder responder
	logger    *slog.Logger
}

// NewRealtimeHandler creates the websocket endpoint. allowedOrigins lists the
// browser origins permitted to connect; "*" allows any, and an empty list
// allows same-host origins only.
func NewRealtimeHandler(hub changeSubscriber, presence presenceRecorder, allowedOrigins []string, logger *slog.Logger) *RealtimeHandler {
	base := defaultLogger(logger)
	return &RealtimeHandler{
		hub:      hub,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		responder: newResponder(base),
		logger:    base,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Subscribe handles GET /api/realtime?table=meeting_requests&filter=speaker_id=eq.<id>.
// Without a filter the subscription covers every change involving the caller.
func (h *RealtimeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	filter, err := realtime.ParseFilter(strings.TrimSpace(query.Get("table")), query.Get("filter"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	if err := scopeFilter(&filter, principal); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		return
	}
	defer conn.Close()

	logger := handlerLogger(r.Context(), h.logger, "RealtimeHandler", "Subscribe", "table", filter.Table)
	sub := h.hub.Subscribe(filter)
	defer sub.Close()
	logger.InfoContext(r.Context(), "realtime subscriber connected")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	h.touch(ctx, logger, principal.UserID)

	// The reader only services control frames and notices the client leaving.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(realtimePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(realtimePongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(realtimePingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(r.Context(), "realtime subscriber disconnected")
			return
		case change, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(realtimeWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(realtimeWriteWait))
			if err := conn.WriteJSON(change); err != nil {
				logger.WarnContext(r.Context(), "realtime write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(realtimeWriteWait)); err != nil {
				return
			}
			h.touch(ctx, logger, principal.UserID)
		}
	}
}

func (h *RealtimeHandler) touch(ctx context.Context, logger *slog.Logger, userID string) {
	if h.presence == nil || userID == "" {
		return
	}
	if err := h.presence.Touch(ctx, userID); err != nil && !errors.Is(err, context.Canceled) {
		logger.WarnContext(ctx, "presence update failed", "error", err)
	}
}

// scopeFilter restricts non-administrators to changes that involve them.
// Agenda changes are public.
func scopeFilter(filter *realtime.Filter, principal application.Principal) error {
	if principal.IsAdmin || filter.Table == realtime.TableAgendaItems {
		return nil
	}
	scoped := false
	for _, id := range []string{filter.RequesterID, filter.SpeakerID, filter.UserID} {
		if id == "" {
			continue
		}
		if id != principal.UserID {
			return application.ErrUnauthorized
		}
		scoped = true
	}
	if !scoped {
		filter.UserID = principal.UserID
	}
	return nil
}
