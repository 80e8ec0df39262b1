package http

import (
	"net/http"
)

// RouterConfig wires handlers into the API. Nil handlers leave their routes
// unregistered.
type RouterConfig struct {
	Auth            *AuthHandler
	Users           *UserHandler
	Agenda          *AgendaHandler
	MeetingRequests *MeetingRequestHandler
	Account         *AccountHandler
	Speakers        *SpeakerHandler
	Realtime        *RealtimeHandler
	// Authenticate guards every non-public route.
	Authenticate func(http.Handler) http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler {
		if cfg.Authenticate == nil {
			return h
		}
		return cfg.Authenticate(h)
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.Auth != nil {
		mux.HandleFunc("POST /api/auth/token", cfg.Auth.CreateToken)
	}

	if cfg.Users != nil {
		mux.Handle("GET /api/users", authed(cfg.Users.List))
		mux.Handle("POST /api/users", authed(cfg.Users.Create))
	}

	if cfg.Agenda != nil {
		mux.HandleFunc("GET /api/agenda", cfg.Agenda.List)
		mux.Handle("PUT /api/agenda", authed(cfg.Agenda.Import))
		mux.Handle("GET /api/agenda/status", authed(cfg.Agenda.ListStatus))
		mux.Handle("PUT /api/agenda/status/{itemId}", authed(cfg.Agenda.SetStatus))
	}

	if cfg.MeetingRequests != nil {
		mux.Handle("GET /api/meeting-requests", authed(cfg.MeetingRequests.List))
		mux.Handle("POST /api/meeting-requests", authed(cfg.MeetingRequests.Create))
		mux.Handle("GET /api/meeting-requests/{id}", authed(cfg.MeetingRequests.Get))
		mux.Handle("POST /api/meeting-requests/{id}/cancel", authed(cfg.MeetingRequests.Cancel))
		mux.Handle("POST /api/meeting-requests/{id}/accept", authed(cfg.MeetingRequests.Accept))
		mux.Handle("POST /api/meeting-requests/{id}/decline", authed(cfg.MeetingRequests.Decline))
	}

	if cfg.Account != nil {
		mux.Handle("GET /api/limits", authed(cfg.Account.Limits))
		mux.Handle("GET /api/pass", authed(cfg.Account.Pass))
		mux.Handle("GET /api/networking/stats", authed(cfg.Account.Stats))
		mux.Handle("GET /api/meetings", authed(cfg.Account.Meetings))
		mux.Handle("GET /api/blocks", authed(cfg.Account.ListBlocks))
		mux.Handle("POST /api/blocks/{userId}", authed(cfg.Account.ToggleBlock))
	}

	if cfg.Speakers != nil {
		mux.HandleFunc("GET /api/speakers/{idOrSlug}", cfg.Speakers.Get)
		mux.Handle("GET /api/speakers/{idOrSlug}/stats", authed(cfg.Speakers.Stats))
	}

	if cfg.Realtime != nil {
		mux.Handle("GET /api/realtime", authed(cfg.Realtime.Subscribe))
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}
