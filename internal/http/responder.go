package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/conference-companion/internal/application"
)

// Error codes carried next to the human readable message.
const (
	codeBadRequest        = "bad_request"
	codeUnauthenticated   = "unauthenticated"
	codeTokenExpired      = "token_expired"
	codeForbidden         = "permission_denied"
	codeBlocked           = "blocked"
	codeNotFound          = "not_found"
	codeAlreadyExists     = "already_exists"
	codeInvalidTransition = "invalid_transition"
	codeValidation        = "validation_failed"
	codeQuotaExceeded     = "quota_exceeded"
	codeInternal          = "internal"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errMissingToken   = errors.New("authentication required")
)

// envelope is the body of every API response.
type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeData(ctx context.Context, w http.ResponseWriter, status int, data any) {
	r.writeJSON(ctx, w, status, envelope{Success: true, Data: data})
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := err.Error(); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}
	r.writeJSON(ctx, w, status, envelope{Error: message, Code: code})
}

// handleServiceError maps application errors onto status codes. Messages are
// stable so clients can match on them.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err, "error_kind", application.ErrorKind(err))
	}
	body := envelope{Error: message, Code: code}
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		body.Fields = vErr.FieldErrors
	}
	r.writeJSON(ctx, w, status, body)
}

func classify(err error) (int, string, string) {
	var vErr *application.ValidationError
	switch {
	case err == nil:
		return http.StatusInternalServerError, codeInternal, "unknown error"
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity, codeValidation, "validation failed"
	case errors.Is(err, application.ErrTokenExpired):
		return http.StatusUnauthorized, codeTokenExpired, "access token expired"
	case errors.Is(err, application.ErrInvalidCredentials):
		return http.StatusUnauthorized, codeUnauthenticated, "invalid credentials"
	case errors.Is(err, application.ErrAccountDisabled):
		return http.StatusForbidden, codeForbidden, "permission denied: account disabled"
	case errors.Is(err, application.ErrUnauthorized):
		return http.StatusForbidden, codeForbidden, "permission denied"
	case errors.Is(err, application.ErrBlocked):
		return http.StatusForbidden, codeBlocked, "permission denied: the speaker is not accepting your requests"
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "not found"
	case errors.Is(err, application.ErrAlreadyExists):
		return http.StatusConflict, codeAlreadyExists, "a pending request already exists"
	case errors.Is(err, application.ErrInvalidTransition):
		return http.StatusConflict, codeInvalidTransition, "request is no longer pending"
	case errors.Is(err, application.ErrQuotaExceeded):
		return http.StatusTooManyRequests, codeQuotaExceeded, "meeting request limit reached"
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error"
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
