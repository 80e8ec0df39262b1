package client

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an API failure for display.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindUnauthenticated   Kind = "unauthenticated"
	KindPermission        Kind = "permission"
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindInvalidTransition Kind = "invalid_transition"
	KindValidation        Kind = "validation"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindServer            Kind = "server"
)

// Sentinels usable with errors.Is against an *APIError.
var (
	ErrUnauthenticated   = errors.New("client: unauthenticated")
	ErrPermission        = errors.New("client: permission denied")
	ErrNotFound          = errors.New("client: not found")
	ErrAlreadyExists     = errors.New("client: already exists")
	ErrInvalidTransition = errors.New("client: request is no longer pending")
	ErrValidation        = errors.New("client: validation failed")
	ErrQuotaExceeded     = errors.New("client: request limit reached")
	// ErrLimitUnavailable is returned by the controller when a create is
	// refused locally because the quota snapshot does not allow it.
	ErrLimitUnavailable = errors.New("client: no meeting requests available")
)

var kindSentinels = map[Kind]error{
	KindUnauthenticated:   ErrUnauthenticated,
	KindPermission:        ErrPermission,
	KindNotFound:          ErrNotFound,
	KindAlreadyExists:     ErrAlreadyExists,
	KindInvalidTransition: ErrInvalidTransition,
	KindValidation:        ErrValidation,
	KindQuotaExceeded:     ErrQuotaExceeded,
}

// APIError is a failed API call as reported by the envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Kind derives the failure class from the error code, falling back to the
// wording of the message for servers that send none.
func (e *APIError) Kind() Kind {
	switch e.Code {
	case "unauthenticated", "token_expired":
		return KindUnauthenticated
	case "permission_denied", "blocked":
		return KindPermission
	case "not_found":
		return KindNotFound
	case "already_exists":
		return KindAlreadyExists
	case "invalid_transition":
		return KindInvalidTransition
	case "validation_failed":
		return KindValidation
	case "quota_exceeded":
		return KindQuotaExceeded
	case "internal":
		return KindServer
	}
	return kindFromMessage(e.Message, e.Status)
}

func kindFromMessage(message string, status int) Kind {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "forbidden"):
		return KindPermission
	case strings.Contains(msg, "not found"):
		return KindNotFound
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "duplicate"):
		return KindAlreadyExists
	case strings.Contains(msg, "limit"), strings.Contains(msg, "quota"):
		return KindQuotaExceeded
	case strings.Contains(msg, "no longer pending"):
		return KindInvalidTransition
	}
	switch {
	case status == 401:
		return KindUnauthenticated
	case status >= 500:
		return KindServer
	}
	return KindUnknown
}

// Is lets errors.Is match the package sentinels.
func (e *APIError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind()]
	return ok && sentinel == target
}

// Describe turns an error into a short user-facing sentence.
func Describe(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, ErrLimitUnavailable) {
			return "You have no meeting requests left."
		}
		return "Something went wrong. Please try again."
	}
	switch apiErr.Kind() {
	case KindUnauthenticated:
		return "Your session has expired. Please sign in again."
	case KindPermission:
		return "You do not have permission to do that."
	case KindNotFound:
		return "That item could not be found."
	case KindAlreadyExists:
		return "You already have a pending request with this speaker."
	case KindInvalidTransition:
		return "This request is no longer pending."
	case KindQuotaExceeded:
		return "You have reached your meeting request limit."
	case KindValidation:
		return "Please check the highlighted fields."
	}
	return "Something went wrong. Please try again."
}
