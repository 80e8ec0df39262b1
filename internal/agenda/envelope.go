package agenda

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is returned when a payload matches none of the
// accepted agenda response shapes.
var ErrMalformedEnvelope = errors.New("agenda: malformed response envelope")

// SourceError is a failure reported by the agenda source inside a well formed
// envelope.
type SourceError struct {
	Message string
}

func (e *SourceError) Error() string {
	if e.Message == "" {
		return "agenda: source reported failure"
	}
	return "agenda: source reported failure: " + e.Message
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

const maxEnvelopeDepth = 3

// DecodeEnvelope normalises every agenda response shape the source is known to
// produce into a flat item list: a bare array, {"data": [...]} and
// {"data": {"data": [...]}}. A {"success": false, "error": ...} payload yields
// a *SourceError.
func DecodeEnvelope(body []byte) ([]Item, error) {
	return decodeLevel(bytes.TrimSpace(body), 0)
}

func decodeLevel(raw []byte, depth int) ([]Item, error) {
	if depth > maxEnvelopeDepth || len(raw) == 0 {
		return nil, ErrMalformedEnvelope
	}
	switch raw[0] {
	case '[':
		var items []Item
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		if items == nil {
			items = []Item{}
		}
		return items, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		if msg, failed := envelopeFailure(env); failed {
			return nil, &SourceError{Message: msg}
		}
		data := bytes.TrimSpace(env.Data)
		if len(data) == 0 || bytes.Equal(data, []byte("null")) {
			return nil, ErrMalformedEnvelope
		}
		return decodeLevel(data, depth+1)
	default:
		return nil, ErrMalformedEnvelope
	}
}

func envelopeFailure(env envelope) (string, bool) {
	msg := errorMessage(env.Error)
	if env.Success != nil && !*env.Success {
		return msg, true
	}
	if msg != "" && len(bytes.TrimSpace(env.Data)) == 0 {
		return msg, true
	}
	return "", false
}

func errorMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
