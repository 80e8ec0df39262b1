// Package realtime distributes row changes of meeting requests and related
// tables to interested subscribers, inside one process through Hub and across
// processes through a Broker.
package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ChangeType is the kind of row change.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Tables that publish changes.
const (
	TableMeetingRequests = "meeting_requests"
	TableMeetings        = "meetings"
	TableAgendaItems     = "agenda_items"
	TableBlocks          = "blocks"
)

// Change describes one committed row change.
type Change struct {
	Table       string     `json:"table" msgpack:"table"`
	Type        ChangeType `json:"type" msgpack:"type"`
	RecordID    string     `json:"record_id" msgpack:"record_id"`
	RequesterID string     `json:"requester_id,omitempty" msgpack:"requester_id,omitempty"`
	SpeakerID   string     `json:"speaker_id,omitempty" msgpack:"speaker_id,omitempty"`
	UserID      string     `json:"user_id,omitempty" msgpack:"user_id,omitempty"`
	Status      string     `json:"status,omitempty" msgpack:"status,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at" msgpack:"occurred_at"`
}

// Filter selects the changes a subscriber receives. Empty fields match
// everything; a change matches when it satisfies every non-empty field.
type Filter struct {
	Table       string `json:"table,omitempty"`
	RequesterID string `json:"requester_id,omitempty"`
	SpeakerID   string `json:"speaker_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	if f.RequesterID != "" && f.RequesterID != c.RequesterID {
		return false
	}
	if f.SpeakerID != "" && f.SpeakerID != c.SpeakerID {
		return false
	}
	if f.UserID != "" && f.UserID != c.UserID && f.UserID != c.RequesterID && f.UserID != c.SpeakerID {
		return false
	}
	return true
}

// ParseFilter reads "column=eq.value" expressions such as
// "requester_id=eq.42" used by clients to scope a subscription.
func ParseFilter(table, expr string) (Filter, error) {
	f := Filter{Table: table}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return f, nil
	}
	column, value, ok := strings.Cut(expr, "=eq.")
	if !ok || value == "" {
		return Filter{}, fmt.Errorf("unsupported filter %q", expr)
	}
	switch column {
	case "requester_id":
		f.RequesterID = value
	case "speaker_id":
		f.SpeakerID = value
	case "user_id":
		f.UserID = value
	default:
		return Filter{}, fmt.Errorf("unsupported filter column %q", column)
	}
	return f, nil
}

// Encode serialises a change for the wire.
func Encode(c Change) ([]byte, error) {
	return msgpack.Marshal(&c)
}

// Decode parses a change produced by Encode.
func Decode(data []byte) (Change, error) {
	var c Change
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	return c, nil
}
