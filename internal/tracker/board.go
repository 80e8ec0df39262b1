package tracker

import (
	"sync"

	"github.com/example/conference-companion/internal/client"
	"github.com/example/conference-companion/internal/realtime"
)

// Entry is one request shown locally. Provisional entries were added
// optimistically and are not yet confirmed by the server.
type Entry struct {
	Request     client.MeetingRequest
	Provisional bool
}

type pairKey struct {
	requester string
	speaker   string
}

func keyOf(r client.MeetingRequest) pairKey {
	return pairKey{requester: r.RequesterID, speaker: r.SpeakerID}
}

// RequestBoard is the local list of meeting requests, newest first. Polls
// and push changes both write to it; the later write wins.
type RequestBoard struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewRequestBoard() *RequestBoard {
	return &RequestBoard{}
}

// AddProvisional prepends an optimistic entry.
func (b *RequestBoard) AddProvisional(req client.MeetingRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append([]Entry{{Request: req, Provisional: true}}, b.entries...)
}

// DropProvisional removes the provisional entry of a requester and speaker
// pair, for example after the server rejected it.
func (b *RequestBoard) DropProvisional(requesterID, speakerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := pairKey{requester: requesterID, speaker: speakerID}
	b.entries = filterEntries(b.entries, func(e Entry) bool {
		return !(e.Provisional && keyOf(e.Request) == key)
	})
}

// ReplaceAll installs an authoritative list. Provisional entries never
// survive: the server list either contains their confirmed version or the
// request does not exist.
func (b *RequestBoard) ReplaceAll(requests []client.MeetingRequest) {
	entries := make([]Entry, 0, len(requests))
	for _, r := range requests {
		entries = append(entries, Entry{Request: r})
	}
	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()
}

// Upsert installs a confirmed request returned by the server. It replaces
// the entry with the same id, or the provisional entry of the same pair, or
// is prepended.
func (b *RequestBoard) Upsert(req client.MeetingRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexByID(req.ID); i >= 0 {
		if !req.UpdatedAt.Before(b.entries[i].Request.UpdatedAt) {
			b.entries[i] = Entry{Request: req}
		}
		return
	}
	key := keyOf(req)
	for i, e := range b.entries {
		if e.Provisional && keyOf(e.Request) == key {
			b.entries[i] = Entry{Request: req}
			return
		}
	}
	b.entries = append([]Entry{{Request: req}}, b.entries...)
}

// ApplyChange folds a pushed row change into the board and reports whether
// anything changed. Changes older than the local copy are ignored.
func (b *RequestBoard) ApplyChange(change realtime.Change) bool {
	if change.Table != realtime.TableMeetingRequests || change.RecordID == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexByID(change.RecordID)
	if change.Type == realtime.ChangeDelete {
		if i < 0 {
			return false
		}
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
		return true
	}

	if i >= 0 {
		current := &b.entries[i].Request
		if change.OccurredAt.Before(current.UpdatedAt) {
			return false
		}
		if change.Status != "" {
			current.Status = change.Status
		}
		current.UpdatedAt = change.OccurredAt
		return true
	}

	req := client.MeetingRequest{
		ID:          change.RecordID,
		RequesterID: change.RequesterID,
		SpeakerID:   change.SpeakerID,
		Status:      change.Status,
		CreatedAt:   change.OccurredAt,
		UpdatedAt:   change.OccurredAt,
	}
	key := keyOf(req)
	for j, e := range b.entries {
		if e.Provisional && keyOf(e.Request) == key {
			merged := e.Request
			merged.ID = req.ID
			merged.Status = req.Status
			merged.UpdatedAt = req.UpdatedAt
			b.entries[j] = Entry{Request: merged}
			return true
		}
	}
	b.entries = append([]Entry{{Request: req}}, b.entries...)
	return true
}

// Entries returns a copy of the board.
func (b *RequestBoard) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Entry(nil), b.entries...)
}

// Requests returns the requests on the board.
func (b *RequestBoard) Requests() []client.MeetingRequest {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]client.MeetingRequest, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Request
	}
	return out
}

// Get returns the request with id.
func (b *RequestBoard) Get(id string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i := b.indexByID(id); i >= 0 {
		return b.entries[i], true
	}
	return Entry{}, false
}

// Clear empties the board.
func (b *RequestBoard) Clear() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}

func (b *RequestBoard) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range b.entries {
		if e.Request.ID == id {
			return i
		}
	}
	return -1
}

func filterEntries(entries []Entry, keep func(Entry) bool) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
