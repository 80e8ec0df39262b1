// Package scheduler detects overlapping agenda sessions.
package scheduler

import (
	"sort"
	"strings"
	"time"
)

// Slot is a resolved agenda session.
type Slot struct {
	ID       string
	Location string
	Speakers []string
	Start    time.Time
	End      time.Time
}

// ConflictType describes why two sessions collide.
type ConflictType string

const (
	// ConflictTypeTime indicates the sessions run at the same time. More than
	// one session can then be live at once.
	ConflictTypeTime ConflictType = "time"
	// ConflictTypeLocation indicates a room is double-booked.
	ConflictTypeLocation ConflictType = "location"
	// ConflictTypeSpeaker indicates a speaker is double-booked.
	ConflictTypeSpeaker ConflictType = "speaker"
)

// Conflict details an overlapping relation that callers can present to users.
type Conflict struct {
	SlotID     string       `json:"slot_id"`
	WithSlotID string       `json:"with_slot_id"`
	Type       ConflictType `json:"type"`
	Speaker    string       `json:"speaker,omitempty"`
	Location   string       `json:"location,omitempty"`
}

// DetectConflicts identifies conflicts for the candidate against existing
// slots. Windows are treated as half-open so back-to-back sessions do not
// collide.
func DetectConflicts(existing []Slot, candidate Slot) []Conflict {
	var conflicts []Conflict
	for _, other := range existing {
		if other.ID == candidate.ID || !overlaps(candidate, other) {
			continue
		}
		conflicts = append(conflicts, Conflict{SlotID: candidate.ID, WithSlotID: other.ID, Type: ConflictTypeTime})

		if loc := normalize(candidate.Location); loc != "" && loc == normalize(other.Location) {
			conflicts = append(conflicts, Conflict{SlotID: candidate.ID, WithSlotID: other.ID, Type: ConflictTypeLocation, Location: strings.TrimSpace(candidate.Location)})
		}
		for _, speaker := range sharedSpeakers(candidate.Speakers, other.Speakers) {
			conflicts = append(conflicts, Conflict{SlotID: candidate.ID, WithSlotID: other.ID, Type: ConflictTypeSpeaker, Speaker: speaker})
		}
	}
	return conflicts
}

// DetectOverlaps reports every conflicting pair in slots once, ordered by the
// position of the first slot of each pair.
func DetectOverlaps(slots []Slot) []Conflict {
	var all []Conflict
	for i := range slots {
		all = append(all, DetectConflicts(slots[i+1:], slots[i])...)
	}
	return all
}

func overlaps(a, b Slot) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sharedSpeakers(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	seen := make(map[string]string, len(a))
	for _, name := range a {
		if key := normalize(name); key != "" {
			seen[key] = strings.TrimSpace(name)
		}
	}
	var shared []string
	for _, name := range b {
		if original, ok := seen[normalize(name)]; ok {
			shared = append(shared, original)
			delete(seen, normalize(name))
		}
	}
	sort.Strings(shared)
	return shared
}
