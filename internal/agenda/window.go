// Package agenda resolves conference sessions into absolute time windows and
// derives the live agenda state (current session, next session, progress)
// shown to attendees.
//
// All un-annotated timestamps are interpreted in the fixed event offset
// (UTC-5). Parsing never panics and never yields a sentinel instant: every
// resolver returns an explicit ok flag that callers must check.
package agenda

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EventOffset is the textual offset appended to ISO instants that carry none.
const EventOffset = "-05:00"

// EventZone is the fixed zone all agenda clock times are expressed in.
var EventZone = time.FixedZone("UTC-5", -5*60*60)

// ItemType classifies an agenda session.
type ItemType string

const (
	TypeKeynote      ItemType = "keynote"
	TypePanel        ItemType = "panel"
	TypeBreak        ItemType = "break"
	TypeMeal         ItemType = "meal"
	TypeRegistration ItemType = "registration"
)

// Valid reports whether t is one of the known session types.
func (t ItemType) Valid() bool {
	switch t {
	case TypeKeynote, TypePanel, TypeBreak, TypeMeal, TypeRegistration:
		return true
	}
	return false
}

// Item is a single agenda session as delivered by the agenda source.
type Item struct {
	ID              string   `json:"id"`
	EventID         string   `json:"event_id,omitempty"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Speakers        []string `json:"speakers,omitempty"`
	Location        string   `json:"location,omitempty"`
	Time            string   `json:"time"`
	Type            ItemType `json:"type"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	Day             string   `json:"day,omitempty"`
}

// Window is a resolved, closed [Start, End] interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether instant lies inside the window, bounds included.
func (w Window) Contains(instant time.Time) bool {
	return !instant.Before(w.Start) && !instant.After(w.End)
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// DefaultDurationMinutes returns the fallback session length for a type.
func DefaultDurationMinutes(t ItemType) int {
	switch t {
	case TypePanel:
		return 60
	case TypeKeynote:
		return 30
	case TypeBreak:
		return 15
	case TypeMeal:
		return 60
	default:
		return 30
	}
}

// DurationOf returns the explicit duration of the item when positive, else the
// type default.
func DurationOf(item Item) time.Duration {
	if item.DurationMinutes != nil && *item.DurationMinutes > 0 {
		return time.Duration(*item.DurationMinutes) * time.Minute
	}
	return time.Duration(DefaultDurationMinutes(item.Type)) * time.Minute
}

var (
	clockRangePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*[-–]\s*(\d{1,2}):(\d{2})$`)
	offsetPattern     = regexp.MustCompile(`[+-]\d{2}(:?\d{2})?$`)
)

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

// ParseEventInstant parses an ISO-8601 instant. Strings ending in Z or with an
// explicit numeric offset are parsed as-is; anything else is assumed to be in
// the event offset.
func ParseEventInstant(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	tIdx := strings.IndexAny(s, "Tt ")
	if tIdx < 0 {
		return time.Time{}, false
	}
	clock := s[tIdx+1:]
	if !strings.HasSuffix(s, "Z") && !strings.HasSuffix(s, "z") && !offsetPattern.MatchString(clock) {
		s += EventOffset
	}
	for _, layout := range instantLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

type clockRange struct {
	startHour, startMinute int
	endHour, endMinute     int
}

func parseClockRange(value string) (clockRange, bool) {
	m := clockRangePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return clockRange{}, false
	}
	nums := make([]int, 4)
	for i := range nums {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return clockRange{}, false
		}
		nums[i] = n
	}
	r := clockRange{startHour: nums[0], startMinute: nums[1], endHour: nums[2], endMinute: nums[3]}
	if r.startHour > 23 || r.endHour > 23 || r.startMinute > 59 || r.endMinute > 59 {
		return clockRange{}, false
	}
	return r, true
}

// IsClockRange reports whether the time string uses the "HH:MM - HH:MM" form.
func IsClockRange(value string) bool {
	_, ok := parseClockRange(value)
	return ok
}

// ResolveWindow computes the absolute window of an item.
//
// Clock ranges are anchored to the calendar date of the item's day tag when
// days knows it, otherwise to the calendar date of ref in the event zone.
// ISO instants use the explicit or type default duration.
func ResolveWindow(item Item, ref time.Time, days *DayCalendar) (Window, bool) {
	if r, ok := parseClockRange(item.Time); ok {
		anchor := ref.In(EventZone)
		if date, found := days.DateFor(item.Day); found {
			anchor = date
		}
		y, mo, d := anchor.Date()
		start := time.Date(y, mo, d, r.startHour, r.startMinute, 0, 0, EventZone)
		end := time.Date(y, mo, d, r.endHour, r.endMinute, 0, 0, EventZone)
		if end.Before(start) {
			return Window{}, false
		}
		return Window{Start: start, End: end}, true
	}

	start, ok := ParseEventInstant(item.Time)
	if !ok {
		return Window{}, false
	}
	return Window{Start: start, End: start.Add(DurationOf(item))}, true
}
