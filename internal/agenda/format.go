package agenda

import (
	"strings"
	"time"
)

const clockLayout = "3:04 PM"

// FormatTimeRange renders an item's time as "h:MM AM - h:MM PM". Clock ranges
// are reformatted verbatim; ISO instants are shown in the event zone using the
// item's duration. Unparseable values are returned unchanged.
func FormatTimeRange(item Item) string {
	if r, ok := parseClockRange(item.Time); ok {
		start := time.Date(2000, 1, 1, r.startHour, r.startMinute, 0, 0, time.UTC)
		end := time.Date(2000, 1, 1, r.endHour, r.endMinute, 0, 0, time.UTC)
		return start.Format(clockLayout) + " - " + end.Format(clockLayout)
	}
	start, ok := ParseEventInstant(item.Time)
	if !ok {
		return strings.TrimSpace(item.Time)
	}
	start = start.In(EventZone)
	end := start.Add(DurationOf(item))
	return start.Format(clockLayout) + " - " + end.Format(clockLayout)
}
