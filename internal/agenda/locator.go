package agenda

import "time"

// Snapshot is the live agenda state at a given instant.
type Snapshot struct {
	At            time.Time
	Current       *Item
	CurrentWindow Window
	Next          *Item
	NextWindow    Window
}

// HasCurrent reports whether a session is running.
func (s Snapshot) HasCurrent() bool {
	return s.Current != nil
}

// Locate finds the current and the next session.
//
// The current session is the first item, in list order, whose window contains
// now with both bounds inclusive. The next session is the one with the
// smallest start strictly after now; equal starts keep list order. Items
// whose time cannot be resolved are ignored.
func Locate(now time.Time, items []Item, days *DayCalendar) Snapshot {
	snapshot := Snapshot{At: now}
	for i := range items {
		window, ok := ResolveWindow(items[i], now, days)
		if !ok {
			continue
		}
		if snapshot.Current == nil && window.Contains(now) {
			item := items[i]
			snapshot.Current = &item
			snapshot.CurrentWindow = window
		}
		if window.Start.After(now) {
			if snapshot.Next == nil || window.Start.Before(snapshot.NextWindow.Start) {
				item := items[i]
				snapshot.Next = &item
				snapshot.NextWindow = window
			}
		}
	}
	return snapshot
}
