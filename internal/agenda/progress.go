package agenda

import (
	"fmt"
	"time"
)

// Countdown is a remaining duration split for display.
type Countdown struct {
	Hours   int
	Minutes int
	Seconds int
}

// String renders the countdown as H:MM:SS.
func (c Countdown) String() string {
	return fmt.Sprintf("%d:%02d:%02d", c.Hours, c.Minutes, c.Seconds)
}

// Total returns the countdown as a duration.
func (c Countdown) Total() time.Duration {
	return time.Duration(c.Hours)*time.Hour + time.Duration(c.Minutes)*time.Minute + time.Duration(c.Seconds)*time.Second
}

// Progress is the elapsed fraction and remaining time of the running session.
type Progress struct {
	Percent   float64
	Remaining Countdown
}

// ComputeProgress derives progress for window at now. Percent is clamped to
// [0, 100]; remaining time is floored to whole seconds and never negative.
func ComputeProgress(window Window, now time.Time) Progress {
	total := window.Duration()
	elapsed := now.Sub(window.Start)

	var percent float64
	switch {
	case total <= 0:
		if !now.Before(window.End) {
			percent = 100
		}
	default:
		percent = float64(elapsed) / float64(total) * 100
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	remaining := window.End.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	secs := int(remaining / time.Second)
	return Progress{
		Percent: percent,
		Remaining: Countdown{
			Hours:   secs / 3600,
			Minutes: (secs % 3600) / 60,
			Seconds: secs % 60,
		},
	}
}

// ProgressOf returns the progress of the snapshot's current session, or the
// zero value when nothing is running.
func ProgressOf(s Snapshot, now time.Time) Progress {
	if !s.HasCurrent() {
		return Progress{}
	}
	return ComputeProgress(s.CurrentWindow, now)
}
