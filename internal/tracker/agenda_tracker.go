// Package tracker holds the live client state of an attendee or speaker: the
// running agenda session, the meeting request quota and the local list of
// meeting requests, kept fresh by polling and by the push channel.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/conference-companion/internal/agenda"
)

// AgendaSource fetches the sessions of an event.
type AgendaSource interface {
	Agenda(ctx context.Context, eventID string) ([]agenda.Item, error)
}

// Intervals configures the agenda timers.
type Intervals struct {
	// Progress recomputes progress and countdown while a session runs.
	Progress time.Duration
	// Locate re-evaluates the event period and the current and next session.
	Locate time.Duration
	// Refetch reloads the agenda during the event period.
	Refetch time.Duration
}

// DefaultIntervals are the timers of the live agenda screen.
var DefaultIntervals = Intervals{
	Progress: time.Second,
	Locate:   time.Minute,
	Refetch:  5 * time.Minute,
}

func (i Intervals) withDefaults() Intervals {
	if i.Progress <= 0 {
		i.Progress = DefaultIntervals.Progress
	}
	if i.Locate <= 0 {
		i.Locate = DefaultIntervals.Locate
	}
	if i.Refetch <= 0 {
		i.Refetch = DefaultIntervals.Refetch
	}
	return i
}

// AgendaState is what the live agenda shows at one instant.
type AgendaState struct {
	Snapshot      agenda.Snapshot
	Progress      agenda.Progress
	InEventPeriod bool
	Items         int
	FetchedAt     time.Time
}

// AgendaTracker keeps the latest agenda and derives the live state from it.
// Every fetch supersedes the previous agenda wholesale.
type AgendaTracker struct {
	source    AgendaSource
	eventID   string
	days      *agenda.DayCalendar
	intervals Intervals
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.RWMutex
	items     []agenda.Item
	fetchedAt time.Time
	state     AgendaState

	updates chan AgendaState
}

// NewAgendaTracker creates a tracker for one event. Zero intervals take the
// DefaultIntervals values.
func NewAgendaTracker(source AgendaSource, eventID string, days *agenda.DayCalendar, intervals Intervals, now func() time.Time, logger *slog.Logger) *AgendaTracker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AgendaTracker{
		source:    source,
		eventID:   eventID,
		days:      days,
		intervals: intervals.withDefaults(),
		now:       now,
		logger:    logger.With("component", "tracker.agenda", "event_id", eventID),
		updates:   make(chan AgendaState, 1),
	}
}

// Updates delivers the latest state after each change. Slow readers only
// see the most recent state.
func (t *AgendaTracker) Updates() <-chan AgendaState {
	return t.updates
}

// Refresh fetches the agenda. On failure the previous agenda is kept.
func (t *AgendaTracker) Refresh(ctx context.Context) error {
	items, err := t.source.Agenda(ctx, t.eventID)
	if err != nil {
		t.logger.WarnContext(ctx, "agenda fetch failed", "error", err)
		return err
	}
	now := t.now()
	t.mu.Lock()
	t.items = append([]agenda.Item(nil), items...)
	t.fetchedAt = now
	t.mu.Unlock()
	t.logger.DebugContext(ctx, "agenda fetched", "items", len(items))
	t.relocate(now)
	return nil
}

// Items returns a copy of the current agenda.
func (t *AgendaTracker) Items() []agenda.Item {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]agenda.Item(nil), t.items...)
}

// Days groups the current agenda per event day.
func (t *AgendaTracker) Days() []agenda.DayBucket {
	return t.days.Bucket(t.Items())
}

// Snapshot locates the current and next session at now.
func (t *AgendaTracker) Snapshot(now time.Time) agenda.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return agenda.Locate(now, t.items, t.days)
}

// Progress returns the progress of the session running at now.
func (t *AgendaTracker) Progress(now time.Time) agenda.Progress {
	return agenda.ProgressOf(t.Snapshot(now), now)
}

// State returns the last computed state.
func (t *AgendaTracker) State() AgendaState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Run fetches the agenda and drives the timers until ctx is cancelled.
func (t *AgendaTracker) Run(ctx context.Context) error {
	if err := t.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		t.relocate(t.now())
	}

	progress := time.NewTicker(t.intervals.Progress)
	defer progress.Stop()
	locate := time.NewTicker(t.intervals.Locate)
	defer locate.Stop()
	refetch := time.NewTicker(t.intervals.Refetch)
	defer refetch.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-progress.C:
			t.tick(t.now())
		case <-locate.C:
			t.relocate(t.now())
		case <-refetch.C:
			if !t.days.InEventPeriod(t.now()) {
				continue
			}
			_ = t.Refresh(ctx)
		}
	}
}

// relocate recomputes the whole state.
func (t *AgendaTracker) relocate(now time.Time) {
	t.mu.Lock()
	snapshot := agenda.Locate(now, t.items, t.days)
	t.state = AgendaState{
		Snapshot:      snapshot,
		Progress:      agenda.ProgressOf(snapshot, now),
		InEventPeriod: t.days.InEventPeriod(now),
		Items:         len(t.items),
		FetchedAt:     t.fetchedAt,
	}
	state := t.state
	t.mu.Unlock()
	t.emit(state)
}

// tick advances progress of the known current session. Once the session is
// over the state is relocated so progress resets.
func (t *AgendaTracker) tick(now time.Time) {
	t.mu.Lock()
	current := t.state.Snapshot
	if !current.HasCurrent() {
		t.mu.Unlock()
		return
	}
	if !current.CurrentWindow.Contains(now) {
		t.mu.Unlock()
		t.relocate(now)
		return
	}
	t.state.Progress = agenda.ComputeProgress(current.CurrentWindow, now)
	state := t.state
	t.mu.Unlock()
	t.emit(state)
}

func (t *AgendaTracker) emit(state AgendaState) {
	select {
	case <-t.updates:
	default:
	}
	select {
	case t.updates <- state:
	default:
	}
}
