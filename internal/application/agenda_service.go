package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/conference-companion/internal/agenda"
	"github.com/example/conference-companion/internal/realtime"
	"github.com/example/conference-companion/internal/scheduler"
)

// AgendaRepository stores agenda sessions and per-user bookmarks.
type AgendaRepository interface {
	ReplaceAgenda(ctx context.Context, eventID string, items []agenda.Item) error
	ListAgenda(ctx context.Context, eventID string) ([]agenda.Item, error)
	UpsertAgendaStatus(ctx context.Context, status AgendaStatus) (AgendaStatus, error)
	ListAgendaStatus(ctx context.Context, userID string) ([]AgendaStatus, error)
}

// ImportResult reports an agenda import. Warnings list sessions that run at
// the same time, share a room or share a speaker; they do not block the import.
type ImportResult struct {
	EventID  string               `json:"event_id"`
	Imported int                  `json:"imported"`
	Warnings []scheduler.Conflict `json:"warnings"`
}

// AgendaService serves the event agenda and attendee bookmarks.
type AgendaService struct {
	repo      AgendaRepository
	days      *agenda.DayCalendar
	publisher ChangePublisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewAgendaService wires the agenda service. days anchors clock-range sessions
// to their event day when checking overlaps and may be nil.
func NewAgendaService(repo AgendaRepository, days *agenda.DayCalendar, publisher ChangePublisher, now func() time.Time, logger *slog.Logger) *AgendaService {
	if now == nil {
		now = time.Now
	}
	return &AgendaService{repo: repo, days: days, publisher: publisher, now: now, logger: defaultLogger(logger)}
}

// List returns the sessions of an event ordered by time then id.
func (s *AgendaService) List(ctx context.Context, eventID string) ([]agenda.Item, error) {
	if s == nil {
		return nil, fmt.Errorf("AgendaService is nil")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		vErr := &ValidationError{}
		vErr.add("eventId", "eventId is required")
		return nil, vErr
	}
	return s.repo.ListAgenda(ctx, eventID)
}

// Import replaces the agenda of an event wholesale. Administrators only.
func (s *AgendaService) Import(ctx context.Context, principal Principal, eventID string, items []agenda.Item) (result ImportResult, err error) {
	if s == nil {
		return ImportResult{}, fmt.Errorf("AgendaService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "AgendaService", "Import", "event_id", eventID, "items", len(items))
	defer func() { logOutcome(ctx, logger, err, "agenda imported", "warnings", len(result.Warnings)) }()

	if !principal.IsAdmin {
		return ImportResult{}, ErrUnauthorized
	}
	eventID = strings.TrimSpace(eventID)
	normalized, slots, vErr := s.normalizeItems(eventID, items)
	if err = vErr.orNil(); err != nil {
		return ImportResult{}, err
	}

	if err = s.repo.ReplaceAgenda(ctx, eventID, normalized); err != nil {
		return ImportResult{}, err
	}

	result = ImportResult{EventID: eventID, Imported: len(normalized), Warnings: scheduler.DetectOverlaps(slots)}
	if result.Warnings == nil {
		result.Warnings = []scheduler.Conflict{}
	}
	if s.publisher != nil {
		if perr := s.publisher.Publish(ctx, realtime.Change{
			Table:      realtime.TableAgendaItems,
			Type:       realtime.ChangeUpdate,
			RecordID:   eventID,
			OccurredAt: s.now(),
		}); perr != nil {
			logger.WarnContext(ctx, "change not published", "error", perr)
		}
	}
	return result, nil
}

func (s *AgendaService) normalizeItems(eventID string, items []agenda.Item) ([]agenda.Item, []scheduler.Slot, *ValidationError) {
	vErr := &ValidationError{}
	if eventID == "" {
		vErr.add("eventId", "eventId is required")
	}
	ref := s.now()
	seen := make(map[string]struct{}, len(items))
	normalized := make([]agenda.Item, 0, len(items))
	slots := make([]scheduler.Slot, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		item.ID = strings.TrimSpace(item.ID)
		item.Title = strings.TrimSpace(item.Title)
		item.EventID = eventID
		item.Type = agenda.ItemType(strings.ToLower(strings.TrimSpace(string(item.Type))))

		if item.ID == "" {
			vErr.add(field+".id", "id is required")
		} else if _, dup := seen[item.ID]; dup {
			vErr.add(field+".id", "id is duplicated")
		}
		seen[item.ID] = struct{}{}
		if item.Title == "" {
			vErr.add(field+".title", "title is required")
		}
		if !item.Type.Valid() {
			vErr.add(field+".type", "type must be keynote, panel, break, meal or registration")
		}
		if item.DurationMinutes != nil && *item.DurationMinutes <= 0 {
			vErr.add(field+".duration_minutes", "duration_minutes must be positive")
		}
		window, ok := agenda.ResolveWindow(item, ref, s.days)
		switch {
		case !ok && agenda.IsClockRange(item.Time):
			vErr.add(field+".time", "time range must not end before it starts")
		case !ok:
			vErr.add(field+".time", "time must be an ISO-8601 instant or an HH:MM - HH:MM range")
		default:
			slots = append(slots, scheduler.Slot{
				ID:       item.ID,
				Location: item.Location,
				Speakers: item.Speakers,
				Start:    window.Start,
				End:      window.End,
			})
		}
		normalized = append(normalized, item)
	}
	return normalized, slots, vErr
}

// SetStatus bookmarks a session for the principal.
func (s *AgendaService) SetStatus(ctx context.Context, principal Principal, itemID string, status AgendaStatusValue, favorite bool) (stored AgendaStatus, err error) {
	if s == nil {
		return AgendaStatus{}, fmt.Errorf("AgendaService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "AgendaService", "SetStatus", "user_id", principal.UserID, "item_id", itemID)
	defer func() { logOutcome(ctx, logger, err, "agenda status saved", "status", stored.Status) }()

	if principal.UserID == "" {
		return AgendaStatus{}, ErrUnauthorized
	}
	vErr := &ValidationError{}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		vErr.add("item_id", "item_id is required")
	}
	if status != AgendaTentative && status != AgendaConfirmed {
		vErr.add("status", "status must be tentative or confirmed")
	}
	if err = vErr.orNil(); err != nil {
		return AgendaStatus{}, err
	}
	return s.repo.UpsertAgendaStatus(ctx, AgendaStatus{
		UserID:       principal.UserID,
		AgendaItemID: itemID,
		Status:       status,
		IsFavorite:   favorite,
		UpdatedAt:    s.now(),
	})
}

// ListStatus returns the principal's bookmarks.
func (s *AgendaService) ListStatus(ctx context.Context, principal Principal) ([]AgendaStatus, error) {
	if s == nil {
		return nil, fmt.Errorf("AgendaService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	return s.repo.ListAgendaStatus(ctx, principal.UserID)
}
