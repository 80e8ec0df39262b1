package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/conference-companion/internal/persistence"
)

// AgendaRepository implements persistence.AgendaRepository using SQLite.
type AgendaRepository struct {
	base
}

// NewAgendaRepository creates a new SQLite agenda repository.
func NewAgendaRepository(pool *ConnectionPool) *AgendaRepository {
	return &AgendaRepository{base: newBase(pool)}
}

const agendaColumns = `id, event_id, position, title, description, location, speakers, time, type, duration_minutes, day, created_at`

// ReplaceAgenda makes items the complete agenda of the event. Items that keep
// their id are updated in place so user bookmarks on them survive.
func (r *AgendaRepository) ReplaceAgenda(ctx context.Context, eventID string, items []persistence.AgendaItem) error {
	if strings.TrimSpace(eventID) == "" {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		keep := make([]any, 0, len(items)+1)
		keep = append(keep, eventID)
		for _, item := range items {
			keep = append(keep, item.ID)
		}
		deleteQuery := `DELETE FROM agenda_items WHERE event_id = ?`
		if len(items) > 0 {
			deleteQuery += ` AND id NOT IN (` + placeholders(len(items)) + `)`
		}
		if _, err := tx.ExecContext(ctx, deleteQuery, keep...); err != nil {
			return r.mapper.MapError(err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO agenda_items (`+agendaColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				event_id = excluded.event_id,
				position = excluded.position,
				title = excluded.title,
				description = excluded.description,
				location = excluded.location,
				speakers = excluded.speakers,
				time = excluded.time,
				type = excluded.type,
				duration_minutes = excluded.duration_minutes,
				day = excluded.day`)
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer stmt.Close()

		for i, item := range items {
			if item.ID == "" {
				return fmt.Errorf("agenda item %d: %w", i, persistence.ErrConstraintViolation)
			}
			speakers, err := json.Marshal(nonNil(item.Speakers))
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				item.ID,
				eventID,
				i,
				item.Title,
				nullString(item.Description),
				nullString(item.Location),
				string(speakers),
				item.Time,
				item.Type,
				nullInt(item.DurationMinutes),
				nullString(item.Day),
				formatTime(stamp(item.CreatedAt)),
			); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// ListAgenda returns the event's sessions ordered by time then id.
func (r *AgendaRepository) ListAgenda(ctx context.Context, eventID string) ([]persistence.AgendaItem, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT `+agendaColumns+` FROM agenda_items WHERE event_id = ? ORDER BY time ASC, id ASC`, eventID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var items []persistence.AgendaItem
	for rows.Next() {
		var (
			item                       persistence.AgendaItem
			description, location, day sql.NullString
			speakers, createdAt        string
			duration                   sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.EventID, &item.Position, &item.Title, &description, &location,
			&speakers, &item.Time, &item.Type, &duration, &day, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		item.Description, item.Location, item.Day = stringPtr(description), stringPtr(location), stringPtr(day)
		item.DurationMinutes = intPtr(duration)
		if err := json.Unmarshal([]byte(speakers), &item.Speakers); err != nil {
			return nil, fmt.Errorf("agenda item %s speakers: %w", item.ID, err)
		}
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return items, nil
}

// UpsertAgendaStatus stores a user's status for a session and returns the
// stored row.
func (r *AgendaRepository) UpsertAgendaStatus(ctx context.Context, status persistence.UserAgendaStatus) (persistence.UserAgendaStatus, error) {
	status.CreatedAt = stamp(status.CreatedAt)
	status.UpdatedAt = stamp(status.UpdatedAt)
	_, err := r.helper.Exec(ctx, `
		INSERT INTO user_agenda_status (user_id, agenda_item_id, status, is_favorite, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, agenda_item_id) DO UPDATE SET
			status = excluded.status,
			is_favorite = excluded.is_favorite,
			updated_at = excluded.updated_at`,
		status.UserID, status.AgendaItemID, status.Status, status.IsFavorite,
		formatTime(status.CreatedAt), formatTime(status.UpdatedAt))
	if err != nil {
		return persistence.UserAgendaStatus{}, r.mapper.MapError(err)
	}

	stored, err := r.listStatus(ctx, `WHERE user_id = ? AND agenda_item_id = ?`, status.UserID, status.AgendaItemID)
	if err != nil {
		return persistence.UserAgendaStatus{}, err
	}
	if len(stored) == 0 {
		return persistence.UserAgendaStatus{}, persistence.ErrNotFound
	}
	return stored[0], nil
}

// ListAgendaStatus returns every status row of the user.
func (r *AgendaRepository) ListAgendaStatus(ctx context.Context, userID string) ([]persistence.UserAgendaStatus, error) {
	return r.listStatus(ctx, `WHERE user_id = ? ORDER BY agenda_item_id`, userID)
}

func (r *AgendaRepository) listStatus(ctx context.Context, where string, args ...any) ([]persistence.UserAgendaStatus, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT user_id, agenda_item_id, status, is_favorite, created_at, updated_at FROM user_agenda_status `+where, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var statuses []persistence.UserAgendaStatus
	for rows.Next() {
		var (
			s                    persistence.UserAgendaStatus
			createdAt, updatedAt string
		)
		if err := rows.Scan(&s.UserID, &s.AgendaItemID, &s.Status, &s.IsFavorite, &createdAt, &updatedAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, r.mapper.MapError(rows.Err())
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
