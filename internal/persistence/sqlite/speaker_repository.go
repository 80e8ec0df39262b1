package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/conference-companion/internal/persistence"
)

// SpeakerRepository implements persistence.SpeakerRepository using SQLite.
type SpeakerRepository struct {
	base
}

// NewSpeakerRepository creates a new SQLite speaker repository.
func NewSpeakerRepository(pool *ConnectionPool) *SpeakerRepository {
	return &SpeakerRepository{base: newBase(pool)}
}

const speakerColumns = `id, slug, name, title, company, bio, image_url, is_active, last_seen_at, created_at, updated_at`

// UpsertSpeaker inserts or replaces the profile of a speaking user.
func (r *SpeakerRepository) UpsertSpeaker(ctx context.Context, speaker persistence.Speaker) error {
	if speaker.ID == "" || strings.TrimSpace(speaker.Slug) == "" {
		return persistence.ErrConstraintViolation
	}
	speaker.CreatedAt = stamp(speaker.CreatedAt)
	speaker.UpdatedAt = stamp(speaker.UpdatedAt)

	_, err := r.helper.Exec(ctx, `
		INSERT INTO speakers (`+speakerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			name = excluded.name,
			title = excluded.title,
			company = excluded.company,
			bio = excluded.bio,
			image_url = excluded.image_url,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		speaker.ID,
		strings.ToLower(strings.TrimSpace(speaker.Slug)),
		speaker.Name,
		nullString(speaker.Title),
		nullString(speaker.Company),
		nullString(speaker.Bio),
		nullString(speaker.ImageURL),
		speaker.IsActive,
		nullTime(speaker.LastSeenAt),
		formatTime(speaker.CreatedAt),
		formatTime(speaker.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetSpeaker retrieves a speaker by user ID.
func (r *SpeakerRepository) GetSpeaker(ctx context.Context, id string) (persistence.Speaker, error) {
	return r.getOne(ctx, `SELECT `+speakerColumns+` FROM speakers WHERE id = ?`, id)
}

// GetSpeakerBySlug retrieves a speaker by slug.
func (r *SpeakerRepository) GetSpeakerBySlug(ctx context.Context, slug string) (persistence.Speaker, error) {
	return r.getOne(ctx, `SELECT `+speakerColumns+` FROM speakers WHERE slug = ?`, strings.ToLower(strings.TrimSpace(slug)))
}

// TouchSpeaker records presence.
func (r *SpeakerRepository) TouchSpeaker(ctx context.Context, id string, seenAt time.Time) error {
	result, err := r.helper.Exec(ctx, `UPDATE speakers SET last_seen_at = ? WHERE id = ?`, formatTime(seenAt), id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireRow(result)
}

func (r *SpeakerRepository) getOne(ctx context.Context, query string, arg any) (persistence.Speaker, error) {
	var (
		s                          persistence.Speaker
		title, company, bio, image sql.NullString
		lastSeen                   sql.NullString
		createdAt, updatedAt       string
	)
	err := r.helper.QueryRow(ctx, query, arg).Scan(
		&s.ID, &s.Slug, &s.Name, &title, &company, &bio, &image, &s.IsActive, &lastSeen, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Speaker{}, r.mapper.MapError(err)
	}
	s.Title, s.Company, s.Bio, s.ImageURL = stringPtr(title), stringPtr(company), stringPtr(bio), stringPtr(image)
	if s.LastSeenAt, err = parseNullTime(lastSeen); err != nil {
		return persistence.Speaker{}, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Speaker{}, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Speaker{}, err
	}
	return s, nil
}

// requireRow turns an update that matched nothing into persistence.ErrNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
