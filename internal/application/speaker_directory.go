package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultSpeakerLookupTimeout bounds a store lookup before the static
	// directory is consulted.
	DefaultSpeakerLookupTimeout = 5 * time.Second
	// OnlineWindow is how recently a speaker must have been seen to count as online.
	OnlineWindow = 5 * time.Minute
)

type staticSpeakerFile struct {
	Speakers []staticSpeaker `toml:"speakers"`
}

type staticSpeaker struct {
	ID       string `toml:"id"`
	Slug     string `toml:"slug"`
	Name     string `toml:"name"`
	Title    string `toml:"title"`
	Company  string `toml:"company"`
	Bio      string `toml:"bio"`
	ImageURL string `toml:"image_url"`
	Active   *bool  `toml:"active"`
}

// LoadStaticSpeakers reads a TOML speaker list:
//
//	[[speakers]]
//	id = "0192..."
//	slug = "ana-lopez"
//	name = "Ana López"
func LoadStaticSpeakers(r io.Reader) ([]Speaker, error) {
	var file staticSpeakerFile
	if err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode speaker file: %w", err)
	}
	speakers := make([]Speaker, 0, len(file.Speakers))
	for i, s := range file.Speakers {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("speaker %d: id and name are required", i+1)
		}
		slug := Slugify(s.Slug)
		if slug == "" {
			slug = Slugify(s.Name)
		}
		speakers = append(speakers, Speaker{
			ID:       s.ID,
			Slug:     slug,
			Name:     s.Name,
			Title:    optional(s.Title),
			Company:  optional(s.Company),
			Bio:      optional(s.Bio),
			ImageURL: optional(s.ImageURL),
			IsActive: s.Active == nil || *s.Active,
			Static:   true,
		})
	}
	return speakers, nil
}

// SpeakerDirectory looks speakers up by id or slug. When the store is slow
// or failing it answers from a static list instead.
type SpeakerDirectory struct {
	store   SpeakerRepository
	static  map[string]Speaker
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewSpeakerDirectory wires the directory. static may be empty.
func NewSpeakerDirectory(store SpeakerRepository, static []Speaker, timeout time.Duration, now func() time.Time, logger *slog.Logger) *SpeakerDirectory {
	if timeout <= 0 {
		timeout = DefaultSpeakerLookupTimeout
	}
	if now == nil {
		now = time.Now
	}
	index := make(map[string]Speaker, len(static)*2)
	for _, s := range static {
		index[s.ID] = s
		index[s.Slug] = s
	}
	return &SpeakerDirectory{store: store, static: index, timeout: timeout, now: now, logger: defaultLogger(logger)}
}

// Lookup resolves idOrSlug. Values that parse as UUIDs are looked up by id,
// everything else by slug.
func (d *SpeakerDirectory) Lookup(ctx context.Context, idOrSlug string) (Speaker, error) {
	if d == nil {
		return Speaker{}, fmt.Errorf("SpeakerDirectory is nil")
	}
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return Speaker{}, ErrNotFound
	}

	speaker, err := d.fromStore(ctx, key)
	if err == nil {
		return speaker, nil
	}
	if errors.Is(err, ErrNotFound) {
		return Speaker{}, ErrNotFound
	}

	logger := serviceLogger(ctx, d.logger, "SpeakerDirectory", "Lookup", "key", key)
	if static, ok := d.static[key]; ok {
		logger.WarnContext(ctx, "speaker store unavailable, serving static profile", "error", err, "error_kind", ErrorKind(err))
		return static, nil
	}
	if static, ok := d.static[Slugify(key)]; ok {
		logger.WarnContext(ctx, "speaker store unavailable, serving static profile", "error", err, "error_kind", ErrorKind(err))
		return static, nil
	}
	logger.ErrorContext(ctx, "speaker lookup failed", "error", err, "error_kind", ErrorKind(err))
	return Speaker{}, err
}

func (d *SpeakerDirectory) fromStore(ctx context.Context, key string) (Speaker, error) {
	if d.store == nil {
		return Speaker{}, errors.New("speaker store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type result struct {
		speaker Speaker
		err     error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		if _, perr := uuid.Parse(key); perr == nil {
			r.speaker, r.err = d.store.GetSpeaker(ctx, key)
		} else {
			r.speaker, r.err = d.store.GetSpeakerBySlug(ctx, Slugify(key))
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.speaker, r.err
	case <-ctx.Done():
		return Speaker{}, fmt.Errorf("speaker lookup: %w", ctx.Err())
	}
}

// IsActive reports whether the speaker exists and accepts requests.
func (d *SpeakerDirectory) IsActive(ctx context.Context, idOrSlug string) (bool, error) {
	speaker, err := d.Lookup(ctx, idOrSlug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return speaker.IsActive, nil
}

// IsOnline reports whether the speaker was seen within OnlineWindow.
func (d *SpeakerDirectory) IsOnline(ctx context.Context, idOrSlug string) (bool, error) {
	speaker, err := d.Lookup(ctx, idOrSlug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return speaker.LastSeenAt != nil && d.now().Sub(*speaker.LastSeenAt) <= OnlineWindow, nil
}

// Touch records that the speaker is present. Non-speakers are ignored.
func (d *SpeakerDirectory) Touch(ctx context.Context, userID string) error {
	if d == nil || d.store == nil {
		return nil
	}
	err := d.store.TouchSpeaker(ctx, userID, d.now())
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
