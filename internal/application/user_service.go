package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user User, passwordHash string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// PassRepository stores ticket passes.
type PassRepository interface {
	SavePass(ctx context.Context, pass Pass) error
	GetActivePass(ctx context.Context, userID string) (Pass, error)
}

// SpeakerRepository stores speaker profiles.
type SpeakerRepository interface {
	SaveSpeaker(ctx context.Context, speaker Speaker) error
	GetSpeaker(ctx context.Context, id string) (Speaker, error)
	GetSpeakerBySlug(ctx context.Context, slug string) (Speaker, error)
	TouchSpeaker(ctx context.Context, id string, at time.Time) error
}

// UserService creates accounts together with their pass and speaker profile.
type UserService struct {
	users       UserRepository
	passes      PassRepository
	speakers    SpeakerRepository
	hash        PasswordHasher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, passes PassRepository, speakers SpeakerRepository, hash PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if hash == nil {
		hash = HashPassword
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:       users,
		passes:      passes,
		speakers:    speakers,
		hash:        hash,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateUser validates input and creates the account for administrators.
func (s *UserService) CreateUser(ctx context.Context, params CreateUserParams) (user User, err error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "UserService", "CreateUser", "principal_id", params.Principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "user created", "user_id", user.ID) }()

	if !params.Principal.IsAdmin {
		return User{}, ErrUnauthorized
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}

	input := normalizeUserInput(params.Input)
	if err = validateUserInput(input).orNil(); err != nil {
		return User{}, err
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user, err = s.users.CreateUser(ctx, User{
		ID:          s.idGenerator(),
		Email:       input.Email,
		DisplayName: input.DisplayName,
		IsAdmin:     input.IsAdmin,
		IsSpeaker:   input.IsSpeaker,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, hash)
	if err != nil {
		return User{}, err
	}

	if s.passes != nil {
		if err = s.passes.SavePass(ctx, Pass{
			ID:        s.idGenerator(),
			UserID:    user.ID,
			Tier:      input.Tier,
			Status:    "active",
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return User{}, fmt.Errorf("save pass: %w", err)
		}
	}

	if input.IsSpeaker && s.speakers != nil {
		if err = s.speakers.SaveSpeaker(ctx, Speaker{
			ID:       user.ID,
			Slug:     input.SpeakerSlug,
			Name:     input.DisplayName,
			IsActive: true,
		}); err != nil {
			return User{}, fmt.Errorf("save speaker profile: %w", err)
		}
	}
	return user, nil
}

// GetUser returns an account to its owner or an administrator.
func (s *UserService) GetUser(ctx context.Context, principal Principal, id string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if !principal.IsAdmin && principal.UserID != id {
		return User{}, ErrUnauthorized
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// ListUsers returns all users for administrators ordered by email.
func (s *UserService) ListUsers(ctx context.Context, principal Principal) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if !principal.IsAdmin {
		return nil, ErrUnauthorized
	}
	if s.users == nil {
		return nil, nil
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]User, len(users))
	copy(out, users)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Email == out[j].Email {
			return out[i].ID < out[j].ID
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func normalizeUserInput(input UserInput) UserInput {
	out := input
	out.Email = strings.ToLower(strings.TrimSpace(input.Email))
	out.DisplayName = strings.TrimSpace(input.DisplayName)
	if out.Tier == "" {
		out.Tier = TierGeneral
	}
	out.Tier = PassTier(strings.ToLower(string(out.Tier)))
	if out.IsSpeaker {
		slug := Slugify(input.SpeakerSlug)
		if slug == "" {
			slug = Slugify(out.DisplayName)
		}
		out.SpeakerSlug = slug
	}
	return out
}

func validateUserInput(input UserInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Email == "" {
		vErr.add("email", "email is required")
	} else if _, err := mail.ParseAddress(input.Email); err != nil {
		vErr.add("email", "email is invalid")
	}
	if input.DisplayName == "" {
		vErr.add("display_name", "display name is required")
	} else if utf8.RuneCountInString(input.DisplayName) > 100 {
		vErr.add("display_name", "display name must be at most 100 characters")
	}
	if utf8.RuneCountInString(input.Password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if !input.Tier.Valid() {
		vErr.add("tier", "tier must be general, business or vip")
	}
	if input.IsSpeaker && input.SpeakerSlug == "" {
		vErr.add("speaker_slug", "speaker slug could not be derived")
	}
	return vErr
}
