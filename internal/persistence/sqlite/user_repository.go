package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/conference-companion/internal/persistence"
)

// base carries the helpers every repository uses.
type base struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

func newBase(pool *ConnectionPool) base {
	return base{pool: pool, helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	base
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{base: newBase(pool)}
}

const userColumns = `id, email, display_name, password_hash, is_admin, is_speaker, disabled, created_at, updated_at`

// CreateUser inserts a new user. Emails are stored lower-cased.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	user.CreatedAt = stamp(user.CreatedAt)
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		normalizeEmail(user.Email),
		user.DisplayName,
		user.PasswordHash,
		user.IsAdmin,
		user.IsSpeaker,
		user.Disabled,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email address, case-insensitively.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	if strings.TrimSpace(email) == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
}

// ListUsers returns all users ordered by creation timestamp then ID
func (r *UserRepository) ListUsers(ctx context.Context) ([]persistence.User, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (persistence.User, error) {
	user, err := scanUser(r.helper.QueryRow(ctx, query, arg))
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                 persistence.User
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.IsSpeaker,
		&user.Disabled,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.User{}, err
	}
	var err error
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

// normalizeEmail normalizes email addresses for consistent storage and lookup
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PassRepository implements persistence.PassRepository using SQLite.
type PassRepository struct {
	base
}

// NewPassRepository creates a new SQLite pass repository.
func NewPassRepository(pool *ConnectionPool) *PassRepository {
	return &PassRepository{base: newBase(pool)}
}

// UpsertPass stores the pass. Storing an active pass revokes any other active
// pass of the same user in the same transaction.
func (r *PassRepository) UpsertPass(ctx context.Context, pass persistence.Pass) error {
	if pass.ID == "" || pass.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	pass.CreatedAt = stamp(pass.CreatedAt)
	pass.UpdatedAt = stamp(pass.UpdatedAt)

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if pass.Status == "active" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE passes SET status = 'revoked', updated_at = ? WHERE user_id = ? AND status = 'active' AND id <> ?`,
				formatTime(pass.UpdatedAt), pass.UserID, pass.ID); err != nil {
				return r.mapper.MapError(err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO passes (id, user_id, tier, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET tier = excluded.tier, status = excluded.status, updated_at = excluded.updated_at`,
			pass.ID, pass.UserID, pass.Tier, pass.Status, formatTime(pass.CreatedAt), formatTime(pass.UpdatedAt))
		return r.mapper.MapError(err)
	})
}

// GetActivePass returns the user's active pass or persistence.ErrNotFound.
func (r *PassRepository) GetActivePass(ctx context.Context, userID string) (persistence.Pass, error) {
	var (
		pass                 persistence.Pass
		createdAt, updatedAt string
	)
	err := r.helper.QueryRow(ctx, `
		SELECT id, user_id, tier, status, created_at, updated_at
		FROM passes WHERE user_id = ? AND status = 'active'`, userID).
		Scan(&pass.ID, &pass.UserID, &pass.Tier, &pass.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Pass{}, persistence.ErrNotFound
		}
		return persistence.Pass{}, r.mapper.MapError(err)
	}
	if pass.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Pass{}, err
	}
	if pass.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Pass{}, fmt.Errorf("pass %s: %w", pass.ID, err)
	}
	return pass, nil
}
