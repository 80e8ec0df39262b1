package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/conference-companion/internal/persistence"
)

// MeetingRepository implements persistence.MeetingRepository using SQLite.
type MeetingRepository struct {
	base
}

// NewMeetingRepository creates a new SQLite meeting repository.
func NewMeetingRepository(pool *ConnectionPool) *MeetingRepository {
	return &MeetingRepository{base: newBase(pool)}
}

// ListMeetingsForUser returns meetings the user takes part in, newest first.
func (r *MeetingRepository) ListMeetingsForUser(ctx context.Context, userID string) ([]persistence.Meeting, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, meeting_request_id, requester_id, speaker_id, status, duration_minutes, notes, created_at
		FROM meetings
		WHERE requester_id = ? OR speaker_id = ?
		ORDER BY created_at DESC, id DESC`, userID, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var meetings []persistence.Meeting
	for rows.Next() {
		var (
			m         persistence.Meeting
			notes     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.MeetingRequestID, &m.RequesterID, &m.SpeakerID, &m.Status,
			&m.DurationMinutes, &notes, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		m.Notes = stringPtr(notes)
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, r.mapper.MapError(rows.Err())
}

// AddChatMessage appends a message to a meeting thread. A nil SenderID marks
// a system message.
func (r *MeetingRepository) AddChatMessage(ctx context.Context, message persistence.ChatMessage) error {
	if message.ID == "" || message.MeetingID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO chat_messages (id, meeting_id, sender_id, body, message_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID, message.MeetingID, nullString(message.SenderID), message.Body, message.MessageType,
		formatTime(stamp(message.CreatedAt)))
	return r.mapper.MapError(err)
}

// ListChatMessages returns a meeting thread in posting order.
func (r *MeetingRepository) ListChatMessages(ctx context.Context, meetingID string) ([]persistence.ChatMessage, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, meeting_id, sender_id, body, message_type, created_at
		FROM chat_messages WHERE meeting_id = ?
		ORDER BY created_at ASC, id ASC`, meetingID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var messages []persistence.ChatMessage
	for rows.Next() {
		var (
			m         persistence.ChatMessage
			sender    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.MeetingID, &sender, &m.Body, &m.MessageType, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		m.SenderID = stringPtr(sender)
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, r.mapper.MapError(rows.Err())
}

// BlockRepository implements persistence.BlockRepository using SQLite.
type BlockRepository struct {
	base
}

// NewBlockRepository creates a new SQLite block repository.
func NewBlockRepository(pool *ConnectionPool) *BlockRepository {
	return &BlockRepository{base: newBase(pool)}
}

// ToggleBlock blocks blockedID when not yet blocked and unblocks otherwise.
// It reports whether the block is in place afterwards.
func (r *BlockRepository) ToggleBlock(ctx context.Context, blockerID, blockedID string, at time.Time) (bool, error) {
	var blocked bool
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE blocker_id = ? AND blocked_id = ?`, blockerID, blockedID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			blocked = false
			return nil
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO blocks (blocker_id, blocked_id, created_at) VALUES (?, ?, ?)`,
			blockerID, blockedID, formatTime(stamp(at))); err != nil {
			return r.mapper.MapError(err)
		}
		blocked = true
		return nil
	})
	return blocked, err
}

// IsBlocked reports whether blockerID blocked blockedID.
func (r *BlockRepository) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	var blocked bool
	err := r.helper.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocks WHERE blocker_id = ? AND blocked_id = ?)`, blockerID, blockedID).Scan(&blocked)
	return blocked, r.mapper.MapError(err)
}

// ListBlocks returns the users blocked by blockerID, most recent first.
func (r *BlockRepository) ListBlocks(ctx context.Context, blockerID string) ([]persistence.Block, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT blocker_id, blocked_id, created_at FROM blocks
		WHERE blocker_id = ? ORDER BY created_at DESC, blocked_id`, blockerID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var blocks []persistence.Block
	for rows.Next() {
		var (
			b         persistence.Block
			createdAt string
		)
		if err := rows.Scan(&b.BlockerID, &b.BlockedID, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, r.mapper.MapError(rows.Err())
}
