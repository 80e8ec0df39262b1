package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/conference-companion/internal/persistence"
)

// MeetingRequestRepository implements persistence.MeetingRequestRepository
// using SQLite. Every status change is a conditional update on the expected
// current status so concurrent transitions cannot both succeed.
type MeetingRequestRepository struct {
	base
}

// NewMeetingRequestRepository creates a new SQLite meeting request repository.
func NewMeetingRequestRepository(pool *ConnectionPool) *MeetingRequestRepository {
	return &MeetingRequestRepository{base: newBase(pool)}
}

const meetingRequestColumns = `id, requester_id, speaker_id, status, requester_ticket_type, message, note,
	speaker_notes, decline_reason, boost_amount, duration_minutes, created_at, updated_at, expires_at, speaker_response_at`

// CreateMeetingRequest inserts a request. A second pending request for the
// same requester and speaker fails with persistence.ErrDuplicate.
func (r *MeetingRequestRepository) CreateMeetingRequest(ctx context.Context, req persistence.MeetingRequest) error {
	if req.ID == "" || req.RequesterID == "" || req.SpeakerID == "" {
		return persistence.ErrConstraintViolation
	}
	req.CreatedAt = stamp(req.CreatedAt)
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO meeting_requests (`+meetingRequestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.RequesterID,
		req.SpeakerID,
		req.Status,
		req.RequesterTicketType,
		nullString(req.Message),
		nullString(req.Note),
		nullString(req.SpeakerNotes),
		nullString(req.DeclineReason),
		req.BoostAmount,
		req.DurationMinutes,
		formatTime(req.CreatedAt),
		formatTime(req.UpdatedAt),
		formatTime(req.ExpiresAt),
		nullTime(req.SpeakerResponseAt),
	)
	return r.mapper.MapError(err)
}

// GetMeetingRequest retrieves a request by ID.
func (r *MeetingRequestRepository) GetMeetingRequest(ctx context.Context, id string) (persistence.MeetingRequest, error) {
	req, err := scanMeetingRequest(r.helper.QueryRow(ctx,
		`SELECT `+meetingRequestColumns+` FROM meeting_requests WHERE id = ?`, id))
	if err != nil {
		return persistence.MeetingRequest{}, r.mapper.MapError(err)
	}
	return req, nil
}

// ListMeetingRequests returns matching requests, newest first.
func (r *MeetingRequestRepository) ListMeetingRequests(ctx context.Context, filter persistence.MeetingRequestFilter) ([]persistence.MeetingRequest, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.RequesterID != "" {
		conditions = append(conditions, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.SpeakerID != "" {
		conditions = append(conditions, "speaker_id = ?")
		args = append(args, filter.SpeakerID)
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}
	query := `SELECT ` + meetingRequestColumns + ` FROM meeting_requests`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()
	return collectMeetingRequests(rows, r.mapper)
}

// HasPendingRequest reports whether the pair already has an open request.
func (r *MeetingRequestRepository) HasPendingRequest(ctx context.Context, requesterID, speakerID string) (bool, error) {
	var exists bool
	err := r.helper.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM meeting_requests
			WHERE requester_id = ? AND speaker_id = ? AND status = 'pending'
		)`, requesterID, speakerID).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists, nil
}

// TransitionMeetingRequest moves a request from change.From to change.To.
// It returns persistence.ErrNotFound for unknown ids and
// persistence.ErrStateConflict when the request is no longer in change.From.
func (r *MeetingRequestRepository) TransitionMeetingRequest(ctx context.Context, change persistence.StatusChange) (persistence.MeetingRequest, error) {
	var updated persistence.MeetingRequest
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var responseAt sql.NullString
		if change.SetResponseAt {
			responseAt = sql.NullString{String: formatTime(change.At), Valid: true}
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE meeting_requests
			SET status = ?,
				updated_at = ?,
				decline_reason = COALESCE(?, decline_reason),
				speaker_response_at = COALESCE(?, speaker_response_at)
			WHERE id = ? AND status = ?`,
			change.To, formatTime(change.At), nullString(change.DeclineReason), responseAt, change.ID, change.From)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := r.checkTransition(ctx, tx, result, change.ID); err != nil {
			return err
		}
		updated, err = scanMeetingRequest(tx.QueryRowContext(ctx,
			`SELECT `+meetingRequestColumns+` FROM meeting_requests WHERE id = ?`, change.ID))
		return r.mapper.MapError(err)
	})
	if err != nil {
		return persistence.MeetingRequest{}, err
	}
	return updated, nil
}

// AcceptMeetingRequest marks a pending, unexpired request accepted and
// creates its meeting in the same transaction. The meeting's participants and
// duration are taken from the stored request.
func (r *MeetingRequestRepository) AcceptMeetingRequest(ctx context.Context, id string, speakerNotes *string, meeting persistence.Meeting, at time.Time) (persistence.MeetingRequest, persistence.Meeting, error) {
	var accepted persistence.MeetingRequest
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		stamped := formatTime(at)
		result, err := tx.ExecContext(ctx, `
			UPDATE meeting_requests
			SET status = 'accepted',
				speaker_notes = COALESCE(?, speaker_notes),
				speaker_response_at = ?,
				updated_at = ?
			WHERE id = ? AND status = 'pending' AND expires_at > ?`,
			nullString(speakerNotes), stamped, stamped, id, stamped)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := r.checkTransition(ctx, tx, result, id); err != nil {
			return err
		}

		accepted, err = scanMeetingRequest(tx.QueryRowContext(ctx,
			`SELECT `+meetingRequestColumns+` FROM meeting_requests WHERE id = ?`, id))
		if err != nil {
			return r.mapper.MapError(err)
		}

		meeting.MeetingRequestID = accepted.ID
		meeting.RequesterID = accepted.RequesterID
		meeting.SpeakerID = accepted.SpeakerID
		meeting.DurationMinutes = accepted.DurationMinutes
		if meeting.Status == "" {
			meeting.Status = "scheduled"
		}
		if meeting.CreatedAt.IsZero() {
			meeting.CreatedAt = at
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO meetings (id, meeting_request_id, requester_id, speaker_id, status, duration_minutes, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			meeting.ID, meeting.MeetingRequestID, meeting.RequesterID, meeting.SpeakerID, meeting.Status,
			meeting.DurationMinutes, nullString(meeting.Notes), formatTime(meeting.CreatedAt))
		return r.mapper.MapError(err)
	})
	if err != nil {
		return persistence.MeetingRequest{}, persistence.Meeting{}, err
	}
	meeting.CreatedAt = meeting.CreatedAt.UTC()
	return accepted, meeting, nil
}

// ExpirePendingRequests moves every pending request whose expiry is at or
// before now to expired and returns the expired rows.
func (r *MeetingRequestRepository) ExpirePendingRequests(ctx context.Context, now time.Time) ([]persistence.MeetingRequest, error) {
	var expired []persistence.MeetingRequest
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		stamped := formatTime(now)
		rows, err := tx.QueryContext(ctx, `
			SELECT `+meetingRequestColumns+` FROM meeting_requests
			WHERE status = 'pending' AND expires_at <= ?
			ORDER BY expires_at, id`, stamped)
		if err != nil {
			return r.mapper.MapError(err)
		}
		expired, err = collectMeetingRequests(rows, r.mapper)
		rows.Close()
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE meeting_requests SET status = 'expired', updated_at = ?
			WHERE status = 'pending' AND expires_at <= ?`, stamped, stamped); err != nil {
			return r.mapper.MapError(err)
		}
		for i := range expired {
			expired[i].Status = "expired"
			expired[i].UpdatedAt = now.UTC()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// CountRequestsByRequester counts every request the user ever created.
func (r *MeetingRequestRepository) CountRequestsByRequester(ctx context.Context, requesterID string) (persistence.RequestCounts, error) {
	var (
		counts persistence.RequestCounts
		last   sql.NullString
	)
	err := r.helper.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'declined' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END), 0),
			MAX(created_at)
		FROM meeting_requests WHERE requester_id = ?`, requesterID).
		Scan(&counts.Total, &counts.Pending, &counts.Accepted, &counts.Declined, &counts.Cancelled, &counts.Expired, &last)
	if err != nil {
		return persistence.RequestCounts{}, r.mapper.MapError(err)
	}
	if counts.LastCreatedAt, err = parseNullTime(last); err != nil {
		return persistence.RequestCounts{}, err
	}
	return counts, nil
}

// SpeakerRequestStats aggregates the requests addressed to a speaker.
func (r *MeetingRequestRepository) SpeakerRequestStats(ctx context.Context, speakerID string) (persistence.SpeakerStats, error) {
	var stats persistence.SpeakerStats
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT status, created_at, speaker_response_at FROM meeting_requests WHERE speaker_id = ?`, speakerID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer rows.Close()

		var (
			responded int
			total     time.Duration
		)
		for rows.Next() {
			var (
				status, createdAt string
				respondedAt       sql.NullString
			)
			if err := rows.Scan(&status, &createdAt, &respondedAt); err != nil {
				return r.mapper.MapError(err)
			}
			switch status {
			case "pending":
				stats.Pending++
			case "accepted":
				stats.Accepted++
			case "declined":
				stats.Declined++
			}
			at, err := parseNullTime(respondedAt)
			if err != nil || at == nil {
				continue
			}
			created, err := parseTime(createdAt)
			if err != nil {
				continue
			}
			responded++
			total += at.Sub(created)
		}
		if err := rows.Err(); err != nil {
			return r.mapper.MapError(err)
		}
		if responded > 0 {
			stats.AverageResponseHours = total.Hours() / float64(responded)
		}
		return nil
	})
	if err != nil {
		return persistence.SpeakerStats{}, err
	}
	return stats, nil
}

// checkTransition distinguishes a missing request from one in another state
// after a conditional update touched no rows.
func (r *MeetingRequestRepository) checkTransition(ctx context.Context, tx *sql.Tx, result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM meeting_requests WHERE id = ?)`, id).Scan(&exists); err != nil {
		return r.mapper.MapError(err)
	}
	if !exists {
		return persistence.ErrNotFound
	}
	return persistence.ErrStateConflict
}

func collectMeetingRequests(rows *sql.Rows, mapper *ErrorMapper) ([]persistence.MeetingRequest, error) {
	var requests []persistence.MeetingRequest
	for rows.Next() {
		req, err := scanMeetingRequest(rows)
		if err != nil {
			return nil, mapper.MapError(err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, mapper.MapError(err)
	}
	return requests, nil
}

func scanMeetingRequest(row rowScanner) (persistence.MeetingRequest, error) {
	var (
		req                                        persistence.MeetingRequest
		message, note, speakerNotes, declineReason sql.NullString
		createdAt, updatedAt, expiresAt            string
		responseAt                                 sql.NullString
	)
	if err := row.Scan(
		&req.ID,
		&req.RequesterID,
		&req.SpeakerID,
		&req.Status,
		&req.RequesterTicketType,
		&message,
		&note,
		&speakerNotes,
		&declineReason,
		&req.BoostAmount,
		&req.DurationMinutes,
		&createdAt,
		&updatedAt,
		&expiresAt,
		&responseAt,
	); err != nil {
		return persistence.MeetingRequest{}, err
	}
	req.Message, req.Note = stringPtr(message), stringPtr(note)
	req.SpeakerNotes, req.DeclineReason = stringPtr(speakerNotes), stringPtr(declineReason)

	var err error
	if req.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.MeetingRequest{}, err
	}
	if req.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.MeetingRequest{}, err
	}
	if req.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.MeetingRequest{}, err
	}
	if req.SpeakerResponseAt, err = parseNullTime(responseAt); err != nil {
		return persistence.MeetingRequest{}, err
	}
	return req, nil
}
