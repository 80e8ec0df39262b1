package application

import (
	"context"
	"fmt"
	"log/slog"
)

// MeetingLister lists the meetings a user takes part in.
type MeetingLister interface {
	ListMeetingsForUser(ctx context.Context, userID string) ([]Meeting, error)
}

// NetworkingService summarises a user's networking activity.
type NetworkingService struct {
	counts   RequestCounter
	blocks   BlockRepository
	meetings MeetingLister
	logger   *slog.Logger
}

// NewNetworkingService wires the networking summary.
func NewNetworkingService(counts RequestCounter, blocks BlockRepository, meetings MeetingLister, logger *slog.Logger) *NetworkingService {
	return &NetworkingService{counts: counts, blocks: blocks, meetings: meetings, logger: defaultLogger(logger)}
}

// Stats returns the principal's request counts, blocked users and scheduled
// meetings.
func (s *NetworkingService) Stats(ctx context.Context, principal Principal) (stats NetworkingStats, err error) {
	if s == nil {
		return NetworkingStats{}, fmt.Errorf("NetworkingService is nil")
	}
	if principal.UserID == "" {
		return NetworkingStats{}, ErrUnauthorized
	}
	logger := serviceLogger(ctx, s.logger, "NetworkingService", "Stats", "user_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "networking stats unavailable", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	counts, err := s.counts.CountRequestsByRequester(ctx, principal.UserID)
	if err != nil {
		return NetworkingStats{}, err
	}
	stats = NetworkingStats{
		TotalRequests: counts.Total,
		Pending:       counts.Pending,
		Accepted:      counts.Accepted,
		Declined:      counts.Declined,
		Cancelled:     counts.Cancelled,
	}

	if s.blocks != nil {
		blocks, berr := s.blocks.ListBlocks(ctx, principal.UserID)
		if berr != nil {
			return NetworkingStats{}, berr
		}
		stats.BlockedUsers = len(blocks)
	}

	meetings, err := s.ListMeetings(ctx, principal)
	if err != nil {
		return NetworkingStats{}, err
	}
	for _, meeting := range meetings {
		if meeting.Status == "scheduled" {
			stats.ScheduledMeetings++
		}
	}
	return stats, nil
}

// ListMeetings returns the meetings the principal takes part in, as
// requester or as speaker.
func (s *NetworkingService) ListMeetings(ctx context.Context, principal Principal) ([]Meeting, error) {
	if s == nil {
		return nil, fmt.Errorf("NetworkingService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	if s.meetings == nil {
		return nil, nil
	}
	return s.meetings.ListMeetingsForUser(ctx, principal.UserID)
}
