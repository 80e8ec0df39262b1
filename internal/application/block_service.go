package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/conference-companion/internal/realtime"
)

// BlockRepository stores user blocks.
type BlockRepository interface {
	BlockChecker
	ToggleBlock(ctx context.Context, blockerID, blockedID string, at time.Time) (bool, error)
	ListBlocks(ctx context.Context, blockerID string) ([]Block, error)
}

// BlockService lets users stop receiving meeting requests from others.
type BlockService struct {
	blocks    BlockRepository
	users     UserLookup
	publisher ChangePublisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewBlockService wires the block service. users and publisher may be nil.
func NewBlockService(blocks BlockRepository, users UserLookup, publisher ChangePublisher, now func() time.Time, logger *slog.Logger) *BlockService {
	if now == nil {
		now = time.Now
	}
	return &BlockService{blocks: blocks, users: users, publisher: publisher, now: now, logger: defaultLogger(logger)}
}

// Toggle blocks targetID for the principal, or lifts an existing block. It
// reports whether the target is blocked afterwards.
func (s *BlockService) Toggle(ctx context.Context, principal Principal, targetID string) (blocked bool, err error) {
	if s == nil {
		return false, fmt.Errorf("BlockService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "BlockService", "Toggle", "user_id", principal.UserID, "target_id", targetID)
	defer func() { logOutcome(ctx, logger, err, "block toggled", "blocked", blocked) }()

	if principal.UserID == "" {
		return false, ErrUnauthorized
	}
	targetID = strings.TrimSpace(targetID)
	vErr := &ValidationError{}
	if _, perr := uuid.Parse(targetID); perr != nil {
		vErr.add("user_id", "user_id must be a UUID")
	} else if targetID == principal.UserID {
		vErr.add("user_id", "you cannot block yourself")
	}
	if err = vErr.orNil(); err != nil {
		return false, err
	}
	if s.users != nil {
		if _, err = s.users.GetUser(ctx, targetID); err != nil {
			return false, err
		}
	}

	now := s.now()
	if blocked, err = s.blocks.ToggleBlock(ctx, principal.UserID, targetID, now); err != nil {
		return false, err
	}

	if s.publisher != nil {
		kind := realtime.ChangeDelete
		if blocked {
			kind = realtime.ChangeInsert
		}
		if perr := s.publisher.Publish(ctx, realtime.Change{
			Table:      realtime.TableBlocks,
			Type:       kind,
			RecordID:   principal.UserID + ":" + targetID,
			UserID:     principal.UserID,
			OccurredAt: now,
		}); perr != nil {
			logger.WarnContext(ctx, "change not published", "error", perr)
		}
	}
	return blocked, nil
}

// List returns the users blocked by the principal.
func (s *BlockService) List(ctx context.Context, principal Principal) ([]Block, error) {
	if s == nil {
		return nil, fmt.Errorf("BlockService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	return s.blocks.ListBlocks(ctx, principal.UserID)
}
