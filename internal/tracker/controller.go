package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/conference-companion/internal/client"
)

// MeetingRequestAPI is the part of the API the controller drives.
type MeetingRequestAPI interface {
	LimitsSource
	MeetingRequests(ctx context.Context, role client.Role, statuses ...string) ([]client.MeetingRequest, error)
	CreateMeetingRequest(ctx context.Context, params client.NewMeetingRequest) (client.MeetingRequest, error)
	CancelMeetingRequest(ctx context.Context, id string) (client.MeetingRequest, error)
	AcceptMeetingRequest(ctx context.Context, id, notes string) (client.Acceptance, error)
	DeclineMeetingRequest(ctx context.Context, id, reason string) (client.MeetingRequest, error)
}

// Identity is the signed-in user the controller acts for.
type Identity struct {
	UserID string
	Role   client.Role
}

// Controller runs the meeting request lifecycle. After every transition it
// reloads the request list and the quota and bumps PassDisplayVersion so
// dependent views re-render.
type Controller struct {
	api    MeetingRequestAPI
	quota  *QuotaTracker
	board  *RequestBoard
	now    func() time.Time
	logger *slog.Logger

	mu       sync.RWMutex
	identity Identity

	passVersion atomic.Int64
	provisional atomic.Int64
}

func NewController(api MeetingRequestAPI, quota *QuotaTracker, board *RequestBoard, now func() time.Time, logger *slog.Logger) *Controller {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if quota == nil {
		quota = NewQuotaTracker(api, logger)
	}
	if board == nil {
		board = NewRequestBoard()
	}
	return &Controller{api: api, quota: quota, board: board, now: now, logger: logger.With("component", "tracker.controller")}
}

// Board returns the request list the controller maintains.
func (c *Controller) Board() *RequestBoard { return c.board }

// Quota returns the quota tracker.
func (c *Controller) Quota() *QuotaTracker { return c.quota }

// PassDisplayVersion increases after every transition and identity change.
func (c *Controller) PassDisplayVersion() int64 {
	return c.passVersion.Load()
}

// Identity returns the current identity.
func (c *Controller) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// SetIdentity switches the signed-in user, drops all local state and
// reloads it.
func (c *Controller) SetIdentity(ctx context.Context, identity Identity) error {
	if identity.Role == "" {
		identity.Role = client.RoleRequester
	}
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	c.board.Clear()
	c.quota.Reset()
	return c.Refresh(ctx)
}

// Refresh reloads the request list and the quota.
func (c *Controller) Refresh(ctx context.Context) error {
	identity := c.Identity()
	var errs []string
	requests, err := c.api.MeetingRequests(ctx, identity.Role)
	if err != nil {
		c.logger.WarnContext(ctx, "request list refresh failed", "error", err)
		errs = append(errs, "requests: "+err.Error())
	} else {
		c.board.ReplaceAll(requests)
	}
	if _, err := c.quota.Refresh(ctx); err != nil {
		errs = append(errs, "limits: "+err.Error())
	}
	c.passVersion.Add(1)
	if len(errs) > 0 {
		return fmt.Errorf("refresh: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Create sends a request to a speaker. It is refused locally when the quota
// does not allow it; the server may still reject it.
func (c *Controller) Create(ctx context.Context, params client.NewMeetingRequest) (client.MeetingRequest, error) {
	now := c.now()
	if !c.quota.CanSend(now) {
		return client.MeetingRequest{}, client.ErrLimitUnavailable
	}
	identity := c.Identity()
	provisional := client.MeetingRequest{
		ID:              fmt.Sprintf("provisional-%d", c.provisional.Add(1)),
		RequesterID:     identity.UserID,
		SpeakerID:       params.SpeakerID,
		Status:          "pending",
		DurationMinutes: params.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if params.Message != "" {
		provisional.Message = &params.Message
	}
	c.board.AddProvisional(provisional)

	created, err := c.api.CreateMeetingRequest(ctx, params)
	if err != nil {
		c.board.DropProvisional(identity.UserID, params.SpeakerID)
		c.logger.WarnContext(ctx, "meeting request rejected", "speaker_id", params.SpeakerID, "error", err)
		c.afterTransition(ctx, "create")
		return client.MeetingRequest{}, err
	}
	c.board.Upsert(created)
	c.afterTransition(ctx, "create")
	return created, nil
}

// Cancel withdraws a pending request. The quota is not given back.
func (c *Controller) Cancel(ctx context.Context, id string) (client.MeetingRequest, error) {
	return c.transition(ctx, "cancel", func() (client.MeetingRequest, error) {
		return c.api.CancelMeetingRequest(ctx, id)
	})
}

// Accept accepts a request addressed to the signed-in speaker.
func (c *Controller) Accept(ctx context.Context, id, notes string) (client.Acceptance, error) {
	var acceptance client.Acceptance
	_, err := c.transition(ctx, "accept", func() (client.MeetingRequest, error) {
		var err error
		acceptance, err = c.api.AcceptMeetingRequest(ctx, id, notes)
		return acceptance.Request, err
	})
	return acceptance, err
}

// Decline declines a request addressed to the signed-in speaker.
func (c *Controller) Decline(ctx context.Context, id, reason string) (client.MeetingRequest, error) {
	return c.transition(ctx, "decline", func() (client.MeetingRequest, error) {
		return c.api.DeclineMeetingRequest(ctx, id, reason)
	})
}

func (c *Controller) transition(ctx context.Context, operation string, call func() (client.MeetingRequest, error)) (client.MeetingRequest, error) {
	updated, err := call()
	if err != nil {
		c.logger.WarnContext(ctx, "meeting request transition failed", "operation", operation, "error", err)
		c.afterTransition(ctx, operation)
		return client.MeetingRequest{}, err
	}
	c.board.Upsert(updated)
	c.afterTransition(ctx, operation)
	return updated, nil
}

// afterTransition refreshes everything; its failures never mask the outcome
// of the transition itself.
func (c *Controller) afterTransition(ctx context.Context, operation string) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.WarnContext(ctx, "refresh after transition failed", "operation", operation, "error", err)
	}
}
