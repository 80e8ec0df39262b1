package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/conference-companion/internal/client"
)

// LimitsSource fetches the caller's quota snapshot.
type LimitsSource interface {
	Limits(ctx context.Context) (client.RequestLimits, error)
}

// QuotaTracker holds the caller's meeting request quota. Until a fetch
// succeeds, and after any failed fetch, it denies new requests.
type QuotaTracker struct {
	source LimitsSource
	logger *slog.Logger

	mu     sync.RWMutex
	limits client.RequestLimits
	err    error
}

func NewQuotaTracker(source LimitsSource, logger *slog.Logger) *QuotaTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaTracker{source: source, logger: logger.With("component", "tracker.quota")}
}

// Refresh fetches the snapshot. A failed fetch leaves a denying snapshot and
// returns the error.
func (q *QuotaTracker) Refresh(ctx context.Context) (client.RequestLimits, error) {
	limits, err := q.source.Limits(ctx)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
	if err != nil {
		q.logger.WarnContext(ctx, "limits fetch failed, denying new requests", "error", err)
		q.limits = denied(q.limits)
		return q.limits, err
	}
	if limits.RemainingRequests < 0 {
		limits.RemainingRequests = 0
	}
	q.limits = limits
	return limits, nil
}

func denied(previous client.RequestLimits) client.RequestLimits {
	return client.RequestLimits{
		TicketType:        previous.TicketType,
		TotalRequests:     previous.TotalRequests,
		RequestLimit:      previous.RequestLimit,
		RemainingRequests: 0,
		CanSendRequest:    false,
	}
}

// Limits returns the last snapshot.
func (q *QuotaTracker) Limits() client.RequestLimits {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.limits
}

// Err returns the error of the last fetch.
func (q *QuotaTracker) Err() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.err
}

// CanSend reports whether a new request may be sent at now.
func (q *QuotaTracker) CanSend(now time.Time) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	l := q.limits
	if !l.CanSendRequest || l.RemainingRequests <= 0 {
		return false
	}
	return l.NextRequestAllowedAt == nil || !now.Before(*l.NextRequestAllowedAt)
}

// Reset forgets the snapshot, for example when the signed-in user changes.
func (q *QuotaTracker) Reset() {
	q.mu.Lock()
	q.limits = client.RequestLimits{}
	q.err = nil
	q.mu.Unlock()
}
