package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// UserLookup resolves account basics.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// PassService reports which pass a user holds.
type PassService struct {
	passes PassRepository
	users  UserLookup
	logger *slog.Logger
}

// NewPassService wires the pass service.
func NewPassService(passes PassRepository, users UserLookup, logger *slog.Logger) *PassService {
	return &PassService{passes: passes, users: users, logger: defaultLogger(logger)}
}

// GetPassInfo returns the user's active pass. Users without one hold a
// general pass.
func (s *PassService) GetPassInfo(ctx context.Context, userID string) (PassInfo, error) {
	if s == nil {
		return PassInfo{}, fmt.Errorf("PassService is nil")
	}
	info := PassInfo{UserID: userID, Tier: TierGeneral, Status: "none"}

	if s.users != nil {
		user, err := s.users.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return PassInfo{}, ErrNotFound
			}
			return PassInfo{}, err
		}
		info.DisplayName = user.DisplayName
	}

	if s.passes != nil {
		pass, err := s.passes.GetActivePass(ctx, userID)
		switch {
		case err == nil:
			info.Tier = pass.Tier
			info.Status = pass.Status
			info.HasPass = true
		case errors.Is(err, ErrNotFound):
		default:
			return PassInfo{}, err
		}
	}
	if !info.Tier.Valid() {
		info.Tier = TierGeneral
	}
	info.TierLabel = info.Tier.DisplayName()
	return info, nil
}

// RequestCounter counts the requests created by a requester.
type RequestCounter interface {
	CountRequestsByRequester(ctx context.Context, requesterID string) (RequestCounts, error)
}

// LimitsCache stores quota snapshots between requests.
type LimitsCache interface {
	Get(ctx context.Context, userID string) (RequestLimits, bool)
	Set(ctx context.Context, userID string, limits RequestLimits)
	Delete(ctx context.Context, userID string)
}

// QuotaService computes how many meeting requests a user may still send.
type QuotaService struct {
	counts   RequestCounter
	passes   *PassService
	cache    LimitsCache
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewQuotaService wires the quota service. cache may be nil; a zero cooldown
// disables the wait between requests.
func NewQuotaService(counts RequestCounter, passes *PassService, cache LimitsCache, cooldown time.Duration, now func() time.Time, logger *slog.Logger) *QuotaService {
	if now == nil {
		now = time.Now
	}
	return &QuotaService{counts: counts, passes: passes, cache: cache, cooldown: cooldown, now: now, logger: defaultLogger(logger)}
}

// GetRequestLimits returns the user's quota snapshot. Every request ever
// created counts, whatever its state.
func (s *QuotaService) GetRequestLimits(ctx context.Context, userID string) (limits RequestLimits, err error) {
	if s == nil {
		return RequestLimits{}, fmt.Errorf("QuotaService is nil")
	}
	if userID == "" {
		return RequestLimits{}, ErrUnauthorized
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, userID); ok {
			return s.withCanSend(cached), nil
		}
	}

	logger := serviceLogger(ctx, s.logger, "QuotaService", "GetRequestLimits", "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "request limits unavailable", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	tier := TierGeneral
	if s.passes != nil {
		info, perr := s.passes.GetPassInfo(ctx, userID)
		if perr != nil {
			return RequestLimits{}, perr
		}
		tier = info.Tier
	}

	counts, err := s.counts.CountRequestsByRequester(ctx, userID)
	if err != nil {
		return RequestLimits{}, err
	}

	limits = ComputeLimits(tier, counts, s.cooldown)
	if s.cache != nil {
		s.cache.Set(ctx, userID, limits)
	}
	return s.withCanSend(limits), nil
}

// Invalidate drops the cached snapshot after the user's requests changed.
func (s *QuotaService) Invalidate(ctx context.Context, userID string) {
	if s == nil || s.cache == nil || userID == "" {
		return
	}
	s.cache.Delete(ctx, userID)
}

func (s *QuotaService) withCanSend(limits RequestLimits) RequestLimits {
	limits.CanSendRequest = limits.RemainingRequests > 0 &&
		(limits.NextRequestAllowedAt == nil || !s.now().Before(*limits.NextRequestAllowedAt))
	return limits
}

// ComputeLimits derives the quota of a tier from request counts.
func ComputeLimits(tier PassTier, counts RequestCounts, cooldown time.Duration) RequestLimits {
	if !tier.Valid() {
		tier = TierGeneral
	}
	limit := tier.RequestLimit()
	remaining := limit - counts.Total
	if remaining < 0 {
		remaining = 0
	}
	limits := RequestLimits{
		TicketType:        tier,
		TotalRequests:     counts.Total,
		RemainingRequests: remaining,
		RequestLimit:      limit,
		CanSendRequest:    remaining > 0,
	}
	if cooldown > 0 && counts.LastCreatedAt != nil {
		next := counts.LastCreatedAt.Add(cooldown)
		limits.NextRequestAllowedAt = &next
	}
	return limits
}
