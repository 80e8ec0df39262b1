// Package cache keeps request-limit snapshots between API calls. MemoryLimits
// serves a single process; RedisLimits is shared by every replica.
package cache

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/example/conference-companion/internal/application"
)

// DefaultTTL bounds how stale a snapshot may get when an invalidation is
// lost.
const DefaultTTL = 30 * time.Second

var (
	_ application.LimitsCache = (*MemoryLimits)(nil)
	_ application.LimitsCache = (*RedisLimits)(nil)
)

// MemoryLimits is an in-process LimitsCache.
type MemoryLimits struct {
	items *gocache.Cache
}

// NewMemoryLimits creates an in-process cache whose entries live for ttl.
func NewMemoryLimits(ttl time.Duration) *MemoryLimits {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryLimits{items: gocache.New(ttl, 2*ttl)}
}

// Get returns the cached snapshot of userID.
func (c *MemoryLimits) Get(_ context.Context, userID string) (application.RequestLimits, bool) {
	v, ok := c.items.Get(userID)
	if !ok {
		return application.RequestLimits{}, false
	}
	limits, ok := v.(application.RequestLimits)
	return limits, ok
}

// Set stores the snapshot of userID.
func (c *MemoryLimits) Set(_ context.Context, userID string, limits application.RequestLimits) {
	c.items.SetDefault(userID, limits)
}

// Delete drops the snapshot of userID.
func (c *MemoryLimits) Delete(_ context.Context, userID string) {
	c.items.Delete(userID)
}

// Len returns the number of live entries.
func (c *MemoryLimits) Len() int {
	return c.items.ItemCount()
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
