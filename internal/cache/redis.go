package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/example/conference-companion/internal/application"
)

// RedisConfig selects the Redis server holding the shared cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisClient connects and pings with a short timeout. Callers fall back
// to MemoryLimits when it fails.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisLimits is a LimitsCache stored in Redis as msgpack values. Redis
// failures degrade to cache misses.
type RedisLimits struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLimits wraps a connected client.
func NewRedisLimits(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisLimits {
	if prefix == "" {
		prefix = "companion:limits"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLimits{client: client, prefix: prefix, ttl: ttl, logger: defaultLogger(logger)}
}

func (c *RedisLimits) key(userID string) string {
	return c.prefix + ":" + userID
}

// Get returns the cached snapshot of userID.
func (c *RedisLimits) Get(ctx context.Context, userID string) (application.RequestLimits, bool) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "limits cache read failed", "error", err, "user_id", userID)
		}
		return application.RequestLimits{}, false
	}
	limits, err := decodeLimits(raw)
	if err != nil {
		c.logger.WarnContext(ctx, "limits cache entry unreadable", "error", err, "user_id", userID)
		return application.RequestLimits{}, false
	}
	return limits, true
}

// Set stores the snapshot of userID.
func (c *RedisLimits) Set(ctx context.Context, userID string, limits application.RequestLimits) {
	raw, err := encodeLimits(limits)
	if err != nil {
		c.logger.WarnContext(ctx, "limits cache encode failed", "error", err, "user_id", userID)
		return
	}
	if err := c.client.Set(ctx, c.key(userID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "limits cache write failed", "error", err, "user_id", userID)
	}
}

// Delete drops the snapshot of userID.
func (c *RedisLimits) Delete(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "limits cache delete failed", "error", err, "user_id", userID)
	}
}

type limitsRecord struct {
	TicketType           string     `msgpack:"t"`
	TotalRequests        int        `msgpack:"n"`
	RemainingRequests    int        `msgpack:"r"`
	RequestLimit         int        `msgpack:"l"`
	CanSendRequest       bool       `msgpack:"c"`
	NextRequestAllowedAt *time.Time `msgpack:"a,omitempty"`
}

func encodeLimits(limits application.RequestLimits) ([]byte, error) {
	return msgpack.Marshal(limitsRecord{
		TicketType:           string(limits.TicketType),
		TotalRequests:        limits.TotalRequests,
		RemainingRequests:    limits.RemainingRequests,
		RequestLimit:         limits.RequestLimit,
		CanSendRequest:       limits.CanSendRequest,
		NextRequestAllowedAt: limits.NextRequestAllowedAt,
	})
}

func decodeLimits(raw []byte) (application.RequestLimits, error) {
	var rec limitsRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return application.RequestLimits{}, err
	}
	return application.RequestLimits{
		TicketType:           application.PassTier(rec.TicketType),
		TotalRequests:        rec.TotalRequests,
		RemainingRequests:    rec.RemainingRequests,
		RequestLimit:         rec.RequestLimit,
		CanSendRequest:       rec.CanSendRequest,
		NextRequestAllowedAt: rec.NextRequestAllowedAt,
	}, nil
}
