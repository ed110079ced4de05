package users

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"cardkeep/pkg/platform/circuit"
	"cardkeep/pkg/platform/strings"
)

const cacheKeyPrefix = "cardkeep:user-name:"

// Lookup is satisfied by ModelLookup and by CachedLookup itself.
type Lookup interface {
	DisplayName(ctx context.Context, email string) (string, error)
}

// CachedLookup serves names from Redis and falls through to the wrapped
// lookup on a miss. Redis failures never fail a lookup, and while Redis keeps
// failing it is skipped altogether.
type CachedLookup struct {
	next    Lookup
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewCachedLookup wraps next with a Redis cache.
func NewCachedLookup(next Lookup, client redis.Cmdable, ttl time.Duration, logger *slog.Logger, breakerOpts ...circuit.Option) *CachedLookup {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLookup{
		next:    next,
		client:  client,
		ttl:     ttl,
		breaker: circuit.New("user-name-cache", breakerOpts...),
		logger:  logger,
	}
}

func cacheKey(email string) string {
	return cacheKeyPrefix + strings.NormalizeEmail(email)
}

func (c *CachedLookup) DisplayName(ctx context.Context, email string) (string, error) {
	if !c.breaker.Allow() {
		return c.next.DisplayName(ctx, email)
	}
	key := cacheKey(email)

	name, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.recordSuccess(ctx)
		return name, nil
	case errors.Is(err, redis.Nil):
		c.recordSuccess(ctx)
	default:
		c.recordFailure(ctx, err)
	}

	name, err = c.next.DisplayName(ctx, email)
	if err != nil {
		return "", err
	}
	if err := c.client.Set(ctx, key, name, c.ttl).Err(); err != nil {
		c.recordFailure(ctx, err)
	}
	return name, nil
}

// Invalidate drops a cached name, e.g. after a User row changes.
func (c *CachedLookup) Invalidate(ctx context.Context, email string) error {
	if err := c.client.Del(ctx, cacheKey(email)).Err(); err != nil {
		c.recordFailure(ctx, err)
		return err
	}
	return nil
}

func (c *CachedLookup) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "user name cache recovered")
	}
}

func (c *CachedLookup) recordFailure(ctx context.Context, err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "user name cache unavailable, reading through", "error", err)
	}
}
