package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/wellness-booking/internal/observability/metrics"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

const (
	defaultCacheTTL = 30 * time.Second
	versionTTL      = 24 * time.Hour
)

// CachedStore fronts an IntervalStore with a short-lived Redis copy per
// resource and date. Redis failures fall through to the underlying store.
type CachedStore struct {
	next    IntervalStore
	redis   *redis.Client
	ttl     time.Duration
	metrics *metrics.AvailabilityMetrics
	logger  *logging.Logger
}

func NewCachedStore(next IntervalStore, client *redis.Client, ttl time.Duration, m *metrics.AvailabilityMetrics, logger *logging.Logger) *CachedStore {
	if next == nil {
		panic("availability: underlying store required")
	}
	if client == nil {
		panic("availability: redis client required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{next: next, redis: client, ttl: ttl, metrics: m, logger: logger}
}

func cacheKey(resourceID, date string) string {
	return fmt.Sprintf("availability:%s:%s", resourceID, date)
}

func versionKey(resourceID, date string) string {
	return cacheKey(resourceID, date) + ":ver"
}

func (c *CachedStore) ActiveIntervals(ctx context.Context, resourceID, date string) ([]BookingInterval, error) {
	key := cacheKey(resourceID, date)
	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []BookingInterval
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			c.metrics.ObserveCache("hit")
			return cached, nil
		}
		c.metrics.ObserveCache("error")
	case errors.Is(err, redis.Nil):
		c.metrics.ObserveCache("miss")
	default:
		c.metrics.ObserveCache("error")
		c.logger.Warn("availability cache read failed", "key", key, "error", err)
	}

	verKey := versionKey(resourceID, date)
	version, verErr := c.redis.Get(ctx, verKey).Result()
	if errors.Is(verErr, redis.Nil) {
		version, verErr = "", nil
	}

	intervals, err := c.next.ActiveIntervals(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}
	if verErr != nil {
		return intervals, nil
	}
	payload, err := json.Marshal(intervals)
	if err != nil {
		return intervals, nil
	}
	if err := c.fill(ctx, key, verKey, version, payload); err != nil {
		c.logger.Warn("availability cache write failed", "key", key, "error", err)
	}
	return intervals, nil
}

// fill stores payload only if no invalidation bumped the version since the
// snapshot was read.
func (c *CachedStore) fill(ctx context.Context, key, verKey, version string, payload []byte) error {
	err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Result()
		if errors.Is(err, redis.Nil) {
			current, err = "", nil
		}
		if err != nil {
			return err
		}
		if current != version {
			c.metrics.ObserveCache("stale")
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		c.metrics.ObserveCache("stale")
		return nil
	}
	return err
}

// Invalidate drops cached intervals for the resource and date after a write
// and bumps the version so in-flight reads do not repopulate a stale copy.
func (c *CachedStore) Invalidate(ctx context.Context, resourceID, date string) error {
	verKey := versionKey(resourceID, date)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, versionTTL)
		pipe.Del(ctx, cacheKey(resourceID, date))
		return nil
	})
	if err != nil {
		return fmt.Errorf("availability: invalidate cache: %w", err)
	}
	return nil
}
