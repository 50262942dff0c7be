package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/wellness-booking/internal/observability/metrics"
)

type countingStore struct {
	mu       sync.Mutex
	calls    int
	bookings []BookingInterval
	err      error
}

func (s *countingStore) ActiveIntervals(_ context.Context, resourceID, date string) ([]BookingInterval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []BookingInterval
	for _, b := range s.bookings {
		if b.ResourceID == resourceID && b.Date == date {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *countingStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedStore_HitMissInvalidate(t *testing.T) {
	mr, client := setupTestRedis(t)
	next := &countingStore{bookings: []BookingInterval{{
		ResourceID:    "room-1",
		AppointmentID: uuid.New(),
		Date:          "2025-09-15",
		Interval:      iv("09:00", "10:00"),
		Status:        StatusScheduled,
	}}}
	cache := NewCachedStore(next, client, time.Minute, metrics.NewAvailabilityMetrics(prometheus.NewRegistry()), nil)
	ctx := context.Background()

	first, err := cache.ActiveIntervals(ctx, "room-1", "2025-09-15")
	require.NoError(t, err)
	second, err := cache.ActiveIntervals(ctx, "room-1", "2025-09-15")
	require.NoError(t, err)

	assert.Equal(t, 1, next.callCount(), "second read should be served from redis")
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("availability:room-1:2025-09-15"))
	assert.Equal(t, time.Minute, mr.TTL("availability:room-1:2025-09-15"))

	require.NoError(t, cache.Invalidate(ctx, "room-1", "2025-09-15"))
	assert.False(t, mr.Exists("availability:room-1:2025-09-15"))
	_, err = cache.ActiveIntervals(ctx, "room-1", "2025-09-15")
	require.NoError(t, err)
	assert.Equal(t, 2, next.callCount())
}

func TestCachedStore_FallsThroughWhenRedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	next := &countingStore{}
	cache := NewCachedStore(next, client, 0, nil, nil)
	mr.Close()

	got, err := cache.ActiveIntervals(context.Background(), "room-1", "2025-09-15")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, next.callCount())
}

func TestCachedStore_CorruptEntryIsReloaded(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("availability:room-1:2025-09-15", "{not json"))
	next := &countingStore{}
	cache := NewCachedStore(next, client, time.Minute, nil, nil)

	_, err := cache.ActiveIntervals(context.Background(), "room-1", "2025-09-15")
	require.NoError(t, err)
	assert.Equal(t, 1, next.callCount())
}

func TestCachedStore_PropagatesStoreError(t *testing.T) {
	_, client := setupTestRedis(t)
	boom := errors.New("db down")
	cache := NewCachedStore(&countingStore{err: boom}, client, time.Minute, nil, nil)

	_, err := cache.ActiveIntervals(context.Background(), "room-1", "2025-09-15")
	assert.ErrorIs(t, err, boom)
}

// racingStore invalidates the cache while a read-through load is in flight,
// the way a booking committed between the snapshot and the cache fill would.
type racingStore struct {
	countingStore
	cache *CachedStore
}

func (s *racingStore) ActiveIntervals(ctx context.Context, resourceID, date string) ([]BookingInterval, error) {
	out, err := s.countingStore.ActiveIntervals(ctx, resourceID, date)
	if s.countingStore.callCount() == 1 {
		if invErr := s.cache.Invalidate(ctx, resourceID, date); invErr != nil {
			return nil, invErr
		}
	}
	return out, err
}

func TestCachedStore_InvalidationDuringLoadSkipsFill(t *testing.T) {
	mr, client := setupTestRedis(t)
	next := &racingStore{}
	cache := NewCachedStore(next, client, time.Minute, nil, nil)
	next.cache = cache
	ctx := context.Background()

	_, err := cache.ActiveIntervals(ctx, "room-1", "2025-09-15")
	require.NoError(t, err)
	assert.False(t, mr.Exists("availability:room-1:2025-09-15"), "stale snapshot must not be cached")

	_, err = cache.ActiveIntervals(ctx, "room-1", "2025-09-15")
	require.NoError(t, err)
	assert.True(t, mr.Exists("availability:room-1:2025-09-15"))
	assert.Equal(t, 2, next.callCount())
}
