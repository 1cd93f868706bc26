package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupLimiter(t *testing.T, defaults map[string][]Window) (*Limiter, *redis.Client, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	l := New(rdb, zerolog.Nop(), WithClock(clock.Now), WithDefaults(defaults))
	return l, rdb, clock
}

func TestLimiter_WindowNeverExceeded(t *testing.T) {
	l, _, clock := setupLimiter(t, map[string][]Window{
		AppBucket: {{Limit: 2, Period: time.Second}},
	})
	ctx := context.Background()

	for range 2 {
		wait, err := l.Acquire(ctx, AppBucket)
		require.NoError(t, err)
		assert.Zero(t, wait)
	}

	wait, err := l.Acquire(ctx, AppBucket)
	require.NoError(t, err)
	assert.Equal(t, time.Second, wait)

	clock.Advance(500 * time.Millisecond)
	wait, err = l.Acquire(ctx, AppBucket)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, wait)

	clock.Advance(500 * time.Millisecond)
	wait, err = l.Acquire(ctx, AppBucket)
	require.NoError(t, err)
	assert.Zero(t, wait, "oldest grants have left the window")
}

func TestLimiter_AllBucketsOrNothing(t *testing.T) {
	l, rdb, _ := setupLimiter(t, map[string][]Window{
		AppBucket:                 {{Limit: 10, Period: time.Second}},
		MethodBucket("match_ids"): {{Limit: 1, Period: time.Second}},
	})
	ctx := context.Background()

	wait, err := l.Acquire(ctx, AppBucket, MethodBucket("match_ids"))
	require.NoError(t, err)
	require.Zero(t, wait)

	wait, err = l.Acquire(ctx, AppBucket, MethodBucket("match_ids"))
	require.NoError(t, err)
	assert.Positive(t, wait)

	count, err := rdb.ZCard(ctx, "rl:app:w:1000").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "a refused call must not consume app quota")
}

func TestLimiter_RecordReplacesLimits(t *testing.T) {
	l, _, _ := setupLimiter(t, map[string][]Window{
		AppBucket: {{Limit: 100, Period: time.Second}},
	})
	ctx := context.Background()

	limits, err := l.Limits(ctx, AppBucket)
	require.NoError(t, err)
	assert.Equal(t, []Window{{Limit: 100, Period: time.Second}}, limits)

	require.NoError(t, l.Record(ctx, AppBucket, []Window{{Limit: 1, Period: time.Second}}, 0))

	limits, err = l.Limits(ctx, AppBucket)
	require.NoError(t, err)
	assert.Equal(t, []Window{{Limit: 1, Period: time.Second}}, limits)

	wait, err := l.Acquire(ctx, AppBucket)
	require.NoError(t, err)
	assert.Zero(t, wait)

	wait, err = l.Acquire(ctx, AppBucket)
	require.NoError(t, err)
	assert.Positive(t, wait)
}

func TestLimiter_CooldownBlocksEveryCaller(t *testing.T) {
	l, rdb, clock := setupLimiter(t, DefaultLimits)
	ctx := context.Background()

	// a second limiter over the same store stands in for another process
	other := New(rdb, zerolog.Nop(), WithClock(clock.Now))

	require.NoError(t, l.Record(ctx, MethodBucket("match_detail"), nil, 2*time.Second))

	wait, err := other.Acquire(ctx, AppBucket, MethodBucket("match_detail"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, wait)

	until, err := other.LockedUntil(ctx, MethodBucket("match_detail"))
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(2*time.Second).UnixMilli(), until.UnixMilli())

	// a shorter cooldown never pulls the lock in
	require.NoError(t, l.Record(ctx, MethodBucket("match_detail"), nil, time.Second))
	wait, err = other.Acquire(ctx, MethodBucket("match_detail"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, wait)

	// other buckets are unaffected
	wait, err = other.Acquire(ctx, MethodBucket("account"))
	require.NoError(t, err)
	assert.Zero(t, wait)

	clock.Advance(2 * time.Second)
	wait, err = other.Acquire(ctx, AppBucket, MethodBucket("match_detail"))
	require.NoError(t, err)
	assert.Zero(t, wait)

	until, err = other.LockedUntil(ctx, MethodBucket("match_detail"))
	require.NoError(t, err)
	assert.True(t, until.IsZero())
}

func TestLimiter_NoBuckets(t *testing.T) {
	l, _, _ := setupLimiter(t, nil)
	wait, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestLimiter_CooldownShrinksWithElapsedTime(t *testing.T) {
	l, _, clock := setupLimiter(t, DefaultLimits)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, AppBucket, nil, 2*time.Second))

	clock.Advance(500 * time.Millisecond)
	wait, err := l.Acquire(ctx, AppBucket, MethodBucket("account"))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, wait)
}
