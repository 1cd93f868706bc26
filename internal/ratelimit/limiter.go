package ratelimit

import (
	"context"
	"fmt"
	"time"

	"league-tracker/internal/constants"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	AppBucket = "app"

	// learned limits fall back to defaults if the upstream goes quiet for a day
	limitsTTL = 24 * time.Hour
)

// MethodBucket names the bucket for one upstream method group.
func MethodBucket(group string) string {
	return "method:" + group
}

// DefaultLimits are used until the upstream states its own.
var DefaultLimits = map[string][]Window{
	AppBucket:                    {{Limit: 20, Period: time.Second}, {Limit: 100, Period: 2 * time.Minute}},
	MethodBucket("account"):      {{Limit: 20, Period: time.Second}},
	MethodBucket("summoner"):     {{Limit: 20, Period: time.Second}},
	MethodBucket("rank"):         {{Limit: 20, Period: time.Second}},
	MethodBucket("match_ids"):    {{Limit: 2000, Period: 10 * time.Second}},
	MethodBucket("match_detail"): {{Limit: 2000, Period: 10 * time.Second}},
}

// acquireScript checks every window of every bucket and only records the
// grant when all of them have room. Per bucket, KEYS holds the limits key,
// the lock key and the window key prefix; ARGV carries now, the grant
// member, the bucket count and then each bucket's default limits.
// Returns 0 when granted, otherwise the milliseconds to wait.
var acquireScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local member = ARGV[2]
local n = tonumber(ARGV[3])
local wait = 0
local grants = {}

for i = 1, n do
  local limitsKey = KEYS[(i - 1) * 3 + 1]
  local lockKey = KEYS[(i - 1) * 3 + 2]
  local prefix = KEYS[(i - 1) * 3 + 3]

  local lockedUntil = tonumber(redis.call('GET', lockKey) or '0') or 0
  if lockedUntil > now then
    wait = math.max(wait, lockedUntil - now)
  end

  local spec = redis.call('GET', limitsKey)
  if not spec then
    spec = ARGV[3 + i]
  end

  for limitStr, periodStr in string.gmatch(spec, '(%d+):(%d+)') do
    local limit = tonumber(limitStr)
    local period = tonumber(periodStr)
    if limit > 0 and period > 0 then
      local key = prefix .. period
      redis.call('ZREMRANGEBYSCORE', key, '-inf', now - period)
      local count = redis.call('ZCARD', key)
      if count >= limit then
        local entry = redis.call('ZRANGE', key, count - limit, count - limit, 'WITHSCORES')
        local expires = tonumber(entry[2]) + period
        wait = math.max(wait, expires - now)
      end
      table.insert(grants, {key, period})
    end
  end
end

if wait > 0 then
  return math.ceil(wait)
end

for _, g in ipairs(grants) do
  redis.call('ZADD', g[1], now, member)
  redis.call('PEXPIRE', g[1], g[2])
end
return 0
`)

// recordScript stores newly stated limits and/or a cooldown in one trip.
var recordScript = redis.NewScript(`
if ARGV[1] ~= '' then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
local lockUntil = tonumber(ARGV[3])
local ttl = lockUntil - tonumber(ARGV[4])
if lockUntil > 0 and ttl > 0 then
  local current = tonumber(redis.call('GET', KEYS[2]) or '0') or 0
  if lockUntil > current then
    redis.call('SET', KEYS[2], ARGV[3], 'PX', ttl)
  end
end
return 1
`)

// Limiter is a sliding-window quota tracker whose state lives entirely in
// Redis, so every process sharing the store sees the same buckets.
type Limiter struct {
	rdb      redis.Cmdable
	prefix   string
	defaults map[string][]Window
	now      func() time.Time
	logger   zerolog.Logger
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithDefaults(defaults map[string][]Window) Option {
	return func(l *Limiter) { l.defaults = defaults }
}

func WithPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

func New(rdb redis.Cmdable, logger zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		rdb:      rdb,
		prefix:   constants.RateLimitKeyPrefix,
		defaults: DefaultLimits,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) limitsKey(bucket string) string { return l.prefix + ":" + bucket + ":limits" }
func (l *Limiter) lockKey(bucket string) string   { return l.prefix + ":" + bucket + ":lock" }
func (l *Limiter) windowPrefix(bucket string) string {
	return l.prefix + ":" + bucket + ":w:"
}

// Acquire asks for one call's worth of quota across all the given buckets.
// A zero wait means the call was granted and counted; otherwise nothing
// was counted and the caller should sleep for the returned duration and ask
// again.
func (l *Limiter) Acquire(ctx context.Context, buckets ...string) (time.Duration, error) {
	if len(buckets) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(buckets)*3)
	args := make([]any, 0, len(buckets)+3)
	args = append(args, l.now().UnixMilli(), uuid.NewString(), len(buckets))
	for _, bucket := range buckets {
		keys = append(keys, l.limitsKey(bucket), l.lockKey(bucket), l.windowPrefix(bucket))
	}
	for _, bucket := range buckets {
		args = append(args, encodeWindows(l.defaults[bucket]))
	}

	waitMs, err := acquireScript.Run(ctx, l.rdb, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to acquire rate limit: %w", err)
	}

	wait := time.Duration(waitMs) * time.Millisecond
	if wait > 0 {
		l.logger.Debug().Strs("buckets", buckets).Dur("wait", wait).Msg("rate limit wait required")
	}
	return wait, nil
}

// Record applies what a response said about a bucket. Non-empty limits
// replace the believed limits; a positive cooldown locks the bucket for
// every caller until now+cooldown.
func (l *Limiter) Record(ctx context.Context, bucket string, limits []Window, cooldown time.Duration) error {
	if len(limits) == 0 && cooldown <= 0 {
		return nil
	}

	now := l.now().UnixMilli()
	var lockUntil int64
	if cooldown > 0 {
		lockUntil = now + cooldown.Milliseconds()
	}

	err := recordScript.Run(ctx, l.rdb,
		[]string{l.limitsKey(bucket), l.lockKey(bucket)},
		encodeWindows(limits), limitsTTL.Milliseconds(), lockUntil, now,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to record rate limit state: %w", err)
	}

	if cooldown > 0 {
		l.logger.Warn().Str("bucket", bucket).Dur("cooldown", cooldown).Msg("rate limit cooldown set")
	}
	return nil
}

// Limits returns the limits currently believed for bucket.
func (l *Limiter) Limits(ctx context.Context, bucket string) ([]Window, error) {
	spec, err := l.rdb.Get(ctx, l.limitsKey(bucket)).Result()
	if err == redis.Nil {
		return l.defaults[bucket], nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limits: %w", err)
	}
	return decodeWindows(spec), nil
}

// LockedUntil returns the zero time when the bucket has no active cooldown.
func (l *Limiter) LockedUntil(ctx context.Context, bucket string) (time.Time, error) {
	ms, err := l.rdb.Get(ctx, l.lockKey(bucket)).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read rate limit lock: %w", err)
	}
	until := time.UnixMilli(ms)
	if !until.After(l.now()) {
		return time.Time{}, nil
	}
	return until, nil
}
