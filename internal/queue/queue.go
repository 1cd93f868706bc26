package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"league-tracker/internal/constants"
	"league-tracker/internal/metrics"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// enqueue claims the job id marker first; only the claimant pushes.
var enqueueScript = redis.NewScript(`
if redis.call('SET', KEYS[1], '1', 'NX', 'PX', ARGV[2]) then
  redis.call('LPUSH', KEYS[2], ARGV[1])
  return 1
end
return 0
`)

// dequeue moves one item to processing and leases it until ARGV[1].
var dequeueScript = redis.NewScript(`
local item = redis.call('RPOPLPUSH', KEYS[1], KEYS[2])
if not item then
  return false
end
redis.call('ZADD', KEYS[3], ARGV[1], item)
return item
`)

var ackScript = redis.NewScript(`
redis.call('ZREM', KEYS[2], ARGV[1])
return redis.call('LREM', KEYS[1], 1, ARGV[1])
`)

// reap puts items whose lease ran out back at the head of pending.
var reapScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1])
local moved = 0
for _, item in ipairs(expired) do
  redis.call('ZREM', KEYS[3], item)
  if redis.call('LREM', KEYS[2], 1, item) > 0 then
    redis.call('RPUSH', KEYS[1], item)
    moved = moved + 1
  end
end
return moved
`)

type envelope struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt int64           `json:"enqueued_at"`
}

// Delivery is one leased job. Ack it once handled; otherwise it is
// delivered again after the visibility timeout.
type Delivery struct {
	ID         string
	Payload    []byte
	EnqueuedAt time.Time
	raw        string
}

type Options struct {
	VisibilityTimeout time.Duration
	DedupeTTL         time.Duration
}

// RedisQueue is a reliable list queue: idempotent on job id, at-least-once
// on delivery.
type RedisQueue struct {
	rdb        redis.Cmdable
	name       string
	visibility time.Duration
	dedupeTTL  time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

func NewRedisQueue(rdb redis.Cmdable, name string, opts Options, logger zerolog.Logger) *RedisQueue {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 5 * time.Minute
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = time.Hour
	}
	return &RedisQueue{
		rdb:        rdb,
		name:       name,
		visibility: opts.VisibilityTimeout,
		dedupeTTL:  opts.DedupeTTL,
		now:        time.Now,
		logger:     logger.With().Str("queue", name).Logger(),
	}
}

// WithClock is for tests that need to move lease deadlines.
func (q *RedisQueue) WithClock(now func() time.Time) *RedisQueue {
	q.now = now
	return q
}

func (q *RedisQueue) key(suffix string) string {
	return constants.QueueKeyPrefix + ":" + q.name + ":" + suffix
}

func (q *RedisQueue) listKeys() []string {
	return []string{q.key("pending"), q.key("processing"), q.key("leases")}
}

// Enqueue pushes payload unless a job with the same id was enqueued within
// the dedupe window. It reports whether a new job was created.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, payload []byte) (bool, error) {
	item, err := json.Marshal(envelope{ID: jobID, Payload: payload, EnqueuedAt: q.now().UnixMilli()})
	if err != nil {
		return false, fmt.Errorf("failed to encode job %s: %w", jobID, err)
	}

	created, err := enqueueScript.Run(ctx, q.rdb,
		[]string{q.key("job:" + jobID), q.key("pending")},
		string(item), q.dedupeTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}

	if created == 0 {
		q.logger.Debug().Str("job_id", jobID).Msg("job already enqueued")
		return false, nil
	}
	q.logger.Debug().Str("job_id", jobID).Msg("job enqueued")
	return true, nil
}

// TryDequeue returns nil when the queue is empty.
func (q *RedisQueue) TryDequeue(ctx context.Context) (*Delivery, error) {
	deadline := q.now().Add(q.visibility).UnixMilli()
	raw, err := dequeueScript.Run(ctx, q.rdb, q.listKeys(), deadline).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// unreadable items would loop forever; drop them
		q.logger.Error().Err(err).Str("item", raw).Msg("dropping malformed job")
		_ = q.ack(ctx, raw)
		return nil, nil
	}

	return &Delivery{
		ID:         env.ID,
		Payload:    env.Payload,
		EnqueuedAt: time.UnixMilli(env.EnqueuedAt),
		raw:        raw,
	}, nil
}

// Dequeue polls until a job is available or ctx ends.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	ticker := time.NewTicker(constants.QueuePollInterval)
	defer ticker.Stop()

	for {
		d, err := q.TryDequeue(ctx)
		if err != nil || d != nil {
			return d, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.ack(ctx, d.raw); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", d.ID, err)
	}
	return nil
}

func (q *RedisQueue) ack(ctx context.Context, raw string) error {
	return ackScript.Run(ctx, q.rdb, []string{q.key("processing"), q.key("leases")}, raw).Err()
}

// RequeueExpired returns how many leased jobs were handed back.
func (q *RedisQueue) RequeueExpired(ctx context.Context) (int, error) {
	n, err := reapScript.Run(ctx, q.rdb, q.listKeys(), q.now().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to requeue expired jobs: %w", err)
	}
	if n > 0 {
		q.logger.Warn().Int("count", n).Msg("requeued jobs with expired leases")
	}
	return n, nil
}

type Depth struct {
	Pending    int64
	Processing int64
}

func (q *RedisQueue) Depth(ctx context.Context) (Depth, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, q.key("pending"))
	processing := pipe.LLen(ctx, q.key("processing"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Depth{}, fmt.Errorf("failed to read queue depth: %w", err)
	}
	d := Depth{Pending: pending.Val(), Processing: processing.Val()}
	metrics.QueueDepth.WithLabelValues(q.name, "pending").Set(float64(d.Pending))
	metrics.QueueDepth.WithLabelValues(q.name, "processing").Set(float64(d.Processing))
	return d, nil
}
