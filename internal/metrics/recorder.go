package metrics

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"league-tracker/internal/constants"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Tags map[string]string

// Recorder is a fire-and-forget counter sink. Implementations must never
// return or panic into the caller.
type Recorder interface {
	Increment(ctx context.Context, name string, amount int64, tags Tags)
}

// SeriesKey renders "name|k=v,k=v" with tags sorted by key.
func SeriesKey(name string, tags Tags) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('|')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}
	return b.String()
}

func encodeTags(tags Tags) string {
	key := SeriesKey("", tags)
	return strings.TrimPrefix(key, "|")
}

// RedisRecorder keeps counters in one Redis hash shared by all processes.
type RedisRecorder struct {
	rdb    redis.Cmdable
	key    string
	logger zerolog.Logger
}

func NewRedisRecorder(rdb redis.Cmdable, logger zerolog.Logger) *RedisRecorder {
	return &RedisRecorder{rdb: rdb, key: constants.WorkerMetricsHash, logger: logger}
}

func (r *RedisRecorder) Increment(ctx context.Context, name string, amount int64, tags Tags) {
	field := SeriesKey(name, tags)
	if err := r.rdb.HIncrBy(ctx, r.key, field, amount).Err(); err != nil {
		r.logger.Warn().Err(err).Str("metric", field).Int64("amount", amount).Msg("worker metric increment failed")
	}
}

// Snapshot returns every series in the hash.
func (r *RedisRecorder) Snapshot(ctx context.Context) (map[string]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read worker metrics: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

type PromRecorder struct{}

func (PromRecorder) Increment(_ context.Context, name string, amount int64, tags Tags) {
	if amount <= 0 {
		return
	}
	Events.WithLabelValues(name, encodeTags(tags)).Add(float64(amount))
}

// Multi fans an increment out to every recorder, shielding the caller from
// panics in any of them.
type Multi struct {
	recorders []Recorder
	logger    zerolog.Logger
}

func NewMulti(logger zerolog.Logger, recorders ...Recorder) *Multi {
	return &Multi{recorders: recorders, logger: logger}
}

func (m *Multi) Increment(ctx context.Context, name string, amount int64, tags Tags) {
	for _, r := range m.recorders {
		m.safeIncrement(ctx, r, name, amount, tags)
	}
}

func (m *Multi) safeIncrement(ctx context.Context, r Recorder, name string, amount int64, tags Tags) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Warn().Interface("panic", p).Str("metric", name).Msg("metric recorder panicked")
		}
	}()
	r.Increment(ctx, name, amount, tags)
}

type Nop struct{}

func (Nop) Increment(context.Context, string, int64, Tags) {}
