package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"league-tracker/internal/constants"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ErrLockHeld = errors.New("lock held by another owner")
	ErrLockLost = errors.New("lock no longer held")
)

// Locker hands out redsync mutexes that keep themselves alive while held.
type Locker struct {
	rs     *redsync.Redsync
	logger zerolog.Logger
}

func NewLocker(rdb redis.UniversalClient, logger zerolog.Logger) *Locker {
	return &Locker{
		rs:     redsync.New(goredis.NewPool(rdb)),
		logger: logger,
	}
}

// Lock is renewed every third of its TTL until Release. Its Context ends
// when a renewal fails, so holders stop once someone else may own the key.
type Lock struct {
	mutex  *redsync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// TryAcquire takes key without waiting; ErrLockHeld if another owner has it.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	mutex := l.rs.NewMutex(key, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		if isTaken(err) {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	lockCtx, cancel := context.WithCancel(ctx)
	lock := &Lock{mutex: mutex, ctx: lockCtx, cancel: cancel, done: make(chan struct{})}
	go lock.renew(ttl/3, l.logger.With().Str("lock", key).Logger())
	return lock, nil
}

func isTaken(err error) bool {
	var taken *redsync.ErrTaken
	return errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken)
}

func (l *Lock) Context() context.Context {
	return l.ctx
}

func (l *Lock) renew(every time.Duration, logger zerolog.Logger) {
	defer close(l.done)

	ticker := time.NewTicker(max(every, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
			ok, err := l.mutex.ExtendContext(ctx)
			cancel()
			if err != nil || !ok {
				logger.Warn().Err(err).Msg("lock renewal failed, releasing holder")
				l.cancel()
				return
			}
		}
	}
}

// Release stops renewal and deletes the key if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	l.cancel()
	<-l.done

	ok, err := l.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.mutex.Name(), err)
	}
	if !ok {
		return fmt.Errorf("failed to release lock %s: %w", l.mutex.Name(), ErrLockLost)
	}
	return nil
}
