package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"league-tracker/internal/config"
	"league-tracker/internal/constants"
	"league-tracker/internal/domain"
	"league-tracker/internal/metrics"
	redisclient "league-tracker/internal/redis"
	"league-tracker/internal/service"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type IdentityLister interface {
	ListAfter(ctx context.Context, afterID string, limit int) ([]domain.Identity, error)
}

type Syncer interface {
	Resync(ctx context.Context, puuid string, inlineLimit int) (*service.SyncResult, error)
}

type ResyncReport struct {
	Skipped  bool // another process holds the resync lock
	Total    int
	Synced   int
	Failed   int
	Duration time.Duration
}

type Resyncer struct {
	identities  IdentityLister
	syncer      Syncer
	locker      *redisclient.Locker
	recorder    metrics.Recorder
	concurrency int
	inlineLimit int
	pace        rate.Limit
	logger      zerolog.Logger
}

func NewResyncer(identities IdentityLister, syncer Syncer, locker *redisclient.Locker, recorder metrics.Recorder, cfg *config.Config, logger zerolog.Logger) *Resyncer {
	// zero or negative means unpaced
	pace := rate.Inf
	if cfg.Worker.ResyncRate > 0 {
		pace = rate.Limit(cfg.Worker.ResyncRate)
	}
	return &Resyncer{
		identities:  identities,
		syncer:      syncer,
		locker:      locker,
		recorder:    recorder,
		concurrency: max(cfg.Worker.ResyncConcurrency, 1),
		inlineLimit: cfg.Worker.ResyncInlineLimit,
		pace:        pace,
		logger:      logger,
	}
}

// RunPeriodicResync walks every stored identity and re-runs its match sync.
// Each identity is independent, so an interrupted pass is simply resumed by
// the next one.
func (r *Resyncer) RunPeriodicResync(ctx context.Context) (*ResyncReport, error) {
	start := time.Now()
	report := &ResyncReport{}

	lock, err := r.locker.TryAcquire(ctx, constants.ResyncLockKey, constants.ResyncLockTTL)
	if errors.Is(err, redisclient.ErrLockHeld) {
		r.logger.Info().Msg("resync already running elsewhere, skipping")
		report.Skipped = true
		return report, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			r.logger.Warn().Err(err).Msg("failed to release resync lock")
		}
	}()

	// the pass stops early if the lock cannot be renewed
	ctx = lock.Context()

	r.recorder.Increment(ctx, "jobs.resync.started", 1, nil)
	pacer := rate.NewLimiter(r.pace, 1)

	var synced, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	after := ""
pages:
	for {
		page, err := r.identities.ListAfter(gctx, after, constants.ResyncPageSize)
		if err != nil {
			_ = g.Wait()
			return r.finish(ctx, report, start, &synced, &failed), err
		}
		if len(page) == 0 {
			break
		}

		for _, identity := range page {
			if err := pacer.Wait(gctx); err != nil {
				break pages
			}
			report.Total++
			g.Go(func() error {
				if _, err := r.syncer.Resync(gctx, identity.Puuid, r.inlineLimit); err != nil {
					failed.Add(1)
					r.logger.Warn().Err(err).Str("puuid", identity.Puuid).Msg("identity resync failed")
					return nil
				}
				synced.Add(1)
				return nil
			})
		}
		after = page[len(page)-1].ID
	}

	_ = g.Wait()
	report = r.finish(ctx, report, start, &synced, &failed)
	if err := ctx.Err(); err != nil {
		r.logger.Warn().Err(err).Int("synced", report.Synced).Msg("resync interrupted")
		return report, err
	}
	return report, nil
}

func (r *Resyncer) finish(ctx context.Context, report *ResyncReport, start time.Time, synced, failed *atomic.Int64) *ResyncReport {
	report.Synced = int(synced.Load())
	report.Failed = int(failed.Load())
	report.Duration = time.Since(start)

	r.recorder.Increment(ctx, "jobs.resync.identities", int64(report.Synced), metrics.Tags{"status": "success"})
	r.recorder.Increment(ctx, "jobs.resync.identities", int64(report.Failed), metrics.Tags{"status": "failed"})
	r.logger.Info().
		Int("total", report.Total).
		Int("synced", report.Synced).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("resync pass finished")
	return report
}
