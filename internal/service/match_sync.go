package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"league-tracker/internal/config"
	"league-tracker/internal/domain"
	"league-tracker/internal/metrics"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type SyncState string

const (
	StateResolving          SyncState = "resolving"
	StateListFetched        SyncState = "list_fetched"
	StateStubsUpserted      SyncState = "stubs_upserted"
	StateInlineBackfilled   SyncState = "inline_backfilled"
	StateBackgroundEnqueued SyncState = "background_enqueued"
	StateDone               SyncState = "done"
	StateFailed             SyncState = "failed"
)

// SyncError records which step a sync failed in.
type SyncError struct {
	State SyncState
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("match sync failed while %s: %v", e.State, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

type SyncResult struct {
	Identity       *domain.Identity
	State          SyncState
	MatchIDs       []string
	Matches        []domain.Match
	InlineFetched  []string
	InlineNotFound []string
	InlineFailed   []string
	Enqueued       []string
	JobIDs         []string
	EnqueueErr     error
}

type MatchSyncService struct {
	identities *IdentityService
	upstream   Upstream
	matches    MatchStore
	queue      JobQueue
	recorder   metrics.Recorder
	cfg        config.SyncConfig
	platform   string
	logger     zerolog.Logger
}

func NewMatchSyncService(
	identities *IdentityService,
	upstream Upstream,
	matches MatchStore,
	queue JobQueue,
	recorder metrics.Recorder,
	cfg *config.Config,
	logger zerolog.Logger,
) *MatchSyncService {
	return &MatchSyncService{
		identities: identities,
		upstream:   upstream,
		matches:    matches,
		queue:      queue,
		recorder:   recorder,
		cfg:        cfg.Sync,
		platform:   cfg.Platform,
		logger:     logger,
	}
}

// Sync is the on-demand path: resolve the key, store the match list, fill
// the newest few details inline and queue the rest.
func (s *MatchSyncService) Sync(ctx context.Context, externalKey string) (*SyncResult, error) {
	return s.run(ctx, s.cfg.InlineLimit, func(ctx context.Context) (*domain.Identity, error) {
		return s.identities.FindOrCreate(ctx, externalKey)
	})
}

// Resync re-runs the same steps for a known identity, typically with a
// smaller inline bound since nobody is waiting on the result.
func (s *MatchSyncService) Resync(ctx context.Context, puuid string, inlineLimit int) (*SyncResult, error) {
	return s.run(ctx, inlineLimit, func(ctx context.Context) (*domain.Identity, error) {
		return s.identities.FindOrCreateByPuuid(ctx, puuid)
	})
}

func (s *MatchSyncService) run(ctx context.Context, inlineLimit int, resolve func(context.Context) (*domain.Identity, error)) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{State: StateResolving}

	identity, err := resolve(ctx)
	if err != nil {
		return s.fail(ctx, result, StateResolving, err)
	}
	result.Identity = identity
	log := s.logger.With().Str("puuid", identity.Puuid).Logger()

	ids, err := s.fetchMatchIDs(ctx, identity.Puuid)
	if err != nil {
		return s.fail(ctx, result, StateListFetched, err)
	}
	result.MatchIDs = ids
	s.advance(log, result, StateListFetched)

	if _, err := s.matches.UpsertStubsAndLinks(ctx, identity.ID, ids); err != nil {
		return s.fail(ctx, result, StateStubsUpserted, err)
	}
	s.advance(log, result, StateStubsUpserted)

	missing, err := s.matches.ListMissingDetail(ctx, ids)
	if err != nil {
		return s.fail(ctx, result, StateInlineBackfilled, err)
	}
	s.backfillInline(ctx, log, result, missing[:min(inlineLimit, len(missing))])
	if err := ctx.Err(); err != nil {
		// the caller gave up; whatever was written stays written
		return s.fail(ctx, result, StateInlineBackfilled, err)
	}
	s.advance(log, result, StateInlineBackfilled)

	remaining, err := s.matches.ListMissingDetail(ctx, ids)
	if err != nil {
		return s.fail(ctx, result, StateBackgroundEnqueued, err)
	}
	remaining = slices.DeleteFunc(remaining, func(id string) bool {
		return slices.Contains(result.InlineNotFound, id)
	})
	s.enqueue(ctx, log, result, identity.Puuid, remaining)
	s.advance(log, result, StateBackgroundEnqueued)

	matches, err := s.matches.ListForIdentity(ctx, identity.ID, 0)
	if err != nil {
		return s.fail(ctx, result, StateDone, err)
	}
	result.Matches = matches
	s.advance(log, result, StateDone)

	s.recorder.Increment(ctx, "sync.matches", 1, metrics.Tags{"status": "success"})
	log.Info().
		Int("match_ids", len(ids)).
		Int("inline_fetched", len(result.InlineFetched)).
		Int("enqueued", len(result.Enqueued)).
		Int("jobs", len(result.JobIDs)).
		Dur("duration", time.Since(start)).
		Msg("match sync completed")
	return result, nil
}

func (s *MatchSyncService) advance(log zerolog.Logger, result *SyncResult, next SyncState) {
	log.Debug().Str("from", string(result.State)).Str("to", string(next)).Msg("match sync state")
	result.State = next
}

func (s *MatchSyncService) fail(ctx context.Context, result *SyncResult, at SyncState, err error) (*SyncResult, error) {
	result.State = StateFailed
	status := "failed"
	if errors.Is(err, domain.ErrNotFound) {
		status = "not_found"
	}
	s.recorder.Increment(ctx, "sync.matches", 1, metrics.Tags{"status": status, "state": string(at)})
	s.logger.Warn().Err(err).Str("state", string(at)).Msg("match sync failed")
	return result, &SyncError{State: at, Err: err}
}

// fetchMatchIDs pages through the id list until MatchCount ids are
// collected or the upstream runs out. Order is preserved (newest first).
func (s *MatchSyncService) fetchMatchIDs(ctx context.Context, puuid string) ([]string, error) {
	total := s.cfg.MatchCount
	pageSize := max(s.cfg.PageSize, 1)

	seen := make(map[string]struct{}, total)
	ids := make([]string, 0, total)
	for start := 0; start < total; start += pageSize {
		count := min(pageSize, total-start)
		page, err := s.upstream.GetMatchIDs(ctx, puuid, start, count)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch match ids: %w", err)
		}
		for _, raw := range page {
			id := domain.NormalizeMatchID(raw, s.platform)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if len(page) < count {
			break
		}
	}
	return ids, nil
}

// backfillInline fetches details concurrently. Individual failures are
// recorded on the result and never abort the sync.
func (s *MatchSyncService) backfillInline(ctx context.Context, log zerolog.Logger, result *SyncResult, ids []string) {
	if len(ids) == 0 {
		return
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(len(ids))

	for _, id := range ids {
		g.Go(func() error {
			err := FetchAndStoreDetail(ctx, s.upstream, s.matches, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.InlineFetched = append(result.InlineFetched, id)
			case errors.Is(err, domain.ErrNotFound):
				result.InlineNotFound = append(result.InlineNotFound, id)
				log.Info().Str("match_id", id).Msg("match detail not found upstream")
			default:
				result.InlineFailed = append(result.InlineFailed, id)
				log.Warn().Err(err).Str("match_id", id).Msg("inline detail fetch failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	s.recorder.Increment(ctx, "sync.inline_backfill", int64(len(result.InlineFetched)), metrics.Tags{"status": "fetched"})
	if n := len(result.InlineFailed); n > 0 {
		s.recorder.Increment(ctx, "sync.inline_backfill", int64(n), metrics.Tags{"status": "failed"})
	}
}

// enqueue batches missing ids into jobs whose ids depend only on the batch
// contents, so repeating a sync does not duplicate jobs.
func (s *MatchSyncService) enqueue(ctx context.Context, log zerolog.Logger, result *SyncResult, puuid string, missing []string) {
	if len(missing) == 0 {
		return
	}

	sorted := slices.Clone(missing)
	slices.Sort(sorted)
	batchSize := max(s.cfg.BatchSize, 1)

	for batch := range slices.Chunk(sorted, batchSize) {
		jobID := domain.DetailJobID(batch)
		payload, err := json.Marshal(domain.DetailFetchJob{
			MatchIDs:   batch,
			Puuid:      puuid,
			EnqueuedAt: time.Now().UTC(),
		})
		if err != nil {
			result.EnqueueErr = err
			continue
		}

		created, err := s.queue.Enqueue(ctx, jobID, payload)
		if err != nil {
			result.EnqueueErr = err
			log.Error().Err(err).Str("job_id", jobID).Msg("failed to enqueue match detail job")
			s.recorder.Increment(ctx, "sync.enqueue", 1, metrics.Tags{"status": "failed"})
			continue
		}
		status := "created"
		if !created {
			status = "duplicate"
		}
		s.recorder.Increment(ctx, "sync.enqueue", 1, metrics.Tags{"status": status})
		result.JobIDs = append(result.JobIDs, jobID)
		result.Enqueued = append(result.Enqueued, batch...)
	}
}

// FetchAndStoreDetail fetches one match and writes it if still missing.
// Shared by the inline path, the worker and on-demand lookups.
func FetchAndStoreDetail(ctx context.Context, upstream Upstream, matches MatchStore, matchID string) error {
	detail, err := upstream.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if _, err := matches.SetDetailIfNull(ctx, matchID, detail.Raw, detail.GameStartAt); err != nil {
		return fmt.Errorf("failed to store detail for %s: %w", matchID, err)
	}
	return nil
}
