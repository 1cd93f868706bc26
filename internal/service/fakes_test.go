package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"league-tracker/internal/api"
	"league-tracker/internal/config"
	"league-tracker/internal/database"
	"league-tracker/internal/domain"
	"league-tracker/internal/metrics"
	"league-tracker/internal/queue"
	"league-tracker/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	mu           sync.Mutex
	accounts     map[string]api.AccountDTO // keyed by lower-case riot id
	matchIDs     map[string][]string       // keyed by puuid
	ranks        map[string][]api.LeagueEntryDTO
	rankCalls    int
	notFound     map[string]bool
	transient    map[string]bool
	detailCalls  map[string]int
	accountDelay time.Duration
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		accounts:    make(map[string]api.AccountDTO),
		matchIDs:    make(map[string][]string),
		ranks:       make(map[string][]api.LeagueEntryDTO),
		notFound:    make(map[string]bool),
		transient:   make(map[string]bool),
		detailCalls: make(map[string]int),
	}
}

// addPlayer registers an account with n matches, newest first.
func (f *fakeUpstream) addPlayer(gameName, tagLine, puuid string, n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[strings.ToLower(gameName+"#"+tagLine)] = api.AccountDTO{Puuid: puuid, GameName: gameName, TagLine: tagLine}
	ids := make([]string, 0, n)
	for i := n; i >= 1; i-- {
		ids = append(ids, fmt.Sprintf("NA1_%d", i))
	}
	f.matchIDs[puuid] = ids
	return ids
}

func notFoundErr(group string) error {
	return &domain.UpstreamError{Kind: domain.ErrNotFound, MethodGroup: group, Status: 404, Attempts: 1}
}

func (f *fakeUpstream) GetAccountByRiotID(ctx context.Context, riotID domain.RiotID) (*api.AccountDTO, error) {
	if f.accountDelay > 0 {
		time.Sleep(f.accountDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[strings.ToLower(riotID.String())]
	if !ok {
		return nil, notFoundErr(api.GroupAccount)
	}
	return &account, nil
}

func (f *fakeUpstream) GetAccountByPuuid(ctx context.Context, puuid string) (*api.AccountDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Puuid == puuid {
			return &account, nil
		}
	}
	return nil, notFoundErr(api.GroupAccount)
}

func (f *fakeUpstream) GetSummonerByPuuid(ctx context.Context, puuid string) (*api.SummonerDTO, error) {
	return &api.SummonerDTO{Puuid: puuid, ProfileIconID: 29, SummonerLevel: 100}, nil
}

func (f *fakeUpstream) GetRankByPuuid(ctx context.Context, puuid string) ([]api.LeagueEntryDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankCalls++
	return f.ranks[puuid], nil
}

func (f *fakeUpstream) GetMatchIDs(ctx context.Context, puuid string, start, count int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.matchIDs[puuid]
	if start >= len(ids) {
		return []string{}, nil
	}
	end := min(start+count, len(ids))
	return append([]string(nil), ids[start:end]...), nil
}

func (f *fakeUpstream) GetMatch(ctx context.Context, matchID string) (*api.MatchDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[matchID]++
	if f.notFound[matchID] {
		return nil, notFoundErr(api.GroupMatchDetail)
	}
	if f.transient[matchID] {
		return nil, &domain.UpstreamError{Kind: domain.ErrUpstreamTransient, MethodGroup: api.GroupMatchDetail, Status: 503, Attempts: 5}
	}
	var n int64
	_, _ = fmt.Sscanf(matchID, "NA1_%d", &n)
	start := time.UnixMilli(1_700_000_000_000 + n*1000).UTC()
	return &api.MatchDetail{
		MatchID:     matchID,
		Raw:         []byte(fmt.Sprintf(`{"metadata":{"matchId":%q}}`, matchID)),
		GameStartAt: &start,
	}, nil
}

func (f *fakeUpstream) calls(matchID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[matchID]
}

type harness struct {
	upstream   *fakeUpstream
	db         *database.DB
	identities *repository.IdentityRepository
	matches    *repository.MatchRepository
	queue      *queue.RedisQueue
	identity   *IdentityService
	sync       *MatchSyncService
	detail     *MatchDetailService
	cfg        *config.Config
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "svc.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		Platform: "NA1",
		Sync: config.SyncConfig{
			InlineLimit: 5,
			BatchSize:   5,
			MatchCount:  25,
			PageSize:    10,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		upstream:   newFakeUpstream(),
		db:         db,
		identities: repository.NewIdentityRepository(db, logger),
		matches:    repository.NewMatchRepository(db, logger),
		queue:      queue.NewRedisQueue(rdb, "match_details", queue.Options{}, logger),
		cfg:        cfg,
	}
	h.identity = NewIdentityService(h.upstream, h.identities, cfg, logger)
	h.sync = NewMatchSyncService(h.identity, h.upstream, h.matches, h.queue, metrics.Nop{}, cfg, logger)
	h.detail = NewMatchDetailService(h.upstream, h.matches, h.identities, cfg, logger)
	return h
}

// drainJobs pops every queued job.
func (h *harness) drainJobs(t *testing.T) []domain.DetailFetchJob {
	t.Helper()
	ctx := context.Background()
	var jobs []domain.DetailFetchJob
	for {
		d, err := h.queue.TryDequeue(ctx)
		require.NoError(t, err)
		if d == nil {
			return jobs
		}
		var job domain.DetailFetchJob
		require.NoError(t, json.Unmarshal(d.Payload, &job))
		jobs = append(jobs, job)
		require.NoError(t, h.queue.Ack(ctx, d))
	}
}
