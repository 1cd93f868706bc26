package worker

import (
	"context"
	"sync"
	"time"

	"league-tracker/internal/api"
	"league-tracker/internal/domain"
)

type stubUpstream struct {
	mu        sync.Mutex
	notFound  map[string]bool
	transient map[string]bool
	calls     map[string]int
}

func newStubUpstream() *stubUpstream {
	return &stubUpstream{notFound: map[string]bool{}, transient: map[string]bool{}, calls: map[string]int{}}
}

func (s *stubUpstream) GetAccountByRiotID(context.Context, domain.RiotID) (*api.AccountDTO, error) {
	return nil, domain.ErrNotFound
}

func (s *stubUpstream) GetAccountByPuuid(context.Context, string) (*api.AccountDTO, error) {
	return nil, domain.ErrNotFound
}

func (s *stubUpstream) GetSummonerByPuuid(context.Context, string) (*api.SummonerDTO, error) {
	return nil, domain.ErrNotFound
}

func (s *stubUpstream) GetRankByPuuid(context.Context, string) ([]api.LeagueEntryDTO, error) {
	return nil, nil
}

func (s *stubUpstream) GetMatchIDs(context.Context, string, int, int) ([]string, error) {
	return nil, nil
}

func (s *stubUpstream) GetMatch(_ context.Context, id string) (*api.MatchDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	if s.notFound[id] {
		return nil, &domain.UpstreamError{Kind: domain.ErrNotFound, Status: 404}
	}
	if s.transient[id] {
		return nil, &domain.UpstreamError{Kind: domain.ErrUpstreamTransient, Status: 503}
	}
	return &api.MatchDetail{MatchID: id, Raw: []byte(`{"id":"` + id + `"}`)}, nil
}

// memMatches keeps match rows in memory with the same set-if-null rule as
// the SQL store.
type memMatches struct {
	mu      sync.Mutex
	details map[string][]byte
}

func newMemMatches(ids ...string) *memMatches {
	m := &memMatches{details: map[string][]byte{}}
	for _, id := range ids {
		m.details[id] = nil
	}
	return m
}

func (m *memMatches) UpsertStubsAndLinks(_ context.Context, _ string, ids []string) ([]domain.MatchStub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stubs []domain.MatchStub
	for _, id := range ids {
		if _, ok := m.details[id]; !ok {
			m.details[id] = nil
		}
		stubs = append(stubs, domain.MatchStub{ID: id, ExternalID: id, HasDetail: m.details[id] != nil})
	}
	return stubs, nil
}

func (m *memMatches) UpsertStub(ctx context.Context, id string) (domain.MatchStub, error) {
	stubs, err := m.UpsertStubsAndLinks(ctx, "", []string{id})
	if err != nil {
		return domain.MatchStub{}, err
	}
	return stubs[0], nil
}

func (m *memMatches) SetDetailIfNull(_ context.Context, id string, detail []byte, _ *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.details[id]
	if !ok || current != nil {
		return false, nil
	}
	m.details[id] = detail
	return true, nil
}

func (m *memMatches) ListMissingDetail(_ context.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	for _, id := range ids {
		if detail, ok := m.details[id]; ok && detail == nil {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *memMatches) GetByExternalID(_ context.Context, id string) (*domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	detail, ok := m.details[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Match{ID: id, ExternalID: id, Detail: detail}, nil
}

func (m *memMatches) ListForIdentity(context.Context, string, int) ([]domain.Match, error) {
	return nil, nil
}

func (m *memMatches) detail(id string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.details[id]
}
