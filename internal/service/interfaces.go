package service

import (
	"context"
	"time"

	"league-tracker/internal/api"
	"league-tracker/internal/domain"
)

// Upstream is the subset of the rate-limited client the services use.
type Upstream interface {
	GetAccountByRiotID(ctx context.Context, riotID domain.RiotID) (*api.AccountDTO, error)
	GetAccountByPuuid(ctx context.Context, puuid string) (*api.AccountDTO, error)
	GetSummonerByPuuid(ctx context.Context, puuid string) (*api.SummonerDTO, error)
	GetRankByPuuid(ctx context.Context, puuid string) ([]api.LeagueEntryDTO, error)
	GetMatchIDs(ctx context.Context, puuid string, start, count int) ([]string, error)
	GetMatch(ctx context.Context, matchID string) (*api.MatchDetail, error)
}

type IdentityStore interface {
	Upsert(ctx context.Context, profile domain.IdentityProfile) (*domain.Identity, error)
	GetByPuuid(ctx context.Context, puuid string) (*domain.Identity, error)
	GetByRiotID(ctx context.Context, riotID domain.RiotID) (*domain.Identity, error)
	ListAfter(ctx context.Context, afterID string, limit int) ([]domain.Identity, error)
}

type MatchStore interface {
	UpsertStubsAndLinks(ctx context.Context, identityID string, externalIDs []string) ([]domain.MatchStub, error)
	UpsertStub(ctx context.Context, externalID string) (domain.MatchStub, error)
	SetDetailIfNull(ctx context.Context, externalID string, detail []byte, gameStartAt *time.Time) (bool, error)
	ListMissingDetail(ctx context.Context, externalIDs []string) ([]string, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Match, error)
	ListForIdentity(ctx context.Context, identityID string, limit int) ([]domain.Match, error)
}

// JobQueue must treat a repeated job id as a no-op.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string, payload []byte) (bool, error)
}
