package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"league-tracker/internal/api"
	"league-tracker/internal/config"
	"league-tracker/internal/constants"
	"league-tracker/internal/domain"

	"github.com/rs/zerolog"
)

// Riot PUUIDs are always this long; anything else is treated as a Riot ID.
const puuidLength = 78

type IdentityService struct {
	upstream   Upstream
	identities IdentityStore
	defaultTag string
	logger     zerolog.Logger
}

func NewIdentityService(upstream Upstream, identities IdentityStore, cfg *config.Config, logger zerolog.Logger) *IdentityService {
	tag := constants.DefaultTagLine
	if cfg != nil && cfg.Platform != "" {
		tag = cfg.Platform
	}
	return &IdentityService{
		upstream:   upstream,
		identities: identities,
		defaultTag: tag,
		logger:     logger,
	}
}

// FindOrCreate resolves externalKey (a Riot ID or a PUUID) against the
// upstream and upserts the result. Upstream is always asked; the local row
// is never used as a cache.
func (s *IdentityService) FindOrCreate(ctx context.Context, externalKey string) (*domain.Identity, error) {
	key := strings.TrimSpace(externalKey)
	if key == "" {
		return nil, fmt.Errorf("%w: empty identity key", domain.ErrInvalidInput)
	}
	if !strings.Contains(key, "#") && len(key) == puuidLength {
		return s.FindOrCreateByPuuid(ctx, key)
	}

	riotID, err := domain.ParseRiotID(key, s.defaultTag)
	if err != nil {
		return nil, err
	}
	return s.FindOrCreateByRiotID(ctx, riotID)
}

func (s *IdentityService) FindOrCreateByRiotID(ctx context.Context, riotID domain.RiotID) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	account, err := s.upstream.GetAccountByRiotID(ctx, riotID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info().Str("riot_id", riotID.String()).Msg("identity not found upstream")
		}
		return nil, fmt.Errorf("failed to resolve %s: %w", riotID, err)
	}
	return s.store(ctx, account.Puuid, account.GameName, account.TagLine)
}

func (s *IdentityService) FindOrCreateByPuuid(ctx context.Context, puuid string) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	account, err := s.upstream.GetAccountByPuuid(ctx, puuid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info().Str("puuid", puuid).Msg("identity not found upstream")
		}
		return nil, fmt.Errorf("failed to resolve puuid %s: %w", puuid, err)
	}
	return s.store(ctx, account.Puuid, account.GameName, account.TagLine)
}

// Lookup finds a stored identity by PUUID or Riot ID without asking upstream.
func (s *IdentityService) Lookup(ctx context.Context, key string) (*domain.Identity, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: empty identity key", domain.ErrInvalidInput)
	}
	if !strings.Contains(key, "#") {
		identity, err := s.identities.GetByPuuid(ctx, key)
		if !errors.Is(err, domain.ErrNotFound) {
			return identity, err
		}
	}

	riotID, err := domain.ParseRiotID(key, s.defaultTag)
	if err != nil {
		return nil, err
	}
	return s.identities.GetByRiotID(ctx, riotID)
}

// GetRank fetches ranked standings for an identity already stored locally.
func (s *IdentityService) GetRank(ctx context.Context, key string) (*domain.Identity, []api.LeagueEntryDTO, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	identity, err := s.Lookup(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.upstream.GetRankByPuuid(ctx, identity.Puuid)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch rank for %s: %w", identity.Puuid, err)
	}
	s.logger.Debug().Str("puuid", identity.Puuid).Int("entries", len(entries)).Msg("rank fetched")
	return identity, entries, nil
}

func (s *IdentityService) store(ctx context.Context, puuid, gameName, tagLine string) (*domain.Identity, error) {
	if puuid == "" {
		return nil, fmt.Errorf("%w: upstream account without puuid", domain.ErrUpstreamRejected)
	}

	profile := domain.IdentityProfile{
		Puuid:    puuid,
		GameName: gameName,
		TagLine:  tagLine,
	}

	// profile attributes are a bonus; keep the stored ones if this fails
	summoner, err := s.upstream.GetSummonerByPuuid(ctx, puuid)
	switch {
	case err == nil:
		profile.ProfileIconID = &summoner.ProfileIconID
		profile.SummonerLevel = &summoner.SummonerLevel
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Debug().Str("puuid", puuid).Msg("no summoner profile for account")
	default:
		s.logger.Warn().Err(err).Str("puuid", puuid).Msg("summoner lookup failed, keeping stored profile")
	}

	start := time.Now()
	identity, err := s.identities.Upsert(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to store identity: %w", err)
	}

	s.logger.Info().
		Str("puuid", identity.Puuid).
		Str("riot_id", identity.RiotID()).
		Dur("duration", time.Since(start)).
		Msg("identity resolved")
	return identity, nil
}
