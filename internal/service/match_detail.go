package service

import (
	"context"
	"errors"
	"fmt"

	"league-tracker/internal/config"
	"league-tracker/internal/constants"
	"league-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type MatchDetailService struct {
	upstream   Upstream
	matches    MatchStore
	identities IdentityStore
	platform   string
	logger     zerolog.Logger
}

func NewMatchDetailService(upstream Upstream, matches MatchStore, identities IdentityStore, cfg *config.Config, logger zerolog.Logger) *MatchDetailService {
	return &MatchDetailService{upstream: upstream, matches: matches, identities: identities, platform: cfg.Platform, logger: logger}
}

// GetMatch serves stored detail, fetching it on demand when the match is
// unknown or still a stub.
func (s *MatchDetailService) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	id := domain.NormalizeMatchID(matchID, s.platform)
	if id == "" {
		return nil, fmt.Errorf("%w: empty match id", domain.ErrInvalidInput)
	}

	match, err := s.matches.GetByExternalID(ctx, id)
	if err == nil && match.HasDetail() {
		s.logger.Debug().Str("match_id", id).Msg("match found in store")
		return match, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	s.logger.Debug().Str("match_id", id).Msg("match detail missing, fetching from upstream")
	detail, err := s.upstream.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	// only create the row once upstream has confirmed the match exists
	if _, err := s.matches.UpsertStub(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.matches.SetDetailIfNull(ctx, id, detail.Raw, detail.GameStartAt); err != nil {
		return nil, fmt.Errorf("failed to store detail for %s: %w", id, err)
	}
	return s.matches.GetByExternalID(ctx, id)
}

// ListMatches reads stored matches for an identity without calling upstream.
func (s *MatchDetailService) ListMatches(ctx context.Context, puuid string, limit int) (*domain.Identity, []domain.Match, error) {
	if limit <= 0 || limit > constants.ListMatchesMaxLimit {
		limit = constants.ListMatchesMaxLimit
	}

	identity, err := s.identities.GetByPuuid(ctx, puuid)
	if err != nil {
		return nil, nil, err
	}
	matches, err := s.matches.ListForIdentity(ctx, identity.ID, limit)
	if err != nil {
		return nil, nil, err
	}
	return identity, matches, nil
}
