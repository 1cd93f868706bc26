package service

import (
	"context"
	"testing"

	"league-tracker/internal/api"
	"league-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRank_StoredIdentity(t *testing.T) {
	h := newHarness(t, nil)
	h.upstream.addPlayer("Faker", "KR1", "puuid-faker", 0)
	h.upstream.ranks["puuid-faker"] = []api.LeagueEntryDTO{
		{QueueType: "RANKED_SOLO_5x5", Tier: "CHALLENGER", Rank: "I", LeaguePoints: 1400, Wins: 300, Losses: 200},
	}
	ctx := context.Background()

	stored, err := h.identity.FindOrCreate(ctx, "Faker#KR1")
	require.NoError(t, err)

	for _, key := range []string{"puuid-faker", "faker#kr1", " Faker#KR1 "} {
		identity, entries, err := h.identity.GetRank(ctx, key)
		require.NoError(t, err, key)
		assert.Equal(t, stored.ID, identity.ID, key)
		require.Len(t, entries, 1)
		assert.Equal(t, "CHALLENGER", entries[0].Tier)
	}
}

func TestGetRank_UnrankedPlayer(t *testing.T) {
	h := newHarness(t, nil)
	h.upstream.addPlayer("Nobody", "NA1", "puuid-nobody", 0)
	ctx := context.Background()

	_, err := h.identity.FindOrCreate(ctx, "Nobody#NA1")
	require.NoError(t, err)

	// bare names fall back to the platform tag
	identity, entries, err := h.identity.GetRank(ctx, "Nobody")
	require.NoError(t, err)
	assert.Equal(t, "puuid-nobody", identity.Puuid)
	assert.Empty(t, entries)
}

func TestGetRank_UnknownIdentitySkipsUpstream(t *testing.T) {
	h := newHarness(t, nil)
	h.upstream.addPlayer("Faker", "KR1", "puuid-faker", 0)

	_, _, err := h.identity.GetRank(context.Background(), "Faker#KR1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, h.upstream.rankCalls)

	_, _, err = h.identity.GetRank(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
