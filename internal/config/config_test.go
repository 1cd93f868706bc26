package config

import (
	"testing"
	"time"

	"league-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("RIOT_API_KEY", "")

	_, err := Load(zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "RIOT_API_KEY")
}

func TestLoad_PlaceholderAPIKeyRejected(t *testing.T) {
	t.Setenv("RIOT_API_KEY", "replace-me")

	_, err := Load(zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RIOT_API_KEY", "RGAPI-test")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "NA1", cfg.Platform)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, 5, cfg.Sync.InlineLimit)
	assert.Equal(t, 5, cfg.Sync.BatchSize)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseBackoff)
	assert.Equal(t, time.Minute, cfg.Retry.MaxBackoff)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, "@every 6h", cfg.Worker.ResyncSchedule)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RIOT_API_KEY", "RGAPI-test")
	t.Setenv("RIOT_PLATFORM", "euw1")
	t.Setenv("RIOT_REGIONAL_URL", "https://europe.api.riotgames.com/")
	t.Setenv("SYNC_INLINE_LIMIT", "0")
	t.Setenv("RETRY_BASE_BACKOFF", "250ms")
	t.Setenv("BREAKER_ENABLED", "false")
	t.Setenv("RESYNC_RATE", "0.5")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "EUW1", cfg.Platform)
	assert.Equal(t, "https://europe.api.riotgames.com", cfg.RegionalURL)
	assert.Equal(t, 0, cfg.Sync.InlineLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseBackoff)
	assert.False(t, cfg.Breaker.Enabled)
	assert.InDelta(t, 0.5, cfg.Worker.ResyncRate, 1e-9)
}

func TestValidate_CollectsProblems(t *testing.T) {
	t.Setenv("RIOT_API_KEY", "RGAPI-test")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("SYNC_PAGE_SIZE", "500")
	t.Setenv("RETRY_JITTER", "2")

	_, err := Load(zerolog.Nop())
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "SYNC_PAGE_SIZE")
	assert.Contains(t, err.Error(), "RETRY_JITTER")
}
