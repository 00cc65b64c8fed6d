package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 30*time.Second, cfg.SourceCacheTTL)
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 5, cfg.LoginRateLimit)
	assert.False(t, cfg.PlaceholderTransactionTypes)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SOURCE_CACHE_TTL", "2m")
	t.Setenv("PLACEHOLDER_TRANSACTION_TYPES", "true")
	t.Setenv("AUTH_SECRET", "  0123456789abcdef0123456789abcdef  ")
	t.Setenv("SERVICE_TOKEN", " peer-service-token ")
	t.Setenv("CREDIT_NOTES_TOKEN", "upstream-token ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2*time.Minute, cfg.SourceCacheTTL)
	assert.True(t, cfg.PlaceholderTransactionTypes)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.AuthSecret)
	assert.Equal(t, "peer-service-token", cfg.ServiceToken)
	assert.Equal(t, "upstream-token", cfg.CreditNotesToken)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("SOURCE_CACHE_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	loc, err := Config{Timezone: "Local"}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = Config{Timezone: "UTC"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = Config{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
