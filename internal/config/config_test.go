package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.ManagerPIN)
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_NAME", "STORE_TIMEZONE", "OVERSELL_POLICY", "DATABASE_URL", "IDEMPOTENCY_TTL_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "POS Store", cfg.StoreName)
	assert.Equal(t, "Asia/Jakarta", cfg.StoreTimezone)
	assert.Equal(t, "clamp", cfg.OversellPolicy)
	assert.Equal(t, 86400, cfg.IdempotencyTTLSeconds)
	assert.Empty(t, cfg.DatabaseURL)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://pos@localhost/pos")
	t.Setenv("OVERSELL_POLICY", " Reject ")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MIGRATE_ON_START", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "postgres://pos@localhost/pos", cfg.DatabaseURL)
	assert.Equal(t, "reject", cfg.OversellPolicy)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.False(t, cfg.MigrateOnStart)
}
