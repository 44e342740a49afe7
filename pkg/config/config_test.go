package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithDir(t *testing.T) *Config {
	t.Helper()
	t.Setenv("A2A_CONFIG_DIR", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadWithDir(t)

	assert.Equal(t, 0, cfg.Port, "no port means walking the fallback list")
	assert.Empty(t, cfg.AdminToken)
	assert.Equal(t, "adaptive", cfg.CollabMode)
	assert.Equal(t, DefaultCollabStateTTL, cfg.CollabStateTTL)
	assert.Equal(t, DefaultCollabMaxSessions, cfg.CollabMaxSessions)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultRatePerMinute, cfg.RateLimits.PerMinute)
	assert.Equal(t, DefaultRatePerHour, cfg.RateLimits.PerHour)
	assert.Equal(t, DefaultRatePerDay, cfg.RateLimits.PerDay)
	assert.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)
	assert.Equal(t, DefaultMaxDuration, cfg.MaxDuration)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("A2A_CONFIG_DIR", t.TempDir())
	t.Setenv("PORT", "4455")
	t.Setenv("A2A_ADMIN_TOKEN", "sekrit")
	t.Setenv("A2A_COLLAB_MODE", "deep_dive")
	t.Setenv("A2A_COLLAB_STATE_TTL_MS", "60000")
	t.Setenv("A2A_COLLAB_MAX_SESSIONS", "42")
	t.Setenv("A2A_LOG_LEVEL", "debug")
	t.Setenv("A2A_RATE_LIMIT_PER_MINUTE", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4455, cfg.Port)
	assert.Equal(t, "sekrit", cfg.AdminToken)
	assert.Equal(t, "deep_dive", cfg.CollabMode)
	assert.Equal(t, time.Minute, cfg.CollabStateTTL)
	assert.Equal(t, 42, cfg.CollabMaxSessions)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.RateLimits.PerMinute)
}

func TestLoadRejectsUnknownCollabMode(t *testing.T) {
	t.Setenv("A2A_CONFIG_DIR", t.TempDir())
	t.Setenv("A2A_COLLAB_MODE", "turbo")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "adaptive", cfg.CollabMode, "unknown modes fall back to adaptive")
}

func TestLoadLegacyConfigDirAlias(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("A2A_CONFIG_DIR", "")
	t.Setenv("OPENCLAW_CONFIG_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.ConfigDir)
}

func TestPaths(t *testing.T) {
	cfg := loadWithDir(t)

	assert.Equal(t, filepath.Join(cfg.ConfigDir, "a2a.json"), cfg.CredentialsPath())
	assert.Equal(t, filepath.Join(cfg.ConfigDir, "a2a-conversations.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join(cfg.ConfigDir, "a2a-config.json"), cfg.TierConfigPath())
	assert.Equal(t, filepath.Join(cfg.ConfigDir, "a2a-disclosure.json"), cfg.DisclosurePath())
}
