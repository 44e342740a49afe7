// Package config resolves the runtime configuration for the A2A
// service from environment variables and the config directory. The
// closed set of environment knobs is documented on Load.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Default limits and timeouts. Rate limits are per token.
const (
	DefaultRatePerMinute = 10
	DefaultRatePerHour   = 100
	DefaultRatePerDay    = 1000

	DefaultIdleTimeout   = 60 * time.Second
	DefaultMaxDuration   = 300 * time.Second
	DefaultSweepInterval = 10 * time.Second

	DefaultCollabStateTTL    = 6 * time.Hour
	DefaultCollabMaxSessions = 500
)

// PortFallbacks is the listen-port preference order when neither PORT
// nor the CLI argument is set.
var PortFallbacks = []int{80, 3001, 8080, 8443, 9001}

// RateLimits holds the per-token admission thresholds for the three
// fixed windows.
type RateLimits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Config is the resolved runtime configuration.
type Config struct {
	ConfigDir string

	// Port is the explicit listen port; 0 means walk PortFallbacks.
	Port int

	// AdminToken must match x-admin-token for non-loopback admin
	// requests. Empty disables remote admin access entirely.
	AdminToken string

	CollabMode        string
	CollabStateTTL    time.Duration
	CollabMaxSessions int

	LogLevel string

	RateLimits RateLimits

	IdleTimeout   time.Duration
	MaxDuration   time.Duration
	SweepInterval time.Duration
}

// Load resolves configuration from the environment. The recognised
// variables are A2A_CONFIG_DIR (alias OPENCLAW_CONFIG_DIR),
// A2A_ADMIN_TOKEN, A2A_COLLAB_MODE, A2A_COLLAB_STATE_TTL_MS,
// A2A_COLLAB_MAX_SESSIONS, A2A_LOG_LEVEL,
// A2A_RATE_LIMIT_{PER_MINUTE,PER_HOUR,PER_DAY} and PORT.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("A2A")
	v.AutomaticEnv()

	v.SetDefault("collab_mode", "adaptive")
	v.SetDefault("collab_state_ttl_ms", int64(DefaultCollabStateTTL/time.Millisecond))
	v.SetDefault("collab_max_sessions", DefaultCollabMaxSessions)
	v.SetDefault("log_level", "info")
	v.SetDefault("rate_limit_per_minute", DefaultRatePerMinute)
	v.SetDefault("rate_limit_per_hour", DefaultRatePerHour)
	v.SetDefault("rate_limit_per_day", DefaultRatePerDay)

	// PORT is unprefixed by convention.
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("config_dir", "A2A_CONFIG_DIR", "OPENCLAW_CONFIG_DIR")

	dir := v.GetString("config_dir")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get home directory")
		}
		dir = filepath.Join(home, ".config", "openclaw")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create config directory")
	}

	mode := v.GetString("collab_mode")
	if mode != "adaptive" && mode != "deep_dive" {
		mode = "adaptive"
	}

	cfg := &Config{
		ConfigDir:         dir,
		Port:              v.GetInt("port"),
		AdminToken:        v.GetString("admin_token"),
		CollabMode:        mode,
		CollabStateTTL:    time.Duration(v.GetInt64("collab_state_ttl_ms")) * time.Millisecond,
		CollabMaxSessions: v.GetInt("collab_max_sessions"),
		LogLevel:          v.GetString("log_level"),
		RateLimits: RateLimits{
			PerMinute: v.GetInt("rate_limit_per_minute"),
			PerHour:   v.GetInt("rate_limit_per_hour"),
			PerDay:    v.GetInt("rate_limit_per_day"),
		},
		IdleTimeout:   DefaultIdleTimeout,
		MaxDuration:   DefaultMaxDuration,
		SweepInterval: DefaultSweepInterval,
	}
	return cfg, nil
}

// CredentialsPath is the JSON credential store file.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.ConfigDir, "a2a.json")
}

// DBPath is the SQLite file holding conversations, messages,
// collaboration state and logs.
func (c *Config) DBPath() string {
	return filepath.Join(c.ConfigDir, "a2a-conversations.db")
}

// TierConfigPath is the optional tier-defaults override file.
func (c *Config) TierConfigPath() string {
	return filepath.Join(c.ConfigDir, "a2a-config.json")
}

// DisclosurePath is the disclosure manifest file.
func (c *Config) DisclosurePath() string {
	return filepath.Join(c.ConfigDir, "a2a-disclosure.json")
}
