// Package config loads the moviesync configuration from config.yaml and
// MOVIESYNC_* environment variables, and initializes the global logger.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	TMDB       SourceConfig     `yaml:"tmdb" mapstructure:"tmdb"`
	OMDB       SourceConfig     `yaml:"omdb" mapstructure:"omdb"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Refresh    RefreshConfig    `yaml:"refresh" mapstructure:"refresh"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the analytical store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig configures one external source: credentials, endpoint and
// its request budget.
type SourceConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxConcurrent     int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RetryConfig configures per-request retries.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs    int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the per-source circuit breaker. A zero
// failure_threshold disables it.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RefreshConfig configures selection and freezing.
type RefreshConfig struct {
	Limit      int          `yaml:"limit" mapstructure:"limit"`
	PolicyFile string       `yaml:"policy_file" mapstructure:"policy_file"`
	Freeze     FreezeConfig `yaml:"freeze" mapstructure:"freeze"`
}

// FreezeConfig overrides the freeze rule of the refresh policy.
type FreezeConfig struct {
	Mode         string `yaml:"mode" mapstructure:"mode"`
	MinAgeDays   int    `yaml:"min_age_days" mapstructure:"min_age_days"`
	StableCycles int    `yaml:"stable_cycles" mapstructure:"stable_cycles"`
}

// DiscoveryConfig configures the discovery listing.
type DiscoveryConfig struct {
	MinVoteCount int `yaml:"min_vote_count" mapstructure:"min_vote_count"`
	MaxPages     int `yaml:"max_pages" mapstructure:"max_pages"`
}

// ServerConfig configures the HTTP server and its cycle scheduler.
// ScheduleIntervalMins runs a cycle periodically; zero disables it.
type ServerConfig struct {
	Port                 int      `yaml:"port" mapstructure:"port"`
	ScheduleIntervalMins int      `yaml:"schedule_interval_mins" mapstructure:"schedule_interval_mins"`
	AllowedOrigins       []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures alert checks.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	BacklogThreshold     int64   `yaml:"backlog_threshold" mapstructure:"backlog_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MOVIESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key is listed so environment overrides reach Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "moviesync.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("tmdb.key", "")
	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.requests_per_second", 4.0)
	v.SetDefault("tmdb.max_concurrent", 10)
	v.SetDefault("tmdb.timeout_secs", 30)
	v.SetDefault("omdb.key", "")
	v.SetDefault("omdb.base_url", "https://www.omdbapi.com")
	v.SetDefault("omdb.requests_per_second", 5.0)
	v.SetDefault("omdb.max_concurrent", 5)
	v.SetDefault("omdb.timeout_secs", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 60000)
	v.SetDefault("retry.jitter_fraction", 0.0)
	v.SetDefault("circuit.failure_threshold", 0)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("refresh.limit", 100)
	v.SetDefault("refresh.policy_file", "")
	v.SetDefault("refresh.freeze.mode", "stability")
	v.SetDefault("refresh.freeze.min_age_days", 365)
	v.SetDefault("refresh.freeze.stable_cycles", 3)
	v.SetDefault("discovery.min_vote_count", 200)
	v.SetDefault("discovery.max_pages", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.schedule_interval_mins", 0)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.backlog_threshold", 0)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes: "collect"
// (both sources and the store), "discover" (source A and the store),
// "store" (the store only) and "serve" (collect plus a valid port).
func (c *Config) Validate(mode string) error {
	var missing []string
	require := func(ok bool, msg string) {
		if !ok {
			missing = append(missing, msg)
		}
	}

	switch c.Store.Driver {
	case "postgres", "sqlite", "duckdb":
	default:
		missing = append(missing, fmt.Sprintf("store.driver %q is not one of postgres, sqlite, duckdb", c.Store.Driver))
	}
	require(c.Store.DatabaseURL != "", "store.database_url is required")

	switch mode {
	case "store":
	case "discover":
		require(c.TMDB.Key != "", "tmdb.key is required")
	case "collect", "serve":
		require(c.TMDB.Key != "", "tmdb.key is required")
		require(c.OMDB.Key != "", "omdb.key is required")
		if mode == "serve" {
			require(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	for _, src := range []struct {
		name string
		cfg  SourceConfig
	}{{"tmdb", c.TMDB}, {"omdb", c.OMDB}} {
		require(src.cfg.RequestsPerSecond >= 0, src.name+".requests_per_second must not be negative")
		require(src.cfg.MaxConcurrent > 0, src.name+".max_concurrent must be positive")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
