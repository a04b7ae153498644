// Package config loads the server configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"resonance/internal/moderation"

	"github.com/rs/zerolog"
)

// Config holds every setting the server reads at startup
type Config struct {
	Port      string
	LogLevel  zerolog.Level
	LogJSON   bool
	DBPath    string
	ContentDB string
	RolesPath string
	RedisURL  string

	ExpirationInterval time.Duration
	DispatchInterval   time.Duration
	MetricsInterval    time.Duration

	OTLPEndpoint string

	ReportLimitPerDay  int
	ActionLimitPerHour int
}

// Defaults
const (
	DefaultPort               = "18920"
	DefaultExpirationInterval = time.Hour
	DefaultDispatchInterval   = 10 * time.Second
	DefaultMetricsInterval    = time.Minute
	DefaultReportLimitPerDay  = 10
	DefaultActionLimitPerHour = 100
)

// Load reads the configuration from the process environment
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:         getenv("PORT"),
		LogJSON:      getenv("LOG_FORMAT") == "json",
		DBPath:       getenv("RESONANCE_DB_PATH"),
		ContentDB:    getenv("RESONANCE_CONTENT_DB_PATH"),
		RolesPath:    getenv("RESONANCE_ROLES_PATH"),
		RedisURL:     getenv("REDIS_URL"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if n, err := strconv.Atoi(cfg.Port); err != nil || n < 1 || n > 65535 {
		return nil, &moderation.ConfigError{Field: "PORT", Message: "must be a port number"}
	}

	level, err := parseLevel(getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.DBPath == "" || cfg.ContentDB == "" {
		// Default to XDG data directory or home directory for development
		dataDir := getenv("XDG_DATA_HOME")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, &moderation.ConfigError{Field: "RESONANCE_DB_PATH", Message: "no home directory: " + err.Error()}
			}
			dataDir = filepath.Join(home, ".local", "share")
		}
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(dataDir, "resonance", "moderation.db")
		}
		if cfg.ContentDB == "" {
			cfg.ContentDB = filepath.Join(dataDir, "resonance", "content.db")
		}
	}

	if cfg.ExpirationInterval, err = duration(getenv, "EXPIRATION_INTERVAL", DefaultExpirationInterval); err != nil {
		return nil, err
	}
	if cfg.DispatchInterval, err = duration(getenv, "DISPATCH_INTERVAL", DefaultDispatchInterval); err != nil {
		return nil, err
	}
	if cfg.MetricsInterval, err = duration(getenv, "METRICS_INTERVAL", DefaultMetricsInterval); err != nil {
		return nil, err
	}
	if cfg.ReportLimitPerDay, err = positiveInt(getenv, "REPORT_LIMIT_PER_DAY", DefaultReportLimitPerDay); err != nil {
		return nil, err
	}
	if cfg.ActionLimitPerHour, err = positiveInt(getenv, "ACTION_LIMIT_PER_HOUR", DefaultActionLimitPerHour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RateLimits returns the limiter windows for the configured limits
func (c *Config) RateLimits() map[moderation.Bucket]moderation.Limit {
	return map[moderation.Bucket]moderation.Limit{
		moderation.BucketReports: {Max: c.ReportLimitPerDay, Window: 24 * time.Hour},
		moderation.BucketActions: {Max: c.ActionLimitPerHour, Window: time.Hour},
	}
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

func parseLevel(raw string) (zerolog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, &moderation.ConfigError{Field: "LOG_LEVEL", Message: "must be one of debug, info, warn, error"}
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, &moderation.ConfigError{Field: key, Message: "must be a positive duration such as 30s or 1h"}
	}
	return d, nil
}

func positiveInt(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &moderation.ConfigError{Field: key, Message: "must be a positive integer"}
	}
	return n, nil
}
