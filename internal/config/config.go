package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for adhocskip.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	// SkipThresholdSeconds is the maximum delay before a scheduled run is skipped.
	SkipThresholdSeconds float64 `json:"-"`
	SkipThresholdStr     string  `json:"skip_threshold_seconds"`

	HTTPAddr string `json:"http_addr"`

	// DatabaseURL enables the decision audit log. Empty disables it.
	DatabaseURL string `json:"database_url,omitempty"`
	// RedisAddr enables per-minute decision counters. Empty disables them.
	RedisAddr string `json:"redis_addr,omitempty"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`

	HTTPShutdownTimeout     time.Duration `json:"-"`
	HTTPShutdownTimeoutStr  string        `json:"http_shutdown_timeout"`
	RecorderDrainTimeout    time.Duration `json:"-"`
	RecorderDrainTimeoutStr string        `json:"recorder_drain_timeout"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`

	// RecorderBreakerThreshold: 0 disables the recorder circuit breaker.
	RecorderBreakerThreshold   int           `json:"recorder_breaker_threshold"`
	RecorderBreakerCooldown    time.Duration `json:"-"`
	RecorderBreakerCooldownStr string        `json:"recorder_breaker_cooldown"`

	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		SkipThresholdStr:           os.Getenv("SKIP_THRESHOLD_SECONDS"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		DBOpTimeoutStr:             os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		RecorderDrainTimeoutStr:    os.Getenv("RECORDER_DRAIN_TIMEOUT"),
		AnalyticsRetentionStr:      os.Getenv("ANALYTICS_RETENTION"),
		RecorderBreakerCooldownStr: os.Getenv("RECORDER_BREAKER_COOLDOWN"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		MetricsPort:                os.Getenv("METRICS_PORT"),
	}

	cfg.EventBusBufferSize = positiveIntEnv("EVENTBUS_BUFFER_SIZE", 100)
	cfg.DBMaxOpenConns = positiveIntEnv("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = positiveIntEnv("DB_MAX_IDLE_CONNS", 2)

	cfg.RecorderBreakerThreshold = 5
	if s := os.Getenv("RECORDER_BREAKER_THRESHOLD"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			cfg.RecorderBreakerThreshold = n
		} else {
			log.Printf("config: invalid RECORDER_BREAKER_THRESHOLD %q (must be a non-negative integer), using default 5", s)
		}
	}

	// Support the platform PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.SkipThresholdStr == "" {
		cfg.SkipThresholdStr = "60"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.RecorderDrainTimeoutStr == "" {
		cfg.RecorderDrainTimeoutStr = "30s"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "24h"
	}
	if cfg.RecorderBreakerCooldownStr == "" {
		cfg.RecorderBreakerCooldownStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}

	// Parse values; validation is handled separately by Validate().
	if v, err := strconv.ParseFloat(cfg.SkipThresholdStr, 64); err == nil {
		cfg.SkipThresholdSeconds = v
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.RecorderDrainTimeoutStr); err == nil {
		cfg.RecorderDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}
	if d, err := time.ParseDuration(cfg.RecorderBreakerCooldownStr); err == nil {
		cfg.RecorderBreakerCooldown = d
	}

	return cfg
}

// positiveIntEnv reads a positive integer, logging and falling back to def
// when the variable is set to anything else.
func positiveIntEnv(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", key, s, def)
		return def
	}
	return n
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
