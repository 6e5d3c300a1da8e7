/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus backend selection.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Archive backend selection.
type ArchiveBackend string

const (
	ArchiveNone ArchiveBackend = "none"
	ArchiveFS   ArchiveBackend = "fs"
	ArchiveS3   ArchiveBackend = "s3"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., http://192.168.195.6:8080)
	DBBackend   DatabaseBackend
	DBDSN       string

	// Content inputs
	CatalogPath  string // JSON catalog pool produced by the metadata collector
	ChannelsPath string // Optional channel blueprint seeded into the DB on first run
	Timezone     string // IANA zone all slot windows resolve in

	// Guide generation
	GuideHorizonDays       int // How many days ahead the refresher pre-generates
	RefreshIntervalMinutes int // Refresher tick period (minutes)
	CooldownDays           int // Movie repeat window in calendar days
	MovieFallbackMinutes   int // Runtime assumed for movies without metadata
	SeriesFallbackMinutes  int // Runtime assumed for series without metadata
	SeriesMinimumMinutes   int // Floor applied to series runtimes

	// Admin surface
	AdminToken string // Bootstrap token; DB-issued API keys work alongside it

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string
	EventBus              EventBusBackend
	NATSURL               string

	// Guide archive
	Archive      ArchiveBackend
	ArchiveDir   string // Target directory for the fs backend
	S3AccessKey  string
	S3SecretKey  string
	S3Region     string
	S3Bucket     string
	S3Endpoint   string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PathStyle  bool   // Required for MinIO

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"ZAPPER_ENV", "MSTV_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"ZAPPER_HTTP_BIND", "MSTV_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"ZAPPER_HTTP_PORT", "MSTV_HTTP_PORT"}, 8080),
		BaseURL:     getEnvAny([]string{"ZAPPER_BASE_URL", "MSTV_BASE_URL"}, ""),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"ZAPPER_DB_BACKEND", "MSTV_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"ZAPPER_DB_DSN", "MSTV_DB_DSN"}, "zapper.db"),

		// Content inputs
		CatalogPath:  getEnvAny([]string{"ZAPPER_CATALOG_PATH", "MSTV_CATALOG_PATH"}, "./data/catalog.json"),
		ChannelsPath: getEnvAny([]string{"ZAPPER_CHANNELS_PATH", "MSTV_CHANNELS_PATH"}, ""),
		Timezone:     getEnvAny([]string{"ZAPPER_TIMEZONE", "MSTV_TIMEZONE"}, "UTC"),

		// Guide generation
		GuideHorizonDays:       getEnvIntAny([]string{"ZAPPER_GUIDE_HORIZON_DAYS", "MSTV_GUIDE_HORIZON_DAYS"}, 2),
		RefreshIntervalMinutes: getEnvIntAny([]string{"ZAPPER_REFRESH_INTERVAL_MINUTES", "MSTV_REFRESH_INTERVAL_MINUTES"}, 30),
		CooldownDays:           getEnvIntAny([]string{"ZAPPER_COOLDOWN_DAYS", "MSTV_COOLDOWN_DAYS"}, 7),
		MovieFallbackMinutes:   getEnvIntAny([]string{"ZAPPER_MOVIE_FALLBACK_MINUTES", "MSTV_MOVIE_FALLBACK_MINUTES"}, 90),
		SeriesFallbackMinutes:  getEnvIntAny([]string{"ZAPPER_SERIES_FALLBACK_MINUTES", "MSTV_SERIES_FALLBACK_MINUTES"}, 45),
		SeriesMinimumMinutes:   getEnvIntAny([]string{"ZAPPER_SERIES_MINIMUM_MINUTES", "MSTV_SERIES_MINIMUM_MINUTES"}, 30),

		// Admin surface
		AdminToken: getEnvAny([]string{"ZAPPER_ADMIN_TOKEN", "MSTV_ADMIN_TOKEN"}, ""),

		// Tracing configuration
		TracingEnabled:    getEnvBoolAny([]string{"ZAPPER_TRACING_ENABLED", "MSTV_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"ZAPPER_OTLP_ENDPOINT", "MSTV_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"ZAPPER_TRACING_SAMPLE_RATE", "MSTV_TRACING_SAMPLE_RATE"}, 1.0),

		// Multi-instance configuration
		LeaderElectionEnabled: getEnvBoolAny([]string{"ZAPPER_LEADER_ELECTION_ENABLED", "MSTV_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"ZAPPER_REDIS_ADDR", "MSTV_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"ZAPPER_REDIS_PASSWORD", "MSTV_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"ZAPPER_REDIS_DB", "MSTV_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"ZAPPER_INSTANCE_ID", "MSTV_INSTANCE_ID"}, ""),
		EventBus:              EventBusBackend(getEnvAny([]string{"ZAPPER_EVENT_BUS", "MSTV_EVENT_BUS"}, string(EventBusMemory))),
		NATSURL:               getEnvAny([]string{"ZAPPER_NATS_URL", "MSTV_NATS_URL"}, "nats://localhost:4222"),

		// Guide archive
		Archive:     ArchiveBackend(getEnvAny([]string{"ZAPPER_ARCHIVE_BACKEND", "MSTV_ARCHIVE_BACKEND"}, string(ArchiveNone))),
		ArchiveDir:  getEnvAny([]string{"ZAPPER_ARCHIVE_DIR", "MSTV_ARCHIVE_DIR"}, "./archive"),
		S3AccessKey: getEnvAny([]string{"ZAPPER_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretKey: getEnvAny([]string{"ZAPPER_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:    getEnvAny([]string{"ZAPPER_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:    getEnvAny([]string{"ZAPPER_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:  getEnvAny([]string{"ZAPPER_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PathStyle: getEnvBoolAny([]string{"ZAPPER_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBBackend != DatabaseSQLite && cfg.DBDSN == "" {
		return nil, fmt.Errorf("ZAPPER_DB_DSN or MSTV_DB_DSN must be provided for backend %q", cfg.DBBackend)
	}

	if cfg.EventBus != EventBusMemory && cfg.EventBus != EventBusRedis && cfg.EventBus != EventBusNATS {
		return nil, fmt.Errorf("unsupported event bus backend %q", cfg.EventBus)
	}

	if cfg.Archive != ArchiveNone && cfg.Archive != ArchiveFS && cfg.Archive != ArchiveS3 {
		return nil, fmt.Errorf("unsupported archive backend %q", cfg.Archive)
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.AdminToken == "" || strings.EqualFold(cfg.AdminToken, "changeme") {
			return nil, fmt.Errorf("ZAPPER_ADMIN_TOKEN or MSTV_ADMIN_TOKEN must be set to a non-default value in production")
		}

		if cfg.Archive == ArchiveS3 && cfg.S3Bucket == "" {
			return nil, fmt.Errorf("ZAPPER_S3_BUCKET is required when the S3 archive backend is enabled in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use ZAPPER_ENV (or MSTV_ENV)",
		"CATALOG_PATH":    "use ZAPPER_CATALOG_PATH (or MSTV_CATALOG_PATH)",
		"CHANNELS_PATH":   "use ZAPPER_CHANNELS_PATH (or MSTV_CHANNELS_PATH)",
		"ADMIN_TOKEN":     "use ZAPPER_ADMIN_TOKEN (or MSTV_ADMIN_TOKEN)",
		"TRACING_ENABLED": "use ZAPPER_TRACING_ENABLED (or MSTV_TRACING_ENABLED)",
		"OTLP_ENDPOINT":   "use ZAPPER_OTLP_ENDPOINT (or MSTV_OTLP_ENDPOINT)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// RefreshEvery returns the refresher tick period.
// A non-positive configured value falls back to the 30 minute default.
func (c *Config) RefreshEvery() time.Duration {
	if c == nil || c.RefreshIntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

// GuideHorizon returns how many days ahead of today the refresher generates,
// never less than one (today itself).
func (c *Config) GuideHorizon() int {
	if c == nil || c.GuideHorizonDays < 1 {
		return 1
	}
	return c.GuideHorizonDays
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
