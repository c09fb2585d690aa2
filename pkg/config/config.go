package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/origolabs/origo/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Platform configuration
	Platform PlatformConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis connection settings for session pins and
// distributed rate limiting
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// PlatformConfig holds tenant-platform settings
type PlatformConfig struct {
	// BaseDomain is the shared suffix tenant subdomains hang off,
	// e.g. "origo.site"
	BaseDomain string

	// HostCacheSize and HostCacheTTL bound the host-to-tenant lookup cache
	HostCacheSize int
	HostCacheTTL  time.Duration

	// DomainRecheckSchedule is the cron expression for the pending-domain
	// verification sweep. Empty disables the sweep.
	DomainRecheckSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Platform:      loadPlatformConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ORIGO_HOST", "0.0.0.0"),
		Port:            getEnv("ORIGO_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ORIGO_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ORIGO_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ORIGO_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ORIGO_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("ORIGO_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("ORIGO_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("ORIGO_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("ORIGO_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("ORIGO_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       getEnv("ORIGO_REDIS_ADDR", "localhost:6379"),
		Password:   getEnv("ORIGO_REDIS_PASSWORD", ""),
		DB:         getEnvInt("ORIGO_REDIS_DB", 0),
		MaxRetries: getEnvInt("ORIGO_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("ORIGO_REDIS_POOL_SIZE", 10),
	}
}

// loadPlatformConfig loads tenant-platform configuration from environment
func loadPlatformConfig() PlatformConfig {
	return PlatformConfig{
		BaseDomain:            getEnv("ORIGO_BASE_DOMAIN", "origo.site"),
		HostCacheSize:         getEnvInt("ORIGO_HOST_CACHE_SIZE", 10000),
		HostCacheTTL:          getEnvDuration("ORIGO_HOST_CACHE_TTL", 5*time.Minute),
		DomainRecheckSchedule: getEnv("ORIGO_DOMAIN_RECHECK_SCHEDULE", "@every 10m"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("ORIGO_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("ORIGO_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Platform.BaseDomain == "" {
		return fmt.Errorf("base domain is required")
	}
	if strings.Contains(c.Platform.BaseDomain, "/") {
		return fmt.Errorf("base domain must be a bare hostname, got %q", c.Platform.BaseDomain)
	}
	if c.Platform.HostCacheSize <= 0 {
		return fmt.Errorf("host cache size must be positive")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
