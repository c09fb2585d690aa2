// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	ORIGO_HOST="0.0.0.0"
//	ORIGO_PORT="8080"
//	ORIGO_HEALTH_PORT="9090"
//	ORIGO_READ_TIMEOUT="15s"
//	ORIGO_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	ORIGO_POSTGRES_URL="postgres://localhost/origo"
//	ORIGO_POSTGRES_MAX_CONNS="25"
//
// Redis settings (session pins, distributed rate limiting):
//
//	ORIGO_REDIS_ADDR="localhost:6379"
//	ORIGO_REDIS_POOL_SIZE="10"
//
// Platform settings:
//
//	ORIGO_BASE_DOMAIN="origo.site"
//	ORIGO_HOST_CACHE_SIZE="10000"
//	ORIGO_HOST_CACHE_TTL="5m"
//	ORIGO_DOMAIN_RECHECK_SCHEDULE="@every 10m"
//
// Observability settings:
//
//	ORIGO_LOG_LEVEL="info"  # debug, info, warn, error
//	ORIGO_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Base domain: %s\n", cfg.Platform.BaseDomain)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/tenants: Uses platform configuration
//   - pkg/observability: Uses observability configuration
package config
