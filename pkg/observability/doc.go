// Package observability provides structured logging, Prometheus metrics, and health checks.
//
// # Overview
//
// This package centralizes observability infrastructure including JSON logging, metrics
// collection, health checks, and graceful shutdown.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Info("Server started")
//
// Context-aware logging:
//
//	logger.WithField("request_id", reqID).WithError(err).Error("Request failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/tenants", "200").Inc()
//	metrics.ResolutionsTotal.WithLabelValues("domain", "ok").Inc()
//
// Business metrics:
//
//	metrics.TenantsTotal.Set(float64(count))
//	metrics.MembershipsTotal.Set(float64(members))
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
//	fmt.Printf("Status: %v\n", status.Status)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/middleware: Request logging middleware
package observability
