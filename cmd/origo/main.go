package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/origolabs/origo/pkg/auth"
	"github.com/origolabs/origo/pkg/config"
	"github.com/origolabs/origo/pkg/content"
	"github.com/origolabs/origo/pkg/domains"
	"github.com/origolabs/origo/pkg/httputil"
	"github.com/origolabs/origo/pkg/middleware"
	"github.com/origolabs/origo/pkg/observability"
	"github.com/origolabs/origo/pkg/plans"
	"github.com/origolabs/origo/pkg/quota"
	"github.com/origolabs/origo/pkg/rbac"
	"github.com/origolabs/origo/pkg/storage"
	"github.com/origolabs/origo/pkg/tenants"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting origo")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backing stores.
	db, err := storage.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Errorf("failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	redisClient := storage.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	// Migrations, in dependency order: quota tables reference tenants.
	for _, run := range []func(context.Context, *sql.DB) error{
		tenants.RunMigrations,
		rbac.RunMigrations,
		quota.RunMigrations,
	} {
		if err := run(ctx, db); err != nil {
			logger.WithError(err).Errorf("migrations failed")
			os.Exit(1)
		}
	}

	// Metrics first; the domain services record onto them.
	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)
	go storage.ReportPoolStats(ctx, db, redisClient, metrics, 15*time.Second)
	go storage.ReportPlatformStats(ctx, db, metrics, time.Minute)

	// Domain services.
	tenantStore := tenants.NewStore(db)
	sessionStore := tenants.NewSessionStore(redisClient, 0)
	hostCache := tenants.NewHostCache(cfg.Platform.HostCacheSize, cfg.Platform.HostCacheTTL)
	resolver := tenants.NewResolver(tenantStore, sessionStore, hostCache, cfg.Platform.BaseDomain, logger, metrics)

	rbacStore := rbac.NewStore(db)
	engine := rbac.NewEngine(rbacStore, metrics)
	registry := rbac.NewRegistry(rbacStore)

	guard := quota.NewGuard(quota.NewSQLUsageSource(db), tenantStore, metrics)

	verifier := domains.NewVerifier(tenantStore, domains.NewTXTResolver(0), hostCache, logger, metrics)
	rechecker := domains.NewRechecker(verifier, tenantStore, logrus.StandardLogger(), metrics)
	if cfg.Platform.DomainRecheckSchedule != "" {
		if err := rechecker.Start(cfg.Platform.DomainRecheckSchedule); err != nil {
			logger.WithError(err).Errorf("failed to start domain rechecker")
			os.Exit(1)
		}
	}

	// Health endpoints.

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Errorf("health server failed")
		}
	}()

	// API router with the middleware chain. Ordering matters; see
	// pkg/middleware documentation.
	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(httputil.ContentTypeMiddleware)
	router.Use(httputil.MaxBytesMiddleware(1 << 20))
	router.Use(observability.HTTPMetricsMiddleware(metrics))
	router.Use(observability.PanicRecoveryMiddleware(logger))
	router.Use(middleware.SubjectMiddleware(auth.NewSessionAuthenticator(db, redisClient)))
	router.Use(middleware.TenantContextMiddleware(resolver))
	router.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())))

	tenants.NewHandlers(tenantStore, sessionStore).RegisterRoutes(router)
	rbac.NewHandlers(registry).RegisterRoutes(router)
	quota.NewHandlers(guard).RegisterRoutes(router)
	domains.NewHandlers(verifier).RegisterRoutes(router)

	// Content routes carry quota enforcement on the write path and
	// permission checks per operation.
	contentHandlers := content.NewHandlers(content.NewStore(db, tenantStore))
	for resource, path := range map[plans.ResourceType]string{
		plans.ResourcePages:   "/api/tenants/{tenant_id}/pages",
		plans.ResourcePosts:   "/api/tenants/{tenant_id}/posts",
		plans.ResourceCourses: "/api/tenants/{tenant_id}/courses",
	} {
		sub := router.PathPrefix(path).Subrouter()
		sub.Use(middleware.RequireTenant)
		res := string(resource)
		sub.Handle("", middleware.RequirePermission(engine, res, "create")(
			middleware.EnforceQuota(guard, resource)(contentHandlers.Create(resource)))).Methods("POST")
		sub.Handle("", middleware.RequirePermission(engine, res, "read")(contentHandlers.List(resource))).Methods("GET")
		sub.Handle("/{id}", middleware.RequirePermission(engine, res, "delete")(contentHandlers.Delete(resource))).Methods("DELETE")
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Errorf("http server failed")
			cancel()
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("domain-rechecker", func(ctx context.Context) error {
		rechecker.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc("health-server", func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Errorf("shutdown incomplete")
		os.Exit(1)
	}
}
