package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/wellness-booking/internal/api/router"
	"github.com/wolfman30/wellness-booking/internal/app/bootstrap"
	"github.com/wolfman30/wellness-booking/internal/archive"
	"github.com/wolfman30/wellness-booking/internal/availability"
	"github.com/wolfman30/wellness-booking/internal/bookings"
	appconfig "github.com/wolfman30/wellness-booking/internal/config"
	"github.com/wolfman30/wellness-booking/internal/credits"
	httpmiddleware "github.com/wolfman30/wellness-booking/internal/http/middleware"
	"github.com/wolfman30/wellness-booking/internal/observability/tracing"
	"github.com/wolfman30/wellness-booking/internal/platform/database"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting wellness-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"clinic_timezone", cfg.ClinicLocation().String(),
	)
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty; every authenticated route will return 401")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
	}, logger)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	pool, err := connectPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var s3Client archive.S3API
	if cfg.LedgerArchiveBucket != "" {
		awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		s3Client = bootstrap.NewS3Client(awsCfg)
	}

	services := bootstrap.BuildServices(cfg, bootstrap.Deps{
		Pool:     pool,
		Redis:    redisClient,
		S3:       s3Client,
		Registry: prometheus.DefaultRegisterer,
	}, logger)

	// Without Postgres there is no worker sharing the ledger, so sweep here.
	if pool == nil {
		go credits.NewSweeper(services.Credits, cfg.CreditExpiryInterval, logger).Start(ctx)
	}

	limiter := httpmiddleware.NewRateLimiter(5, 20)
	go limiter.RunEviction(ctx, 5*time.Minute, 10*time.Minute)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(newRouter(cfg, services, limiter, promhttp.Handler(), logger), "wellness-api"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// connectPostgresPool returns nil without error when the memory store is
// selected or no DATABASE_URL is configured.
func connectPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg.UseMemoryStore {
		return nil, nil
	}
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; falling back to in-memory stores")
		return nil, nil
	}
	return database.OpenPool(ctx, cfg.DatabaseURL, logger)
}

func newRouter(cfg *appconfig.Config, services *bootstrap.Services, limiter *httpmiddleware.RateLimiter, metricsHandler http.Handler, logger *logging.Logger) http.Handler {
	return router.New(&router.Config{
		Logger:              logger,
		CreditsHandler:      credits.NewHandler(services.Credits, logger),
		AvailabilityHandler: availability.NewHandler(services.Checker, logger),
		BookingsHandler:     bookings.NewHandler(services.Bookings, logger),
		ArchiveHandler:      archive.NewHandler(services.Archiver, logger),
		JWTSecret:           cfg.JWTSecret,
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		HealthCheck:         services.Health,
		WriteLimiter:        limiter,
	})
}
