package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/safeplay/player-protection-backend/internal/api/rest"
	"github.com/safeplay/player-protection-backend/internal/infrastructure/cache"
	"github.com/safeplay/player-protection-backend/internal/infrastructure/config"
	"github.com/safeplay/player-protection-backend/internal/infrastructure/notify"
	"github.com/safeplay/player-protection-backend/internal/infrastructure/repository"
	"github.com/safeplay/player-protection-backend/internal/infrastructure/telemetry"
	"github.com/safeplay/player-protection-backend/internal/metrics"
	"github.com/safeplay/player-protection-backend/internal/service/assessment"
	"github.com/safeplay/player-protection-backend/internal/service/behavior"
	"github.com/safeplay/player-protection-backend/internal/service/intervention"
)

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// sessionTx adapts the repository transaction to the behavior service so the
// session close and the profile update commit together.
type sessionTx struct {
	repos *repository.Repositories
}

func (t sessionTx) WithinTx(ctx context.Context, fn func(behavior.SessionRepository, behavior.UserRepository) error) error {
	return t.repos.InTx(ctx, func(tx *repository.Repositories) error {
		return fn(tx.Sessions, tx.Users)
	})
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProvider, err := telemetry.InitializeOpenTelemetry(ctx, &telemetry.Config{
		ServiceName:    "player-protection-backend",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   1.0,
		ExportTimeout:  30 * time.Second,
		BatchTimeout:   5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	repos := repository.NewRepositories(pool)

	// Redis backs the per-user analysis lock; without it a process-local
	// mutex map still serializes within a single instance.
	var locker assessment.UserLocker
	if cfg.Redis.URL != "" {
		zapLogger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("creating zap logger: %w", err)
		}
		defer zapLogger.Sync() //nolint:errcheck

		redisClient, err := cache.NewRedisClient(&cfg.Redis, zapLogger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()

		locker = cache.NewRedisUserLocker(redisClient, cfg.Protection.LockTTL, zapLogger)
	} else {
		logger.Warn("redis not configured, using in-process user locks")
		locker = cache.NewKeyedMutexLocker()
	}

	registry, err := metrics.NewRegistry("player-protection-backend")
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	clock := realClock{}
	notifier := notify.NewLogNotifier(logger)

	interventionSvc := intervention.NewService(repos.Interventions, repos.Users, notifier, clock, logger)
	assessmentSvc := assessment.NewService(repos.Users, repos.Assessments, repos.Sessions, interventionSvc, locker, clock)
	behaviorSvc := behavior.NewService(repos.Sessions, repos.Users, sessionTx{repos}, clock)

	handler := rest.NewHandler(repos.Users, behaviorSvc, assessmentSvc, interventionSvc, registry, logger)
	server := rest.NewServer(cfg.Server, handler, logger)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}

	errCh := make(chan error, 2)

	go func() {
		errCh <- server.Start()
	}()

	go func() {
		logger.Info("metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	go runSweeper(ctx, logger, registry, interventionSvc, cfg.Protection.SweepInterval)

	logger.Info("player protection backend started",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// runSweeper executes due scheduled interventions on a fixed interval until
// the context is cancelled.
func runSweeper(ctx context.Context, logger *slog.Logger, registry *metrics.Registry, svc *intervention.Service, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("intervention sweeper started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			logger.Info("intervention sweeper stopped")
			return
		case <-ticker.C:
			start := time.Now()
			result, err := svc.Sweep(ctx)
			if err != nil {
				logger.Error("intervention sweep failed", "error", err)
				continue
			}
			registry.RecordSweep(ctx, float64(time.Since(start).Milliseconds()), int64(result.Due), int64(result.Executed))
		}
	}
}
