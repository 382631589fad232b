// api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pushlytics/api/analytics"
	"pushlytics/api/cache"
	"pushlytics/api/config"
	"pushlytics/api/database"
	"pushlytics/api/events"
	"pushlytics/api/handlers"
	"pushlytics/api/logging"
	"pushlytics/api/metrics"
	"pushlytics/api/middleware"
	"pushlytics/api/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()

	// --- PostgreSQL: funnel definitions and the fallback event store ---
	pgClient, err := database.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize PostgreSQL database")
	}
	defer pgClient.Close()

	if cfg.Postgres.AutoMigrate {
		if err := database.EnsurePostgresSchema(ctx, pgClient.DB); err != nil {
			logging.Fatal().Err(err).Msg("Failed to apply PostgreSQL schema")
		}
	}
	pgStore := store.NewPostgresStore(pgClient.DB)

	// --- ClickHouse: primary event store ---
	backends := analytics.BackendSet{Primary: store.NewLimitedStore(pgStore, cfg.Analytics.MaxConcurrentScans)}
	var eventWriter store.EventWriter = pgStore
	if cfg.ClickHouse.Enabled {
		chClient, err := database.NewClickHouseDB(ctx, cfg.ClickHouse)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize ClickHouse database")
		}
		defer chClient.Close()

		if cfg.ClickHouse.AutoMigrate {
			if err := database.EnsureClickHouseSchema(ctx, chClient.Conn); err != nil {
				logging.Fatal().Err(err).Msg("Failed to apply ClickHouse schema")
			}
		}
		chStore := store.NewClickHouseStore(chClient)
		backends = analytics.BackendSet{
			Primary:  store.NewLimitedStore(chStore, cfg.Analytics.MaxConcurrentScans),
			Fallback: backends.Primary,
		}
		eventWriter = chStore
	} else {
		logging.Warn().Msg("ClickHouse disabled, serving analytics from PostgreSQL only")
	}

	// --- Notifications ---
	sink := analytics.MultiSink{metrics.Sink{}}
	if w := database.NewKafkaWriter(cfg.Kafka); w != nil {
		kafkaSink := events.NewKafkaSink(w, cfg.Kafka.WriteTimeout)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				logging.Warn().Err(err).Msg("Failed to close Kafka writer")
			}
		}()
		sink = append(sink, kafkaSink)
	}

	selector := analytics.NewFallbackSelector(backends, analytics.SelectorConfig{
		PrimaryTimeout:   cfg.Analytics.PrimaryTimeout,
		FailureThreshold: cfg.Analytics.BreakerFailures,
		OpenTimeout:      cfg.Analytics.BreakerOpenTimeout,
		HalfOpenRequests: cfg.Analytics.BreakerHalfOpen,
	}, sink)

	var analyzer analytics.Analyzer = analytics.NewEngine(
		store.NewFunnelStore(pgClient.DB),
		selector,
		sink,
		analytics.EngineConfig{DefaultRange: cfg.Analytics.DefaultRange},
	)

	// --- Redis result cache (optional) ---
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logging.Warn().Err(err).Msg("Redis unavailable, result cache disabled")
	}
	if redisClient != nil {
		defer redisClient.Close()
		analyzer = cache.NewResultCache(analyzer, redisClient, cfg.Redis.CacheTTL)
	}

	r := handlers.NewRouter(handlers.RouterDeps{
		Analyzer: analyzer,
		Events:   eventWriter,
		Breaker:  selector,
		Auth: middleware.AuthConfig{
			JWTSecret: []byte(cfg.Security.JWTSecret),
			APIKey:    cfg.Security.APIKey,
		},
		CORSOrigins:     cfg.Server.CORSOrigins,
		AnalysisTimeout: cfg.Server.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("API server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server forced to shutdown")
	}

	logging.Info().Msg("Server exiting.")
}
