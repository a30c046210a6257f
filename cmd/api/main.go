// Package main is the entry point for the agroclima API server.
//
// It loads configuration, wires the Postgres, TimescaleDB, Redis and S3
// dependencies, builds the HTTP server with the core chassis (middleware,
// routing, health checks) and listens until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"agroclima/internal/api/handlers"
	"agroclima/internal/cache"
	"agroclima/internal/config"
	"agroclima/internal/core"
	"agroclima/internal/db"
	"agroclima/internal/forecast"
	"agroclima/internal/ingest"
	"agroclima/internal/observability"
	"agroclima/internal/types"
	"agroclima/internal/weatherapi"
	"agroclima/internal/zones"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("agroclima API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	cacheStore := cache.NewRedisStore(rdb, cache.TTLs{
		Latest:   cfg.Redis.LatestTTL,
		Forecast: cfg.Redis.ForecastTTL,
		Current:  cfg.Redis.CurrentTTL,
	})

	// The forecast bucket is a public open-data bucket; reads are anonymous.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Forecast.Region))
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}
	forecastS3 := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.Credentials = aws.AnonymousCredentials{}
	})

	clock := types.RealClock{}
	metrics := observability.NewMetrics(cfg.Observability.MetricNamespace, prometheus.DefaultRegisterer)

	selector := forecast.NewCycleSelector(cfg.Forecast.UTCOffset)
	loader := forecast.NewLoader(forecastS3, cfg.Forecast.Bucket, cfg.Forecast.DownloadTimeout, logger)
	datasets := forecast.NewDatasetCache(loader)
	extractor := forecast.NewFallbackExtractor(forecast.DefaultBounds, logger)
	fetcher := forecast.NewClient(selector, datasets, extractor, cfg.Forecast.Frequency, clock, logger)
	fetcher.InstrumentFallbacks(metrics.UpstreamFallbacks)

	zoneRepo := db.NewZoneRepository(pool, clock)
	fieldRepo := db.NewFieldRepository(pool)
	obsRepo := db.NewObservationRepository(pool)
	tsRepo := db.NewTimeseriesRepository(pool)

	provider := weatherapi.NewClient(weatherapi.Config{
		BaseURL: cfg.WeatherAPI.BaseURL,
		APIKey:  cfg.WeatherAPI.APIKey,
		Timeout: cfg.WeatherAPI.Timeout,
		Units:   cfg.WeatherAPI.Units,
		Lang:    cfg.WeatherAPI.Lang,
	}, clock, logger)

	fanout := ingest.NewStorageFanout(obsRepo, cacheStore, tsRepo, cfg.Ingest.FanoutConcurrency, logger)
	refLoc := referenceLocation(cfg.Forecast.UTCOffset)
	weatherSvc := ingest.NewService(
		zoneRepo, fetcher, fanout, cacheStore, cacheStore, tsRepo,
		provider, clock, refLoc, metrics, logger,
	)
	zoneSvc := zones.NewAssignmentService(zoneRepo, fieldRepo, logger)

	ready := func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if err := cacheStore.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		return nil
	}

	srv := core.NewServer(&cfg.Server, logger, metrics, ready)
	handlers.NewWeatherHandler(weatherSvc).Mount(srv.Router())
	handlers.NewZoneHandler(zoneSvc).Mount(srv.Router())

	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newPool builds the pgx connection pool with the configured tuning and
// verifies connectivity before returning.
func newPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// referenceLocation converts the provider's UTC offset into a fixed zone for
// cycle selection. The offset is hours behind UTC.
func referenceLocation(utcOffset time.Duration) *time.Location {
	seconds := int(utcOffset / time.Second)
	return time.FixedZone(fmt.Sprintf("UTC-%d", seconds/3600), -seconds)
}

// newLogger creates a structured slog.Logger configured for the given log
// level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
