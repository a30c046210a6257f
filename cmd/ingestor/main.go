// Package main is the entry point for the agroclima ingestion worker.
//
// The ingestor runs the periodic ingestion loop: on every tick it extracts
// the newest forecast model run for all active zones and fans the
// observations out to the durable, cache and timeseries stores. Once per day
// it also performs timeseries maintenance (compression, retention, optional
// cold archival to S3).
//
// A small HTTP server is kept alongside the loop to expose /healthz and
// /metrics.
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
	"golang.org/x/sync/errgroup"

	"agroclima/internal/cache"
	"agroclima/internal/config"
	"agroclima/internal/core"
	"agroclima/internal/db"
	"agroclima/internal/forecast"
	"agroclima/internal/ingest"
	"agroclima/internal/observability"
	"agroclima/internal/types"
	"agroclima/internal/weatherapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("agroclima ingestor starting",
		"environment", cfg.Environment,
		"interval", cfg.Ingest.Interval.String(),
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

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Forecast.Region))
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}
	// Forecast reads are anonymous against the public open-data bucket; the
	// archive writer uses the ambient credential chain.
	forecastS3 := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.Credentials = aws.AnonymousCredentials{}
	})
	archiveS3 := s3.NewFromConfig(awsCfg)

	clock := types.RealClock{}
	metrics := observability.NewMetrics(cfg.Observability.MetricNamespace, prometheus.DefaultRegisterer)

	selector := forecast.NewCycleSelector(cfg.Forecast.UTCOffset)
	loader := forecast.NewLoader(forecastS3, cfg.Forecast.Bucket, cfg.Forecast.DownloadTimeout, logger)
	datasets := forecast.NewDatasetCache(loader)
	extractor := forecast.NewFallbackExtractor(forecast.DefaultBounds, logger)
	fetcher := forecast.NewClient(selector, datasets, extractor, cfg.Forecast.Frequency, clock, logger)
	fetcher.InstrumentFallbacks(metrics.UpstreamFallbacks)

	zoneRepo := db.NewZoneRepository(pool, clock)
	obsRepo := db.NewObservationRepository(pool)
	tsRepo := db.NewTimeseriesRepository(pool)
	retention := db.NewRetentionManager(pool, archiveS3, cfg.Timeseries.ArchiveBucket, logger)

	provider := weatherapi.NewClient(weatherapi.Config{
		BaseURL: cfg.WeatherAPI.BaseURL,
		APIKey:  cfg.WeatherAPI.APIKey,
		Timeout: cfg.WeatherAPI.Timeout,
		Units:   cfg.WeatherAPI.Units,
		Lang:    cfg.WeatherAPI.Lang,
	}, clock, logger)

	fanout := ingest.NewStorageFanout(obsRepo, cacheStore, tsRepo, cfg.Ingest.FanoutConcurrency, logger)
	refLoc := referenceLocation(cfg.Forecast.UTCOffset)
	svc := ingest.NewService(
		zoneRepo, fetcher, fanout, cacheStore, cacheStore, tsRepo,
		provider, clock, refLoc, metrics, logger,
	)

	if err := ensureTimeseries(ctx, retention, &cfg.Timeseries); err != nil {
		return err
	}

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

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		runLoop(gctx, svc, retention, cfg, clock, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("ingestor stopped cleanly")
	return nil
}

// ensureTimeseries provisions the hypertable and its lifecycle policies at
// startup. All three calls are idempotent.
func ensureTimeseries(ctx context.Context, rm *db.RetentionManager, cfg *config.TimeseriesConfig) error {
	if err := rm.EnsureHypertable(ctx); err != nil {
		return fmt.Errorf("ensuring hypertable: %w", err)
	}
	if err := rm.EnsureRetentionPolicy(ctx, cfg.RetentionDays); err != nil {
		return fmt.Errorf("ensuring retention policy: %w", err)
	}
	if err := rm.EnsureCompressionPolicy(ctx, cfg.CompressAfterDays); err != nil {
		return fmt.Errorf("ensuring compression policy: %w", err)
	}
	return nil
}

// runLoop drives ingestion on the configured interval and maintenance once
// per UTC day after the maintenance hour. Runs never overlap: the next tick
// waits for the previous pass to finish.
func runLoop(ctx context.Context, svc *ingest.Service, rm *db.RetentionManager, cfg *config.Config, clock types.Clock, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Ingest.Interval)
	defer ticker.Stop()

	var lastMaintenance time.Time

	runOnce := func() {
		if _, err := svc.PopulateAllZones(ctx, time.Time{}); err != nil {
			logger.ErrorContext(ctx, "ingestion pass failed", "error", err)
		}

		now := clock.Now()
		if now.Hour() >= cfg.Ingest.MaintenanceHourUTC && !sameDay(now, lastMaintenance) {
			maintain(ctx, rm, &cfg.Timeseries, now, logger)
			lastMaintenance = now
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// maintain compresses aging chunks and expires data past the retention
// horizon, archiving it to S3 first when an archive bucket is configured.
// Maintenance failures are logged and retried on the next day's pass.
func maintain(ctx context.Context, rm *db.RetentionManager, cfg *config.TimeseriesConfig, now time.Time, logger *slog.Logger) {
	compressCutoff := now.AddDate(0, 0, -cfg.CompressAfterDays)
	if n, err := rm.CompressChunksOlderThan(ctx, compressCutoff); err != nil {
		logger.ErrorContext(ctx, "chunk compression failed", "error", err)
	} else if n > 0 {
		logger.InfoContext(ctx, "chunks compressed", "count", n)
	}

	retainCutoff := now.AddDate(0, 0, -cfg.RetentionDays)
	if cfg.ArchiveBucket != "" {
		if n, err := rm.ArchiveOlderThan(ctx, retainCutoff); err != nil {
			logger.ErrorContext(ctx, "archival failed", "error", err)
		} else if n > 0 {
			logger.InfoContext(ctx, "rows archived", "count", n)
		}
		return
	}
	if n, err := rm.DeleteOlderThan(ctx, retainCutoff); err != nil {
		logger.ErrorContext(ctx, "retention cleanup failed", "error", err)
	} else if n > 0 {
		logger.InfoContext(ctx, "chunks dropped", "count", n)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

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

func referenceLocation(utcOffset time.Duration) *time.Location {
	seconds := int(utcOffset / time.Second)
	return time.FixedZone(fmt.Sprintf("UTC-%d", seconds/3600), -seconds)
}

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
