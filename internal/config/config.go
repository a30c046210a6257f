// Package config defines the global configuration structure for the agroclima
// services. Configuration is loaded once at process start and is immutable
// thereafter, following 12-Factor principles: values come from the OS
// environment, optionally seeded from a dotenv file for local development.
//
// Any missing required value or invalid format aborts startup (fail fast).
package config

import (
	"time"
)

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"agroclima"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	Timeseries    TimeseriesConfig
	Redis         RedisConfig
	Forecast      ForecastConfig
	WeatherAPI    WeatherAPIConfig
	Ingest        IngestConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server tuning parameters.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds Postgres connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// TimeseriesConfig holds hypertable lifecycle policy parameters.
type TimeseriesConfig struct {
	RetentionDays     int    `envconfig:"TS_RETENTION_DAYS" default:"1825" validate:"min=1"`
	CompressAfterDays int    `envconfig:"TS_COMPRESS_AFTER_DAYS" default:"7" validate:"min=1"`
	ArchiveBucket     string `envconfig:"TS_ARCHIVE_BUCKET"`
}

// RedisConfig holds cache connection parameters and TTLs.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	LatestTTL   time.Duration `envconfig:"CACHE_LATEST_TTL" default:"1h"`
	ForecastTTL time.Duration `envconfig:"CACHE_FORECAST_TTL" default:"24h"`
	CurrentTTL  time.Duration `envconfig:"CACHE_CURRENT_TTL" default:"15m"`
}

// ForecastConfig holds gridded-model object store parameters.
type ForecastConfig struct {
	Bucket          string        `envconfig:"FORECAST_BUCKET" default:"smn-ar-wrf"`
	Region          string        `envconfig:"FORECAST_REGION" default:"us-west-2"`
	Frequency       string        `envconfig:"FORECAST_FREQUENCY" default:"01H"`
	DownloadTimeout time.Duration `envconfig:"FORECAST_DOWNLOAD_TIMEOUT" default:"5m"`
	UTCOffset       time.Duration `envconfig:"FORECAST_UTC_OFFSET" default:"3h"`
}

// WeatherAPIConfig holds the external current-weather provider credentials.
type WeatherAPIConfig struct {
	BaseURL string        `envconfig:"WEATHER_API_BASE_URL" default:"https://api.openweathermap.org/data/2.5"`
	APIKey  string        `envconfig:"WEATHER_API_KEY" validate:"required"`
	Timeout time.Duration `envconfig:"WEATHER_API_TIMEOUT" default:"10s"`
	Units   string        `envconfig:"WEATHER_API_UNITS" default:"metric"`
	Lang    string        `envconfig:"WEATHER_API_LANG" default:"es"`
}

// IngestConfig holds ingestion runner parameters.
type IngestConfig struct {
	Interval           time.Duration `envconfig:"INGEST_INTERVAL" default:"1h"`
	MaintenanceHourUTC int           `envconfig:"MAINTENANCE_HOUR_UTC" default:"4" validate:"min=0,max=23"`
	FanoutConcurrency  int           `envconfig:"FANOUT_CONCURRENCY" default:"8" validate:"min=1"`
	MaxZoneDistanceKm  float64       `envconfig:"MAX_ZONE_DISTANCE_KM" default:"10" validate:"min=1,max=50"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"agroclima"`
}
