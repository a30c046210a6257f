package ingest

import (
	"context"
	"log/slog"
	"time"

	"agroclima/internal/observability"
	"agroclima/internal/types"
)

// ForecastFetcher is the extraction dependency of the service.
type ForecastFetcher interface {
	FetchBatch(ctx context.Context, coords []types.Coordinate, at time.Time) []*types.WeatherObservation
}

// ForecastReader exposes the cache's forecast lookups to read paths.
type ForecastReader interface {
	GetForecast(ctx context.Context, lat, lon float64, date time.Time) (*types.WeatherObservation, error)
}

// Service orchestrates ingestion and serves the weather read paths.
type Service struct {
	zones      types.ZoneRepository
	fetcher    ForecastFetcher
	fanout     *StorageFanout
	cache      types.CacheStore
	forecasts  ForecastReader
	timeseries types.TimeseriesStore
	current    types.CurrentWeatherProvider
	clock      types.Clock
	refLoc     *time.Location
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewService wires the ingestion service. refLoc is the provider's reference
// timezone used for cycle selection; metrics may be nil in tests.
func NewService(
	zones types.ZoneRepository,
	fetcher ForecastFetcher,
	fanout *StorageFanout,
	cache types.CacheStore,
	forecasts ForecastReader,
	timeseries types.TimeseriesStore,
	current types.CurrentWeatherProvider,
	clock types.Clock,
	refLoc *time.Location,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if refLoc == nil {
		refLoc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		zones:      zones,
		fetcher:    fetcher,
		fanout:     fanout,
		cache:      cache,
		forecasts:  forecasts,
		timeseries: timeseries,
		current:    current,
		clock:      clock,
		refLoc:     refLoc,
		metrics:    metrics,
		logger:     logger,
	}
}

// PopulateAllZones runs one ingestion pass: every active zone's center is
// extracted from the newest usable model run and fanned out to the stores.
// at selects the target run; the zero time means "now". A zone whose
// extraction yields nothing is skipped and counted, not failed: the pass
// errors only when the zone query or a durable write fails.
func (s *Service) PopulateAllZones(ctx context.Context, at time.Time) (*types.PopulateSummary, error) {
	started := s.clock.Now()
	if at.IsZero() {
		at = started.In(s.refLoc)
	}

	zones, err := s.zones.ListActive(ctx)
	if err != nil {
		s.recordRun("error", started)
		return nil, err
	}

	summary := &types.PopulateSummary{StartedAt: started}

	coords := make([]types.Coordinate, len(zones))
	for i, z := range zones {
		coords[i] = z.Center()
	}

	obs := s.fetcher.FetchBatch(ctx, coords, at)

	for i, z := range zones {
		if i >= len(obs) || obs[i] == nil {
			summary.ZonesSkipped++
			if s.metrics != nil {
				s.metrics.ExtractionFailures.Inc()
			}
			s.logger.WarnContext(ctx, "zone skipped, no observation extracted",
				"zone_id", z.ID, "zone_name", z.Name)
			continue
		}

		counts, err := s.fanout.PersistBatch(ctx, obs[i:i+1])
		summary.Counts.Add(counts)
		if err != nil {
			summary.FinishedAt = s.clock.Now()
			s.recordRun("error", started)
			return summary, err
		}
		summary.ZonesProcessed++
		if s.metrics != nil {
			s.metrics.ZonesProcessed.Inc()
		}
	}

	summary.FinishedAt = s.clock.Now()
	s.recordCounts(summary.Counts)
	s.recordRun("ok", started)

	s.logger.InfoContext(ctx, "ingestion pass complete",
		"zones_processed", summary.ZonesProcessed,
		"zones_skipped", summary.ZonesSkipped,
		"durable", summary.Counts.Durable,
		"cache", summary.Counts.Cache,
		"timeseries", summary.Counts.Timeseries,
	)
	return summary, nil
}

func (s *Service) recordRun(outcome string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.IngestRuns.WithLabelValues(outcome).Inc()
	s.metrics.IngestDuration.Observe(s.clock.Now().Sub(started).Seconds())
}

func (s *Service) recordCounts(c types.StoreCounts) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObservationsStored.WithLabelValues("durable").Add(float64(c.Durable))
	s.metrics.ObservationsStored.WithLabelValues("cache").Add(float64(c.Cache))
	s.metrics.ObservationsStored.WithLabelValues("timeseries").Add(float64(c.Timeseries))
}

// CurrentWeather serves real-time conditions through the cache: a fresh
// cached value is returned directly, otherwise the external provider is
// called and the result cached for the next reader. A cache write failure
// after a successful fetch is logged, not surfaced.
func (s *Service) CurrentWeather(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error) {
	if err := (types.Coordinate{Lat: lat, Lon: lon}).Validate(); err != nil {
		return nil, err
	}

	cached, err := s.cache.GetCurrent(ctx, lat, lon)
	if err != nil {
		s.logger.WarnContext(ctx, "current-conditions cache read failed",
			"lat", lat, "lon", lon, "error", err)
	}
	if cached != nil {
		s.recordCacheLookup("current", "hit")
		return cached, nil
	}
	s.recordCacheLookup("current", "miss")

	cond, err := s.current.Fetch(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	if err := s.cache.StoreCurrent(ctx, cond); err != nil {
		s.logger.WarnContext(ctx, "current-conditions cache write failed",
			"lat", lat, "lon", lon, "error", err)
	}
	return cond, nil
}

func (s *Service) recordCacheLookup(family, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheHits.WithLabelValues(family, result).Inc()
}

// LatestWeather returns the newest stored observation for a location,
// preferring the cache and falling back to the hypertable's last() scan.
func (s *Service) LatestWeather(ctx context.Context, lat, lon float64) (*types.WeatherObservation, error) {
	if err := (types.Coordinate{Lat: lat, Lon: lon}).Validate(); err != nil {
		return nil, err
	}

	cached, err := s.cache.GetLatest(ctx, lat, lon)
	if err != nil {
		s.logger.WarnContext(ctx, "latest-observation cache read failed",
			"lat", lat, "lon", lon, "error", err)
	}
	if cached != nil {
		s.recordCacheLookup("latest", "hit")
		return cached, nil
	}
	s.recordCacheLookup("latest", "miss")

	all, err := s.timeseries.LatestPerLocation(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range all {
		if o.Latitude == lat && o.Longitude == lon {
			return o, nil
		}
	}
	return nil, nil
}

// ForecastWeather returns the cached forecast for a location and date;
// (nil, nil) when nothing is cached.
func (s *Service) ForecastWeather(ctx context.Context, lat, lon float64, date time.Time) (*types.WeatherObservation, error) {
	if err := (types.Coordinate{Lat: lat, Lon: lon}).Validate(); err != nil {
		return nil, err
	}
	obs, err := s.forecasts.GetForecast(ctx, lat, lon, date)
	if err != nil {
		return nil, err
	}
	if obs != nil {
		s.recordCacheLookup("forecast", "hit")
	} else {
		s.recordCacheLookup("forecast", "miss")
	}
	return obs, nil
}

// History returns a location's observations within the trailing window.
func (s *Service) History(ctx context.Context, lat, lon float64, window time.Duration) ([]*types.WeatherObservation, error) {
	if err := (types.Coordinate{Lat: lat, Lon: lon}).Validate(); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.timeseries.Recent(ctx, lat, lon, window)
}

// Aggregate buckets a location's observations.
func (s *Service) Aggregate(ctx context.Context, lat, lon float64, bucket time.Duration, from, to time.Time) ([]*types.AggregateRow, error) {
	if err := (types.Coordinate{Lat: lat, Lon: lon}).Validate(); err != nil {
		return nil, err
	}
	if bucket <= 0 {
		bucket = time.Hour
	}
	if to.IsZero() {
		to = s.clock.Now()
	}
	if from.IsZero() {
		from = to.Add(-7 * 24 * time.Hour)
	}
	return s.timeseries.Aggregate(ctx, lat, lon, bucket, from, to)
}

// ParseTargetDate interprets an optional YYYY-MM-DD ingestion target in the
// reference timezone, anchored at noon so cycle selection sees a published
// run for that date.
func (s *Service) ParseTargetDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation("2006-01-02", value, s.refLoc)
	if err != nil {
		return time.Time{}, &types.AppError{
			Code:    types.ErrCodeValidationInvalidDate,
			Message: "date must be formatted YYYY-MM-DD",
			Err:     err,
		}
	}
	return d.Add(12 * time.Hour), nil
}
