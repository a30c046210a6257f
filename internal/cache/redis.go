// Package cache implements the Redis fast-read tier. Values are JSON blobs
// keyed by rounded coordinates; every key carries a TTL so the cache never
// needs explicit invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"agroclima/internal/types"
)

// TTLs holds the expiry per key family.
type TTLs struct {
	Latest   time.Duration
	Forecast time.Duration
	Current  time.Duration
}

// DefaultTTLs match the read patterns: latest values turn over hourly,
// forecasts daily, real-time conditions every few minutes.
var DefaultTTLs = TTLs{
	Latest:   time.Hour,
	Forecast: 24 * time.Hour,
	Current:  15 * time.Minute,
}

// RedisStore implements types.CacheStore over a Redis client.
type RedisStore struct {
	client *redis.Client
	ttls   TTLs
}

// NewRedisStore creates the store. Zero TTL fields fall back to defaults.
func NewRedisStore(client *redis.Client, ttls TTLs) *RedisStore {
	if ttls.Latest == 0 {
		ttls.Latest = DefaultTTLs.Latest
	}
	if ttls.Forecast == 0 {
		ttls.Forecast = DefaultTTLs.Forecast
	}
	if ttls.Current == 0 {
		ttls.Current = DefaultTTLs.Current
	}
	return &RedisStore{client: client, ttls: ttls}
}

func latestKey(lat, lon float64) string {
	return fmt.Sprintf("weather:latest:%.4f:%.4f", lat, lon)
}

func forecastKey(lat, lon float64, date time.Time) string {
	return fmt.Sprintf("weather:forecast:%.4f:%.4f:%s", lat, lon, date.Format("2006-01-02"))
}

func currentKey(lat, lon float64) string {
	return fmt.Sprintf("weather:current:%.4f:%.4f", lat, lon)
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalCache,
			Message: "encoding cache value",
			Err:     err,
		}
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalCache,
			Message: fmt.Sprintf("writing cache key %s", key),
			Err:     err,
		}
	}
	return nil
}

// getJSON reads a key into v. A cache miss returns (false, nil): absence is
// not an error.
func (s *RedisStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, &types.AppError{
			Code:    types.ErrCodeInternalCache,
			Message: fmt.Sprintf("reading cache key %s", key),
			Err:     err,
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &types.AppError{
			Code:    types.ErrCodeInternalCache,
			Message: fmt.Sprintf("decoding cache key %s", key),
			Err:     err,
		}
	}
	return true, nil
}

// StoreLatest writes the latest-observation key for the location.
func (s *RedisStore) StoreLatest(ctx context.Context, obs *types.WeatherObservation) error {
	return s.setJSON(ctx, latestKey(obs.Latitude, obs.Longitude), obs, s.ttls.Latest)
}

// StoreForecast writes the per-date forecast key for the location.
func (s *RedisStore) StoreForecast(ctx context.Context, obs *types.WeatherObservation) error {
	return s.setJSON(ctx, forecastKey(obs.Latitude, obs.Longitude, obs.Timestamp), obs, s.ttls.Forecast)
}

// GetLatest reads the latest observation; (nil, nil) on a miss.
func (s *RedisStore) GetLatest(ctx context.Context, lat, lon float64) (*types.WeatherObservation, error) {
	var obs types.WeatherObservation
	hit, err := s.getJSON(ctx, latestKey(lat, lon), &obs)
	if err != nil || !hit {
		return nil, err
	}
	return &obs, nil
}

// GetForecast reads the forecast cached for a location and date; (nil, nil)
// on a miss.
func (s *RedisStore) GetForecast(ctx context.Context, lat, lon float64, date time.Time) (*types.WeatherObservation, error) {
	var obs types.WeatherObservation
	hit, err := s.getJSON(ctx, forecastKey(lat, lon, date), &obs)
	if err != nil || !hit {
		return nil, err
	}
	return &obs, nil
}

// StoreCurrent writes real-time conditions for the location.
func (s *RedisStore) StoreCurrent(ctx context.Context, cond *types.CurrentConditions) error {
	return s.setJSON(ctx, currentKey(cond.Latitude, cond.Longitude), cond, s.ttls.Current)
}

// GetCurrent reads real-time conditions; (nil, nil) on a miss.
func (s *RedisStore) GetCurrent(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error) {
	var cond types.CurrentConditions
	hit, err := s.getJSON(ctx, currentKey(lat, lon), &cond)
	if err != nil || !hit {
		return nil, err
	}
	return &cond, nil
}

// Ping verifies connectivity for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalCache,
			Message: "pinging redis",
			Err:     err,
		}
	}
	return nil
}
