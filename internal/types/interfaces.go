package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// DurableStore is the authoritative relational store for observations.
// Failures here abort the batch.
type DurableStore interface {
	StoreObservation(ctx context.Context, obs *WeatherObservation) error
}

// CacheStore is the fast-read tier. Failures are tolerated per item.
type CacheStore interface {
	StoreLatest(ctx context.Context, obs *WeatherObservation) error
	StoreForecast(ctx context.Context, obs *WeatherObservation) error
	GetLatest(ctx context.Context, lat, lon float64) (*WeatherObservation, error)
	GetCurrent(ctx context.Context, lat, lon float64) (*CurrentConditions, error)
	StoreCurrent(ctx context.Context, cond *CurrentConditions) error
}

// TimeseriesStore is the historical analytics tier. Failures are tolerated
// per item.
type TimeseriesStore interface {
	InsertObservations(ctx context.Context, obs []*WeatherObservation) error
	LatestPerLocation(ctx context.Context) ([]*WeatherObservation, error)
	Recent(ctx context.Context, lat, lon float64, window time.Duration) ([]*WeatherObservation, error)
	Aggregate(ctx context.Context, lat, lon float64, bucket time.Duration, from, to time.Time) ([]*AggregateRow, error)
}

// ZoneRepository is the data access interface for weather zones.
type ZoneRepository interface {
	Create(ctx context.Context, zone *WeatherZone) error
	GetByID(ctx context.Context, id string) (*WeatherZone, error)
	Update(ctx context.Context, zone *WeatherZone) error
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*WeatherZone, error)
	List(ctx context.Context) ([]*WeatherZone, error)
	FindClosestZone(ctx context.Context, lat, lon, maxDistanceKm float64) (*WeatherZone, error)
	CountByNamePrefix(ctx context.Context, prefix string) (int, error)
}

// FieldResolver resolves registered fields for zone assignment.
type FieldResolver interface {
	GetByID(ctx context.Context, id string) (*Field, error)
	ListByZone(ctx context.Context, zoneID string) ([]*Field, error)
	AssignZone(ctx context.Context, fieldID, zoneID string) error
}

// CurrentWeatherProvider fetches real-time conditions from an external API.
type CurrentWeatherProvider interface {
	Fetch(ctx context.Context, lat, lon float64) (*CurrentConditions, error)
}
