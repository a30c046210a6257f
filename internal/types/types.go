package types

import (
	"time"
)

// Coordinate is a geographic point. Validate before handing one to the grid
// mapper or any store.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"required,latitude"`
	Lon float64 `json:"lon" validate:"required,longitude"`
}

// Validate checks that the coordinate lies within valid geographic ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return NewAppError(ErrCodeValidationInvalidLat, "latitude must be within [-90, 90]", nil)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return NewAppError(ErrCodeValidationInvalidLon, "longitude must be within [-180, 180]", nil)
	}
	return nil
}

// WeatherZone is a circular monitoring region. Fields are assigned to the
// closest active zone within reach; observations are keyed by the zone center.
type WeatherZone struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	CenterLatitude  float64   `json:"center_latitude" db:"center_latitude"`
	CenterLongitude float64   `json:"center_longitude" db:"center_longitude"`
	RadiusKm        float64   `json:"radius_km" db:"radius_km"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Center returns the zone center as a Coordinate.
func (z *WeatherZone) Center() Coordinate {
	return Coordinate{Lat: z.CenterLatitude, Lon: z.CenterLongitude}
}

// Validate implements the Validator interface for WeatherZone.
func (z *WeatherZone) Validate() error {
	if err := z.Center().Validate(); err != nil {
		return err
	}
	if z.RadiusKm < 1 || z.RadiusKm > 50 {
		return NewAppError(ErrCodeValidationInvalidRadius, "radius_km must be within [1, 50]", nil)
	}
	return nil
}

// Field is a registered agricultural plot. Only the pieces the zone assigner
// needs are carried here.
type Field struct {
	ID        string  `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	City      string  `json:"city" db:"city"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	ZoneID    *string `json:"zone_id,omitempty" db:"zone_id"`
}

// Location returns the field's coordinate.
func (f *Field) Location() Coordinate {
	return Coordinate{Lat: f.Latitude, Lon: f.Longitude}
}

// WeatherObservation is one extracted forecast sample for a location.
// Extraction is all-or-nothing per coordinate: a batch slot is either a fully
// populated observation or nil, never a partial record.
type WeatherObservation struct {
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	Latitude      float64   `json:"latitude" db:"latitude"`
	Longitude     float64   `json:"longitude" db:"longitude"`
	Temperature   float64   `json:"temperature" db:"temperature"`
	Humidity      float64   `json:"humidity" db:"humidity"`
	Precipitation float64   `json:"precipitation" db:"precipitation"`
	WindSpeed     float64   `json:"wind_speed" db:"wind_speed"`
	WindDirection float64   `json:"wind_direction" db:"wind_direction"`
	Pressure      float64   `json:"pressure" db:"pressure"`
	SoilMoisture  *float64  `json:"soil_moisture,omitempty" db:"soil_moisture"`
}

// CurrentConditions holds real-time weather from the external REST provider,
// as opposed to model-derived WeatherObservations.
type CurrentConditions struct {
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     *float64  `json:"feels_like,omitempty"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection float64   `json:"wind_direction"`
	VisibilityKm  float64   `json:"visibility_km"`
	Precipitation float64   `json:"precipitation"`
	Description   string    `json:"description"`
	Source        string    `json:"source"`
	ObservedAt    time.Time `json:"observed_at"`
}

// StoreCounts reports how many observations each storage tier accepted during
// a fanout. Durable is authoritative; cache and timeseries may lag behind it
// when individual writes fail.
type StoreCounts struct {
	Durable    int `json:"durable"`
	Cache      int `json:"cache"`
	Timeseries int `json:"timeseries"`
}

// Add accumulates another batch's counts.
func (c *StoreCounts) Add(o StoreCounts) {
	c.Durable += o.Durable
	c.Cache += o.Cache
	c.Timeseries += o.Timeseries
}

// PopulateSummary is the result of an ingestion run across all active zones.
type PopulateSummary struct {
	ZonesProcessed int         `json:"zones_processed"`
	ZonesSkipped   int         `json:"zones_skipped"`
	Counts         StoreCounts `json:"counts"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
}

// AggregateRow is one time_bucket aggregation result row.
type AggregateRow struct {
	Bucket           time.Time `json:"bucket"`
	AvgTemperature   float64   `json:"avg_temperature"`
	MinTemperature   float64   `json:"min_temperature"`
	MaxTemperature   float64   `json:"max_temperature"`
	AvgHumidity      float64   `json:"avg_humidity"`
	SumPrecipitation float64   `json:"sum_precipitation"`
	AvgWindSpeed     float64   `json:"avg_wind_speed"`
	SampleCount      int       `json:"sample_count"`
}

// ChunkInfo describes one hypertable chunk for maintenance reporting.
type ChunkInfo struct {
	ChunkName    string    `json:"chunk_name"`
	RangeStart   time.Time `json:"range_start"`
	RangeEnd     time.Time `json:"range_end"`
	IsCompressed bool      `json:"is_compressed"`
}
