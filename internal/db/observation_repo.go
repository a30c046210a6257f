package db

import (
	"context"

	"agroclima/internal/types"
)

// ObservationRepository is the durable (authoritative) store for extracted
// observations. It writes to a plain relational table; the hypertable copy is
// handled separately by TimeseriesRepository.
type ObservationRepository struct {
	db DBTX
}

// NewObservationRepository creates an observation repository.
func NewObservationRepository(db DBTX) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// StoreObservation upserts one observation keyed by (timestamp, latitude,
// longitude). Re-running an ingestion pass for the same cycle overwrites
// rather than duplicates.
func (r *ObservationRepository) StoreObservation(ctx context.Context, obs *types.WeatherObservation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO weather_observations
			(timestamp, latitude, longitude, temperature, humidity, precipitation,
			 wind_speed, wind_direction, pressure, soil_moisture)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (timestamp, latitude, longitude) DO UPDATE SET
			temperature = EXCLUDED.temperature,
			humidity = EXCLUDED.humidity,
			precipitation = EXCLUDED.precipitation,
			wind_speed = EXCLUDED.wind_speed,
			wind_direction = EXCLUDED.wind_direction,
			pressure = EXCLUDED.pressure,
			soil_moisture = EXCLUDED.soil_moisture`,
		obs.Timestamp, obs.Latitude, obs.Longitude,
		obs.Temperature, obs.Humidity, obs.Precipitation,
		obs.WindSpeed, obs.WindDirection, obs.Pressure, obs.SoilMoisture,
	)
	if err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "storing weather observation",
			Err:     err,
		}
	}
	return nil
}
