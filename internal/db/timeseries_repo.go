package db

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"agroclima/internal/types"
)

// TimeseriesRepository provides access to the weather_timeseries hypertable.
// Inserts are idempotent on the (timestamp, latitude, longitude) primary key;
// reads use TimescaleDB's time_bucket and last() functions.
type TimeseriesRepository struct {
	db DBTX
}

// NewTimeseriesRepository creates a timeseries repository.
func NewTimeseriesRepository(db DBTX) *TimeseriesRepository {
	return &TimeseriesRepository{db: db}
}

const tsColumns = `timestamp, latitude, longitude, temperature, humidity, precipitation,
	wind_speed, wind_direction, pressure, soil_moisture`

// InsertObservations writes a batch as one multi-row statement. Conflicting
// rows are replaced so re-ingesting a cycle is safe.
func (r *TimeseriesRepository) InsertObservations(ctx context.Context, obs []*types.WeatherObservation) error {
	if len(obs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO weather_timeseries (` + tsColumns + `) VALUES `)
	args := make([]any, 0, len(obs)*10)
	for i, o := range obs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 1; j <= 10; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(i*10 + j))
		}
		sb.WriteByte(')')
		args = append(args,
			o.Timestamp, o.Latitude, o.Longitude,
			o.Temperature, o.Humidity, o.Precipitation,
			o.WindSpeed, o.WindDirection, o.Pressure, o.SoilMoisture,
		)
	}
	sb.WriteString(` ON CONFLICT (timestamp, latitude, longitude) DO UPDATE SET
		temperature = EXCLUDED.temperature,
		humidity = EXCLUDED.humidity,
		precipitation = EXCLUDED.precipitation,
		wind_speed = EXCLUDED.wind_speed,
		wind_direction = EXCLUDED.wind_direction,
		pressure = EXCLUDED.pressure,
		soil_moisture = EXCLUDED.soil_moisture`)

	if _, err := r.db.Exec(ctx, sb.String(), args...); err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "inserting timeseries batch",
			Err:     err,
		}
	}
	return nil
}

// LatestPerLocation returns the newest observation for every distinct
// location using TimescaleDB's last() aggregate.
func (r *TimeseriesRepository) LatestPerLocation(ctx context.Context) ([]*types.WeatherObservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT last(timestamp, timestamp),
		       latitude, longitude,
		       last(temperature, timestamp),
		       last(humidity, timestamp),
		       last(precipitation, timestamp),
		       last(wind_speed, timestamp),
		       last(wind_direction, timestamp),
		       last(pressure, timestamp),
		       last(soil_moisture, timestamp)
		FROM weather_timeseries
		GROUP BY latitude, longitude
		ORDER BY latitude, longitude`)
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "querying latest per location",
			Err:     err,
		}
	}
	defer rows.Close()
	return r.collect(rows)
}

// Recent returns observations for one location within the trailing window,
// newest first.
func (r *TimeseriesRepository) Recent(ctx context.Context, lat, lon float64, window time.Duration) ([]*types.WeatherObservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+tsColumns+`
		FROM weather_timeseries
		WHERE latitude = $1 AND longitude = $2
		  AND timestamp >= now() - $3::interval
		ORDER BY timestamp DESC`,
		lat, lon, window.String())
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "querying recent observations",
			Err:     err,
		}
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *TimeseriesRepository) collect(rows pgx.Rows) ([]*types.WeatherObservation, error) {
	var out []*types.WeatherObservation
	for rows.Next() {
		var o types.WeatherObservation
		err := rows.Scan(
			&o.Timestamp, &o.Latitude, &o.Longitude,
			&o.Temperature, &o.Humidity, &o.Precipitation,
			&o.WindSpeed, &o.WindDirection, &o.Pressure, &o.SoilMoisture,
		)
		if err != nil {
			return nil, &types.AppError{
				Code:    types.ErrCodeInternalTimeseries,
				Message: "scanning timeseries row",
				Err:     err,
			}
		}
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "iterating timeseries rows",
			Err:     err,
		}
	}
	return out, nil
}

// Aggregate buckets one location's observations with time_bucket.
func (r *TimeseriesRepository) Aggregate(ctx context.Context, lat, lon float64, bucket time.Duration, from, to time.Time) ([]*types.AggregateRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT time_bucket($3::interval, timestamp) AS bucket,
		       avg(temperature), min(temperature), max(temperature),
		       avg(humidity), sum(precipitation), avg(wind_speed),
		       count(*)
		FROM weather_timeseries
		WHERE latitude = $1 AND longitude = $2
		  AND timestamp >= $4 AND timestamp < $5
		GROUP BY bucket
		ORDER BY bucket`,
		lat, lon, bucket.String(), from, to)
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "querying timeseries aggregate",
			Err:     err,
		}
	}
	defer rows.Close()

	var out []*types.AggregateRow
	for rows.Next() {
		var a types.AggregateRow
		err := rows.Scan(
			&a.Bucket,
			&a.AvgTemperature, &a.MinTemperature, &a.MaxTemperature,
			&a.AvgHumidity, &a.SumPrecipitation, &a.AvgWindSpeed,
			&a.SampleCount,
		)
		if err != nil {
			return nil, &types.AppError{
				Code:    types.ErrCodeInternalTimeseries,
				Message: "scanning aggregate row",
				Err:     err,
			}
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "iterating aggregate rows",
			Err:     err,
		}
	}
	return out, nil
}
