package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agroclima/internal/types"
)

// ZoneRepository provides data access for the weather_zones table.
type ZoneRepository struct {
	db    DBTX
	clock types.Clock
}

// NewZoneRepository creates a zone repository backed by the given database
// connection (pool or transaction).
func NewZoneRepository(db DBTX, clock types.Clock) *ZoneRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &ZoneRepository{db: db, clock: clock}
}

const zoneColumns = `id, name, center_latitude, center_longitude, radius_km, is_active, created_at, updated_at`

func scanZone(row pgx.Row) (*types.WeatherZone, error) {
	var z types.WeatherZone
	err := row.Scan(
		&z.ID,
		&z.Name,
		&z.CenterLatitude,
		&z.CenterLongitude,
		&z.RadiusKm,
		&z.IsActive,
		&z.CreatedAt,
		&z.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &z, nil
}

// Create inserts a new zone. A missing ID is generated; timestamps are set
// from the repository clock.
func (r *ZoneRepository) Create(ctx context.Context, zone *types.WeatherZone) error {
	if err := zone.Validate(); err != nil {
		return err
	}
	if zone.ID == "" {
		zone.ID = uuid.NewString()
	}
	now := r.clock.Now()
	zone.CreatedAt = now
	zone.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO weather_zones (id, name, center_latitude, center_longitude, radius_km, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		zone.ID, zone.Name, zone.CenterLatitude, zone.CenterLongitude,
		zone.RadiusKm, zone.IsActive, zone.CreatedAt, zone.UpdatedAt,
	)
	if err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "inserting weather zone",
			Err:     err,
		}
	}
	return nil
}

// GetByID fetches one zone, returning ErrCodeNotFoundZone when absent.
func (r *ZoneRepository) GetByID(ctx context.Context, id string) (*types.WeatherZone, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+zoneColumns+` FROM weather_zones WHERE id = $1`, id)

	zone, err := scanZone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &types.AppError{
				Code:    types.ErrCodeNotFoundZone,
				Message: "weather zone not found",
				Details: map[string]any{"zone_id": id},
			}
		}
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "fetching weather zone",
			Err:     err,
		}
	}
	return zone, nil
}

// Update persists name, center, radius and active flag.
func (r *ZoneRepository) Update(ctx context.Context, zone *types.WeatherZone) error {
	if err := zone.Validate(); err != nil {
		return err
	}
	zone.UpdatedAt = r.clock.Now()

	tag, err := r.db.Exec(ctx, `
		UPDATE weather_zones
		SET name = $2, center_latitude = $3, center_longitude = $4,
		    radius_km = $5, is_active = $6, updated_at = $7
		WHERE id = $1`,
		zone.ID, zone.Name, zone.CenterLatitude, zone.CenterLongitude,
		zone.RadiusKm, zone.IsActive, zone.UpdatedAt,
	)
	if err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "updating weather zone",
			Err:     err,
		}
	}
	if tag.RowsAffected() == 0 {
		return &types.AppError{
			Code:    types.ErrCodeNotFoundZone,
			Message: "weather zone not found",
			Details: map[string]any{"zone_id": zone.ID},
		}
	}
	return nil
}

// Delete removes a zone.
func (r *ZoneRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM weather_zones WHERE id = $1`, id)
	if err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "deleting weather zone",
			Err:     err,
		}
	}
	if tag.RowsAffected() == 0 {
		return &types.AppError{
			Code:    types.ErrCodeNotFoundZone,
			Message: "weather zone not found",
			Details: map[string]any{"zone_id": id},
		}
	}
	return nil
}

// ListActive returns all active zones ordered by creation time.
func (r *ZoneRepository) ListActive(ctx context.Context) ([]*types.WeatherZone, error) {
	return r.list(ctx, `SELECT `+zoneColumns+` FROM weather_zones WHERE is_active ORDER BY created_at`)
}

// List returns every zone, active or not.
func (r *ZoneRepository) List(ctx context.Context) ([]*types.WeatherZone, error) {
	return r.list(ctx, `SELECT `+zoneColumns+` FROM weather_zones ORDER BY created_at`)
}

func (r *ZoneRepository) list(ctx context.Context, query string) ([]*types.WeatherZone, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "listing weather zones",
			Err:     err,
		}
	}
	defer rows.Close()

	var zones []*types.WeatherZone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, &types.AppError{
				Code:    types.ErrCodeInternalDB,
				Message: "scanning weather zone row",
				Err:     err,
			}
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "iterating weather zone rows",
			Err:     err,
		}
	}
	return zones, nil
}

// FindClosestZone returns the nearest active zone within maxDistanceKm of the
// point, or ErrCodeNotFoundZone when none qualifies. Distance is computed in
// SQL with the spherical law of cosines so the ordering happens in the
// database rather than in Go.
func (r *ZoneRepository) FindClosestZone(ctx context.Context, lat, lon, maxDistanceKm float64) (*types.WeatherZone, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+zoneColumns+`
		FROM (
			SELECT *,
				6371 * acos(
					least(1.0, greatest(-1.0,
						cos(radians($1)) * cos(radians(center_latitude)) *
						cos(radians(center_longitude) - radians($2)) +
						sin(radians($1)) * sin(radians(center_latitude))
					))
				) AS distance_km
			FROM weather_zones
			WHERE is_active
		) z
		WHERE distance_km <= $3
		ORDER BY distance_km
		LIMIT 1`,
		lat, lon, maxDistanceKm,
	)

	zone, err := scanZone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &types.AppError{
				Code:    types.ErrCodeNotFoundZone,
				Message: "no active zone within range",
				Details: map[string]any{"lat": lat, "lon": lon, "max_distance_km": maxDistanceKm},
			}
		}
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "finding closest zone",
			Err:     err,
		}
	}
	return zone, nil
}

// CountByNamePrefix counts zones whose name starts with prefix. Used to pick
// the next ordinal when generating zone names.
func (r *ZoneRepository) CountByNamePrefix(ctx context.Context, prefix string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM weather_zones WHERE name LIKE $1 || '%'`, prefix,
	).Scan(&n)
	if err != nil {
		return 0, &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "counting zones by name prefix",
			Err:     err,
		}
	}
	return n, nil
}
