package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"agroclima/internal/types"
)

// FieldRepository provides data access for the fields table. It implements
// types.FieldResolver for the zone assignment service.
type FieldRepository struct {
	db DBTX
}

// NewFieldRepository creates a field repository.
func NewFieldRepository(db DBTX) *FieldRepository {
	return &FieldRepository{db: db}
}

const fieldColumns = `id, name, city, latitude, longitude, zone_id`

func scanField(row pgx.Row) (*types.Field, error) {
	var f types.Field
	err := row.Scan(&f.ID, &f.Name, &f.City, &f.Latitude, &f.Longitude, &f.ZoneID)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetByID fetches one field, returning ErrCodeNotFoundField when absent.
func (r *FieldRepository) GetByID(ctx context.Context, id string) (*types.Field, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+fieldColumns+` FROM fields WHERE id = $1`, id)

	f, err := scanField(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &types.AppError{
				Code:    types.ErrCodeNotFoundField,
				Message: "field not found",
				Details: map[string]any{"field_id": id},
			}
		}
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "fetching field",
			Err:     err,
		}
	}
	return f, nil
}

// ListByZone returns every field assigned to the zone.
func (r *FieldRepository) ListByZone(ctx context.Context, zoneID string) ([]*types.Field, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+fieldColumns+` FROM fields WHERE zone_id = $1 ORDER BY name`, zoneID)
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "listing fields by zone",
			Err:     err,
		}
	}
	defer rows.Close()

	var fields []*types.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, &types.AppError{
				Code:    types.ErrCodeInternalDB,
				Message: "scanning field row",
				Err:     err,
			}
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "iterating field rows",
			Err:     err,
		}
	}
	return fields, nil
}

// AssignZone links a field to a zone.
func (r *FieldRepository) AssignZone(ctx context.Context, fieldID, zoneID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE fields SET zone_id = $2 WHERE id = $1`, fieldID, zoneID)
	if err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalDB,
			Message: "assigning field to zone",
			Err:     err,
		}
	}
	if tag.RowsAffected() == 0 {
		return &types.AppError{
			Code:    types.ErrCodeNotFoundField,
			Message: "field not found",
			Details: map[string]any{"field_id": fieldID},
		}
	}
	return nil
}
