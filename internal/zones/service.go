package zones

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"agroclima/internal/types"
)

// DefaultMaxDistanceKm is used when a caller does not bound the search.
const DefaultMaxDistanceKm = 10.0

// maxZoneRadiusKm caps radii produced by zone optimization.
const maxZoneRadiusKm = 50.0

// AssignmentService attaches fields to zones and administers the zone set.
//
// Find-or-create is intentionally not serialized: two concurrent requests for
// nearby unzoned fields may both create a zone, possibly with the same
// generated name. Duplicate names are cosmetic and tolerated; serializing
// creation was judged not worth a global lock on the hot path.
type AssignmentService struct {
	zones  types.ZoneRepository
	fields types.FieldResolver
	logger *slog.Logger
}

// NewAssignmentService creates the zone assignment service.
func NewAssignmentService(zones types.ZoneRepository, fields types.FieldResolver, logger *slog.Logger) *AssignmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssignmentService{zones: zones, fields: fields, logger: logger}
}

// FindOrCreateZoneForField resolves the field, returns the closest active
// zone within maxDistanceKm, and creates one centered on the field when none
// is in range. The field is linked to the resulting zone either way.
func (s *AssignmentService) FindOrCreateZoneForField(ctx context.Context, fieldID string, maxDistanceKm float64) (*types.WeatherZone, error) {
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxDistanceKm
	}
	if maxDistanceKm < 1 || maxDistanceKm > maxZoneRadiusKm {
		return nil, &types.AppError{
			Code:    types.ErrCodeValidationInvalidRadius,
			Message: fmt.Sprintf("max_distance_km must be within [1, %v]", maxZoneRadiusKm),
		}
	}

	field, err := s.fields.GetByID(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	if err := field.Location().Validate(); err != nil {
		return nil, err
	}

	zone, err := s.zones.FindClosestZone(ctx, field.Latitude, field.Longitude, maxDistanceKm)
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundZone {
			return nil, err
		}
		zone, err = s.createZoneForField(ctx, field, maxDistanceKm)
		if err != nil {
			return nil, err
		}
	}

	if err := s.fields.AssignZone(ctx, field.ID, zone.ID); err != nil {
		return nil, err
	}
	return zone, nil
}

// createZoneForField creates a new active zone centered on the field. The
// generated name is "Zone {city} {n}" where n is one past the count of
// existing zones sharing the city prefix.
func (s *AssignmentService) createZoneForField(ctx context.Context, field *types.Field, radiusKm float64) (*types.WeatherZone, error) {
	prefix := fmt.Sprintf("Zone %s", field.City)
	n, err := s.zones.CountByNamePrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	zone := &types.WeatherZone{
		Name:            fmt.Sprintf("%s %d", prefix, n+1),
		CenterLatitude:  field.Latitude,
		CenterLongitude: field.Longitude,
		RadiusKm:        radiusKm,
		IsActive:        true,
	}
	if err := s.zones.Create(ctx, zone); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "zone created for field",
		"zone_id", zone.ID,
		"zone_name", zone.Name,
		"field_id", field.ID,
		"radius_km", radiusKm,
	)
	return zone, nil
}

// FindZoneForField is the read-only variant: it scans active zones in
// process with Haversine and never creates anything. Returns
// ErrCodeNotFoundZone when no zone is within maxDistanceKm.
func (s *AssignmentService) FindZoneForField(ctx context.Context, fieldID string, maxDistanceKm float64) (*types.WeatherZone, error) {
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxDistanceKm
	}

	field, err := s.fields.GetByID(ctx, fieldID)
	if err != nil {
		return nil, err
	}

	active, err := s.zones.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var best *types.WeatherZone
	bestDist := math.MaxFloat64
	for _, z := range active {
		d := Haversine(field.Latitude, field.Longitude, z.CenterLatitude, z.CenterLongitude)
		if d <= maxDistanceKm && d < bestDist {
			best = z
			bestDist = d
		}
	}
	if best == nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeNotFoundZone,
			Message: "no active zone within range",
			Details: map[string]any{"field_id": fieldID, "max_distance_km": maxDistanceKm},
		}
	}
	return best, nil
}

// CreateZone, GetZone, UpdateZone, DeleteZone and ListZones are thin
// administrative passthroughs; validation lives in the repository.

func (s *AssignmentService) CreateZone(ctx context.Context, zone *types.WeatherZone) error {
	return s.zones.Create(ctx, zone)
}

func (s *AssignmentService) GetZone(ctx context.Context, id string) (*types.WeatherZone, error) {
	return s.zones.GetByID(ctx, id)
}

func (s *AssignmentService) UpdateZone(ctx context.Context, zone *types.WeatherZone) error {
	return s.zones.Update(ctx, zone)
}

func (s *AssignmentService) DeleteZone(ctx context.Context, id string) error {
	return s.zones.Delete(ctx, id)
}

func (s *AssignmentService) ListZones(ctx context.Context, activeOnly bool) ([]*types.WeatherZone, error) {
	if activeOnly {
		return s.zones.ListActive(ctx)
	}
	return s.zones.List(ctx)
}

// OptimizeResult reports one zone adjusted by OptimizeZones.
type OptimizeResult struct {
	ZoneID    string  `json:"zone_id"`
	OldRadius float64 `json:"old_radius_km"`
	NewRadius float64 `json:"new_radius_km"`
	Moved     bool    `json:"moved"`
}

// OptimizeZones recenters every active zone on the centroid of its member
// fields and resizes it to 1.2x the farthest member distance, capped at the
// maximum radius. Zones without members are left untouched.
func (s *AssignmentService) OptimizeZones(ctx context.Context) ([]OptimizeResult, error) {
	active, err := s.zones.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var results []OptimizeResult
	for _, zone := range active {
		members, err := s.fields.ListByZone(ctx, zone.ID)
		if err != nil {
			return results, err
		}
		if len(members) == 0 {
			continue
		}

		var sumLat, sumLon float64
		for _, f := range members {
			sumLat += f.Latitude
			sumLon += f.Longitude
		}
		centerLat := sumLat / float64(len(members))
		centerLon := sumLon / float64(len(members))

		var maxDist float64
		for _, f := range members {
			d := Haversine(centerLat, centerLon, f.Latitude, f.Longitude)
			if d > maxDist {
				maxDist = d
			}
		}

		newRadius := maxDist * 1.2
		if newRadius < 1 {
			newRadius = 1
		}
		if newRadius > maxZoneRadiusKm {
			newRadius = maxZoneRadiusKm
		}

		moved := centerLat != zone.CenterLatitude || centerLon != zone.CenterLongitude
		result := OptimizeResult{
			ZoneID:    zone.ID,
			OldRadius: zone.RadiusKm,
			NewRadius: newRadius,
			Moved:     moved,
		}

		if !moved && newRadius == zone.RadiusKm {
			continue
		}

		zone.CenterLatitude = centerLat
		zone.CenterLongitude = centerLon
		zone.RadiusKm = newRadius
		if err := s.zones.Update(ctx, zone); err != nil {
			return results, err
		}
		results = append(results, result)
	}

	if len(results) > 0 {
		s.logger.InfoContext(ctx, "zones optimized", "adjusted", len(results))
	}
	return results, nil
}
