package zones

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agroclima/internal/types"
)

// fakeZoneRepo is an in-memory ZoneRepository.
type fakeZoneRepo struct {
	zones   []*types.WeatherZone
	nextID  int
	creates int
}

func (r *fakeZoneRepo) Create(_ context.Context, zone *types.WeatherZone) error {
	if err := zone.Validate(); err != nil {
		return err
	}
	r.nextID++
	r.creates++
	if zone.ID == "" {
		zone.ID = fmt.Sprintf("zone-%d", r.nextID)
	}
	now := time.Now().UTC()
	zone.CreatedAt = now
	zone.UpdatedAt = now
	cp := *zone
	r.zones = append(r.zones, &cp)
	return nil
}

func (r *fakeZoneRepo) GetByID(_ context.Context, id string) (*types.WeatherZone, error) {
	for _, z := range r.zones {
		if z.ID == id {
			cp := *z
			return &cp, nil
		}
	}
	return nil, &types.AppError{Code: types.ErrCodeNotFoundZone, Message: "weather zone not found"}
}

func (r *fakeZoneRepo) Update(_ context.Context, zone *types.WeatherZone) error {
	for i, z := range r.zones {
		if z.ID == zone.ID {
			cp := *zone
			r.zones[i] = &cp
			return nil
		}
	}
	return &types.AppError{Code: types.ErrCodeNotFoundZone, Message: "weather zone not found"}
}

func (r *fakeZoneRepo) Delete(_ context.Context, id string) error {
	for i, z := range r.zones {
		if z.ID == id {
			r.zones = append(r.zones[:i], r.zones[i+1:]...)
			return nil
		}
	}
	return &types.AppError{Code: types.ErrCodeNotFoundZone, Message: "weather zone not found"}
}

func (r *fakeZoneRepo) ListActive(_ context.Context) ([]*types.WeatherZone, error) {
	var out []*types.WeatherZone
	for _, z := range r.zones {
		if z.IsActive {
			cp := *z
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeZoneRepo) List(_ context.Context) ([]*types.WeatherZone, error) {
	out := make([]*types.WeatherZone, 0, len(r.zones))
	for _, z := range r.zones {
		cp := *z
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeZoneRepo) FindClosestZone(_ context.Context, lat, lon, maxDistanceKm float64) (*types.WeatherZone, error) {
	var best *types.WeatherZone
	bestDist := maxDistanceKm
	for _, z := range r.zones {
		if !z.IsActive {
			continue
		}
		d := Haversine(lat, lon, z.CenterLatitude, z.CenterLongitude)
		if d <= bestDist {
			cp := *z
			best = &cp
			bestDist = d
		}
	}
	if best == nil {
		return nil, &types.AppError{Code: types.ErrCodeNotFoundZone, Message: "no active zone within range"}
	}
	return best, nil
}

func (r *fakeZoneRepo) CountByNamePrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, z := range r.zones {
		if strings.HasPrefix(z.Name, prefix) {
			n++
		}
	}
	return n, nil
}

// fakeFieldRepo is an in-memory FieldResolver.
type fakeFieldRepo struct {
	fields map[string]*types.Field
}

func (r *fakeFieldRepo) GetByID(_ context.Context, id string) (*types.Field, error) {
	f, ok := r.fields[id]
	if !ok {
		return nil, &types.AppError{Code: types.ErrCodeNotFoundField, Message: "field not found"}
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFieldRepo) ListByZone(_ context.Context, zoneID string) ([]*types.Field, error) {
	var out []*types.Field
	for _, f := range r.fields {
		if f.ZoneID != nil && *f.ZoneID == zoneID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeFieldRepo) AssignZone(_ context.Context, fieldID, zoneID string) error {
	f, ok := r.fields[fieldID]
	if !ok {
		return &types.AppError{Code: types.ErrCodeNotFoundField, Message: "field not found"}
	}
	f.ZoneID = &zoneID
	return nil
}

func newTestService() (*AssignmentService, *fakeZoneRepo, *fakeFieldRepo) {
	zr := &fakeZoneRepo{}
	fr := &fakeFieldRepo{fields: map[string]*types.Field{
		"field-1": {ID: "field-1", Name: "Lote Norte", City: "Cordoba", Latitude: -31.40, Longitude: -64.20},
		"field-2": {ID: "field-2", Name: "Lote Sur", City: "Cordoba", Latitude: -31.42, Longitude: -64.21},
		"field-3": {ID: "field-3", Name: "Campo Lejano", City: "Salta", Latitude: -24.80, Longitude: -65.40},
	}}
	return NewAssignmentService(zr, fr, nil), zr, fr
}

func TestFindOrCreateZoneForField_CreatesWhenNoneInRange(t *testing.T) {
	svc, zr, fr := newTestService()

	zone, err := svc.FindOrCreateZoneForField(context.Background(), "field-1", 10)
	require.NoError(t, err)
	assert.Equal(t, "Zone Cordoba 1", zone.Name)
	assert.Equal(t, -31.40, zone.CenterLatitude)
	assert.Equal(t, 10.0, zone.RadiusKm)
	assert.True(t, zone.IsActive)
	assert.Equal(t, 1, zr.creates)

	require.NotNil(t, fr.fields["field-1"].ZoneID)
	assert.Equal(t, zone.ID, *fr.fields["field-1"].ZoneID)
}

func TestFindOrCreateZoneForField_ReusesNearbyZone(t *testing.T) {
	svc, zr, fr := newTestService()

	first, err := svc.FindOrCreateZoneForField(context.Background(), "field-1", 10)
	require.NoError(t, err)

	// field-2 is ~2.4 km from field-1: same zone, no second create.
	second, err := svc.FindOrCreateZoneForField(context.Background(), "field-2", 10)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, zr.creates)
	assert.Equal(t, first.ID, *fr.fields["field-2"].ZoneID)
}

func TestFindOrCreateZoneForField_Idempotent(t *testing.T) {
	svc, zr, _ := newTestService()

	first, err := svc.FindOrCreateZoneForField(context.Background(), "field-1", 10)
	require.NoError(t, err)

	again, err := svc.FindOrCreateZoneForField(context.Background(), "field-1", 10)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, zr.creates)
}

func TestFindOrCreateZoneForField_DistantFieldGetsOwnZone(t *testing.T) {
	svc, zr, _ := newTestService()

	_, err := svc.FindOrCreateZoneForField(context.Background(), "field-1", 10)
	require.NoError(t, err)

	zone, err := svc.FindOrCreateZoneForField(context.Background(), "field-3", 10)
	require.NoError(t, err)
	assert.Equal(t, "Zone Salta 1", zone.Name)
	assert.Equal(t, 2, zr.creates)
}

func TestFindOrCreateZoneForField_NameOrdinalGrows(t *testing.T) {
	svc, zr, _ := newTestService()

	// Pre-existing inactive zone occupies the first ordinal; a new zone for
	// the same city must pick the next number even though it cannot be reused.
	require.NoError(t, zr.Create(context.Background(), &types.WeatherZone{
		Name: "Zone Cordoba 1", CenterLatitude: -31.40, CenterLongitude: -64.20,
		RadiusKm: 10, IsActive: false,
	}))
	zr.creates = 0

	zone, err := svc.FindOrCreateZoneForField(context.Background(), "field-1", 10)
	require.NoError(t, err)
	assert.Equal(t, "Zone Cordoba 2", zone.Name)
}

func TestFindOrCreateZoneForField_FieldNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.FindOrCreateZoneForField(context.Background(), "missing", 10)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundField, appErr.Code)
}

func TestFindOrCreateZoneForField_InvalidDistance(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.FindOrCreateZoneForField(context.Background(), "field-1", 80)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidRadius, appErr.Code)
}

func TestFindZoneForField_ReadOnly(t *testing.T) {
	svc, zr, _ := newTestService()

	_, err := svc.FindZoneForField(context.Background(), "field-1", 10)
	require.Error(t, err)
	assert.Zero(t, zr.creates, "read-only lookup must not create zones")

	created, err := svc.FindOrCreateZoneForField(context.Background(), "field-1", 10)
	require.NoError(t, err)

	found, err := svc.FindZoneForField(context.Background(), "field-2", 10)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestOptimizeZones(t *testing.T) {
	svc, zr, _ := newTestService()

	zone, err := svc.FindOrCreateZoneForField(context.Background(), "field-1", 10)
	require.NoError(t, err)
	_, err = svc.FindOrCreateZoneForField(context.Background(), "field-2", 10)
	require.NoError(t, err)

	results, err := svc.OptimizeZones(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, zone.ID, results[0].ZoneID)
	assert.True(t, results[0].Moved, "center shifts to the member centroid")

	updated, err := zr.GetByID(context.Background(), zone.ID)
	require.NoError(t, err)
	assert.InDelta(t, -31.41, updated.CenterLatitude, 0.001)
	assert.GreaterOrEqual(t, updated.RadiusKm, 1.0)
	assert.LessOrEqual(t, updated.RadiusKm, 50.0)
}

func TestOptimizeZones_SkipsEmptyZones(t *testing.T) {
	svc, zr, _ := newTestService()

	require.NoError(t, zr.Create(context.Background(), &types.WeatherZone{
		Name: "Zone Cordoba 1", CenterLatitude: -31.40, CenterLongitude: -64.20,
		RadiusKm: 10, IsActive: true,
	}))

	results, err := svc.OptimizeZones(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}
