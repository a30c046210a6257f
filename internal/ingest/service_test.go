package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agroclima/internal/types"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeZones struct {
	zones   []*types.WeatherZone
	listErr error
}

func (r *fakeZones) Create(context.Context, *types.WeatherZone) error { return nil }
func (r *fakeZones) GetByID(context.Context, string) (*types.WeatherZone, error) {
	return nil, errors.New("not implemented")
}
func (r *fakeZones) Update(context.Context, *types.WeatherZone) error { return nil }
func (r *fakeZones) Delete(context.Context, string) error             { return nil }
func (r *fakeZones) List(context.Context) ([]*types.WeatherZone, error) {
	return r.zones, nil
}
func (r *fakeZones) ListActive(context.Context) ([]*types.WeatherZone, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.zones, nil
}
func (r *fakeZones) FindClosestZone(context.Context, float64, float64, float64) (*types.WeatherZone, error) {
	return nil, errors.New("not implemented")
}
func (r *fakeZones) CountByNamePrefix(context.Context, string) (int, error) { return 0, nil }

// fakeFetcher yields an observation per zone center except for coordinates
// listed in dropped.
type fakeFetcher struct {
	dropped map[float64]bool
	gotAt   time.Time
}

func (f *fakeFetcher) FetchBatch(_ context.Context, coords []types.Coordinate, at time.Time) []*types.WeatherObservation {
	f.gotAt = at
	out := make([]*types.WeatherObservation, len(coords))
	for i, c := range coords {
		if f.dropped[c.Lat] {
			continue
		}
		out[i] = makeObs(c.Lat, c.Lon)
	}
	return out
}

type fakeForecastReader struct {
	obs *types.WeatherObservation
}

func (f *fakeForecastReader) GetForecast(context.Context, float64, float64, time.Time) (*types.WeatherObservation, error) {
	return f.obs, nil
}

type fakeProvider struct {
	cond  *types.CurrentConditions
	err   error
	calls int
}

func (p *fakeProvider) Fetch(_ context.Context, lat, lon float64) (*types.CurrentConditions, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	cond := *p.cond
	cond.Latitude = lat
	cond.Longitude = lon
	return &cond, nil
}

func zone(id, name string, lat, lon float64) *types.WeatherZone {
	return &types.WeatherZone{
		ID: id, Name: name,
		CenterLatitude: lat, CenterLongitude: lon,
		RadiusKm: 10, IsActive: true,
	}
}

func newServiceForTest(zones *fakeZones, fetcher *fakeFetcher, cache *fakeCache, ts *fakeTimeseries, provider *fakeProvider) (*Service, *fakeDurable) {
	durable := &fakeDurable{}
	fanout := NewStorageFanout(durable, cache, ts, 4, nil)
	clock := fixedClock{now: time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)}
	refLoc := time.FixedZone("-03", -3*3600)
	svc := NewService(zones, fetcher, fanout, cache, &fakeForecastReader{}, ts, provider, clock, refLoc, nil, nil)
	return svc, durable
}

func TestPopulateAllZonesTwoOfThree(t *testing.T) {
	zones := &fakeZones{zones: []*types.WeatherZone{
		zone("z1", "Zone Cordoba 1", -31.4, -64.2),
		zone("z2", "Zone Buenos Aires 1", -34.6, -58.4),
		zone("z3", "Zone Salta 1", -24.8, -65.4),
	}}
	fetcher := &fakeFetcher{dropped: map[float64]bool{-34.6: true}}
	cache := &fakeCache{}
	ts := &fakeTimeseries{}

	svc, durable := newServiceForTest(zones, fetcher, cache, ts, &fakeProvider{})

	summary, err := svc.PopulateAllZones(context.Background(), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ZonesProcessed)
	assert.Equal(t, 1, summary.ZonesSkipped)
	assert.Equal(t, types.StoreCounts{Durable: 2, Cache: 2, Timeseries: 2}, summary.Counts)
	assert.Len(t, durable.stored, 2)
}

func TestPopulateAllZonesAllExtracted(t *testing.T) {
	zones := &fakeZones{zones: []*types.WeatherZone{
		zone("z1", "Zone Cordoba 1", -31.4, -64.2),
		zone("z2", "Zone Salta 1", -24.8, -65.4),
	}}
	fetcher := &fakeFetcher{}
	svc, _ := newServiceForTest(zones, fetcher, &fakeCache{}, &fakeTimeseries{}, &fakeProvider{})

	summary, err := svc.PopulateAllZones(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ZonesProcessed)
	assert.Zero(t, summary.ZonesSkipped)
	assert.False(t, fetcher.gotAt.IsZero(), "zero target resolves to the clock")
}

func TestPopulateAllZonesNoActiveZones(t *testing.T) {
	svc, _ := newServiceForTest(&fakeZones{}, &fakeFetcher{}, &fakeCache{}, &fakeTimeseries{}, &fakeProvider{})

	summary, err := svc.PopulateAllZones(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, summary.ZonesProcessed)
	assert.Zero(t, summary.Counts.Durable)
}

func TestPopulateAllZonesZoneQueryFails(t *testing.T) {
	zones := &fakeZones{listErr: errors.New("db down")}
	svc, _ := newServiceForTest(zones, &fakeFetcher{}, &fakeCache{}, &fakeTimeseries{}, &fakeProvider{})

	_, err := svc.PopulateAllZones(context.Background(), time.Time{})
	require.Error(t, err)
}

func TestPopulateAllZonesCacheOutageStillCounts(t *testing.T) {
	zones := &fakeZones{zones: []*types.WeatherZone{
		zone("z1", "Zone Cordoba 1", -31.4, -64.2),
		zone("z2", "Zone Salta 1", -24.8, -65.4),
	}}
	cache := &fakeCache{failAll: true}
	ts := &fakeTimeseries{}
	svc, _ := newServiceForTest(zones, &fakeFetcher{}, cache, ts, &fakeProvider{})

	summary, err := svc.PopulateAllZones(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ZonesProcessed)
	assert.Equal(t, 2, summary.Counts.Durable)
	assert.Zero(t, summary.Counts.Cache)
	assert.Equal(t, 2, summary.Counts.Timeseries)
}

func TestCurrentWeatherReadThrough(t *testing.T) {
	provider := &fakeProvider{cond: &types.CurrentConditions{
		Temperature: 22, Description: "cielo claro", Source: "openweathermap",
	}}
	cache := &fakeCache{}
	svc, _ := newServiceForTest(&fakeZones{}, &fakeFetcher{}, cache, &fakeTimeseries{}, provider)

	first, err := svc.CurrentWeather(context.Background(), -31.4, -64.2)
	require.NoError(t, err)
	assert.Equal(t, 22.0, first.Temperature)
	assert.Equal(t, 1, provider.calls)

	// Second read is served from the cache.
	second, err := svc.CurrentWeather(context.Background(), -31.4, -64.2)
	require.NoError(t, err)
	assert.Equal(t, first.Temperature, second.Temperature)
	assert.Equal(t, 1, provider.calls)
}

func TestCurrentWeatherProviderError(t *testing.T) {
	provider := &fakeProvider{err: &types.AppError{
		Code: types.ErrCodeUpstreamRateLimited, Message: "rate limit exceeded",
	}}
	svc, _ := newServiceForTest(&fakeZones{}, &fakeFetcher{}, &fakeCache{}, &fakeTimeseries{}, provider)

	_, err := svc.CurrentWeather(context.Background(), -31.4, -64.2)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code)
}

func TestCurrentWeatherInvalidCoordinate(t *testing.T) {
	svc, _ := newServiceForTest(&fakeZones{}, &fakeFetcher{}, &fakeCache{}, &fakeTimeseries{}, &fakeProvider{})

	_, err := svc.CurrentWeather(context.Background(), 95, -64.2)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidLat, appErr.Code)
}

func TestLatestWeatherFallsBackToTimeseries(t *testing.T) {
	ts := &fakeTimeseries{rows: []*types.WeatherObservation{makeObs(-31.4, -64.2)}}
	svc, _ := newServiceForTest(&fakeZones{}, &fakeFetcher{}, &fakeCache{}, ts, &fakeProvider{})

	obs, err := svc.LatestWeather(context.Background(), -31.4, -64.2)
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, -31.4, obs.Latitude)
}

func TestParseTargetDate(t *testing.T) {
	svc, _ := newServiceForTest(&fakeZones{}, &fakeFetcher{}, &fakeCache{}, &fakeTimeseries{}, &fakeProvider{})

	at, err := svc.ParseTargetDate("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, 12, at.Hour())
	assert.Equal(t, 15, at.Day())

	zero, err := svc.ParseTargetDate("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = svc.ParseTargetDate("15/03/2024")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidDate, appErr.Code)
}
