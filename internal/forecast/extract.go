package forecast

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"agroclima/internal/types"
)

// ExtractionStrategy builds observations for a batch of coordinates from one
// dataset. Implementations must return exactly one entry per input
// coordinate, in input order, with nil marking a coordinate that could not be
// fully extracted. An observation is all-or-nothing: if any required variable
// is missing or non-finite at a coordinate's grid cell, that slot is nil.
type ExtractionStrategy interface {
	Extract(ds *Dataset, coords []types.Coordinate, at time.Time) ([]*types.WeatherObservation, error)
}

// VectorizedExtractor computes all grid indices up front and then gathers
// each variable across the whole batch in one pass. It is strict: a required
// variable missing from the dataset fails the entire batch, which signals a
// malformed file rather than a bad coordinate.
type VectorizedExtractor struct {
	Bounds DomainBounds
}

// Extract implements ExtractionStrategy.
func (e *VectorizedExtractor) Extract(ds *Dataset, coords []types.Coordinate, at time.Time) ([]*types.WeatherObservation, error) {
	for _, name := range RequiredVars {
		if !ds.Has(name) {
			return nil, &types.AppError{
				Code:    types.ErrCodeInternalExtraction,
				Message: fmt.Sprintf("required variable %s absent from %s", name, ds.Key),
			}
		}
	}

	idx := make([]int, len(coords))
	for i, c := range coords {
		row, col := ToGridIndex(c.Lat, c.Lon, e.Bounds, ds.NY, ds.NX)
		idx[i] = row*ds.NX + col
	}

	gather := func(name string) []float64 {
		grid := ds.Grid(name)
		vals := make([]float64, len(idx))
		for i, j := range idx {
			vals[i] = grid[j]
		}
		return vals
	}

	temp := gather(VarTemperature)
	hum := gather(VarHumidity)
	precip := gather(VarPrecipitation)
	wspd := gather(VarWindSpeed)
	wdir := gather(VarWindDirection)
	press := gather(VarPressure)

	var soil []float64
	if ds.Has(VarSoilMoisture) {
		soil = gather(VarSoilMoisture)
	}

	obs := make([]*types.WeatherObservation, len(coords))
	for i, c := range coords {
		if anyNonFinite(temp[i], hum[i], precip[i], wspd[i], wdir[i], press[i]) {
			continue
		}
		o := &types.WeatherObservation{
			Timestamp:     at,
			Latitude:      c.Lat,
			Longitude:     c.Lon,
			Temperature:   temp[i],
			Humidity:      hum[i],
			Precipitation: precip[i],
			WindSpeed:     wspd[i],
			WindDirection: wdir[i],
			Pressure:      press[i],
		}
		if soil != nil && isFinite(soil[i]) {
			v := soil[i]
			o.SoilMoisture = &v
		}
		obs[i] = o
	}
	return obs, nil
}

// SequentialExtractor walks coordinates one at a time through Dataset.Value.
// Unlike the vectorized path it never fails the batch: any per-coordinate
// problem, including a required variable missing from the file, yields a nil
// slot for that coordinate only.
type SequentialExtractor struct {
	Bounds DomainBounds
}

// Extract implements ExtractionStrategy.
func (e *SequentialExtractor) Extract(ds *Dataset, coords []types.Coordinate, at time.Time) ([]*types.WeatherObservation, error) {
	obs := make([]*types.WeatherObservation, len(coords))
	for i, c := range coords {
		obs[i] = e.extractOne(ds, c, at)
	}
	return obs, nil
}

func (e *SequentialExtractor) extractOne(ds *Dataset, c types.Coordinate, at time.Time) *types.WeatherObservation {
	row, col := ToGridIndex(c.Lat, c.Lon, e.Bounds, ds.NY, ds.NX)

	vals := make(map[string]float64, len(RequiredVars))
	for _, name := range RequiredVars {
		v, ok := ds.Value(name, row, col)
		if !ok {
			return nil
		}
		vals[name] = v
	}

	o := &types.WeatherObservation{
		Timestamp:     at,
		Latitude:      c.Lat,
		Longitude:     c.Lon,
		Temperature:   vals[VarTemperature],
		Humidity:      vals[VarHumidity],
		Precipitation: vals[VarPrecipitation],
		WindSpeed:     vals[VarWindSpeed],
		WindDirection: vals[VarWindDirection],
		Pressure:      vals[VarPressure],
	}
	if v, ok := ds.Value(VarSoilMoisture, row, col); ok {
		o.SoilMoisture = &v
	}
	return o
}

// FallbackExtractor tries the vectorized path and retries the whole batch
// sequentially if it errors. The two paths produce observably identical
// output for well-formed datasets; the sequential retry exists to salvage
// partial results from files the strict path rejects.
type FallbackExtractor struct {
	Fast   ExtractionStrategy
	Slow   ExtractionStrategy
	Logger *slog.Logger
}

// NewFallbackExtractor wires the standard vectorized-then-sequential pair
// over the given domain bounds.
func NewFallbackExtractor(bounds DomainBounds, logger *slog.Logger) *FallbackExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackExtractor{
		Fast:   &VectorizedExtractor{Bounds: bounds},
		Slow:   &SequentialExtractor{Bounds: bounds},
		Logger: logger,
	}
}

// Extract implements ExtractionStrategy.
func (e *FallbackExtractor) Extract(ds *Dataset, coords []types.Coordinate, at time.Time) ([]*types.WeatherObservation, error) {
	obs, err := e.Fast.Extract(ds, coords, at)
	if err == nil {
		return obs, nil
	}
	e.Logger.Warn("vectorized extraction failed, retrying sequentially",
		"key", ds.Key,
		"coords", len(coords),
		"error", err,
	)
	return e.Slow.Extract(ds, coords, at)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func anyNonFinite(vs ...float64) bool {
	for _, v := range vs {
		if !isFinite(v) {
			return true
		}
	}
	return false
}
