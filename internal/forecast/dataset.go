package forecast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"agroclima/internal/types"
)

// Variable names published in the provider's NetCDF files.
const (
	VarTemperature   = "T2"
	VarHumidity      = "HR2"
	VarPrecipitation = "PP"
	VarWindSpeed     = "magViento10"
	VarWindDirection = "dirViento10"
	VarPressure      = "PSFC"
	VarSoilMoisture  = "SMOIS"
)

// RequiredVars must all be present and finite for an observation to be built.
var RequiredVars = []string{
	VarTemperature, VarHumidity, VarPrecipitation,
	VarWindSpeed, VarWindDirection, VarPressure,
}

// OptionalVars may be absent from a file without failing extraction.
var OptionalVars = []string{VarSoilMoisture}

// S3GetClient abstracts the S3 GetObject operation for testability.
type S3GetClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Dataset is one model run's first forecast step, fully materialized in
// memory. Grids are flat row-major slices of NY*NX values; missing optional
// variables simply have no entry.
type Dataset struct {
	Key    string
	NY, NX int
	grids  map[string][]float64
}

// Has reports whether the variable was present in the source file.
func (d *Dataset) Has(name string) bool {
	_, ok := d.grids[name]
	return ok
}

// Value returns the grid value at (row, col) for the named variable.
// The second return is false when the variable is absent or the value is not
// finite (NaN encodes missing data in the source files).
func (d *Dataset) Value(name string, row, col int) (float64, bool) {
	g, ok := d.grids[name]
	if !ok {
		return 0, false
	}
	v := g[row*d.NX+col]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Grid returns the raw flat grid for a variable, or nil if absent.
// Used by the vectorized extraction path to avoid per-value lookups.
func (d *Dataset) Grid(name string) []float64 {
	return d.grids[name]
}

// Loader downloads and decodes model run objects.
type Loader struct {
	client  S3GetClient
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewLoader creates a dataset loader bound to one bucket.
func NewLoader(client S3GetClient, bucket string, timeout time.Duration, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{client: client, bucket: bucket, timeout: timeout, logger: logger}
}

// Load fetches the object for key, decodes it, and materializes every known
// variable's first forecast step. The NetCDF reader needs random access, so
// the object body is spooled to a temp file that is removed before returning.
func (l *Loader) Load(ctx context.Context, key string) (*Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeUpstreamForecast,
			Message: fmt.Sprintf("fetching %s/%s", l.bucket, key),
			Err:     err,
		}
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "wrf-*.nc")
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalExtraction,
			Message: "creating temp file for model run",
			Err:     err,
		}
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := io.Copy(tmp, out.Body)
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeUpstreamForecast,
			Message: fmt.Sprintf("downloading %s/%s", l.bucket, key),
			Err:     err,
		}
	}

	ds, err := decodeDataset(tmp.Name(), key)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "model run loaded",
		"key", key,
		"bytes", n,
		"ny", ds.NY,
		"nx", ds.NX,
		"variables", len(ds.grids),
	)
	return ds, nil
}

// decodeDataset opens a NetCDF file and materializes the first forecast step
// of every known variable into flat float64 grids.
func decodeDataset(path, key string) (*Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalExtraction,
			Message: fmt.Sprintf("decoding model run %s", key),
			Err:     err,
		}
	}
	defer nc.Close()

	ds := &Dataset{Key: key, grids: make(map[string][]float64)}

	for _, name := range RequiredVars {
		grid, ny, nx, err := readGrid(nc, name)
		if err != nil {
			return nil, &types.AppError{
				Code:    types.ErrCodeInternalExtraction,
				Message: fmt.Sprintf("reading variable %s from %s", name, key),
				Err:     err,
			}
		}
		if ds.NY == 0 {
			ds.NY, ds.NX = ny, nx
		} else if ds.NY != ny || ds.NX != nx {
			return nil, &types.AppError{
				Code:    types.ErrCodeInternalExtraction,
				Message: fmt.Sprintf("variable %s shape %dx%d does not match grid %dx%d in %s", name, ny, nx, ds.NY, ds.NX, key),
			}
		}
		ds.grids[name] = grid
	}

	for _, name := range OptionalVars {
		grid, ny, nx, err := readGrid(nc, name)
		if err != nil {
			continue
		}
		if ny == ds.NY && nx == ds.NX {
			ds.grids[name] = grid
		}
	}

	return ds, nil
}

// readGrid reads a variable and flattens its first forecast step. Provider
// files store variables as (time, y, x) or occasionally (y, x); both layouts
// and both float widths are handled.
func readGrid(nc api.Group, name string) ([]float64, int, int, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, 0, 0, err
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, 0, 0, err
	}
	return flattenFirstStep(raw)
}

// flattenFirstStep converts a decoded variable payload into a flat row-major
// float64 grid, taking time step 0 for 3-D payloads.
func flattenFirstStep(raw interface{}) ([]float64, int, int, error) {
	switch v := raw.(type) {
	case [][][]float32:
		if len(v) == 0 {
			return nil, 0, 0, fmt.Errorf("empty time dimension")
		}
		return flatten32(v[0])
	case [][][]float64:
		if len(v) == 0 {
			return nil, 0, 0, fmt.Errorf("empty time dimension")
		}
		return flatten64(v[0])
	case [][]float32:
		return flatten32(v)
	case [][]float64:
		return flatten64(v)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported variable layout %T", raw)
	}
}

func flatten32(rows [][]float32) ([]float64, int, int, error) {
	ny := len(rows)
	if ny == 0 {
		return nil, 0, 0, fmt.Errorf("empty grid")
	}
	nx := len(rows[0])
	out := make([]float64, 0, ny*nx)
	for _, r := range rows {
		if len(r) != nx {
			return nil, 0, 0, fmt.Errorf("ragged grid row")
		}
		for _, c := range r {
			out = append(out, float64(c))
		}
	}
	return out, ny, nx, nil
}

func flatten64(rows [][]float64) ([]float64, int, int, error) {
	ny := len(rows)
	if ny == 0 {
		return nil, 0, 0, fmt.Errorf("empty grid")
	}
	nx := len(rows[0])
	out := make([]float64, 0, ny*nx)
	for _, r := range rows {
		if len(r) != nx {
			return nil, 0, 0, fmt.Errorf("ragged grid row")
		}
		out = append(out, r...)
	}
	return out, ny, nx, nil
}

// DatasetCache holds the most recently loaded model run. Ingestion touches at
// most two runs per pass (selected plus alternate), so a single slot is
// enough; a request for a different key evicts the held dataset.
type DatasetCache struct {
	mu     sync.Mutex
	loader DatasetLoader
	key    string
	ds     *Dataset
}

// DatasetLoader is the loading dependency of the cache.
type DatasetLoader interface {
	Load(ctx context.Context, key string) (*Dataset, error)
}

// NewDatasetCache creates an empty single-slot cache over the loader.
func NewDatasetCache(loader DatasetLoader) *DatasetCache {
	return &DatasetCache{loader: loader}
}

// GetOrLoad returns the cached dataset when the key matches, otherwise loads
// the requested run and replaces the slot. A failed load leaves the previous
// slot intact.
func (c *DatasetCache) GetOrLoad(ctx context.Context, key string) (*Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ds != nil && c.key == key {
		return c.ds, nil
	}

	ds, err := c.loader.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	c.key = key
	c.ds = ds
	return ds, nil
}
