// Package forecast implements gridded-model data retrieval and extraction.
//
// The upstream provider publishes two deterministic model runs per day (00z
// and 12z) as NetCDF objects in a public S3 bucket. Keys follow the pattern:
//
//	DATA/WRF/DET/YYYY/MM/DD/HH/WRFDETAR_{freq}_YYYYMMDD_HH_000.nc
//
// Cycle selection accounts for publication lag: a run is only usable some
// hours after its nominal time, so the selector picks the newest run expected
// to be fully published, and a single alternate cycle provides failover when
// the selected object is not yet available.
package forecast

import (
	"fmt"
	"time"
)

// Cycle identifies one model run: a UTC date plus the run hour (0 or 12).
type Cycle struct {
	Date time.Time // truncated to midnight UTC
	Hour int       // 0 or 12
}

// Path returns the S3 object key for this cycle's first forecast step at the
// given output frequency (e.g. "01H").
func (c Cycle) Path(freq string) string {
	return fmt.Sprintf("DATA/WRF/DET/%04d/%02d/%02d/%02d/WRFDETAR_%s_%04d%02d%02d_%02d_000.nc",
		c.Date.Year(), c.Date.Month(), c.Date.Day(), c.Hour,
		freq,
		c.Date.Year(), c.Date.Month(), c.Date.Day(), c.Hour)
}

// String returns a compact representation for logging.
func (c Cycle) String() string {
	return fmt.Sprintf("%04d%02d%02d_%02dz", c.Date.Year(), c.Date.Month(), c.Date.Day(), c.Hour)
}

// CycleSelector chooses the newest model run expected to be available at a
// given wall-clock time. The provider publishes on a UTC schedule while the
// service reasons in its reference timezone; utcOffset is the amount added to
// reference wall time to obtain provider UTC (3h for Argentina). SelectCycle
// expects now expressed in the reference zone.
type CycleSelector struct {
	utcOffset time.Duration
}

// NewCycleSelector creates a selector with the given reference-to-UTC offset.
func NewCycleSelector(utcOffset time.Duration) *CycleSelector {
	return &CycleSelector{utcOffset: utcOffset}
}

// SelectCycle is a pure function of now. After shifting to provider UTC:
// hour >= 12 selects the 12z run of the shifted date; hour >= 6 selects the
// 00z run of the shifted date; earlier hours select the 00z run of the
// previous date, the newest run guaranteed complete overnight.
func (s *CycleSelector) SelectCycle(now time.Time) Cycle {
	t := now.Add(s.utcOffset)
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	case t.Hour() >= 12:
		return Cycle{Date: date, Hour: 12}
	case t.Hour() >= 6:
		return Cycle{Date: date, Hour: 0}
	default:
		return Cycle{Date: date.AddDate(0, 0, -1), Hour: 0}
	}
}

// Alternate returns the single fallback run tried when the selected cycle's
// object is missing: the 12z run falls back to the same date's 00z run, and a
// 00z run falls back to the previous date's 12z run. The fallback is always
// one publication older than the selection, so it is strictly more likely to
// exist.
func (s *CycleSelector) Alternate(c Cycle) Cycle {
	if c.Hour == 12 {
		return Cycle{Date: c.Date, Hour: 0}
	}
	return Cycle{Date: c.Date.AddDate(0, 0, -1), Hour: 12}
}
