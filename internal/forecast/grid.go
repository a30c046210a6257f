package forecast

// DomainBounds is the rectangular approximation of the model's coverage area.
// The model actually uses a Lambert conformal projection; mapping coordinates
// through a linear lat/lon rectangle introduces a small positional error that
// is acceptable at the model's native resolution.
type DomainBounds struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// DefaultBounds covers the provider's publication domain over Argentina.
var DefaultBounds = DomainBounds{
	LatMin: -55, LatMax: -21,
	LonMin: -73, LonMax: -53,
}

// ToGridIndex maps a coordinate to the nearest (row, col) of an ny x nx grid
// spanning bounds. Out-of-domain coordinates are clamped to the domain edge
// first, so the result is always a valid index for any ny, nx >= 1.
func ToGridIndex(lat, lon float64, bounds DomainBounds, ny, nx int) (row, col int) {
	latC := clamp(lat, bounds.LatMin, bounds.LatMax)
	lonC := clamp(lon, bounds.LonMin, bounds.LonMax)

	row = int((latC - bounds.LatMin) / (bounds.LatMax - bounds.LatMin) * float64(ny-1))
	col = int((lonC - bounds.LonMin) / (bounds.LonMax - bounds.LonMin) * float64(nx-1))

	// Float rounding at the upper edge can overshoot by one.
	if row > ny-1 {
		row = ny - 1
	}
	if col > nx-1 {
		col = nx - 1
	}
	return row, col
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
