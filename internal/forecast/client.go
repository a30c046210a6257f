package forecast

import (
	"context"
	"log/slog"
	"time"

	"agroclima/internal/types"
)

// Client is the high-level entry point: pick a cycle, load its dataset
// through the cache, extract a batch of observations.
type Client struct {
	selector  *CycleSelector
	cache     *DatasetCache
	extractor ExtractionStrategy
	freq      string
	clock     types.Clock
	logger    *slog.Logger
	fallbacks interface{ Inc() }
}

// NewClient wires the forecast pipeline.
func NewClient(selector *CycleSelector, cache *DatasetCache, extractor ExtractionStrategy, freq string, clock types.Clock, logger *slog.Logger) *Client {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		selector:  selector,
		cache:     cache,
		extractor: extractor,
		freq:      freq,
		clock:     clock,
		logger:    logger,
	}
}

// InstrumentFallbacks registers a counter incremented every time a batch is
// served from the alternate cycle.
func (c *Client) InstrumentFallbacks(counter interface{ Inc() }) {
	c.fallbacks = counter
}

// FetchBatch returns one observation slot per coordinate for the newest
// usable model run at time at. If the selected cycle's object cannot be
// loaded, the single alternate cycle is tried; if both fail the batch
// degrades to all-nil slots rather than erroring, because a missing upstream
// run is an expected operational condition, not a caller bug.
func (c *Client) FetchBatch(ctx context.Context, coords []types.Coordinate, at time.Time) []*types.WeatherObservation {
	if len(coords) == 0 {
		return nil
	}

	cycle := c.selector.SelectCycle(at)

	ds, err := c.cache.GetOrLoad(ctx, cycle.Path(c.freq))
	if err != nil {
		alt := c.selector.Alternate(cycle)
		c.logger.WarnContext(ctx, "selected cycle unavailable, trying alternate",
			"cycle", cycle.String(),
			"alternate", alt.String(),
			"error", err,
		)
		ds, err = c.cache.GetOrLoad(ctx, alt.Path(c.freq))
		if err != nil {
			c.logger.ErrorContext(ctx, "no model run available",
				"cycle", cycle.String(),
				"alternate", alt.String(),
				"error", err,
			)
			return make([]*types.WeatherObservation, len(coords))
		}
		cycle = alt
		if c.fallbacks != nil {
			c.fallbacks.Inc()
		}
	}

	obs, err := c.extractor.Extract(ds, coords, at)
	if err != nil {
		c.logger.ErrorContext(ctx, "batch extraction failed",
			"cycle", cycle.String(),
			"coords", len(coords),
			"error", err,
		)
		return make([]*types.WeatherObservation, len(coords))
	}
	return obs
}
