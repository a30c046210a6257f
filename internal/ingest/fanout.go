// Package ingest orchestrates the forecast ingestion pipeline: zone
// enumeration, batch extraction, and fanout into the storage tiers.
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"agroclima/internal/types"
)

// StorageFanout distributes extracted observations across the three tiers.
//
// The durable store is authoritative: writes go first, sequentially, and the
// first failure aborts the batch. Cache and timeseries writes then run
// concurrently per observation; their failures are logged and reflected only
// in the returned counts, never escalated, because both tiers can be rebuilt
// from the durable rows.
type StorageFanout struct {
	durable     types.DurableStore
	cache       types.CacheStore
	timeseries  types.TimeseriesStore
	concurrency int
	logger      *slog.Logger
}

// NewStorageFanout creates the fanout. Concurrency bounds the secondary-tier
// writers; values below 1 fall back to 8.
func NewStorageFanout(durable types.DurableStore, cache types.CacheStore, timeseries types.TimeseriesStore, concurrency int, logger *slog.Logger) *StorageFanout {
	if concurrency < 1 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageFanout{
		durable:     durable,
		cache:       cache,
		timeseries:  timeseries,
		concurrency: concurrency,
		logger:      logger,
	}
}

// PersistBatch writes observations through the tiers and reports per-store
// acceptance counts. Nil entries (failed extractions) are skipped. The error
// return is non-nil only when a durable write fails; the batch stops at that
// point and the counts reflect what was accepted before the failure.
func (f *StorageFanout) PersistBatch(ctx context.Context, obs []*types.WeatherObservation) (types.StoreCounts, error) {
	var counts types.StoreCounts

	stored := make([]*types.WeatherObservation, 0, len(obs))
	for _, o := range obs {
		if o == nil {
			continue
		}
		if err := f.durable.StoreObservation(ctx, o); err != nil {
			return counts, err
		}
		counts.Durable++
		stored = append(stored, o)
	}

	if len(stored) == 0 {
		return counts, nil
	}

	var cacheOK, tsOK atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, o := range stored {
		g.Go(func() error {
			if err := f.storeCache(gctx, o); err != nil {
				f.logger.WarnContext(gctx, "cache write failed",
					"lat", o.Latitude, "lon", o.Longitude, "error", err)
			} else {
				cacheOK.Add(1)
			}

			if err := f.timeseries.InsertObservations(gctx, []*types.WeatherObservation{o}); err != nil {
				f.logger.WarnContext(gctx, "timeseries write failed",
					"lat", o.Latitude, "lon", o.Longitude, "error", err)
			} else {
				tsOK.Add(1)
			}
			return nil
		})
	}
	// Tasks never return errors; Wait only synchronizes.
	_ = g.Wait()

	counts.Cache = int(cacheOK.Load())
	counts.Timeseries = int(tsOK.Load())
	return counts, nil
}

// storeCache writes both cache keys for an observation. The observation only
// counts as cached when both succeed.
func (f *StorageFanout) storeCache(ctx context.Context, o *types.WeatherObservation) error {
	if err := f.cache.StoreLatest(ctx, o); err != nil {
		return err
	}
	return f.cache.StoreForecast(ctx, o)
}
