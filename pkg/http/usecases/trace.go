package usecases

import (
	"context"
	"fmt"
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/spatialindex"
	"github.com/lintang-b-s/roadsnap/pkg/util"
	"go.uber.org/zap"
)

// UploadBatchSize is the number of uploaded points stored per transaction.
const UploadBatchSize = 5000

type TraceService struct {
	log          *zap.Logger
	store        PointStore
	spatialIndex SpatialIndex
}

func NewTraceService(log *zap.Logger, store PointStore, spatialIndex SpatialIndex) *TraceService {
	return &TraceService{
		log:          log,
		store:        store,
		spatialIndex: spatialIndex,
	}
}

// LoadIndex indexes every stored point. Call it once before serving.
func (ts *TraceService) LoadIndex(ctx context.Context) (int, error) {
	points, err := ts.store.AllPoints(ctx)
	if err != nil {
		return 0, util.WrapErrorf(err, util.ErrInternalServerError, "load stored points")
	}
	for _, p := range points {
		ts.spatialIndex.Insert(p)
	}
	return len(points), nil
}

func (ts *TraceService) PointsInRange(ctx context.Context, start, end time.Time) ([]da.PathPoint, error) {
	if start.After(end) {
		return nil, util.WrapErrorf(nil, util.ErrBadParamInput, "start %s is after end %s",
			start.Format(da.TimeLayout), end.Format(da.TimeLayout))
	}
	points, err := ts.store.QueryRange(ctx, start, end)
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrInternalServerError, "query points")
	}
	return points, nil
}

// NearbyPoints returns stored points within radiusM meters, nearest first.
func (ts *TraceService) NearbyPoints(lat, lon, radiusM float64, limit int) []spatialindex.Neighbor {
	return ts.spatialIndex.SearchWithinRadius(lat, lon, radiusM/1000, limit)
}

// InsertPoints stores points in batches of UploadBatchSize. When a batch is
// rejected its points are retried one by one so that only the offending ones
// are reported. The returned errors are indexed like points; nil means stored.
func (ts *TraceService) InsertPoints(ctx context.Context, points []da.PathPoint) (int, []error) {
	errs := make([]error, len(points))
	inserted := 0

	for lo := 0; lo < len(points); lo += UploadBatchSize {
		hi := min(lo+UploadBatchSize, len(points))
		batch := points[lo:hi]

		err := ts.store.InsertPoints(ctx, batch)
		if err == nil {
			inserted += len(batch)
			ts.index(batch)
			continue
		}
		ts.log.Debug("batch insert failed, retrying per point",
			zap.Int("batch_start", lo), zap.Int("batch_size", len(batch)), zap.Error(err))

		for i, p := range batch {
			if err := ts.store.InsertPoints(ctx, []da.PathPoint{p}); err != nil {
				errs[lo+i] = fmt.Errorf("insert failed (id=%d): %w", p.ID, err)
				continue
			}
			inserted++
			ts.index(batch[i : i+1])
		}
	}

	ts.log.Info("points uploaded", zap.Int("inserted", inserted), zap.Int("rejected", len(points)-inserted))
	return inserted, errs
}

func (ts *TraceService) index(points []da.PathPoint) {
	for _, p := range points {
		ts.spatialIndex.Insert(p)
	}
}
