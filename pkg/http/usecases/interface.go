package usecases

import (
	"context"
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/spatialindex"
)

type PointStore interface {
	QueryRange(ctx context.Context, start, end time.Time) ([]da.PathPoint, error)
	InsertPoints(ctx context.Context, points []da.PathPoint) error
	AllPoints(ctx context.Context) ([]da.PathPoint, error)
}

type SpatialIndex interface {
	Insert(p da.PathPoint)
	SearchWithinRadius(qLat, qLon, radius float64, limit int) []spatialindex.Neighbor
}
