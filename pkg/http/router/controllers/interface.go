package controllers

import (
	"context"
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/spatialindex"
)

type TraceService interface {
	PointsInRange(ctx context.Context, start, end time.Time) ([]da.PathPoint, error)
	NearbyPoints(lat, lon, radiusM float64, limit int) []spatialindex.Neighbor
	InsertPoints(ctx context.Context, points []da.PathPoint) (int, []error)
}
