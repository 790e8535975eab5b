package spatialindex

import (
	"sort"
	"sync"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/geo"
	"github.com/tidwall/rtree"
	"go.uber.org/zap"
)

// Rtree indexes stored path points by position. It is safe for concurrent use.
type Rtree struct {
	mu sync.RWMutex
	tr *rtree.RTreeG[da.PathPoint]
}

type Neighbor struct {
	Point da.PathPoint
	// DistanceKM is the haversine distance from the query point.
	DistanceKM float64
	// Bearing from the query point, in degrees.
	Bearing float64
}

func NewRtree() *Rtree {
	var tr rtree.RTreeG[da.PathPoint]
	return &Rtree{
		tr: &tr,
	}
}

// Build inserts every point into the tree.
func (rt *Rtree) Build(points []da.PathPoint, log *zap.Logger) {
	log.Info("Building R-tree spatial index...", zap.Int("points", len(points)))

	rt.mu.Lock()
	for _, p := range points {
		rt.insertLocked(p)
	}
	rt.mu.Unlock()

	log.Info("R-tree spatial index built.")
}

func (rt *Rtree) Insert(p da.PathPoint) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.insertLocked(p)
}

func (rt *Rtree) insertLocked(p da.PathPoint) {
	pt := [2]float64{p.Lon, p.Lat}
	rt.tr.Insert(pt, pt, p)
}

func (rt *Rtree) Len() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.tr.Len()
}

// SearchWithinRadius returns the points within radius (in km) of (qLat, qLon),
// nearest first. limit <= 0 returns all of them.
func (rt *Rtree) SearchWithinRadius(qLat, qLon, radius float64, limit int) []Neighbor {
	box := geo.RadiusBoundingBox(qLat, qLon, radius)

	results := make([]Neighbor, 0, 16)

	rt.mu.RLock()
	rt.tr.Search(box.Min(), box.Max(),
		func(min, max [2]float64, data da.PathPoint) bool {
			d := geo.CalculateHaversineDistance(qLat, qLon, data.Lat, data.Lon)
			if d <= radius {
				results = append(results, Neighbor{
					Point:      data,
					DistanceKM: d,
					Bearing:    geo.InitialBearing(qLat, qLon, data.Lat, data.Lon),
				})
			}
			return true
		})
	rt.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceKM < results[j].DistanceKM
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
