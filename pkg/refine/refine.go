// Package refine reduces a raw gps trace before it is snapped to the road
// network: near-duplicate runs are collapsed and physically impossible jumps
// are dropped.
package refine

import (
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/geo"
	"go.uber.org/zap"
)

const (
	DefaultSimplifyThresholdFt = 85.0
	DefaultMaxSpeedFtPerSec    = 147.0 // ~100 mph
)

// DistanceFunc returns the distance between two points in feet.
type DistanceFunc func(latOne, lonOne, latTwo, lonTwo float64) float64

type Refiner struct {
	thresholdFt      float64
	maxSpeedFtPerSec float64
	distance         DistanceFunc
	log              *zap.Logger
}

func NewRefiner(thresholdFt, maxSpeedFtPerSec float64, log *zap.Logger) *Refiner {
	return &Refiner{
		thresholdFt:      thresholdFt,
		maxSpeedFtPerSec: maxSpeedFtPerSec,
		distance:         geo.GreatCircleFeet,
		log:              log,
	}
}

// SetDistanceFunc replaces the great-circle distance.
func (r *Refiner) SetDistanceFunc(distance DistanceFunc) {
	r.distance = distance
}

func (r *Refiner) dist(a, b da.GPSPoint) float64 {
	return r.distance(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

// Refine sorts the trace by time, then simplifies it and removes overspeed
// points. The input slice is reordered in place.
func (r *Refiner) Refine(trace da.Trace) da.Trace {
	trace.SortByTime()

	simplified := r.Simplify(trace)
	r.log.Info("trace simplified",
		zap.Int("input_points", len(trace)),
		zap.Int("output_points", len(simplified)),
		zap.Float64("threshold_ft", r.thresholdFt))

	filtered := r.RemoveOverspeeds(simplified)
	r.log.Info("overspeed points removed",
		zap.Int("input_points", len(simplified)),
		zap.Int("output_points", len(filtered)),
		zap.Float64("max_speed_fps", r.maxSpeedFtPerSec))

	return filtered
}
