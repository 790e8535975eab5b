// Package densify expands one routed segment into time-stamped rows along the
// returned road geometry.
package densify

import (
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
)

// Densify spreads the segment duration uniformly over the geometry vertices.
// Vertex 0 is emitted at start as an original point and every interior vertex j
// at start + j*interval. The final vertex is never emitted because it is the
// first vertex of the next segment. A geometry with fewer than two vertices
// yields no rows.
func Densify(geometry da.RouteGeometry, start, end time.Time) []da.DensifiedRow {
	if !geometry.Routable() {
		return []da.DensifiedRow{}
	}

	total := end.Sub(start)
	steps := len(geometry) - 1

	rows := make([]da.DensifiedRow, 0, steps)
	rows = append(rows, da.DensifiedRow{
		Time:     start,
		Lat:      geometry[0][1],
		Lon:      geometry[0][0],
		Original: true,
	})

	// offset_j = j*total/steps, split so the product cannot overflow
	quot := total / time.Duration(steps)
	rem := total % time.Duration(steps)
	for j := 1; j < steps; j++ {
		offset := quot*time.Duration(j) + rem*time.Duration(j)/time.Duration(steps)
		rows = append(rows, da.DensifiedRow{
			Time:     start.Add(offset),
			Lat:      geometry[j][1],
			Lon:      geometry[j][0],
			Original: false,
		})
	}

	return rows
}

// Segment densifies the geometry routed for s.
func Segment(s da.Segment, geometry da.RouteGeometry) []da.DensifiedRow {
	return Densify(geometry, s.Start.Time(), s.End.Time())
}
