package refine

import (
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
)

// Simplify collapses runs of points that stay within the distance threshold of
// the run anchor. For every run the anchor and, if different, the last point
// of the run are kept; the point that breaks the threshold anchors the next
// run. Every comparison is against the anchor, not against the previous point.
// trace must be sorted by time.
func (r *Refiner) Simplify(trace da.Trace) da.Trace {
	n := len(trace)
	kept := make(da.Trace, 0, n)

	i := 0
	for i < n {
		anchor := i
		for i+1 < n && r.dist(trace[anchor], trace[i+1]) <= r.thresholdFt {
			i++
		}

		kept = append(kept, trace[anchor])
		if anchor != i {
			kept = append(kept, trace[i])
		}
		i++
	}

	return kept
}
