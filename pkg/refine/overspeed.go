package refine

import (
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
)

// RemoveOverspeeds drops every point that would require travelling faster than
// the speed ceiling from the last accepted point. The first point is always
// kept and co-timestamped points are always accepted. A dropped point does not
// move the reference, so the next candidate is compared against the same
// accepted point. trace must be sorted by time.
func (r *Refiner) RemoveOverspeeds(trace da.Trace) da.Trace {
	if len(trace) == 0 {
		return da.Trace{}
	}

	kept := make(da.Trace, 0, len(trace))
	kept = append(kept, trace[0])
	current := trace[0]

	for _, candidate := range trace[1:] {
		elapsed := candidate.Time().Sub(current.Time()).Seconds()

		switch {
		case elapsed == 0:
		case elapsed > 0 && r.dist(current, candidate)/elapsed <= r.maxSpeedFtPerSec:
		default:
			continue
		}

		kept = append(kept, candidate)
		current = candidate
	}

	return kept
}
