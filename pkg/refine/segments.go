package refine

import (
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
)

// BuildSegments returns one segment per pair of consecutive points, indexed by
// its position in the trace. A trace with fewer than two points has none.
func BuildSegments(trace da.Trace) []da.Segment {
	if len(trace) < 2 {
		return []da.Segment{}
	}

	segments := make([]da.Segment, 0, len(trace)-1)
	for i := 1; i < len(trace); i++ {
		segments = append(segments, da.Segment{
			Index: i - 1,
			Start: trace[i-1],
			End:   trace[i],
		})
	}
	return segments
}
