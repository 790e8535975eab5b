package refine

import (
	"math/rand"
	"testing"
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const feetPerKM = 3280.839895013123

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// northOf returns a point ft feet due north of p, sec seconds after t0.
func northOf(p da.GPSPoint, ft float64, sec int) da.GPSPoint {
	lat, lon := geo.GetDestinationPoint(p.Lat(), p.Lon(), 0, ft/feetPerKM)
	return da.NewGPSPoint(lat, lon, t0.Add(time.Duration(sec)*time.Second))
}

func newTestRefiner() *Refiner {
	return NewRefiner(DefaultSimplifyThresholdFt, DefaultMaxSpeedFtPerSec, zap.NewNop())
}

func TestSimplify(t *testing.T) {
	origin := da.NewGPSPoint(38.8977, -77.0365, t0)

	p1 := northOf(origin, 90, 10)
	p2 := northOf(p1, 10, 20)

	line := da.Trace{origin}
	for i := 1; i < 5; i++ {
		line = append(line, northOf(line[i-1], 5, i))
	}

	testCases := []struct {
		name  string
		trace da.Trace
		want  da.Trace
	}{
		{
			name:  "cluster break exceeds threshold immediately",
			trace: da.Trace{origin, p1, p2},
			want:  da.Trace{origin, p1, p2},
		},
		{
			name:  "five points five feet apart keep first and last",
			trace: line,
			want:  da.Trace{line[0], line[4]},
		},
		{
			name:  "singleton",
			trace: da.Trace{origin},
			want:  da.Trace{origin},
		},
		{
			name:  "empty",
			trace: da.Trace{},
			want:  da.Trace{},
		},
	}

	r := newTestRefiner()
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Simplify(tt.trace)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimplifyComparesAgainstAnchor(t *testing.T) {
	// each hop is 50ft, so consecutive points are always within threshold but
	// the third point is 100ft from the anchor and starts a new run.
	a := da.NewGPSPoint(10, 10, t0)
	b := northOf(a, 50, 1)
	c := northOf(b, 50, 2)
	d := northOf(c, 50, 3)

	got := newTestRefiner().Simplify(da.Trace{a, b, c, d})
	assert.Equal(t, da.Trace{a, b, c, d}, got)

	e := northOf(d, 20, 4)
	got = newTestRefiner().Simplify(da.Trace{a, b, c, d, e})
	assert.Equal(t, da.Trace{a, b, c, e}, got)
}

func TestSimplifyKeepsEndpoints(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := newTestRefiner()

	for run := 0; run < 50; run++ {
		n := 1 + rng.Intn(200)
		trace := make(da.Trace, 0, n)
		p := da.NewGPSPoint(-7.78, 110.36, t0)
		trace = append(trace, p)
		for i := 1; i < n; i++ {
			p = northOf(p, rng.Float64()*150, i)
			trace = append(trace, p)
		}

		got := r.Simplify(trace)
		require.NotEmpty(t, got)
		assert.LessOrEqual(t, len(got), len(trace))
		assert.Equal(t, trace[0], got[0])
		assert.Equal(t, trace[n-1], got[len(got)-1])
		assert.True(t, got.IsSorted())
	}
}

func TestRemoveOverspeeds(t *testing.T) {
	origin := da.NewGPSPoint(38.8977, -77.0365, t0)

	// 10 ft/s
	slow := northOf(origin, 100, 10)
	// 50000 ft in one second
	jump := northOf(slow, 50000, 11)
	sameTime := northOf(slow, 5000, 10)
	// 140 ft/s measured from slow, not from jump
	afterJump := northOf(slow, 1400, 20)
	belowCeiling := northOf(origin, 146.9, 1)
	aboveCeiling := northOf(origin, 147.5, 1)

	testCases := []struct {
		name  string
		trace da.Trace
		want  da.Trace
	}{
		{
			name:  "jump dropped and comparison continues from accepted point",
			trace: da.Trace{origin, slow, jump, afterJump},
			want:  da.Trace{origin, slow, afterJump},
		},
		{
			name:  "zero elapsed always accepted",
			trace: da.Trace{origin, slow, sameTime},
			want:  da.Trace{origin, slow, sameTime},
		},
		{
			name:  "speed just below the ceiling is accepted",
			trace: da.Trace{origin, belowCeiling},
			want:  da.Trace{origin, belowCeiling},
		},
		{
			name:  "speed just above the ceiling is dropped",
			trace: da.Trace{origin, aboveCeiling},
			want:  da.Trace{origin},
		},
		{
			name:  "first point kept even when all others are dropped",
			trace: da.Trace{origin, northOf(origin, 1e6, 1), northOf(origin, 2e6, 2)},
			want:  da.Trace{origin},
		},
		{
			name:  "empty",
			trace: da.Trace{},
			want:  da.Trace{},
		},
	}

	r := newTestRefiner()
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RemoveOverspeeds(tt.trace)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoveOverspeedsKeepsFirstPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	r := newTestRefiner()
	for run := 0; run < 50; run++ {
		n := 1 + rng.Intn(100)
		trace := make(da.Trace, 0, n)
		p := da.NewGPSPoint(51.5, -0.12, t0)
		trace = append(trace, p)
		for i := 1; i < n; i++ {
			trace = append(trace, northOf(p, rng.Float64()*5000, i))
		}
		got := r.RemoveOverspeeds(trace)
		require.NotEmpty(t, got)
		assert.Equal(t, trace[0], got[0])
	}
}

func TestRefineSortsFirst(t *testing.T) {
	a := da.NewGPSPoint(10, 10, t0)
	b := northOf(a, 200, 10)
	c := northOf(b, 200, 20)

	got := newTestRefiner().Refine(da.Trace{c, a, b})
	assert.Equal(t, da.Trace{a, b, c}, got)
}

func TestRefineWithCustomDistance(t *testing.T) {
	r := newTestRefiner()
	r.SetDistanceFunc(func(latOne, lonOne, latTwo, lonTwo float64) float64 {
		return 0
	})
	trace := da.Trace{
		da.NewGPSPoint(1, 1, t0),
		da.NewGPSPoint(2, 2, t0.Add(time.Second)),
		da.NewGPSPoint(3, 3, t0.Add(2*time.Second)),
	}
	got := r.Refine(trace)
	assert.Equal(t, da.Trace{trace[0], trace[2]}, got)
}

func TestBuildSegments(t *testing.T) {
	trace := da.Trace{
		da.NewGPSPoint(1, 1, t0),
		da.NewGPSPoint(2, 2, t0.Add(time.Second)),
		da.NewGPSPoint(3, 3, t0.Add(2*time.Second)),
		da.NewGPSPoint(4, 4, t0.Add(3*time.Second)),
	}

	segments := BuildSegments(trace)
	require.Len(t, segments, len(trace)-1)
	for i, s := range segments {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, trace[i], s.Start)
		assert.Equal(t, trace[i+1], s.End)
		assert.Equal(t, time.Second, s.Duration())
	}

	assert.Empty(t, BuildSegments(trace[:1]))
	assert.Empty(t, BuildSegments(nil))
}
