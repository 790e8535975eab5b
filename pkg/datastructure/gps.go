package datastructure

import (
	"sort"
	"time"
)

// TimeLayout is the datetime format of the input and refined trace files.
const TimeLayout = "2006-01-02 15:04:05"

// OutputTimeLayout keeps sub-second precision of interpolated rows and drops
// the fraction when it is zero.
const OutputTimeLayout = "2006-01-02 15:04:05.999999"

type GPSPoint struct {
	lon  float64
	lat  float64
	time time.Time
}

func NewGPSPoint(lat, lon float64, t time.Time) GPSPoint {
	return GPSPoint{
		lon:  lon,
		lat:  lat,
		time: t,
	}
}

func (gp GPSPoint) Lon() float64 {
	return gp.lon
}

func (gp GPSPoint) Lat() float64 {
	return gp.lat
}

func (gp GPSPoint) Time() time.Time {
	return gp.time
}

// Trace is an ordered sequence of gps points.
type Trace []GPSPoint

// SortByTime orders the trace by timestamp, keeping the file order of
// co-timestamped points.
func (t Trace) SortByTime() {
	sort.SliceStable(t, func(i, j int) bool {
		return t[i].time.Before(t[j].time)
	})
}

func (t Trace) IsSorted() bool {
	return sort.SliceIsSorted(t, func(i, j int) bool {
		return t[i].time.Before(t[j].time)
	})
}

// Segment is the unit of routing work between two chronologically adjacent
// points of a filtered trace.
type Segment struct {
	Index int
	Start GPSPoint
	End   GPSPoint
}

func (s Segment) Duration() time.Duration {
	return s.End.time.Sub(s.Start.time)
}

// RouteGeometry is the road geometry of one routed segment as (lon, lat) pairs.
type RouteGeometry [][2]float64

func (g RouteGeometry) Routable() bool {
	return len(g) >= 2
}

// DensifiedRow is one row of the snapped output trace.
type DensifiedRow struct {
	Time     time.Time
	Lat      float64
	Lon      float64
	Original bool
}

// OriginalFlag is the value of the "original-ish" output column.
func (r DensifiedRow) OriginalFlag() int {
	if r.Original {
		return 1
	}
	return 0
}

// SegmentResult carries the rows of one segment back from a worker. A non-nil
// Err or an empty Rows marks a permanently failed segment.
type SegmentResult struct {
	Index    int
	Rows     []DensifiedRow
	Err      error
	Attempts int
	Latency  time.Duration
}

func (r SegmentResult) Failed() bool {
	return r.Err != nil || len(r.Rows) == 0
}

// SortRowsByTime is a stable sort, so rows sharing a timestamp keep segment order.
func SortRowsByTime(rows []DensifiedRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Time.Before(rows[j].Time)
	})
}

// PathPoint is one stored row of the path table. RunID is empty for uploaded
// points.
type PathPoint struct {
	ID       int64
	RunID    string
	Time     time.Time
	Lat      float64
	Lon      float64
	Original bool
}
