package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary describes one finished run.
type Summary struct {
	RunID    string
	Segments int
	Failed   int
	Rows     int
	// Attempts counts routing requests, retries included. Cache hits cost none.
	Attempts    int
	Flushes     int
	Elapsed     time.Duration
	LatencyMean time.Duration
	LatencyP95  time.Duration
}

func (s *Summary) setLatency(seconds []float64) {
	if len(seconds) == 0 {
		return
	}
	sort.Float64s(seconds)
	s.LatencyMean = time.Duration(stat.Mean(seconds, nil) * float64(time.Second))
	s.LatencyP95 = time.Duration(stat.Quantile(0.95, stat.Empirical, seconds, nil) * float64(time.Second))
}

func (s Summary) Succeeded() int {
	return s.Segments - s.Failed
}

func (s Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run: %s\n", s.RunID)
	fmt.Fprintf(&sb, "Segments processed: %d\n", s.Segments)
	fmt.Fprintf(&sb, "Succeeded: %d\n", s.Succeeded())
	fmt.Fprintf(&sb, "Failed/skipped: %d\n", s.Failed)
	fmt.Fprintf(&sb, "Rows written: %d\n", s.Rows)
	fmt.Fprintf(&sb, "Routing requests: %d\n", s.Attempts)
	fmt.Fprintf(&sb, "Elapsed: %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Segment latency: mean %v, p95 %v", s.LatencyMean.Round(time.Millisecond), s.LatencyP95.Round(time.Millisecond))
	return sb.String()
}
