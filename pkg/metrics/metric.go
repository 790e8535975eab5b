package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "roadsnap"

// Pipeline holds the counters of one snapping run. A nil *Pipeline is valid
// and records nothing.
type Pipeline struct {
	segments  prometheus.Counter
	failures  prometheus.Counter
	retries   prometheus.Counter
	rows      prometheus.Counter
	cacheHits prometheus.Counter
	inflight  prometheus.Gauge
	latency   prometheus.Histogram
}

func NewPipeline(reg prometheus.Registerer) *Pipeline {
	m := &Pipeline{
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Segments whose routing finished, successfully or not.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_failures_total",
			Help:      "Segments skipped after a permanent routing failure.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_retries_total",
			Help:      "Routing attempts that failed and were retried.",
		}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Densified rows flushed to output storage.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_cache_hits_total",
			Help:      "Segments served from the route cache.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments_inflight",
			Help:      "Segments currently being routed.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Wall time to route and densify one segment, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
		}),
	}

	if reg != nil {
		reg.MustRegister(m.segments, m.failures, m.retries, m.rows, m.cacheHits, m.inflight, m.latency)
	}
	return m
}

func (m *Pipeline) SegmentStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Pipeline) SegmentDone(failed bool, latency time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.segments.Inc()
	if failed {
		m.failures.Inc()
	}
	m.latency.Observe(latency.Seconds())
}

func (m *Pipeline) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Pipeline) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Pipeline) RowsWritten(n int) {
	if m == nil {
		return
	}
	m.rows.Add(float64(n))
}
