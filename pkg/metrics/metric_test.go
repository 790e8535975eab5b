package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipeline(reg)

	m.SegmentStarted()
	m.SegmentStarted()
	m.SegmentDone(false, 20*time.Millisecond)
	m.SegmentDone(true, 2*time.Second)
	m.Retry()
	m.Retry()
	m.Retry()
	m.CacheHit()
	m.RowsWritten(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.segments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.rows))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)
}

func TestNilPipeline(t *testing.T) {
	var m *Pipeline
	assert.NotPanics(t, func() {
		m.SegmentStarted()
		m.SegmentDone(true, time.Second)
		m.Retry()
		m.CacheHit()
		m.RowsWritten(1)
	})
}
