package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/osrm"
	"github.com/lintang-b-s/roadsnap/pkg/refine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type memorySink struct {
	mu   sync.Mutex
	rows []da.DensifiedRow
	err  error
}

func (s *memorySink) WriteRows(rows []da.DensifiedRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func northboundSegments(n int) []da.Segment {
	trace := make(da.Trace, n+1)
	for i := range trace {
		trace[i] = da.NewGPSPoint(-7.7+float64(i)*0.001, 110.4, base.Add(time.Duration(i)*10*time.Second))
	}
	return refine.BuildSegments(trace)
}

// fakeRouter answers every route request with a three vertex geometry from
// start through the midpoint to end after a random delay.
type fakeRouter struct {
	rng        *rand.Rand
	maxLatency time.Duration
	inflight   *atomic.Int64
	peak       *atomic.Int64
}

func parseLonLat(s string) ([2]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return [2]float64{}, fmt.Errorf("bad coordinate %q", s)
	}
	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return [2]float64{}, err
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return [2]float64{}, err
	}
	return [2]float64{lon, lat}, nil
}

func (f *fakeRouter) Do(req *http.Request) (*http.Response, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	time.Sleep(time.Duration(f.rng.Int63n(int64(f.maxLatency))))

	coords := strings.Split(strings.TrimPrefix(req.URL.Path, "/route/v1/driving/"), ";")
	if len(coords) != 2 {
		return nil, fmt.Errorf("bad path %q", req.URL.Path)
	}
	start, err := parseLonLat(coords[0])
	if err != nil {
		return nil, err
	}
	end, err := parseLonLat(coords[1])
	if err != nil {
		return nil, err
	}
	mid := [2]float64{(start[0] + end[0]) / 2, (start[1] + end[1]) / 2}

	body, err := json.Marshal(map[string]any{
		"code": "Ok",
		"routes": []any{map[string]any{
			"geometry": map[string]any{"type": "LineString", "coordinates": [][2]float64{start, mid, end}},
		}},
	})
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}, nil
}

func newTestPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.Routing.BaseURL == "" {
		opts.Routing.BaseURL = "http://osrm.test"
	}
	p, err := New(opts, nil, zap.NewNop())
	require.NoError(t, err)
	p.SetSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() })
	return p
}

func TestRunManySegmentsInOrder(t *testing.T) {
	const numSegments = 1000

	var inflight, peak atomic.Int64
	var factoryCalls atomic.Int64

	p := newTestPipeline(t, Options{Workers: 6, FlushThreshold: 97})
	p.SetHTTPClientFactory(func(workerID int) osrm.HTTPDoer {
		factoryCalls.Add(1)
		return &fakeRouter{
			rng:        rand.New(rand.NewSource(uint64(workerID))),
			maxLatency: 2 * time.Millisecond,
			inflight:   &inflight,
			peak:       &peak,
		}
	})

	var results int
	p.OnResult(func(da.SegmentResult) { results++ })

	sink := &memorySink{}
	summary, err := p.Run(context.Background(), "", northboundSegments(numSegments), sink)
	require.NoError(t, err)

	assert.Equal(t, numSegments, summary.Segments)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2*numSegments, summary.Rows)
	assert.Equal(t, numSegments, summary.Attempts)
	assert.Equal(t, numSegments, results)
	assert.NotEmpty(t, summary.RunID)

	require.Len(t, sink.rows, 2*numSegments)
	originals := 0
	for i, r := range sink.rows {
		if i > 0 {
			require.False(t, r.Time.Before(sink.rows[i-1].Time), "row %d out of order", i)
		}
		if r.Original {
			originals++
		}
	}
	assert.Equal(t, numSegments, originals)
	assert.Equal(t, base, sink.rows[0].Time)
	assert.Equal(t, base.Add(5*time.Second), sink.rows[1].Time)

	assert.LessOrEqual(t, peak.Load(), int64(6))
	assert.LessOrEqual(t, factoryCalls.Load(), int64(6))
}

func TestRunSegmentFailsAfterRetries(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"NoRoute","message":"Impossible route between points"}`))
	}))
	defer srv.Close()

	p := newTestPipeline(t, Options{Routing: osrm.Config{BaseURL: srv.URL}, Workers: 6})

	sink := &memorySink{}
	summary, err := p.Run(context.Background(), "", northboundSegments(1), sink)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Segments)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Rows)
	assert.Equal(t, osrm.DefaultMaxRetries, summary.Attempts)
	assert.Equal(t, int64(osrm.DefaultMaxRetries), requests.Load())
	assert.Empty(t, sink.rows)
	assert.Contains(t, summary.String(), "Failed/skipped: 1")
}

func TestRunSkipsOnlyFailedSegments(t *testing.T) {
	segments := northboundSegments(10)
	badLon := strconv.FormatFloat(segments[4].Start.Lon(), 'f', -1, 64)
	badLat := strconv.FormatFloat(segments[4].Start.Lat(), 'f', -1, 64)
	badPrefix := "/route/v1/driving/" + badLon + "," + badLat + ";"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, badPrefix) {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		coords := strings.Split(strings.TrimPrefix(r.URL.Path, "/route/v1/driving/"), ";")
		start, _ := parseLonLat(coords[0])
		end, _ := parseLonLat(coords[1])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "Ok",
			"routes": []any{map[string]any{
				"geometry": map[string]any{"type": "LineString", "coordinates": [][2]float64{start, end}},
			}},
		})
	}))
	defer srv.Close()

	p := newTestPipeline(t, Options{Routing: osrm.Config{BaseURL: srv.URL}, Workers: 3})
	sink := &memorySink{}
	summary, err := p.Run(context.Background(), "", segments, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 9, summary.Rows)
	for _, r := range sink.rows {
		assert.NotEqual(t, segments[4].Start.Time(), r.Time)
	}
}

func TestRunCancelledContext(t *testing.T) {
	p := newTestPipeline(t, Options{Workers: 2})
	var inflight, peak atomic.Int64
	p.SetHTTPClientFactory(func(workerID int) osrm.HTTPDoer {
		return &fakeRouter{rng: rand.New(rand.NewSource(1)), maxLatency: time.Millisecond, inflight: &inflight, peak: &peak}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &memorySink{}
	summary, err := p.Run(ctx, "", northboundSegments(20), sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 20, summary.Failed)
	assert.Empty(t, sink.rows)
}

func TestRunSinkErrorStopsRun(t *testing.T) {
	p := newTestPipeline(t, Options{Workers: 2, FlushThreshold: 1})
	var inflight, peak atomic.Int64
	p.SetHTTPClientFactory(func(workerID int) osrm.HTTPDoer {
		return &fakeRouter{rng: rand.New(rand.NewSource(2)), maxLatency: time.Millisecond, inflight: &inflight, peak: &peak}
	})

	sink := &memorySink{err: errors.New("disk full")}
	_, err := p.Run(context.Background(), "", northboundSegments(20), sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunEmpty(t *testing.T) {
	p := newTestPipeline(t, Options{})
	sink := &memorySink{}
	summary, err := p.Run(context.Background(), "", nil, sink)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Segments)
	assert.Equal(t, 0, summary.Rows)
}

func TestRunRejectsMisindexedSegments(t *testing.T) {
	p := newTestPipeline(t, Options{})
	segments := northboundSegments(3)
	segments[1].Index = 7

	_, err := p.Run(context.Background(), "", segments, &memorySink{})
	assert.Error(t, err)
}

func TestSummaryLatency(t *testing.T) {
	var s Summary
	s.setLatency([]float64{0.5, 0.1, 0.2, 0.3, 0.4})
	assert.Equal(t, 300*time.Millisecond, s.LatencyMean.Round(time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, s.LatencyP95)
}

func TestSummaryString(t *testing.T) {
	s := Summary{RunID: "run-1", Segments: 10, Failed: 3, Rows: 42, Attempts: 15}
	assert.Equal(t, 7, s.Succeeded())

	out := s.String()
	assert.Contains(t, out, "Segments processed: 10\n")
	assert.Contains(t, out, "Succeeded: 7\n")
	assert.Contains(t, out, "Failed/skipped: 3\n")
	assert.Contains(t, out, "Rows written: 42\n")
}
