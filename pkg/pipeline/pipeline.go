// Package pipeline routes the segments of a filtered trace concurrently and
// writes the densified result in chronological order.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lintang-b-s/roadsnap/pkg/concurrent"
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/densify"
	"github.com/lintang-b-s/roadsnap/pkg/metrics"
	"github.com/lintang-b-s/roadsnap/pkg/osrm"
	"github.com/lintang-b-s/roadsnap/pkg/reorder"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultWorkers = 6

type Options struct {
	Routing        osrm.Config
	Workers        int
	FlushThreshold int
	// RateLimit caps routing requests per second across all workers. Zero
	// means unlimited.
	RateLimit float64
	CacheSize int
}

// Pipeline owns the state of snapping runs: routing options, the state shared
// by the routing clients of its workers, and observers. A Pipeline can run
// several traces one after another; nothing is process-global.
type Pipeline struct {
	opts    Options
	shared  osrm.Shared
	metrics *metrics.Pipeline
	log     *zap.Logger

	newHTTPClient func(workerID int) osrm.HTTPDoer
	sleep         osrm.SleepFunc
	onResult      func(da.SegmentResult)
}

func New(opts Options, m *metrics.Pipeline, log *zap.Logger) (*Pipeline, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = reorder.DefaultFlushThreshold
	}

	cache, err := osrm.NewRouteCache(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("route cache: %w", err)
	}

	shared := osrm.Shared{Cache: cache, Metrics: m}
	if opts.RateLimit > 0 {
		shared.Limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &Pipeline{
		opts:    opts,
		shared:  shared,
		metrics: m,
		log:     log,
	}, nil
}

// SetHTTPClientFactory replaces the connection pool each worker creates for
// itself.
func (p *Pipeline) SetHTTPClientFactory(newHTTPClient func(workerID int) osrm.HTTPDoer) {
	p.newHTTPClient = newHTTPClient
}

func (p *Pipeline) SetSleep(sleep osrm.SleepFunc) {
	p.sleep = sleep
}

// OnResult registers a callback invoked on the collecting goroutine after each
// segment result has been absorbed.
func (p *Pipeline) OnResult(fn func(da.SegmentResult)) {
	p.onResult = fn
}

func (p *Pipeline) newWorker(ctx context.Context) concurrent.WorkerFactory[da.Segment, da.SegmentResult] {
	return func(workerID int) concurrent.JobFunc[da.Segment, da.SegmentResult] {
		client := osrm.NewClient(p.opts.Routing, p.shared, p.log.With(zap.Int("worker", workerID)))
		if p.newHTTPClient != nil {
			client.SetHTTPClient(p.newHTTPClient(workerID))
		}
		if p.sleep != nil {
			client.SetSleep(p.sleep)
		}

		return func(seg da.Segment) da.SegmentResult {
			started := time.Now()
			p.metrics.SegmentStarted()

			geometry, attempts, err := client.Route(ctx, seg.Start, seg.End)
			res := da.SegmentResult{Index: seg.Index, Attempts: attempts, Err: err}
			if err == nil {
				res.Rows = densify.Segment(seg, geometry)
			}
			res.Latency = time.Since(started)

			p.metrics.SegmentDone(res.Failed(), res.Latency)
			return res
		}
	}
}

// Run routes every segment and streams the densified rows to sink. Failed
// segments contribute no rows and are counted in the summary. If ctx is
// cancelled the remaining segments fail fast, whatever was ready is flushed
// and the context error is returned with the summary. An empty runID gets a
// fresh one.
func (p *Pipeline) Run(ctx context.Context, runID string, segments []da.Segment, sink reorder.Sink) (Summary, error) {
	for i, seg := range segments {
		if seg.Index != i {
			return Summary{}, fmt.Errorf("segment at position %d has index %d", i, seg.Index)
		}
	}

	if runID == "" {
		runID = NewRunID()
	}

	started := time.Now()
	summary := Summary{
		RunID:    runID,
		Segments: len(segments),
	}
	log := p.log.With(zap.String("run_id", summary.RunID))
	log.Info("snapping trace",
		zap.Int("segments", len(segments)),
		zap.Int("workers", p.opts.Workers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := reorder.NewWriter(len(segments), p.opts.FlushThreshold, sink, log)
	writer.SetMetrics(p.metrics)

	wp := concurrent.NewWorkerPool[da.Segment, da.SegmentResult](p.opts.Workers, len(segments))
	wp.Start(p.newWorker(runCtx))
	go func() {
		for _, seg := range segments {
			wp.AddJob(seg)
		}
		wp.Close()
	}()
	go wp.Wait()

	latencies := make([]float64, 0, len(segments))
	var writeErr error
	for res := range wp.CollectResults() {
		latencies = append(latencies, res.Latency.Seconds())
		summary.Attempts += res.Attempts

		if res.Failed() {
			seg := segments[res.Index]
			log.Warn("segment failed, skipping",
				zap.Int("segment", res.Index),
				zap.Float64("start_lat", seg.Start.Lat()),
				zap.Float64("start_lon", seg.Start.Lon()),
				zap.Float64("end_lat", seg.End.Lat()),
				zap.Float64("end_lon", seg.End.Lon()),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Err))
		}

		if writeErr == nil {
			if err := writer.Absorb(res); err != nil {
				writeErr = err
				// stop routing, nothing more can be written
				cancel()
			}
		}
		if p.onResult != nil {
			p.onResult(res)
		}
	}

	closeErr := writer.Close()

	stats := writer.Stats()
	summary.Failed = stats.Failed
	summary.Rows = stats.RowsWritten
	summary.Flushes = stats.Flushes
	summary.Elapsed = time.Since(started)
	summary.setLatency(latencies)

	log.Sugar().Infof("run finished: %d segments, %d failed, %d rows in %v",
		summary.Segments, summary.Failed, summary.Rows, summary.Elapsed)

	switch {
	case writeErr != nil:
		return summary, fmt.Errorf("write snapped rows: %w", writeErr)
	case ctx.Err() != nil:
		return summary, ctx.Err()
	case closeErr != nil:
		return summary, closeErr
	}
	return summary, nil
}

func NewRunID() string {
	return uuid.NewString()
}
