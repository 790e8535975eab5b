package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/logger"
	"github.com/lintang-b-s/roadsnap/pkg/metrics"
	"github.com/lintang-b-s/roadsnap/pkg/osrm"
	"github.com/lintang-b-s/roadsnap/pkg/pipeline"
	"github.com/lintang-b-s/roadsnap/pkg/refine"
	"github.com/lintang-b-s/roadsnap/pkg/storage"
	"github.com/lintang-b-s/roadsnap/pkg/storage/csvio"
	"github.com/lintang-b-s/roadsnap/pkg/storage/sqlite"
	"github.com/lintang-b-s/roadsnap/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	fs := pflag.NewFlagSet("snap", pflag.ExitOnError)
	util.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := util.LoadConfig(fs)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, cfg, log)
	if summary.RunID != "" {
		fmt.Println(summary.String())
	}
	if err != nil {
		log.Fatal("snap failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *util.Config, log *zap.Logger) (pipeline.Summary, error) {
	trace, err := csvio.ReadTraceFile(cfg.Storage.Input)
	if err != nil {
		return pipeline.Summary{}, err
	}
	trace.SortByTime()
	segments := refine.BuildSegments(trace)

	out, err := csvio.CreateRowWriter(cfg.Storage.Output)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("create output: %w", err)
	}
	defer out.Close()
	sinks := storage.MultiSink{out}

	runID := pipeline.NewRunID()

	var store *sqlite.Store
	if cfg.Storage.SQLitePath != "" {
		store, err = sqlite.Open(cfg.Storage.SQLitePath, log)
		if err != nil {
			return pipeline.Summary{}, err
		}
		defer store.Close()

		if err := store.StartRun(ctx, runID, time.Now()); err != nil {
			return pipeline.Summary{}, err
		}
		// rows routed before a shutdown signal are still stored
		sinks = append(sinks, store.Sink(context.WithoutCancel(ctx), runID))
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewPipeline(reg)

	p, err := pipeline.New(pipeline.Options{
		Routing: osrm.Config{
			BaseURL:     cfg.Routing.BaseURL,
			Profile:     cfg.Routing.Profile,
			Geometry:    cfg.Routing.Geometry,
			MaxRetries:  cfg.Routing.MaxRetries,
			Timeout:     cfg.Routing.Timeout,
			BackoffUnit: cfg.Routing.BackoffUnit,
		},
		Workers:        cfg.Pipeline.Workers,
		FlushThreshold: cfg.Pipeline.FlushThreshold,
		RateLimit:      cfg.Routing.RateLimit,
		CacheSize:      cfg.Routing.CacheSize,
	}, m, log)
	if err != nil {
		return pipeline.Summary{}, err
	}

	if cfg.Pipeline.Progress {
		bar := progressbar.Default(int64(len(segments)), "Snapping segments")
		p.OnResult(func(da.SegmentResult) {
			_ = bar.Add(1)
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Pipeline.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Pipeline.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("serving metrics", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var summary pipeline.Summary
	g.Go(func() error {
		defer cancel()
		var err error
		summary, err = p.Run(gctx, runID, segments, sinks)
		return err
	})
	err = g.Wait()

	if store != nil {
		finishErr := store.FinishRun(context.WithoutCancel(ctx), sqlite.RunRecord{
			RunID:       runID,
			FinishedAt:  time.Now(),
			Segments:    summary.Segments,
			Failed:      summary.Failed,
			RowsWritten: summary.Rows,
		})
		if finishErr != nil {
			log.Error("record run", zap.Error(finishErr))
		}
	}
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return summary, err
}
