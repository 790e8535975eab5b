package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lintang-b-s/roadsnap/pkg/http"
	"github.com/lintang-b-s/roadsnap/pkg/http/usecases"
	"github.com/lintang-b-s/roadsnap/pkg/logger"
	"github.com/lintang-b-s/roadsnap/pkg/spatialindex"
	"github.com/lintang-b-s/roadsnap/pkg/storage/sqlite"
	"github.com/lintang-b-s/roadsnap/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	fs := pflag.NewFlagSet("server", pflag.ExitOnError)
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
	if cfg.Storage.SQLitePath == "" {
		log.Fatal("a sqlite database is required, set --sqlite or storage.sqlite_path")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	rtree := spatialindex.NewRtree()
	traceService := usecases.NewTraceService(log, store, rtree)
	n, err := traceService.LoadIndex(ctx)
	if err != nil {
		log.Fatal("build spatial index", zap.Error(err))
	}
	log.Info("spatial index loaded", zap.Int("points", n))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	api := http.NewServer(log)
	err = api.Use(ctx, cfg.Server, traceService, reg)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped", zap.Error(err))
		return
	}

	log.Info("roadsnap server stopped")
}
