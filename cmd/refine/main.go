package main

import (
	"os"

	"github.com/lintang-b-s/roadsnap/pkg/logger"
	"github.com/lintang-b-s/roadsnap/pkg/refine"
	"github.com/lintang-b-s/roadsnap/pkg/storage/csvio"
	"github.com/lintang-b-s/roadsnap/pkg/util"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	fs := pflag.NewFlagSet("refine", pflag.ExitOnError)
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

	if err := run(cfg, log); err != nil {
		log.Fatal("refine failed", zap.Error(err))
	}
}

func run(cfg *util.Config, log *zap.Logger) error {
	trace, err := csvio.ReadTraceFile(cfg.Refine.Input)
	if err != nil {
		return err
	}

	refiner := refine.NewRefiner(cfg.Refine.SimplifyThresholdFt, cfg.Refine.MaxSpeedFtPerSec, log)
	refined := refiner.Refine(trace)

	if err := csvio.WriteTraceFile(cfg.Refine.Output, refined); err != nil {
		return err
	}

	log.Info("refined trace written",
		zap.String("input", cfg.Refine.Input),
		zap.String("output", cfg.Refine.Output),
		zap.Int("points_in", len(trace)),
		zap.Int("points_out", len(refined)))
	return nil
}
