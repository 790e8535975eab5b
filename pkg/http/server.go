package http

import (
	"context"

	http_router "github.com/lintang-b-s/roadsnap/pkg/http/router"
	"github.com/lintang-b-s/roadsnap/pkg/http/router/controllers"
	http_server "github.com/lintang-b-s/roadsnap/pkg/http/server"
	"github.com/lintang-b-s/roadsnap/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	Log *zap.Logger
}

func NewServer(log *zap.Logger) *Server {
	return &Server{Log: log}
}

// Use serves the API described by cfg until ctx is cancelled or serving
// fails, and returns the first error.
func (s *Server) Use(
	ctx context.Context,
	cfg util.ServerConfig,
	traceService controllers.TraceService,
	gatherer prometheus.Gatherer,
) error {
	config := http_server.Config{
		Port:    cfg.Port,
		Timeout: cfg.Timeout,
	}

	api := http_router.NewAPI(s.Log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Run(gctx, config, traceService,
			http_router.RateLimit{Enabled: cfg.UseRateLimit, RPS: cfg.RateLimit}, gatherer)
	})

	return g.Wait()
}
