package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/okian/cupcakes/internal/adapters/http/api"
	"github.com/okian/cupcakes/internal/adapters/http/swagger"
	app "github.com/okian/cupcakes/internal/app"
	"github.com/okian/cupcakes/internal/config"
	"github.com/okian/cupcakes/pkg/logger"
	"github.com/okian/cupcakes/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, overrides CUPCAKE_ADDR",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := bootstrap(cmd.Root().String("env-file"))
			if err != nil {
				return err
			}
			if addr := cmd.String("addr"); addr != "" {
				cfg.Addr = addr
			}

			svc := newService(cfg, log)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			return serve(ctx, cfg, svc, log)
		},
	}
}

var registerRuntimeCollectors = sync.OnceFunc(func() {
	metrics.GetRegistry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
})

// newHandler builds the routed mux for svc.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc,
		api.WithRateLimit(cfg.RateLimit, cfg.RateLimitBurst),
		api.WithLogger(log.Named("api")),
	)
	apiServer.Register(ctx, mux)
	return mux
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) error {
	registerRuntimeCollectors()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
			return err
		}
		log.Info(ctx, "server stopped")
		return nil
	})
	return g.Wait()
}
