package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	app "github.com/okian/cupcakes/internal/app"
	"github.com/okian/cupcakes/internal/config"
	"github.com/okian/cupcakes/pkg/logger"
	"github.com/okian/cupcakes/pkg/metrics"
)

const name = "cupcakes"

var (
	// overridden during build with ldflags
	version = "dev"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "Cupcake CRUD JSON service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before CUPCAKE_* variables are read (ignored when missing)",
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			seedCmd(),
			schemaCmd(),
			smokeCmd(),
		},
	}
}

// bootstrap loads configuration and initializes the global logger and metrics from it.
func bootstrap(envFile string) (*config.Config, logger.Logger, error) {
	cfg, err := config.LoadFrom(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	metrics.Configure(
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithRefreshInterval(cfg.MetricsRefresh()),
	)
	return cfg, log, nil
}

// newService builds the application service from configuration.
func newService(cfg *config.Config, log logger.Logger) *app.Service {
	return app.New(
		app.WithLogger(log),
		app.WithDatabase(cfg.DBDriver, cfg.DatabaseURL),
		app.WithDefaultImage(cfg.DefaultImage),
		app.WithStoreTimeout(cfg.DBTimeout()),
		app.WithMaxOpenConns(cfg.DBMaxOpenConns),
		app.WithRefreshInterval(cfg.MetricsRefresh()),
	)
}
