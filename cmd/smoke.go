package main

import (
	"context"
	"encoding/json"

	"github.com/urfave/cli/v3"

	"github.com/okian/cupcakes/internal/smoke"
	"github.com/okian/cupcakes/pkg/logger"
)

func smokeCmd() *cli.Command {
	return &cli.Command{
		Name:  "smoke",
		Usage: "Exercise every endpoint of a running server and report the result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Value:   smoke.DefaultBaseURL,
				Usage:   "base URL of the server",
				Sources: cli.EnvVars("CUPCAKE_SMOKE_URL"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: smoke.DefaultTimeout,
				Usage: "per-request timeout",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := logger.Init(); err != nil {
				return err
			}
			report, err := smoke.Run(ctx, smoke.Config{
				BaseURL: cmd.String("url"),
				Timeout: cmd.Duration("timeout"),
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.Root().Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
