package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/okian/cupcakes/internal/adapters/repository"
)

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Reset the cupcakes table and load sample cupcakes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "YAML fixture list to load instead of the built-in samples",
			},
			&cli.BoolFlag{
				Name:  "keep",
				Usage: "keep existing rows instead of dropping the table first",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fixtures, err := loadFixtures(cmd.String("file"))
			if err != nil {
				return err
			}

			cfg, log, err := bootstrap(cmd.Root().String("env-file"))
			if err != nil {
				return err
			}
			svc := newService(cfg, log)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			created, err := svc.Seed(ctx, fixtures, !cmd.Bool("keep"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "seeded %d cupcakes\n", len(created))
			return nil
		},
	}
}

func loadFixtures(path string) ([]repository.Fixture, error) {
	if path == "" {
		return repository.DefaultFixtures(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures: %w", err)
	}
	defer f.Close()
	return repository.LoadFixtures(f)
}
