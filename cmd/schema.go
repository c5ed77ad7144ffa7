package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func schemaCmd() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Create the cupcakes table if it does not exist",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "drop and recreate the table, discarding every row",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := bootstrap(cmd.Root().String("env-file"))
			if err != nil {
				return err
			}
			// Start ensures the schema exists.
			svc := newService(cfg, log)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			if cmd.Bool("reset") {
				if err := svc.ResetSchema(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.Root().Writer, "schema reset")
				return nil
			}
			fmt.Fprintln(cmd.Root().Writer, "schema ready")
			return nil
		},
	}
}
