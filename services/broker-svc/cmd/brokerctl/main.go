package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "brokerctl",
		Usage: "Plan broker shipments from suppliers to customers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "specify the config.yaml",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "specify the sqlite history file (overrides database.sqlite_path)",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "call a running broker-svc at this address instead of solving locally",
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token for --server",
				EnvVars: []string{"BROKER_TOKEN"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "debug, info, warn or error",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			solveCmd,
			templateCmd,
			historyCmd,
			tokenCmd,
			cacheCmd,
		},
	}
}
