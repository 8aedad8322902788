package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pkgit123/deltaneutral-ftp-s3/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "deltaneutral-sync",
		Usage: "Mirror DeltaNeutral daily option archives from FTP into object storage and unzip them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Optional config file (yaml, json, toml or env)",
				EnvVars: []string{"SYNC_CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file loaded before reading the environment",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Overrides LOG_LEVEL (debug, info, warn, error)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Fetch new daily archives, then expand every staged archive not yet published",
				Action: runAll,
			},
			{
				Name:   "fetch",
				Usage:  "Only copy new daily archives from FTP into staging",
				Action: runFetch,
			},
			{
				Name:   "expand",
				Usage:  "Only expand staged archives into the publish prefix",
				Action: runExpand,
			},
			{
				Name:   "plan",
				Usage:  "List the transfers and expansions a run would perform",
				Action: runPlan,
			},
			{
				Name:  "history",
				Usage: "Show recent stage runs from the tracking database",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 20,
					},
				},
				Action: runHistory,
			},
		},
		DefaultCommand: "run",
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("sync failed")
	}
}
