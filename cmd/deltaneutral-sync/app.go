package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/config"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/lock"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/pipeline"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/remote"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/repository/postgres"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/secrets"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/storage"
	"github.com/pkgit123/deltaneutral-ftp-s3/pkg/logger"
)

type appKey struct{}

// app holds the services built from the configuration for one invocation.
type app struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	repo         *pipeline.Repository
	db           *postgres.DB
	lock         *lock.RedisLock
}

func fromContext(c *cli.Context) *app {
	a, _ := c.Context.Value(appKey{}).(*app)
	return a
}

func setup(c *cli.Context) error {
	cfg, err := config.Load(config.Options{
		EnvFile:    c.String("env-file"),
		ConfigFile: c.String("config"),
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	logger.SetLevel(level)

	a, err := newApp(c.Context, cfg, logger.Log)
	if err != nil {
		return err
	}
	c.Context = context.WithValue(c.Context, appKey{}, a)
	return nil
}

func teardown(c *cli.Context) error {
	a := fromContext(c)
	if a == nil {
		return nil
	}
	a.close()
	return nil
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg}

	provider, err := newSecretsProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	dialer := remote.NewFTPDialer(remote.FTPConfig{
		Port:      cfg.FTP.Port,
		Directory: cfg.FTP.Directory,
		Timeout:   cfg.FTP.Timeout,
	}, log)

	opts := []pipeline.Option{pipeline.WithLogger(log)}
	if cfg.Tracking.DatabaseURL != "" {
		db, err := postgres.NewDB(ctx, cfg.Tracking)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.repo = pipeline.NewRepository(db)
		if err := a.repo.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		opts = append(opts, pipeline.WithTracker(a.repo))
		log.Info().Str("driver", cfg.Tracking.Driver).Msg("Run tracking enabled")
	}

	if cfg.Lock.RedisURL != "" {
		l, err := lock.NewRedisLock(ctx, cfg.Lock.RedisURL, cfg.Lock.TTL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init run lock: %w", err)
		}
		a.lock = l
	}

	a.orchestrator = pipeline.NewOrchestrator(pipeline.ConfigFrom(cfg), provider, dialer, store, opts...)
	return a, nil
}

func newSecretsProvider(ctx context.Context, cfg *config.Config) (secrets.Provider, error) {
	if cfg.Secret.ID == "" {
		logger.Log.Warn().Str("host", cfg.FTP.Host).Msg("SECRET_ID not set, using FTP credentials from the environment")
		return secrets.StaticProvider{Credentials: secrets.Credentials{
			Host:     cfg.FTP.Host,
			Username: cfg.FTP.User,
			Password: cfg.FTP.Password,
		}}, nil
	}

	provider, err := secrets.NewAWSProvider(ctx, cfg.Secret.Region)
	if err != nil {
		return nil, fmt.Errorf("init secrets manager: %w", err)
	}
	return provider, nil
}

func (a *app) close() {
	if a.lock != nil {
		if err := a.lock.Close(); err != nil {
			logger.Log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Log.Warn().Err(err).Msg("failed to close tracking database")
		}
	}
}

// locked runs fn while holding the run lock, if one is configured.
func (a *app) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.lock == nil {
		return fn(ctx)
	}

	if err := a.lock.Acquire(ctx); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			logger.Log.Warn().Msg("Another sync run is in progress, nothing to do")
			return nil
		}
		return err
	}
	defer func() {
		if err := a.lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Log.Warn().Err(err).Msg("failed to release run lock")
		}
	}()

	return fn(ctx)
}

func runAll(c *cli.Context) error {
	a := fromContext(c)
	return a.locked(c.Context, func(ctx context.Context) error {
		start := time.Now()
		report, err := a.orchestrator.Run(ctx)
		if report != nil {
			logReport(report, time.Since(start))
		}
		return err
	})
}

func runFetch(c *cli.Context) error {
	a := fromContext(c)
	return a.locked(c.Context, func(ctx context.Context) error {
		start := time.Now()
		result, err := a.orchestrator.RunFetch(ctx)
		logReport(&pipeline.RunReport{Fetch: result}, time.Since(start))
		return err
	})
}

func runExpand(c *cli.Context) error {
	a := fromContext(c)
	return a.locked(c.Context, func(ctx context.Context) error {
		start := time.Now()
		result, err := a.orchestrator.RunExpand(ctx)
		logReport(&pipeline.RunReport{Expand: result}, time.Since(start))
		return err
	})
}

func runPlan(c *cli.Context) error {
	plan, err := fromContext(c).orchestrator.Plan(c.Context)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "transfers (%d):\n", len(plan.Transfers))
	for _, name := range plan.Transfers {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintf(w, "expansions (%d):\n", len(plan.Expansions))
	for _, name := range plan.Expansions {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}

func runHistory(c *cli.Context) error {
	a := fromContext(c)
	if a.repo == nil {
		return fmt.Errorf("run history needs TRACKING_DATABASE_URL")
	}

	runs, err := a.repo.RecentRuns(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tSTATUS\tFILES\tFAILED\tSTARTED\tERROR")
	for _, run := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			run.ID, run.Stage, run.Status,
			run.ProcessedFiles, run.TotalFiles, run.FailedFiles,
			run.StartedAt.Local().Format(time.DateTime),
			strings.ReplaceAll(run.ErrorMessage, "\n", " "),
		)
	}
	return tw.Flush()
}

func logReport(report *pipeline.RunReport, took time.Duration) {
	event := logger.Log.Info().Dur("took", took)
	if f := report.Fetch; f != nil {
		event = event.
			Int("remote_files", f.RemoteFiles).
			Int("daily_files", f.DailyFiles).
			Int("transferred", len(f.Transferred)).
			Int64("bytes", f.Bytes)
	}
	if e := report.Expand; e != nil {
		event = event.
			Int("expanded", len(e.Expanded)).
			Int("expand_failed", len(e.Failed)).
			Int("published", e.Published)
	}
	event.Msg("Sync finished")
}
