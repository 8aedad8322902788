package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/reconcile"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/remote"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/secrets"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/storage"
)

// Orchestrator runs the fetch stage and then the expand stage.
type Orchestrator struct {
	cfg      Config
	secrets  secrets.Provider
	dialer   remote.Dialer
	store    storage.BlobStore
	tracker  Tracker
	log      zerolog.Logger
	fetcher  *Fetcher
	expander *Expander
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTracker records stage runs with t.
func WithTracker(t Tracker) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracker = t
		}
	}
}

// WithLogger replaces the default no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(cfg Config, provider secrets.Provider, dialer remote.Dialer, store storage.BlobStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		secrets: provider,
		dialer:  dialer,
		store:   store,
		tracker: nopTracker{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.fetcher = NewFetcher(cfg, store, o.tracker, o.log)
	o.expander = NewExpander(cfg, store, o.tracker, o.log)
	return o
}

// Run executes both stages. The expand stage only starts after the fetch
// stage succeeded; report holds whatever stages ran.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{}

	fetch, err := o.RunFetch(ctx)
	report.Fetch = fetch
	if err != nil {
		return report, err
	}

	expand, err := o.RunExpand(ctx)
	report.Expand = expand
	if err != nil {
		return report, err
	}
	return report, nil
}

// RunFetch resolves credentials, connects to the remote site and transfers
// the missing daily archives.
func (o *Orchestrator) RunFetch(ctx context.Context) (*FetchResult, error) {
	src, err := o.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer o.disconnect(src)

	return o.fetcher.Run(ctx, src)
}

// RunExpand expands every staged archive not yet published.
func (o *Orchestrator) RunExpand(ctx context.Context) (*ExpandResult, error) {
	return o.expander.Run(ctx)
}

// Plan reports the transfers and expansions a run would perform without
// moving any data. Archives about to be transferred are counted as pending
// expansions too.
func (o *Orchestrator) Plan(ctx context.Context) (*Plan, error) {
	src, err := o.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer o.disconnect(src)

	fetch, err := o.fetcher.Queue(ctx, src)
	if err != nil {
		return nil, err
	}

	stagedNames, err := o.store.ListNames(ctx, o.cfg.StagingPrefix)
	if err != nil {
		return nil, fmt.Errorf("list staged archives: %w", err)
	}
	publishedNames, err := o.store.ListNames(ctx, o.cfg.PublishPrefix)
	if err != nil {
		return nil, fmt.Errorf("list published files: %w", err)
	}

	staged := reconcile.NewNameSet(stagedNames...)
	for _, name := range fetch.Missing {
		staged.Add(name)
	}

	return &Plan{
		Transfers:  fetch.Missing,
		Expansions: o.expander.pending(staged.Sorted(), publishedNames),
	}, nil
}

func (o *Orchestrator) connect(ctx context.Context) (remote.Source, error) {
	creds, err := o.secrets.GetCredentials(ctx, o.cfg.SecretID)
	if err != nil {
		return nil, fmt.Errorf("get ftp credentials: %w", err)
	}

	src, err := o.dialer.Dial(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("connect to ftp: %w", err)
	}
	return src, nil
}

func (o *Orchestrator) disconnect(src remote.Source) {
	if err := src.Close(); err != nil {
		o.log.Warn().Err(err).Msg("failed to close FTP session")
	}
}
