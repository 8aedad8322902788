package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/reconcile"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/remote"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/storage"
)

// Fetcher copies daily archives that are missing from staging off the
// remote site, one at a time.
type Fetcher struct {
	cfg     Config
	store   storage.BlobStore
	tracker Tracker
	log     zerolog.Logger
}

func NewFetcher(cfg Config, store storage.BlobStore, tracker Tracker, log zerolog.Logger) *Fetcher {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &Fetcher{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		log:     log.With().Str("stage", string(StageFetch)).Logger(),
	}
}

// Queue lists both sides once and returns the daily archives not yet staged.
func (f *Fetcher) Queue(ctx context.Context, src remote.Source) (*FetchResult, error) {
	remoteNames, err := src.NameList(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote files: %w", err)
	}
	daily := reconcile.ClassifyDaily(f.cfg.Convention, remoteNames)
	f.log.Info().Int("count", daily.Len()).Int("listed", len(remoteNames)).Msg("Daily files on remote site")

	stagedNames, err := f.store.ListNames(ctx, f.cfg.StagingPrefix)
	if err != nil {
		return nil, fmt.Errorf("list staged files: %w", err)
	}
	staged := reconcile.NewNameSet(stagedNames...)
	f.log.Info().Int("count", staged.Len()).Str("prefix", f.cfg.StagingPrefix).Msg("Files already staged")

	missing := reconcile.Missing(daily, staged).Sorted()
	f.log.Info().Int("count", len(missing)).Strs("files", missing).Msg("New files to transfer")

	return &FetchResult{
		RemoteFiles: len(remoteNames),
		DailyFiles:  daily.Len(),
		StagedFiles: staged.Len(),
		Missing:     missing,
	}, nil
}

// Run transfers every queued file. The first failure stops the stage;
// files transferred before it stay staged.
func (f *Fetcher) Run(ctx context.Context, src remote.Source) (*FetchResult, error) {
	result, err := f.Queue(ctx, src)
	if err != nil {
		return nil, err
	}

	rec := startRecorder(ctx, f.tracker, f.log, StageFetch, len(result.Missing))
	for _, name := range result.Missing {
		if err := ctx.Err(); err != nil {
			rec.finish(err)
			return result, err
		}

		n, err := f.transfer(ctx, src, name)
		if err != nil {
			rec.file(name, n, FileStatusFailed, err)
			rec.finish(err)
			return result, err
		}
		rec.file(name, n, FileStatusCompleted, nil)

		result.Transferred = append(result.Transferred, name)
		result.Bytes += n
	}
	rec.finish(nil)

	f.log.Info().Int("count", len(result.Transferred)).Int64("bytes", result.Bytes).Msg("Finished transferring files from FTP to storage")
	return result, nil
}

// transfer runs retrieve, upload and cleanup for one file, strictly in that
// order. The transient copy is removed once the upload call has returned,
// or straight away if the retrieval failed.
func (f *Fetcher) transfer(ctx context.Context, src remote.Source, name string) (int64, error) {
	log := f.log.With().Str("file", name).Logger()

	tmp, err := os.CreateTemp(f.cfg.WorkDir, "fetch-*.part")
	if err != nil {
		return 0, &TransferError{Name: name, Op: "retrieve", Err: err}
	}
	tmpPath := tmp.Name()
	defer f.cleanup(log, tmpPath)

	log.Info().Msg("Downloading from FTP")
	n, err := src.Retrieve(ctx, name, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return 0, &TransferError{Name: name, Op: "retrieve", Err: err}
	}

	in, err := os.Open(tmpPath)
	if err != nil {
		return 0, &TransferError{Name: name, Op: "upload", Err: err}
	}
	defer in.Close()

	key := f.cfg.StagingPrefix + name
	log.Info().Str("key", key).Int64("bytes", n).Msg("Uploading to staging")
	if err := f.store.Upload(ctx, key, in, n); err != nil {
		return 0, &TransferError{Name: name, Op: "upload", Err: err}
	}

	return n, nil
}

func (f *Fetcher) cleanup(log zerolog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove transient file")
		return
	}
	log.Debug().Str("path", path).Msg("Removed transient file")
}
