package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/reconcile"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/storage"
)

// Expander unzips staged archives into the publish prefix.
type Expander struct {
	cfg     Config
	store   storage.BlobStore
	tracker Tracker
	log     zerolog.Logger
}

func NewExpander(cfg Config, store storage.BlobStore, tracker Tracker, log zerolog.Logger) *Expander {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &Expander{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		log:     log.With().Str("stage", string(StageExpand)).Logger(),
	}
}

// Queue returns the staged archives that still need expanding.
func (e *Expander) Queue(ctx context.Context) (*ExpandResult, error) {
	stagedNames, err := e.store.ListNames(ctx, e.cfg.StagingPrefix)
	if err != nil {
		return nil, fmt.Errorf("list staged archives: %w", err)
	}
	publishedNames, err := e.store.ListNames(ctx, e.cfg.PublishPrefix)
	if err != nil {
		return nil, fmt.Errorf("list published files: %w", err)
	}

	pending := e.pending(stagedNames, publishedNames)
	e.log.Info().Int("count", len(pending)).Strs("archives", pending).Msg("Queue to unzip")

	return &ExpandResult{
		StagedArchives: len(e.archives(stagedNames)),
		Pending:        pending,
	}, nil
}

func (e *Expander) archives(names []string) reconcile.NameSet {
	out := make(reconcile.NameSet)
	for _, n := range names {
		if e.cfg.Convention.IsArchive(n) {
			out.Add(n)
		}
	}
	return out
}

func (e *Expander) pending(stagedNames, publishedNames []string) []string {
	staged := e.archives(stagedNames)
	published := reconcile.NewNameSet(publishedNames...)
	if e.cfg.CompletionMarkers {
		return reconcile.PendingByMarker(e.cfg.Convention, staged, published).Sorted()
	}
	return reconcile.PendingExpansion(e.cfg.Convention, staged, published).Sorted()
}

// Run expands every queued archive. A bad archive is logged and skipped;
// only listing failures and cancellation stop the stage.
func (e *Expander) Run(ctx context.Context) (*ExpandResult, error) {
	result, err := e.Queue(ctx)
	if err != nil {
		return nil, err
	}

	rec := startRecorder(ctx, e.tracker, e.log, StageExpand, len(result.Pending))
	for _, archive := range result.Pending {
		if err := ctx.Err(); err != nil {
			rec.finish(err)
			return result, err
		}

		n, err := e.expand(ctx, archive)
		result.Published += n
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				rec.file(archive, int64(n), FileStatusFailed, err)
				rec.finish(ctxErr)
				return result, ctxErr
			}
			e.log.Error().Err(err).Str("archive", archive).Msg("Skipping archive")
			rec.file(archive, int64(n), FileStatusFailed, err)
			result.Failed = append(result.Failed, archive)
			continue
		}

		rec.file(archive, int64(n), FileStatusCompleted, nil)
		result.Expanded = append(result.Expanded, archive)
		e.log.Info().Str("archive", archive).Int("members", n).Msg("Unzipped archive")
	}
	rec.finish(nil)

	e.log.Info().
		Int("expanded", len(result.Expanded)).
		Int("failed", len(result.Failed)).
		Int("published", result.Published).
		Msg("Finished unzipping files in storage")
	return result, nil
}

// expand publishes the members of one archive in archive order and returns
// how many were published.
func (e *Expander) expand(ctx context.Context, archive string) (int, error) {
	data, err := e.store.Download(ctx, e.cfg.StagingPrefix+archive)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", archive, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, &CorruptArchiveError{Name: archive, Err: err}
	}

	// reject the whole archive before anything is published
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if _, err := memberName(f.Name); err != nil {
			return 0, &CorruptArchiveError{Name: archive, Err: err}
		}
	}

	published := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := e.publish(ctx, archive, f); err != nil {
			return published, err
		}
		published++
	}

	if e.cfg.CompletionMarkers {
		marker := e.cfg.PublishPrefix + e.cfg.Convention.MarkerFor(archive)
		if err := e.store.Upload(ctx, marker, bytes.NewReader(nil), 0); err != nil {
			return published, fmt.Errorf("write completion marker for %s: %w", archive, err)
		}
	}
	return published, nil
}

func (e *Expander) publish(ctx context.Context, archive string, f *zip.File) error {
	name, err := memberName(f.Name)
	if err != nil {
		return &CorruptArchiveError{Name: archive, Err: err}
	}

	rc, err := f.Open()
	if err != nil {
		return &CorruptArchiveError{Name: archive, Err: fmt.Errorf("open member %s: %w", f.Name, err)}
	}
	defer rc.Close()

	key := e.cfg.PublishPrefix + name
	e.log.Debug().Str("archive", archive).Str("member", f.Name).Str("key", key).Msg("Publishing member")
	if err := e.store.Upload(ctx, key, rc, int64(f.UncompressedSize64)); err != nil {
		if isZipDataError(err) {
			return &CorruptArchiveError{Name: archive, Err: fmt.Errorf("member %s: %w", f.Name, err)}
		}
		return fmt.Errorf("upload member %s of %s: %w", f.Name, archive, err)
	}
	return nil
}

// memberName returns the key a member is published under below the publish
// prefix. Members stored in subdirectories are flattened to their base name
// so they are listed next to the others. Absolute names and names climbing
// out of the archive root are rejected.
func memberName(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("member %q escapes the archive root", name)
	}
	base := path.Base(clean)
	if base == "." || base == "/" {
		return "", fmt.Errorf("member %q has no file name", name)
	}
	return base, nil
}

func isZipDataError(err error) bool {
	return errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm)
}
