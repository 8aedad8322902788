package pipeline

import (
	"context"
	"time"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/config"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/naming"
)

// Stage names one half of a sync run.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageExpand Stage = "expand"
)

// Config is everything the stages need, built once at startup.
type Config struct {
	SecretID      string
	StagingPrefix string
	PublishPrefix string
	Convention    naming.Convention

	// WorkDir holds the transient copy of the file being transferred.
	WorkDir string

	// CompletionMarkers makes the expand stage write and trust a marker
	// object per fully expanded archive instead of inferring completion
	// from member names.
	CompletionMarkers bool
}

// ConfigFrom derives the stage configuration from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SecretID:          cfg.Secret.ID,
		StagingPrefix:     cfg.Storage.StagingPrefix,
		PublishPrefix:     cfg.Storage.PublishPrefix,
		WorkDir:           cfg.WorkDir,
		CompletionMarkers: cfg.Expand.CompletionMarkers,
		Convention:        naming.DeltaNeutral,
	}
}

// RunStatus represents the current state of a stage run
type RunStatus string

const (
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// FileJobStatus represents the outcome for a single file
type FileJobStatus string

const (
	FileStatusCompleted FileJobStatus = "completed"
	FileStatusFailed    FileJobStatus = "failed"
	FileStatusSkipped   FileJobStatus = "skipped"
)

// StageRun tracks a single execution of one stage
type StageRun struct {
	ID             int64
	Stage          Stage
	Status         RunStatus
	TotalFiles     int
	ProcessedFiles int
	FailedFiles    int
	StartedAt      time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
}

// FileJob tracks the processing of a single file within a stage run
type FileJob struct {
	ID           int64
	StageRunID   int64
	Name         string
	Status       FileJobStatus
	Bytes        int64
	ErrorMessage string
	ProcessedAt  *time.Time
}

// Tracker records stage runs, e.g. in Postgres. Tracking failures are
// logged and never fail a run.
type Tracker interface {
	StartRun(ctx context.Context, run *StageRun) error
	RecordFile(ctx context.Context, job *FileJob) error
	FinishRun(ctx context.Context, run *StageRun) error
}

type nopTracker struct{}

func (nopTracker) StartRun(context.Context, *StageRun) error  { return nil }
func (nopTracker) RecordFile(context.Context, *FileJob) error { return nil }
func (nopTracker) FinishRun(context.Context, *StageRun) error { return nil }

// FetchResult summarizes a fetch stage.
type FetchResult struct {
	RemoteFiles int
	DailyFiles  int
	StagedFiles int

	// Missing is the transfer queue in processing order.
	Missing     []string
	Transferred []string
	Bytes       int64
}

// ExpandResult summarizes an expand stage.
type ExpandResult struct {
	StagedArchives int

	// Pending is the expansion queue in processing order.
	Pending   []string
	Expanded  []string
	Failed    []string
	Published int
}

// RunReport is the outcome of a full run. A stage that did not run is nil.
type RunReport struct {
	Fetch  *FetchResult
	Expand *ExpandResult
}

// Plan lists the work a run would do right now.
type Plan struct {
	Transfers  []string
	Expansions []string
}
