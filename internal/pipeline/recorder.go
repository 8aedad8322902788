package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// recorder feeds one stage run into a Tracker. Tracking errors are logged
// only.
type recorder struct {
	ctx     context.Context
	tracker Tracker
	log     zerolog.Logger
	run     *StageRun
}

func startRecorder(ctx context.Context, tracker Tracker, log zerolog.Logger, stage Stage, total int) *recorder {
	r := &recorder{
		// tracking outlives a cancelled run so the failure is still recorded
		ctx:     context.WithoutCancel(ctx),
		tracker: tracker,
		log:     log,
		run: &StageRun{
			Stage:      stage,
			Status:     StatusProcessing,
			TotalFiles: total,
			StartedAt:  time.Now(),
		},
	}
	r.check("start run", tracker.StartRun(r.ctx, r.run))
	return r
}

func (r *recorder) file(name string, bytes int64, status FileJobStatus, err error) {
	now := time.Now()
	job := &FileJob{
		StageRunID:  r.run.ID,
		Name:        name,
		Status:      status,
		Bytes:       bytes,
		ProcessedAt: &now,
	}
	if err != nil {
		job.ErrorMessage = err.Error()
	}

	switch status {
	case FileStatusCompleted:
		r.run.ProcessedFiles++
	case FileStatusFailed:
		r.run.FailedFiles++
	}
	r.check("record file", r.tracker.RecordFile(r.ctx, job))
}

func (r *recorder) finish(err error) {
	now := time.Now()
	r.run.CompletedAt = &now
	r.run.Status = StatusCompleted
	if err != nil {
		r.run.Status = StatusFailed
		r.run.ErrorMessage = err.Error()
	}
	r.check("finish run", r.tracker.FinishRun(r.ctx, r.run))
}

func (r *recorder) check(op string, err error) {
	if err != nil {
		r.log.Warn().Err(err).Str("op", op).Msg("run tracking failed")
	}
}
