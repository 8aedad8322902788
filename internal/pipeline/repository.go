package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/repository/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_stage_runs (
	id              BIGSERIAL PRIMARY KEY,
	stage           TEXT        NOT NULL,
	status          TEXT        NOT NULL,
	total_files     INTEGER     NOT NULL DEFAULT 0,
	processed_files INTEGER     NOT NULL DEFAULT 0,
	failed_files    INTEGER     NOT NULL DEFAULT 0,
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ,
	error_message   TEXT        NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_file_jobs (
	id            BIGSERIAL PRIMARY KEY,
	stage_run_id  BIGINT      NOT NULL REFERENCES sync_stage_runs(id),
	name          TEXT        NOT NULL,
	status        TEXT        NOT NULL,
	bytes         BIGINT      NOT NULL DEFAULT 0,
	error_message TEXT        NOT NULL DEFAULT '',
	processed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS sync_file_jobs_name_idx ON sync_file_jobs (name);
`

// Repository handles database operations for stage run tracking
type Repository struct {
	db *postgres.DB
}

// NewRepository creates a new run tracking repository
func NewRepository(db *postgres.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the tracking tables when they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tracking schema: %w", err)
	}
	return nil
}

// StartRun creates a new stage run record
func (r *Repository) StartRun(ctx context.Context, run *StageRun) error {
	query := `
		INSERT INTO sync_stage_runs (
			stage, status, total_files, processed_files, failed_files, started_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		string(run.Stage), string(run.Status), run.TotalFiles,
		run.ProcessedFiles, run.FailedFiles, run.StartedAt,
	).Scan(&run.ID)
}

// RecordFile stores the outcome for one file and bumps the run counters.
func (r *Repository) RecordFile(ctx context.Context, job *FileJob) error {
	if job.StageRunID == 0 {
		return fmt.Errorf("file job %s has no stage run", job.Name)
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO sync_file_jobs (
				stage_run_id, name, status, bytes, error_message, processed_at
			) VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`,
			job.StageRunID, job.Name, string(job.Status), job.Bytes, job.ErrorMessage, job.ProcessedAt,
		).Scan(&job.ID)
		if err != nil {
			return fmt.Errorf("insert file job: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sync_stage_runs
			SET processed_files = processed_files + CASE WHEN $2::text = 'completed' THEN 1 ELSE 0 END,
			    failed_files = failed_files + CASE WHEN $2::text = 'failed' THEN 1 ELSE 0 END
			WHERE id = $1
		`, job.StageRunID, string(job.Status))
		if err != nil {
			return fmt.Errorf("update run counters: %w", err)
		}
		return nil
	})
}

// FinishRun updates an existing stage run
func (r *Repository) FinishRun(ctx context.Context, run *StageRun) error {
	if run.ID == 0 {
		return fmt.Errorf("stage run was never started")
	}

	query := `
		UPDATE sync_stage_runs
		SET status = $1, processed_files = $2, failed_files = $3,
		    completed_at = $4, error_message = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(
		ctx, query,
		string(run.Status), run.ProcessedFiles, run.FailedFiles,
		run.CompletedAt, run.ErrorMessage, run.ID,
	)

	return err
}

type stageRunRow struct {
	ID             int64        `db:"id"`
	Stage          string       `db:"stage"`
	Status         string       `db:"status"`
	TotalFiles     int          `db:"total_files"`
	ProcessedFiles int          `db:"processed_files"`
	FailedFiles    int          `db:"failed_files"`
	StartedAt      time.Time    `db:"started_at"`
	CompletedAt    sql.NullTime `db:"completed_at"`
	ErrorMessage   string       `db:"error_message"`
}

func (row stageRunRow) toStageRun() StageRun {
	run := StageRun{
		ID:             row.ID,
		Stage:          Stage(row.Stage),
		Status:         RunStatus(row.Status),
		TotalFiles:     row.TotalFiles,
		ProcessedFiles: row.ProcessedFiles,
		FailedFiles:    row.FailedFiles,
		StartedAt:      row.StartedAt,
		ErrorMessage:   row.ErrorMessage,
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		run.CompletedAt = &t
	}
	return run
}

// RecentRuns returns the latest stage runs, newest first.
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]StageRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, stage, status, total_files, processed_files, failed_files,
		       started_at, completed_at, error_message
		FROM sync_stage_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`

	var rows []stageRunRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("select stage runs: %w", err)
	}

	runs := make([]StageRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toStageRun())
	}
	return runs, nil
}

var _ Tracker = (*Repository)(nil)
