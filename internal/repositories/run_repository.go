// Package repositories persists the run ledger in PostgreSQL.
package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scenegen/internal/httpkit"
	"scenegen/internal/models"
)

var ErrRunNotFound = errors.New("run not found")
var ErrRunExists = errors.New("run already exists")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	tasks       TEXT NOT NULL DEFAULT '',
	total       INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sample_outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	sample_id   TEXT NOT NULL,
	task        TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	transient   BOOLEAN NOT NULL DEFAULT FALSE,
	attempts    INTEGER NOT NULL DEFAULT 0,
	digest      TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error_text  TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, sample_id)
);
CREATE INDEX IF NOT EXISTS idx_sample_outcomes_status ON sample_outcomes(run_id, status);
`

type RunRepository struct {
	db *pgxpool.Pool
}

func NewRunRepository(db *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: db}
}

// Migrate creates the ledger tables if they are missing.
func (r *RunRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

func (r *RunRepository) StartRun(ctx context.Context, run models.Run) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO runs (id, tasks, total, started_at)
		VALUES ($1,$2,$3,$4)
	`, run.ID, run.Tasks, run.Total, run.StartedAt)
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrRunExists
		}
		return err
	}
	return nil
}

func (r *RunRepository) RecordSample(ctx context.Context, s models.SampleRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sample_outcomes
			(run_id, sample_id, task, idx, status, reason, transient, attempts, digest, duration_ms, error_text, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (run_id, sample_id) DO UPDATE SET
			status=EXCLUDED.status, reason=EXCLUDED.reason, transient=EXCLUDED.transient,
			attempts=EXCLUDED.attempts, digest=EXCLUDED.digest, duration_ms=EXCLUDED.duration_ms,
			error_text=EXCLUDED.error_text, recorded_at=EXCLUDED.recorded_at
	`, s.RunID, s.SampleID, s.Task, s.Index, s.Status, s.Reason, s.Transient,
		s.Attempts, s.Digest, s.DurationMS, s.Error, s.RecordedAt)
	return err
}

func (r *RunRepository) FinishRun(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE runs SET finished_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tasks, total, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		if httpkit.IsUndefinedTable(err) {
			return []models.Run{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []models.Run{}
	for rows.Next() {
		var run models.Run
		if err := rows.Scan(&run.ID, &run.Tasks, &run.Total, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Counts, err = r.counts(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	err := r.db.QueryRow(ctx, `
		SELECT id, tasks, total, started_at, finished_at
		FROM runs
		WHERE id=$1
	`, id).Scan(&run.ID, &run.Tasks, &run.Total, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	if run.Counts, err = r.counts(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RunRepository) Failures(ctx context.Context, runID string) ([]models.SampleRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT run_id, sample_id, task, idx, status, reason, transient, attempts, digest, duration_ms, error_text, recorded_at
		FROM sample_outcomes
		WHERE run_id=$1 AND status='failed'
		ORDER BY sample_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SampleRecord{}
	for rows.Next() {
		var s models.SampleRecord
		if err := rows.Scan(&s.RunID, &s.SampleID, &s.Task, &s.Index, &s.Status, &s.Reason, &s.Transient,
			&s.Attempts, &s.Digest, &s.DurationMS, &s.Error, &s.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *RunRepository) Close() error {
	r.db.Close()
	return nil
}

func (r *RunRepository) counts(ctx context.Context, runID string) (models.RunCounts, error) {
	var c models.RunCounts
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*) FROM sample_outcomes WHERE run_id=$1 GROUP BY status
	`, runID)
	if err != nil {
		return c, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return c, err
		}
		c.Add(status, n)
	}
	return c, rows.Err()
}
