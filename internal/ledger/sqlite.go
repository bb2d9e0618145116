package ledger

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"scenegen/internal/models"
	"scenegen/internal/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	tasks       TEXT NOT NULL DEFAULT '',
	total       INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER
);

CREATE TABLE IF NOT EXISTS sample_outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	sample_id   TEXT NOT NULL,
	task        TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	transient   INTEGER NOT NULL DEFAULT 0,
	attempts    INTEGER NOT NULL DEFAULT 0,
	digest      TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error_text  TEXT NOT NULL DEFAULT '',
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, sample_id)
);
CREATE INDEX IF NOT EXISTS idx_sample_outcomes_status ON sample_outcomes(run_id, status);
`

// SQLite is the single-host ledger. Times are stored as unix milliseconds.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the ledger database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "ledger.sqlite", "create ledger dir")
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "ledger.sqlite", "open database")
	}
	// Single writer; outcomes arrive from many goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ledger.sqlite", "migrate schema")
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) StartRun(ctx context.Context, run models.Run) error {
	const q = `INSERT INTO runs (id, tasks, total, started_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, run.ID, run.Tasks, run.Total, run.StartedAt.UnixMilli()); err != nil {
		return errors.Wrap(err, "ledger.sqlite", "start run")
	}
	return nil
}

func (s *SQLite) RecordSample(ctx context.Context, r models.SampleRecord) error {
	const q = `INSERT INTO sample_outcomes
	(run_id, sample_id, task, idx, status, reason, transient, attempts, digest, duration_ms, error_text, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, sample_id) DO UPDATE SET
	status=excluded.status, reason=excluded.reason, transient=excluded.transient,
	attempts=excluded.attempts, digest=excluded.digest, duration_ms=excluded.duration_ms,
	error_text=excluded.error_text, recorded_at=excluded.recorded_at`
	_, err := s.db.ExecContext(ctx, q,
		r.RunID, r.SampleID, r.Task, r.Index, r.Status, r.Reason, r.Transient,
		r.Attempts, r.Digest, r.DurationMS, r.Error, r.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "ledger.sqlite", "record sample")
	}
	return nil
}

func (s *SQLite) FinishRun(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`, at.UnixMilli(), id)
	if err != nil {
		return errors.Wrap(err, "ledger.sqlite", "finish run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	const q = `SELECT id, tasks, total, started_at, finished_at FROM runs ORDER BY started_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, errors.Wrap(err, "ledger.sqlite", "list runs")
	}
	defer rows.Close()

	out := []models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Counts, err = s.counts(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLite) GetRun(ctx context.Context, id string) (*models.Run, error) {
	const q = `SELECT id, tasks, total, started_at, finished_at FROM runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRowContext(ctx, q, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	if run.Counts, err = s.counts(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLite) Failures(ctx context.Context, runID string) ([]models.SampleRecord, error) {
	const q = `SELECT run_id, sample_id, task, idx, status, reason, transient, attempts, digest, duration_ms, error_text, recorded_at
FROM sample_outcomes
WHERE run_id = ? AND status = 'failed'
ORDER BY sample_id`
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, errors.Wrap(err, "ledger.sqlite", "list failures")
	}
	defer rows.Close()

	out := []models.SampleRecord{}
	for rows.Next() {
		var r models.SampleRecord
		var recorded int64
		if err := rows.Scan(&r.RunID, &r.SampleID, &r.Task, &r.Index, &r.Status, &r.Reason, &r.Transient,
			&r.Attempts, &r.Digest, &r.DurationMS, &r.Error, &recorded); err != nil {
			return nil, errors.Wrap(err, "ledger.sqlite", "scan sample")
		}
		r.RecordedAt = time.UnixMilli(recorded).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) counts(ctx context.Context, runID string) (models.RunCounts, error) {
	var c models.RunCounts
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sample_outcomes WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return c, errors.Wrap(err, "ledger.sqlite", "count samples")
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.Run, error) {
	var run models.Run
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(&run.ID, &run.Tasks, &run.Total, &started, &finished); err != nil {
		return run, err
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return run, nil
}
