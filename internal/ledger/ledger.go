// Package ledger records run and sample outcomes for diagnostics. The
// output tree stays the source of truth for what is committed; the ledger
// only explains what happened.
package ledger

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"scenegen/internal/models"
	"scenegen/internal/pkg/errors"
	"scenegen/internal/repositories"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = repositories.ErrRunNotFound

type Ledger interface {
	StartRun(ctx context.Context, run models.Run) error
	RecordSample(ctx context.Context, s models.SampleRecord) error
	FinishRun(ctx context.Context, id string, at time.Time) error
	ListRuns(ctx context.Context, limit int) ([]models.Run, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
	Failures(ctx context.Context, runID string) ([]models.SampleRecord, error)
	Close() error
}

// Open picks a backend from dsn: postgres:// or postgresql:// URLs use
// PostgreSQL, "sqlite:<path>" or a bare path use SQLite, and an empty dsn
// gives a ledger that records nothing.
func Open(ctx context.Context, dsn string) (Ledger, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return Nop{}, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, errors.Wrap(err, "ledger.open", "connect to postgres")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "ledger.open", "ping postgres")
		}
		repo := repositories.NewRunRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "ledger.open", "migrate postgres schema")
		}
		return repo, nil
	default:
		db, err := OpenSQLite(strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, errors.Wrap(err, "ledger.open", "open sqlite ledger")
		}
		return db, nil
	}
}

// IsNotFound reports whether err means the run does not exist.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrRunNotFound)
}

// Nop discards everything and finds nothing.
type Nop struct{}

func (Nop) StartRun(context.Context, models.Run) error { return nil }

func (Nop) RecordSample(context.Context, models.SampleRecord) error { return nil }

func (Nop) FinishRun(context.Context, string, time.Time) error { return nil }

func (Nop) ListRuns(context.Context, int) ([]models.Run, error) { return []models.Run{}, nil }

func (Nop) GetRun(context.Context, string) (*models.Run, error) { return nil, ErrRunNotFound }

func (Nop) Failures(context.Context, string) ([]models.SampleRecord, error) {
	return []models.SampleRecord{}, nil
}

func (Nop) Close() error { return nil }
