package worker

import (
	"context"
	"time"

	"scenegen/internal/ledger"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/worker/pool"
)

// Source yields queued request payloads. Pop returns queue.ErrEmpty when
// nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type Deps struct {
	Source   Source
	Pipeline pool.Pipeline
	Pool     pool.Config
	// Ledger is optional; outcomes are recorded under one run per worker
	// session.
	Ledger ledger.Ledger
	// Name labels the session in the ledger, usually the queue name.
	Name string
	// PopTimeout bounds each blocking pop; zero means 5s.
	PopTimeout time.Duration
	Log        *logger.Logger
}
