// Package worker runs queued sample requests on this host until its
// context is canceled.
package worker

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"scenegen/internal/ledger"
	"scenegen/internal/models"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/scene"
	"scenegen/internal/worker/pool"
	"scenegen/internal/worker/processor"
	"scenegen/internal/worker/queue"
)

// Run pops requests from d.Source and feeds them to a pool until ctx is
// canceled. Requests popped but not started when ctx ends are reported as
// canceled; enqueue again to retry them. Invalid payloads are logged and
// dropped. It returns ctx.Err().
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")
	l := d.Ledger
	if l == nil {
		l = ledger.Nop{}
	}
	popTimeout := d.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}

	sessionID := uuid.NewString()
	ctx = logger.ContextWithRunID(ctx, sessionID)
	log = log.WithRunID(sessionID)
	if err := l.StartRun(ctx, models.Run{ID: sessionID, Tasks: d.Name, StartedAt: time.Now()}); err != nil {
		log.Warn("ledger start failed", "error", err.Error())
	}

	in := make(chan scene.SampleRequest)
	go feed(ctx, d.Source, popTimeout, in, log)

	p := pool.New(d.Pool, d.Pipeline, log)
	log.Info("worker started", "workers", d.Pool.MaxWorkers, "queue", d.Name)

	for o := range p.RunStream(ctx, in) {
		sampleLog := log.WithSampleID(o.SampleID())
		switch o.Status {
		case pool.StatusSucceeded:
			sampleLog.Info("sample completed",
				"attempts", o.Attempts,
				"duration_ms", o.Duration.Milliseconds(),
			)
		case pool.StatusSkipped:
			sampleLog.Info("sample already committed")
		case pool.StatusCanceled:
			sampleLog.Warn("sample canceled", "attempts", o.Attempts)
		default:
			args := []any{
				"reason", string(o.Reason),
				"transient", o.Transient,
				"attempts", o.Attempts,
				"duration_ms", o.Duration.Milliseconds(),
			}
			if o.Err != nil {
				args = append(args, "error", o.Err.Error())
			}
			sampleLog.Error("sample failed", args...)
		}
		record(ctx, l, sessionID, o, log)
	}

	if err := l.FinishRun(context.WithoutCancel(ctx), sessionID, time.Now()); err != nil {
		log.Warn("ledger finish failed", "error", err.Error())
	}
	log.Info("worker stopped")
	return ctx.Err()
}

// feed closes in once ctx is done.
func feed(ctx context.Context, src Source, timeout time.Duration, in chan<- scene.SampleRequest, log *logger.Logger) {
	defer close(in)
	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := src.Pop(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if stderrors.Is(err, queue.ErrEmpty) {
				continue
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		req, err := processor.DecodeRequest(payload)
		if err != nil {
			log.Error("dropping invalid request", "error", err.Error(), "payload_bytes", len(payload))
			continue
		}
		select {
		case in <- req:
		case <-ctx.Done():
			log.Warn("request popped during shutdown", "sample_id", req.ID())
			return
		}
	}
}

func record(ctx context.Context, l ledger.Ledger, sessionID string, o pool.Outcome, log *logger.Logger) {
	rec := models.SampleRecord{
		RunID:      sessionID,
		SampleID:   o.SampleID(),
		Task:       string(o.Request.Kind),
		Index:      o.Request.Index,
		Status:     string(o.Status),
		Reason:     string(o.Reason),
		Transient:  o.Transient,
		Attempts:   o.Attempts,
		Digest:     o.Digest,
		DurationMS: o.Duration.Milliseconds(),
		RecordedAt: time.Now(),
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if err := l.RecordSample(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("ledger record failed", "sample_id", rec.SampleID, "error", err.Error())
	}
}
