// Package run enumerates the samples of a run, dispatches the ones not yet
// committed to the worker pool and aggregates their outcomes.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scenegen/internal/config"
	"scenegen/internal/ledger"
	"scenegen/internal/models"
	"scenegen/internal/pkg/errors"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/resolver"
	"scenegen/internal/scene"
	"scenegen/internal/task"
	"scenegen/internal/worker/pool"
	"scenegen/internal/worker/processor"
)

// progressEvery is how many completions pass between progress lines.
const progressEvery = 10

// Outputs is the view of the output tree the aggregator needs.
type Outputs interface {
	Committed(req scene.SampleRequest) bool
	SweepStale(kind task.Kind) (int, error)
}

// Pusher accepts encoded requests for distributed workers.
type Pusher interface {
	Push(ctx context.Context, payloads ...[]byte) error
}

type Deps struct {
	// Pipeline runs samples; Enqueue does not need it.
	Pipeline pool.Pipeline
	Outputs  Outputs
	// Ledger is optional.
	Ledger ledger.Ledger
	Log    *logger.Logger
}

type Aggregator struct {
	pipeline pool.Pipeline
	outputs  Outputs
	ledger   ledger.Ledger
	log      *logger.Logger
	now      func() time.Time
}

func New(d Deps) *Aggregator {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	l := d.Ledger
	if l == nil {
		l = ledger.Nop{}
	}
	return &Aggregator{
		pipeline: d.Pipeline,
		outputs:  d.Outputs,
		ledger:   l,
		log:      log.WithComponent("run"),
		now:      time.Now,
	}
}

// Run generates every sample cfg describes that is not already committed.
// Configuration problems are returned before anything is dispatched. The
// report is returned even when the error is ErrRunFailed or a context error.
func (a *Aggregator) Run(ctx context.Context, cfg config.Run) (*Report, error) {
	if a.pipeline == nil || a.outputs == nil {
		return nil, errors.Internal("run: pipeline and outputs are required")
	}
	reqs, err := Requests(cfg)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logger.ContextWithRunID(ctx, runID)
	log := a.log.WithRunID(runID)

	rep := &Report{RunID: runID, Total: len(reqs), Started: a.now()}
	a.sweep(log, reqs)

	if err := a.ledger.StartRun(ctx, models.Run{
		ID:        runID,
		Tasks:     cfg.Task,
		Total:     len(reqs),
		StartedAt: rep.Started,
	}); err != nil {
		log.Warn("ledger start failed", "error", err.Error())
	}

	pending := make([]scene.SampleRequest, 0, len(reqs))
	for _, r := range reqs {
		if a.outputs.Committed(r) {
			rep.Skipped++
			a.record(ctx, log, runID, pool.Outcome{Request: r, Status: pool.StatusSkipped})
			continue
		}
		pending = append(pending, r)
	}
	rep.Submitted = len(pending)

	log.Info("run starting",
		"tasks", cfg.Task,
		"total", rep.Total,
		"submitted", rep.Submitted,
		"already_committed", rep.Skipped,
		"workers", cfg.MaxWorkers,
	)

	p := pool.New(pool.Config{
		MaxWorkers:    cfg.MaxWorkers,
		RenderTimeout: cfg.Renderer.Timeout,
		Retry: pool.RetryPolicy{
			TransientRetries: cfg.Retry.TransientRetries,
			MalformedRetries: cfg.Retry.MalformedRetries,
			Backoff:          cfg.Retry.Backoff,
		},
	}, a.pipeline, a.log)

	// Outcomes are folded by this goroutine alone.
	completed := 0
	for o := range p.Run(ctx, pending) {
		rep.add(o)
		a.record(ctx, log, runID, o)
		completed++
		if completed%progressEvery == 0 || completed == len(pending) {
			a.progress(log, rep, completed)
		}
	}

	rep.finish(a.now())
	// The run context may be canceled already; the ledger write still matters.
	if err := a.ledger.FinishRun(context.WithoutCancel(ctx), runID, rep.Finished); err != nil {
		log.Warn("ledger finish failed", "error", err.Error())
	}
	log.Info("run finished",
		"succeeded", rep.Succeeded,
		"skipped", rep.Skipped,
		"failed_transient", rep.FailedTransient,
		"failed_non_transient", rep.FailedNonTransient,
		"canceled", rep.Canceled,
		"duration_ms", rep.Finished.Sub(rep.Started).Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if rep.failed() {
		return rep, ErrRunFailed
	}
	return rep, nil
}

// Enqueue pushes every sample cfg describes that is not already committed
// onto q, in enumeration order. It returns the number pushed and skipped.
func (a *Aggregator) Enqueue(ctx context.Context, cfg config.Run, q Pusher) (pushed, skipped int, err error) {
	if a.outputs == nil {
		return 0, 0, errors.Internal("run: outputs are required")
	}
	reqs, err := Requests(cfg)
	if err != nil {
		return 0, 0, err
	}

	payloads := make([][]byte, 0, len(reqs))
	for _, r := range reqs {
		if a.outputs.Committed(r) {
			skipped++
			continue
		}
		b, err := processor.EncodeRequest(r)
		if err != nil {
			return 0, skipped, errors.Wrapf(err, "run.enqueue", "encode %s", r.ID())
		}
		payloads = append(payloads, b)
	}
	if err := q.Push(ctx, payloads...); err != nil {
		return 0, skipped, errors.Wrap(err, "run.enqueue", "push requests")
	}
	a.log.Info("requests enqueued", "pushed", len(payloads), "skipped", skipped)
	return len(payloads), skipped, nil
}

// Requests validates cfg, loads its object list and enumerates indices
// 0..n-1 of every selected kind, kinds in canonical order.
func Requests(cfg config.Run) ([]scene.SampleRequest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	objects, err := loadObjects(cfg)
	if err != nil {
		return nil, err
	}
	kinds, err := cfg.Kinds()
	if err != nil {
		return nil, err
	}
	counts, err := cfg.Counts()
	if err != nil {
		return nil, err
	}

	var reqs []scene.SampleRequest
	for _, k := range kinds {
		params := cfg.ParamsFor(k)
		for i := 0; i < counts[k]; i++ {
			reqs = append(reqs, scene.SampleRequest{
				Kind:       k,
				Index:      i,
				Seed:       cfg.Seed,
				Resolution: cfg.Resolution,
				FPS:        cfg.FPS,
				Duration:   cfg.Duration,
				Objects:    objects,
				Params:     params,
			})
		}
	}
	return reqs, nil
}

// Sample is the request for one index of kind under cfg, as Requests
// would enumerate it. The index need not be below NumSamples.
func Sample(cfg config.Run, kind task.Kind, index int) (scene.SampleRequest, error) {
	if err := cfg.Validate(); err != nil {
		return scene.SampleRequest{}, err
	}
	if !kind.Valid() {
		return scene.SampleRequest{}, errors.ValidationField("task", fmt.Sprintf("unknown task kind %q", kind))
	}
	objects, err := loadObjects(cfg)
	if err != nil {
		return scene.SampleRequest{}, err
	}
	req := scene.SampleRequest{
		Kind:       kind,
		Index:      index,
		Seed:       cfg.Seed,
		Resolution: cfg.Resolution,
		FPS:        cfg.FPS,
		Duration:   cfg.Duration,
		Objects:    objects,
		Params:     cfg.ParamsFor(kind),
	}
	if err := req.Validate(); err != nil {
		return scene.SampleRequest{}, err
	}
	return req, nil
}

func loadObjects(cfg config.Run) ([]string, error) {
	if len(cfg.Objects) > 0 {
		return cfg.Objects, nil
	}
	return resolver.LoadObjectList(cfg.ObjectList)
}

func (a *Aggregator) sweep(log *logger.Logger, reqs []scene.SampleRequest) {
	seen := map[task.Kind]bool{}
	for _, r := range reqs {
		if seen[r.Kind] {
			continue
		}
		seen[r.Kind] = true
		n, err := a.outputs.SweepStale(r.Kind)
		if err != nil {
			log.Warn("stale sweep failed", "task", string(r.Kind), "error", err.Error())
			continue
		}
		if n > 0 {
			log.Info("removed stale temp dirs", "task", string(r.Kind), "count", n)
		}
	}
}

func (a *Aggregator) record(ctx context.Context, log *logger.Logger, runID string, o pool.Outcome) {
	rec := models.SampleRecord{
		RunID:      runID,
		SampleID:   o.SampleID(),
		Task:       string(o.Request.Kind),
		Index:      o.Request.Index,
		Status:     string(o.Status),
		Reason:     string(o.Reason),
		Transient:  o.Transient,
		Attempts:   o.Attempts,
		Digest:     o.Digest,
		DurationMS: o.Duration.Milliseconds(),
		RecordedAt: a.now(),
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if err := a.ledger.RecordSample(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("ledger record failed", "sample_id", rec.SampleID, "error", err.Error())
	}
}

func (a *Aggregator) progress(log *logger.Logger, rep *Report, completed int) {
	elapsed := a.now().Sub(rep.Started)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(completed) / elapsed.Seconds()
	}
	eta := "unknown"
	if rate > 0 {
		eta = (time.Duration(float64(rep.Submitted-completed)/rate) * time.Second).Round(time.Second).String()
	}
	log.Info("progress",
		"done", fmt.Sprintf("%d/%d", completed, rep.Submitted),
		"ok", rep.Succeeded,
		"fail", rep.Failed(),
		"rate_per_min", fmt.Sprintf("%.1f", rate*60),
		"eta", eta,
	)
}
