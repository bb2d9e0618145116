// Package pool dispatches sample requests to a bounded set of workers and
// applies the render retry policy.
package pool

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/scene"
	"scenegen/internal/worker/assembler"
	"scenegen/internal/worker/renderer"
)

// Pipeline is the per-sample work a pool runs.
type Pipeline interface {
	Committed(req scene.SampleRequest) bool
	Configure(ctx context.Context, req scene.SampleRequest) (scene.Spec, error)
	Render(ctx context.Context, spec scene.Spec, timeout time.Duration) renderer.Result
	Commit(ctx context.Context, req scene.SampleRequest, spec scene.Spec, res renderer.Result) (assembler.Artifact, error)
}

type Config struct {
	MaxWorkers    int
	RenderTimeout time.Duration
	Retry         RetryPolicy
	// OnOutcome, if set, sees every outcome before it is sent. It may be
	// called from several goroutines at once.
	OnOutcome func(Outcome)
}

// Pool is safe to share between concurrent Run calls; the renderer
// semaphore is pool-wide.
type Pool struct {
	cfg      Config
	pipeline Pipeline
	renders  *semaphore.Weighted
	log      *logger.Logger
}

func New(cfg Config, p Pipeline, log *logger.Logger) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Pool{
		cfg:      cfg,
		pipeline: p,
		renders:  semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		log:      log.WithComponent("pool"),
	}
}

// Run submits every request and returns a channel that yields one outcome
// per request, in completion order, then closes.
func (p *Pool) Run(ctx context.Context, reqs []scene.SampleRequest) <-chan Outcome {
	in := make(chan scene.SampleRequest)
	go func() {
		defer close(in)
		for _, r := range reqs {
			in <- r
		}
	}()
	return p.RunStream(ctx, in)
}

// RunStream is Run for a request source of unknown length. The caller
// must close in; after ctx is canceled the remaining requests are drained
// and reported as canceled.
func (p *Pool) RunStream(ctx context.Context, in <-chan scene.SampleRequest) <-chan Outcome {
	out := make(chan Outcome, p.cfg.MaxWorkers)

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(p.cfg.MaxWorkers)

		emit := func(o Outcome) {
			if p.cfg.OnOutcome != nil {
				p.cfg.OnOutcome(o)
			}
			out <- o
		}

		for req := range in {
			if ctx.Err() != nil {
				emit(canceled(req, 0, ctx.Err()))
				continue
			}
			g.Go(func() error {
				emit(p.process(ctx, req))
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (p *Pool) process(ctx context.Context, req scene.SampleRequest) Outcome {
	start := time.Now()
	o := p.runPipeline(ctx, req)
	o.Duration = time.Since(start)
	return o
}

func (p *Pool) runPipeline(ctx context.Context, req scene.SampleRequest) Outcome {
	log := p.log.WithSampleID(req.ID())

	if ctx.Err() != nil {
		return canceled(req, 0, ctx.Err())
	}
	if p.pipeline.Committed(req) {
		return Outcome{Request: req, Status: StatusSkipped}
	}

	spec, err := p.pipeline.Configure(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return canceled(req, 0, err)
		}
		return failed(req, 0, err)
	}
	digest, err := spec.Digest()
	if err != nil {
		return failed(req, 0, errors.WrapWithCode(err, errors.CodeValidation, "pool.digest", "scene is not serialisable"))
	}

	// Transient and malformed failures draw on separate retry budgets.
	var transientFails, malformedFails int
	for attempt := 1; ; attempt++ {
		if err := p.renders.Acquire(ctx, 1); err != nil {
			return canceled(req, attempt-1, err)
		}
		res := p.pipeline.Render(ctx, spec, p.cfg.RenderTimeout)
		p.renders.Release(1)

		if res.Status == renderer.StatusSuccess {
			art, err := p.pipeline.Commit(ctx, req, spec, res)
			_ = res.Release()
			switch {
			case err == nil:
				return Outcome{Request: req, Status: StatusSucceeded, Attempts: attempt, Artifact: art, Digest: digest}
			case ctx.Err() != nil:
				return canceled(req, attempt, err)
			default:
				o := failed(req, attempt, err)
				o.Digest = digest
				return o
			}
		}
		_ = res.Release()

		if res.Status == renderer.StatusCanceled {
			return canceled(req, attempt, res.Err())
		}
		code := res.Code()
		var fails int
		switch code {
		case errors.CodeRenderMalformed:
			malformedFails++
			fails = malformedFails
		default:
			transientFails++
			fails = transientFails
		}
		if !p.cfg.Retry.Retry(code, fails) {
			o := failed(req, attempt, res.Err())
			o.Digest = digest
			return o
		}

		delay := p.cfg.Retry.Backoff * time.Duration(attempt)
		log.Warn("render failed, retrying",
			"reason", string(code),
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
		)
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return canceled(req, attempt, ctx.Err())
			case <-t.C:
			}
		}
	}
}

func failed(req scene.SampleRequest, attempts int, err error) Outcome {
	code := errors.GetCode(err)
	if code == errors.CodeCanceled {
		return canceled(req, attempts, err)
	}
	return Outcome{
		Request:   req,
		Status:    StatusFailed,
		Reason:    code,
		Transient: errors.IsTransient(code),
		Attempts:  attempts,
		Err:       err,
	}
}

func canceled(req scene.SampleRequest, attempts int, err error) Outcome {
	return Outcome{Request: req, Status: StatusCanceled, Reason: errors.CodeCanceled, Attempts: attempts, Err: err}
}
