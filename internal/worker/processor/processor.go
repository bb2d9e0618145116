// Package processor runs one sample through scene configuration, rendering
// and commit. It implements pool.Pipeline.
package processor

import (
	"context"
	"time"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/scene"
	"scenegen/internal/worker/assembler"
	"scenegen/internal/worker/renderer"
)

type SceneBuilder interface {
	Build(ctx context.Context, req scene.SampleRequest) (scene.Spec, error)
}

type Invoker interface {
	Invoke(ctx context.Context, spec scene.Spec, timeout time.Duration) renderer.Result
}

type Committer interface {
	Committed(req scene.SampleRequest) bool
	Commit(ctx context.Context, req scene.SampleRequest, spec scene.Spec, res renderer.Result) (assembler.Artifact, error)
}

type Deps struct {
	Scenes    SceneBuilder
	Renderer  Invoker
	Assembler Committer
	Log       *logger.Logger
}

type Processor struct {
	scenes    SceneBuilder
	renderer  Invoker
	assembler Committer
	log       *logger.Logger
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Processor{
		scenes:    d.Scenes,
		renderer:  d.Renderer,
		assembler: d.Assembler,
		log:       log.WithComponent("processor"),
	}
}

func (p *Processor) Committed(req scene.SampleRequest) bool {
	return p.assembler.Committed(req)
}

// Configure builds the scene, resolving its objects.
func (p *Processor) Configure(ctx context.Context, req scene.SampleRequest) (scene.Spec, error) {
	log := p.log.FromContext(ctx).WithSampleID(req.ID())

	spec, err := p.scenes.Build(ctx, req)
	if err != nil {
		return scene.Spec{}, p.fail(ctx, req.ID(), errors.Wrap(err, "processor.configure", "scene configuration failed"))
	}
	log.Debug("scene configured",
		"objects", len(spec.Objects),
		"frames", spec.FrameCount,
	)
	return spec, nil
}

func (p *Processor) Render(ctx context.Context, spec scene.Spec, timeout time.Duration) renderer.Result {
	log := p.log.FromContext(ctx).WithSampleID(spec.SampleID)
	log.Debug("starting render", "timeout_s", timeout.Seconds())
	return p.renderer.Invoke(ctx, spec, timeout)
}

func (p *Processor) Commit(ctx context.Context, req scene.SampleRequest, spec scene.Spec, res renderer.Result) (assembler.Artifact, error) {
	art, err := p.assembler.Commit(ctx, req, spec, res)
	if err != nil {
		return assembler.Artifact{}, p.fail(ctx, spec.SampleID, errors.Wrap(err, "processor.commit", "commit failed"))
	}
	return art, nil
}

func (p *Processor) fail(ctx context.Context, sampleID string, cause error) error {
	log := p.log.FromContext(ctx).WithSampleID(sampleID)

	var e *errors.Error
	if errors.As(cause, &e) {
		log.Error("sample stage failed",
			"code", string(e.Code),
			"op", e.Op,
			"message", e.Error(),
		)
	} else {
		log.Error("sample stage failed", "error", cause.Error())
	}
	return cause
}
