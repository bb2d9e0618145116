package run

import (
	"context"
	"strings"

	"scenegen/internal/config"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/resolver"
	"scenegen/internal/scene"
	"scenegen/internal/storage"
	"scenegen/internal/worker/assembler"
	"scenegen/internal/worker/encoder"
	"scenegen/internal/worker/processor"
	"scenegen/internal/worker/renderer"
)

// Stack is the per-host pipeline assembled from configuration.
type Stack struct {
	Resolver  *resolver.Resolver
	Renderer  *renderer.Adapter
	Assembler *assembler.Assembler
	Processor *processor.Processor
}

// NewOutputs builds the assembler for cfg's output root. It is enough for
// Enqueue, which only checks what is committed.
func NewOutputs(cfg config.Run, log *logger.Logger) (*assembler.Assembler, error) {
	enc := encoder.NewFFmpeg(cfg.Encoder.Binary, log)
	if cfg.Encoder.CRF > 0 {
		enc.CRF = cfg.Encoder.CRF
	}
	if cfg.Encoder.Preset != "" {
		enc.Preset = cfg.Encoder.Preset
	}
	return assembler.New(assembler.Config{
		OutputRoot:    cfg.OutputRoot,
		WriteMetadata: cfg.WriteMetadata,
		StaleAfter:    cfg.StaleAfter,
	}, enc, log)
}

// NewStack wires the asset store, resolver, renderer, encoder and
// assembler into a processor. The renderer binary is discovered when cfg
// does not name one.
func NewStack(ctx context.Context, cfg config.Run, log *logger.Logger) (*Stack, error) {
	if log == nil {
		log = logger.NewDefault()
	}

	var store storage.Provider
	if cfg.Store.Provider != "" || strings.TrimSpace(cfg.Store.LocalRoot) != "" {
		s, err := storage.NewProvider(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		store = s
	}
	res, err := resolver.New(resolver.Config{
		CacheDir:      cfg.Cache.Dir,
		KeyTemplate:   cfg.Cache.KeyTemplate,
		FetchAttempts: cfg.Cache.FetchAttempts,
	}, resolver.Deps{Store: store, Log: log})
	if err != nil {
		return nil, err
	}

	bin, err := renderer.Discover(cfg.Renderer.Binary)
	if err != nil {
		return nil, err
	}
	rend, err := renderer.New(renderer.Config{
		Binary:       bin,
		Args:         cfg.Renderer.Args,
		Env:          cfg.Renderer.Env,
		WorkRoot:     cfg.Renderer.WorkRoot,
		KeepWorkDirs: cfg.Renderer.KeepWorkDirs,
	}, log)
	if err != nil {
		return nil, err
	}

	asm, err := NewOutputs(cfg, log)
	if err != nil {
		return nil, err
	}

	return &Stack{
		Resolver:  res,
		Renderer:  rend,
		Assembler: asm,
		Processor: processor.New(processor.Deps{
			Scenes:    scene.NewConfigurator(res),
			Renderer:  rend,
			Assembler: asm,
			Log:       log,
		}),
	}, nil
}
