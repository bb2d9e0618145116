package worker

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenegen/internal/ledger"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/scene"
	"scenegen/internal/task"
	"scenegen/internal/worker/assembler"
	"scenegen/internal/worker/pool"
	"scenegen/internal/worker/processor"
	"scenegen/internal/worker/queue"
	"scenegen/internal/worker/renderer"
)

type fakeSource struct {
	mu       sync.Mutex
	payloads [][]byte
	errs     []error
}

func (f *fakeSource) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.payloads) > 0 {
		p := f.payloads[0]
		f.payloads = f.payloads[1:]
		f.mu.Unlock()
		return p, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, queue.ErrEmpty
	}
}

// okPipeline succeeds for every sample except those listed in fail.
type okPipeline struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (p *okPipeline) Committed(scene.SampleRequest) bool { return false }

func (p *okPipeline) Configure(_ context.Context, req scene.SampleRequest) (scene.Spec, error) {
	p.mu.Lock()
	p.seen = append(p.seen, req.ID())
	p.mu.Unlock()
	return scene.Spec{Kind: req.Kind, SampleID: req.ID(), FrameCount: req.FrameCount()}, nil
}

func (p *okPipeline) Render(_ context.Context, spec scene.Spec, _ time.Duration) renderer.Result {
	if p.fail[spec.SampleID] {
		return renderer.Result{Status: renderer.StatusCrash, Detail: "scripted crash"}
	}
	return renderer.Result{Status: renderer.StatusSuccess}
}

func (p *okPipeline) Commit(context.Context, scene.SampleRequest, scene.Spec, renderer.Result) (assembler.Artifact, error) {
	return assembler.Artifact{}, nil
}

func payload(t *testing.T, index int) []byte {
	t.Helper()
	b, err := processor.EncodeRequest(scene.SampleRequest{
		Kind:       task.ShapeExtrapolation,
		Index:      index,
		Seed:       42,
		Resolution: 64,
		FPS:        16,
		Duration:   4,
		Objects:    []string{"uid1"},
		Params:     task.DefaultParams(task.ShapeExtrapolation),
	})
	require.NoError(t, err)
	return b
}

func TestRunProcessesQueue(t *testing.T) {
	db, err := ledger.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := &fakeSource{
		errs: []error{queue.ErrEmpty},
		payloads: [][]byte{
			payload(t, 0),
			[]byte(`{"kind":"spin"}`),
			payload(t, 1),
			payload(t, 2),
		},
	}
	pipe := &okPipeline{fail: map[string]bool{"shape_extrapolation_000002": true}}

	var (
		mu       sync.Mutex
		outcomes []pool.Outcome
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Deps{
			Source:   src,
			Pipeline: pipe,
			Pool: pool.Config{
				MaxWorkers:    2,
				RenderTimeout: time.Second,
				Retry:         pool.RetryPolicy{TransientRetries: 1},
				OnOutcome: func(o pool.Outcome) {
					mu.Lock()
					outcomes = append(outcomes, o)
					mu.Unlock()
				},
			},
			Ledger:     db,
			Name:       "scenegen:test",
			PopTimeout: 10 * time.Millisecond,
			Log:        logger.Discard(),
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) == 3
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	pipe.mu.Lock()
	assert.ElementsMatch(t, []string{
		"shape_extrapolation_000000",
		"shape_extrapolation_000001",
		"shape_extrapolation_000002",
	}, pipe.seen, "the invalid payload is dropped")
	pipe.mu.Unlock()

	runs, err := db.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "scenegen:test", runs[0].Tasks)
	assert.Equal(t, 2, runs[0].Counts.Succeeded)
	assert.Equal(t, 1, runs[0].Counts.Failed)
	assert.NotNil(t, runs[0].FinishedAt)

	failures, err := db.Failures(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "shape_extrapolation_000002", failures[0].SampleID)
	assert.Equal(t, "RENDER_CRASH", failures[0].Reason)
	assert.Equal(t, 2, failures[0].Attempts)
}

func TestRunRetriesPopErrors(t *testing.T) {
	src := &fakeSource{
		errs:     []error{stderrors.New("connection reset")},
		payloads: [][]byte{payload(t, 7)},
	}
	pipe := &okPipeline{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan pool.Outcome, 1)

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Deps{
			Source:     src,
			Pipeline:   pipe,
			Pool:       pool.Config{MaxWorkers: 1, OnOutcome: func(o pool.Outcome) { got <- o }},
			PopTimeout: 10 * time.Millisecond,
			Log:        logger.Discard(),
		})
	}()

	select {
	case o := <-got:
		assert.Equal(t, pool.StatusSucceeded, o.Status)
		assert.Equal(t, "shape_extrapolation_000007", o.SampleID())
	case <-time.After(5 * time.Second):
		t.Fatal("request after a pop error was never processed")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
