// Package shutdown coordinates signal handling and ordered cleanup for the
// scenegen commands.
//
// The first SIGINT/SIGTERM cancels Context(), which stops sample admission
// and kills in-flight renderer process groups. Registered cleanup handlers
// (ledger, redis, http server) then run in reverse registration order under
// a shared deadline.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"scenegen/internal/pkg/logger"
)

// Manager handles graceful shutdown of a command.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	handlers []Handler
	mu       sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	err    error
}

// Handler is a named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a new shutdown manager. A zero timeout means 30s.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup handler.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple adds a cleanup handler that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(ctx context.Context) error {
		cleanup()
		return nil
	})
}

// Context is canceled on the first shutdown signal or when Shutdown starts.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Listen cancels Context() on the first SIGINT/SIGTERM and returns
// immediately. A second signal exits the process with status 130.
func (m *Manager) Listen() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			m.log.Info("shutdown signal received, stopping admission", "signal", sig.String())
			m.cancel()
		case <-m.done:
			signal.Stop(sigChan)
			return
		}
		select {
		case sig := <-sigChan:
			m.log.Warn("second signal received, exiting", "signal", sig.String())
			os.Exit(130)
		case <-m.done:
			signal.Stop(sigChan)
		}
	}()
}

// Wait blocks until a shutdown signal arrives or ctx ends, then runs cleanup.
func (m *Manager) Wait(ctx context.Context) error {
	m.Listen()
	select {
	case <-m.ctx.Done():
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	}
	return m.Shutdown()
}

// Shutdown cancels Context() and runs the handlers in LIFO order. Only the
// first call does work; later calls return the same result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.cancel()
		m.err = m.runHandlers()
		close(m.done)
	})
	return m.err
}

// Done is closed once Shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) runHandlers() error {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if ctx.Err() != nil {
			m.log.Warn("shutdown timeout exceeded, skipping handler", "name", h.Name)
			errs = append(errs, ctx.Err())
			continue
		}

		start := time.Now()
		if err := runWithDeadline(ctx, h); err != nil {
			m.log.Error("shutdown handler failed",
				"name", h.Name,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			errs = append(errs, err)
			continue
		}
		m.log.Debug("shutdown handler completed",
			"name", h.Name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if len(errs) == 0 {
		m.log.Info("graceful shutdown completed")
	}
	return errors.Join(errs...)
}

// runWithDeadline stops waiting for a handler that ignores ctx once the
// shared deadline passes.
func runWithDeadline(ctx context.Context, h Handler) error {
	res := make(chan error, 1)
	go func() { res <- h.Cleanup(ctx) }()
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
