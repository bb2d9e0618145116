package renderer

import (
	"os"
	"time"

	"scenegen/internal/pkg/errors"
)

// Status classifies how a renderer invocation ended.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusTimeout   Status = "timeout"
	StatusCrash     Status = "crash"
	StatusMalformed Status = "malformed"
	StatusCanceled  Status = "canceled"
)

// Result is the terminal outcome of one invocation. A retry produces a new
// Result; this one is never updated.
type Result struct {
	Status Status
	// FramePaths are ordered by frame index; set only on success.
	FramePaths    []string
	StderrExcerpt string
	ExitCode      int
	WorkDir       string
	Duration      time.Duration
	// Detail says why a non-success status was chosen.
	Detail string

	keep bool
}

// Code maps the status onto the pipeline error taxonomy.
func (r Result) Code() errors.Code {
	switch r.Status {
	case StatusTimeout:
		return errors.CodeRenderTimeout
	case StatusCrash:
		return errors.CodeRenderCrash
	case StatusMalformed:
		return errors.CodeRenderMalformed
	case StatusCanceled:
		return errors.CodeCanceled
	default:
		return ""
	}
}

// Err returns nil on success, otherwise a coded error carrying the detail
// and the stderr excerpt.
func (r Result) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	e := errors.New(r.Code(), r.Detail).WithField("exit_code", r.ExitCode)
	e.Op = "renderer.invoke"
	if r.StderrExcerpt != "" {
		e.WithField("stderr", r.StderrExcerpt)
	}
	return e
}

// Release removes the work directory unless the adapter keeps them.
func (r Result) Release() error {
	if r.WorkDir == "" || r.keep {
		return nil
	}
	return os.RemoveAll(r.WorkDir)
}
