package cli

import (
	"context"
	stderrors "errors"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/run"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitRunFailed   = 3
	ExitInterrupted = 130
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, context.Canceled):
		return ExitInterrupted
	case stderrors.Is(err, run.ErrRunFailed):
		return ExitRunFailed
	case errors.IsValidation(err), errors.IsCode(err, errors.CodeInsufficientObjects):
		return ExitConfig
	default:
		return ExitFailure
	}
}
