package pool

import (
	"time"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/scene"
	"scenegen/internal/worker/assembler"
)

// Status is the terminal state of one submitted request.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Outcome is produced exactly once per submitted request.
type Outcome struct {
	Request  scene.SampleRequest
	Status   Status
	Reason   errors.Code
	// Transient is set on failures whose reason could clear on a later run.
	Transient bool
	Attempts  int
	Artifact  assembler.Artifact
	Digest    string
	Err       error
	Duration  time.Duration
}

// SampleID is the id of the outcome's request.
func (o Outcome) SampleID() string { return o.Request.ID() }

// RetryPolicy bounds re-renders of the identical scene.
type RetryPolicy struct {
	// TransientRetries applies to timeouts and crashes.
	TransientRetries int
	// MalformedRetries applies to renders with missing or bad frames.
	MalformedRetries int
	// Backoff is multiplied by the attempt number between attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy gives timeouts and crashes three attempts in total and
// malformed output two.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{TransientRetries: 2, MalformedRetries: 1, Backoff: 2 * time.Second}
}

// Retry reports whether a render that failed with code should run again,
// given failures, the number of failures of the same class so far
// including this one. Timeouts and crashes form one class, malformed
// output the other.
func (p RetryPolicy) Retry(code errors.Code, failures int) bool {
	switch code {
	case errors.CodeRenderTimeout, errors.CodeRenderCrash:
		return failures <= p.TransientRetries
	case errors.CodeRenderMalformed:
		return failures <= p.MalformedRetries
	default:
		return false
	}
}
