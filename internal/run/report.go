package run

import (
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/worker/pool"
)

// ErrRunFailed is returned when samples were submitted and none succeeded
// while none were already committed either.
var ErrRunFailed = stderrors.New("run failed: no sample succeeded")

// Failure describes one sample that did not commit.
type Failure struct {
	SampleID  string      `json:"sample_id"`
	Reason    errors.Code `json:"reason"`
	Transient bool        `json:"transient"`
	Attempts  int         `json:"attempts"`
	Message   string      `json:"message,omitempty"`
}

// Report summarises a run. Skipped covers samples found committed before
// or during the run; they are never submitted twice.
type Report struct {
	RunID              string    `json:"run_id"`
	Total              int       `json:"total"`
	Submitted          int       `json:"submitted"`
	Skipped            int       `json:"skipped"`
	Succeeded          int       `json:"succeeded"`
	FailedTransient    int       `json:"failed_transient"`
	FailedNonTransient int       `json:"failed_non_transient"`
	Canceled           int       `json:"canceled"`
	Failures           []Failure `json:"failures"`
	Started            time.Time `json:"started"`
	Finished           time.Time `json:"finished"`
}

// Failed is the number of samples that ended in failure.
func (r *Report) Failed() int {
	return r.FailedTransient + r.FailedNonTransient
}

// Done is the number of samples with a terminal status.
func (r *Report) Done() int {
	return r.Skipped + r.Succeeded + r.Failed() + r.Canceled
}

func (r *Report) String() string {
	return fmt.Sprintf("run %s: %d total, %d submitted, %d succeeded, %d skipped, %d failed (%d transient), %d canceled in %s",
		r.RunID, r.Total, r.Submitted, r.Succeeded, r.Skipped, r.Failed(), r.FailedTransient, r.Canceled,
		r.Finished.Sub(r.Started).Round(time.Millisecond))
}

func (r *Report) add(o pool.Outcome) {
	switch o.Status {
	case pool.StatusSucceeded:
		r.Succeeded++
	case pool.StatusSkipped:
		r.Skipped++
	case pool.StatusCanceled:
		r.Canceled++
	case pool.StatusFailed:
		if o.Transient {
			r.FailedTransient++
		} else {
			r.FailedNonTransient++
		}
		f := Failure{
			SampleID:  o.SampleID(),
			Reason:    o.Reason,
			Transient: o.Transient,
			Attempts:  o.Attempts,
		}
		if o.Err != nil {
			f.Message = o.Err.Error()
		}
		r.Failures = append(r.Failures, f)
	}
}

func (r *Report) finish(at time.Time) {
	r.Finished = at
	sort.Slice(r.Failures, func(i, j int) bool {
		return r.Failures[i].SampleID < r.Failures[j].SampleID
	})
}

// failed reports whether the run produced nothing at all.
func (r *Report) failed() bool {
	return r.Submitted > 0 && r.Succeeded == 0 && r.Skipped == 0
}
