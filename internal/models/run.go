package models

import "time"

// Run is one generation run as recorded in the ledger.
type Run struct {
	ID         string     `json:"id"`
	Tasks      string     `json:"tasks"`
	Total      int        `json:"total"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Counts     RunCounts  `json:"counts"`
}

// RunCounts are derived from the run's sample records.
type RunCounts struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// Add counts one sample status.
func (c *RunCounts) Add(status string, n int) {
	switch status {
	case "succeeded":
		c.Succeeded += n
	case "skipped":
		c.Skipped += n
	case "failed":
		c.Failed += n
	case "canceled":
		c.Canceled += n
	}
}

// Done is the number of samples with a terminal status.
func (c RunCounts) Done() int {
	return c.Succeeded + c.Skipped + c.Failed + c.Canceled
}

// SampleRecord is the ledger entry for one sample outcome. Re-recording the
// same (run, sample) pair replaces the entry.
type SampleRecord struct {
	RunID      string    `json:"run_id"`
	SampleID   string    `json:"sample_id"`
	Task       string    `json:"task"`
	Index      int       `json:"index"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Transient  bool      `json:"transient,omitempty"`
	Attempts   int       `json:"attempts"`
	Digest     string    `json:"digest,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
