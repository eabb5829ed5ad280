package model

import (
	"encoding/json"
	"time"
)

// RunStatus tracks a run through its lifecycle. The states mirror the
// worker protocol: a run is created PENDING, acknowledged RECEIVED,
// executed STARTED, and ends in exactly one terminal state.
type RunStatus string

const (
	RunStatusPending  RunStatus = "PENDING"
	RunStatusReceived RunStatus = "RECEIVED"
	RunStatusStarted  RunStatus = "STARTED"
	RunStatusSuccess  RunStatus = "SUCCESS"
	RunStatusFailure  RunStatus = "FAILURE"
	RunStatusRevoked  RunStatus = "REVOKED"
)

// Terminal reports whether the status is final. A run's FinishedAt is set
// if and only if its status is terminal.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailure, RunStatusRevoked:
		return true
	}
	return false
}

// Running reports whether the run is still in flight.
func (s RunStatus) Running() bool {
	return !s.Terminal()
}

// Run is a single execution of a job. Input is immutable after creation;
// Result is overwritten wholesale on every checkpoint, never patched.
type Run struct {
	ID        string          `json:"id"`
	JobType   string          `json:"job_type"`
	Status    RunStatus       `json:"status"`
	Input     json.RawMessage `json:"input"`
	InputFile string          `json:"input_file,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`

	LogPath    string `json:"log_path,omitempty"`
	ResultPath string `json:"result_path,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns the run's wall-clock duration, or zero while it has
// not both started and finished.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}
