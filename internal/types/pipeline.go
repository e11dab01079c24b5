package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// RunStatus is the lifecycle state of one daily pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// PipelineRun records one execution of the daily pipeline for a
// (date, market) pair. At most one run exists per pair; re-running the same
// day is refused unless explicitly forced.
type PipelineRun struct {
	RunID      string                     `json:"run_id"`
	Date       time.Time                  `json:"date"`
	Market     Market                     `json:"market"`
	Status     RunStatus                  `json:"status"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt optional.Option[time.Time] `json:"finished_at"`
	// Detail carries a human-readable outcome, such as the failure message
	// or per-stage counts.
	Detail string `json:"detail"`
}
