package model

import "time"

// RunStatus is the state of a recorded job run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of a ledger job, kept in the run history store.
type Run struct {
	ID          string         `json:"id"`
	Command     string         `json:"command"`
	Status      RunStatus      `json:"status"`
	Stats       map[string]int `json:"stats,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
