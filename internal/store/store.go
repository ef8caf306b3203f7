// Package store keeps the history of ledger job runs so operators can see
// what a scheduled run changed.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/satscheck/ledger-cli/internal/model"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Command string          `json:"command,omitempty"`
	Status  model.RunStatus `json:"status,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// RunCheck is a check appended by a run.
type RunCheck struct {
	RunID           string           `json:"run_id"`
	CheckID         string           `json:"check_id"`
	LocationID      string           `json:"location_id"`
	CheckType       model.CheckType  `json:"check_type"`
	FinalBountySats int              `json:"final_bounty_sats"`
	PaidStatus      model.PaidStatus `json:"paid_status"`
}

// Store defines the persistence interface for run history.
type Store interface {
	StartRun(ctx context.Context, command string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, stats map[string]int, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	RecordChecks(ctx context.Context, runID string, checks []*model.Check) error
	ListRunChecks(ctx context.Context, runID string) ([]RunCheck, error)

	Migrate(ctx context.Context) error
	Close() error
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func finishStatus(runErr error) (model.RunStatus, string) {
	if runErr != nil {
		return model.RunStatusFailed, runErr.Error()
	}
	return model.RunStatusComplete, ""
}
