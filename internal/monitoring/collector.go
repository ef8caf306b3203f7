package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/store"
)

// historyLimit bounds how many recent runs a collection reads.
const historyLimit = 1000

// ledgerCommands are the runs that refresh the location ledger from upstream.
var ledgerCommands = []string{"sync", "reconcile"}

// MetricsSnapshot holds a point-in-time view of ledger job health.
type MetricsSnapshot struct {
	// Runs started within the lookback window.
	Total    int     `json:"total"`
	Complete int     `json:"complete"`
	Failed   int     `json:"failed"`
	Running  int     `json:"running"`
	FailRate float64 `json:"fail_rate"`

	FailedByCommand map[string]int `json:"failed_by_command,omitempty"`

	// LastLedgerRefresh is the completion time of the newest successful
	// sync or reconcile, in or out of the window. Nil when there is none.
	LastLedgerRefresh *time.Time `json:"last_ledger_refresh,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run history store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		FailedByCommand: map[string]int{},
		LookbackHours:   lookbackHours,
		CollectedAt:     now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Newest first.
	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: historyLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.Status == model.RunStatusComplete && r.CompletedAt != nil && isLedgerCommand(r.Command) {
			if snap.LastLedgerRefresh == nil || r.CompletedAt.After(*snap.LastLedgerRefresh) {
				done := r.CompletedAt.UTC()
				snap.LastLedgerRefresh = &done
			}
		}
		if r.StartedAt.Before(cutoff) {
			continue
		}

		snap.Total++
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
		case model.RunStatusFailed:
			snap.Failed++
			snap.FailedByCommand[r.Command]++
		case model.RunStatusRunning:
			snap.Running++
		}
	}

	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}

func isLedgerCommand(cmd string) bool {
	for _, c := range ledgerCommands {
		if c == cmd {
			return true
		}
	}
	return false
}
