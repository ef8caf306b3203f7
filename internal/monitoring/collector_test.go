package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/store"
)

var collectedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// mockRuns implements RunLister for testing.
type mockRuns struct {
	runs    []model.Run
	listErr error
	filter  store.RunFilter
}

func (m *mockRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	m.filter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.runs, nil
}

func finishedRun(command string, status model.RunStatus, ago time.Duration) model.Run {
	started := collectedAt.Add(-ago)
	done := started.Add(time.Second)
	return model.Run{ID: command + ago.String(), Command: command, Status: status, StartedAt: started, CompletedAt: &done}
}

func newTestCollector(runs *mockRuns) *Collector {
	c := NewCollector(runs)
	c.now = func() time.Time { return collectedAt }
	return c
}

func TestCollector_Collect(t *testing.T) {
	runs := &mockRuns{runs: []model.Run{
		{ID: "r0", Command: "apply", Status: model.RunStatusRunning, StartedAt: collectedAt.Add(-time.Minute)},
		finishedRun("apply", model.RunStatusFailed, time.Hour),
		finishedRun("sync", model.RunStatusComplete, 2*time.Hour),
		finishedRun("cooldown", model.RunStatusComplete, 3*time.Hour),
		finishedRun("reconcile", model.RunStatusFailed, 4*time.Hour),
		// Outside a 24h window.
		finishedRun("sync", model.RunStatusFailed, 48*time.Hour),
	}}

	snap, err := newTestCollector(runs).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, historyLimit, runs.filter.Limit)
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 2, snap.Complete)
	assert.Equal(t, 2, snap.Failed)
	assert.Equal(t, 1, snap.Running)
	assert.InDelta(t, 0.5, snap.FailRate, 0.0001)
	assert.Equal(t, map[string]int{"apply": 1, "reconcile": 1}, snap.FailedByCommand)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, collectedAt, snap.CollectedAt)

	require.NotNil(t, snap.LastLedgerRefresh)
	assert.Equal(t, collectedAt.Add(-2*time.Hour+time.Second), *snap.LastLedgerRefresh)
}

func TestCollector_LedgerRefreshOutsideWindow(t *testing.T) {
	runs := &mockRuns{runs: []model.Run{
		finishedRun("cooldown", model.RunStatusComplete, time.Hour),
		finishedRun("reconcile", model.RunStatusComplete, 72*time.Hour),
	}}

	snap, err := newTestCollector(runs).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Total)
	require.NotNil(t, snap.LastLedgerRefresh)
	assert.Equal(t, collectedAt.Add(-72*time.Hour+time.Second), *snap.LastLedgerRefresh)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newTestCollector(&mockRuns{}).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Total)
	assert.Zero(t, snap.FailRate)
	assert.Nil(t, snap.LastLedgerRefresh)
}

func TestCollector_ListError(t *testing.T) {
	_, err := newTestCollector(&mockRuns{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
}
