package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscheck/ledger-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumns = []string{"id", "command", "status", "stats", "error", "started_at", "completed_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StartRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs \(id, command, status, started_at\)`).
		WithArgs(pgxmock.AnyArg(), "sync", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.StartRun(context.Background(), "sync")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "sync", run.Command)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, stats = \$2, error = \$3, completed_at = \$4 WHERE id = \$5`).
		WithArgs("failed", pgxmock.AnyArg(), "boom", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishRun(context.Background(), "run-1", map[string]int{"appended": 0}, eris.New("boom"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs`).
		WithArgs("complete", pgxmock.AnyArg(), "", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Second)

	mock.ExpectQuery(`SELECT id, command, status, stats, error, started_at, completed_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", "cooldown", model.RunStatusComplete, []byte(`{"changed":4}`), "", started, &completed))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "cooldown", run.Command)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, map[string]int{"changed": 4}, run.Stats)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, completed, *run.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, command, status, stats, error, started_at, completed_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM runs WHERE true AND command = \$1 AND status = \$2 ORDER BY started_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("sync", "complete", 5, 10).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-2", "sync", model.RunStatusComplete, []byte(`{}`), "", started, &started))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Command: "sync", Status: model.RunStatusComplete, Limit: 5, Offset: 10,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordChecks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"run_checks"}, runCheckColumns).WillReturnResult(1)

	err := s.RecordChecks(context.Background(), "run-1", []*model.Check{
		{CheckID: "ISSUE-7", LocationID: "DE-BE-00003", CheckType: model.CheckTypeBase, FinalBountySats: 20400, PaidStatus: model.PaidPending},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordChecks_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.RecordChecks(context.Background(), "run-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRunChecks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM run_checks WHERE run_id = \$1 ORDER BY check_id`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runCheckColumns).
			AddRow("run-1", "ISSUE-7", "DE-BE-00003", model.CheckTypeBase, 20400, model.PaidPending))

	got, err := s.ListRunChecks(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 20400, got[0].FinalBountySats)
	assert.Equal(t, model.PaidPending, got[0].PaidStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
