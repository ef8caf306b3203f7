package ledger

import (
	"errors"
	"testing"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscheck/ledger-cli/internal/model"
)

func TestSchema_MatchesRecordColumns(t *testing.T) {
	tests := []struct {
		table  string
		record any
	}{
		{TableLocations, model.Location{}},
		{TableChecks, model.Check{}},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			ts, err := Schema(tt.table)
			require.NoError(t, err)

			header, err := csvutil.Header(tt.record, "csv")
			require.NoError(t, err)
			assert.ElementsMatch(t, ts.Columns(), header)
			assert.Contains(t, header, ts.PrimaryKey)
		})
	}
}

func TestSchema_Unknown(t *testing.T) {
	_, err := Schema("payouts")
	require.Error(t, err)
}

func TestMigrate_CurrentHeader(t *testing.T) {
	ts, err := Schema(TableLocations)
	require.NoError(t, err)

	m, err := ts.Migrate(ts.Columns())
	require.NoError(t, err)
	assert.Equal(t, 4, m.FromVersion)
	assert.Equal(t, 4, m.ToVersion)
	assert.Empty(t, m.Added)
	assert.False(t, m.Changed())
}

func TestMigrate_ExtraColumnsAreNotAChange(t *testing.T) {
	ts, err := Schema(TableLocations)
	require.NoError(t, err)

	m, err := ts.Migrate(append(ts.Columns(), "notes"))
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, m.Unknown)
	assert.False(t, m.Changed())
}

func TestMigrate_VersionThreeHeader(t *testing.T) {
	ts, err := Schema(TableLocations)
	require.NoError(t, err)

	cols := ts.Columns()
	m, err := ts.Migrate(cols[:len(cols)-1])
	require.NoError(t, err)
	assert.Equal(t, 3, m.FromVersion)
	assert.Equal(t, []string{"location_status"}, m.Added)
	assert.True(t, m.Changed())
}

func TestMigrate_OldHeader(t *testing.T) {
	ts, err := Schema(TableLocations)
	require.NoError(t, err)

	v1 := ts.Versions[0].Added
	header := append(append([]string{}, v1...), "status_note_public")

	m, err := ts.Migrate(header)
	require.NoError(t, err)
	assert.Equal(t, 1, m.FromVersion)
	assert.Equal(t, 4, m.ToVersion)
	assert.Contains(t, m.Added, "new_location_status")
	assert.Contains(t, m.Added, "cooldown_until")
	assert.Equal(t, []string{"status_note_public"}, m.Unknown)
	assert.True(t, m.Changed())
}

func TestMigrate_MissingRequired(t *testing.T) {
	ts, err := Schema(TableChecks)
	require.NoError(t, err)

	_, err = ts.Migrate([]string{"check_id", "reviewed_at"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchema))
	assert.Contains(t, err.Error(), "location_id")
}

func TestMigrate_PartialFirstVersion(t *testing.T) {
	ts, err := Schema(TableLocations)
	require.NoError(t, err)

	m, err := ts.Migrate([]string{"location_id", "name"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.FromVersion)
	assert.Contains(t, m.Added, "osm_id")
}
