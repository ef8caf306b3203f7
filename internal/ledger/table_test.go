package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscheck/ledger-cli/internal/model"
)

func TestNewTable_DuplicateKey(t *testing.T) {
	_, err := NewTable("locations", []*model.Location{
		{LocationID: "DE-BE-00001"},
		{LocationID: "DE-BE-00001"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
}

func TestTable_InsertAndGet(t *testing.T) {
	tbl, err := NewTable("checks", []*model.Check{{CheckID: "ISSUE-1"}})
	require.NoError(t, err)
	assert.False(t, tbl.Dirty())

	require.NoError(t, tbl.Insert(&model.Check{CheckID: "ISSUE-2"}))
	assert.True(t, tbl.Dirty())
	assert.Equal(t, 2, tbl.Len())

	got, ok := tbl.Get("ISSUE-2")
	require.True(t, ok)
	assert.Equal(t, "ISSUE-2", got.CheckID)

	err = tbl.Insert(&model.Check{CheckID: "ISSUE-1"})
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	err = tbl.Insert(&model.Check{})
	assert.Error(t, err)
}

func TestTable_KeepsUnkeyedRows(t *testing.T) {
	tbl, err := NewTable("locations", []*model.Location{{Name: "orphan"}, {LocationID: "X-1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"X-1"}, tbl.Keys())
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"DE-BE-00009", "DE-BE-00010", -1},
		{"ISSUE-9", "ISSUE-10", -1},
		{"ISSUE-10", "ISSUE-10", 0},
		{"DE-BE-00002", "DE-DUS-00001", -1},
		{"MANUAL", "MANUAL-1", -1},
		{"abc", "abd", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b))
		})
	}
}
