package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscheck/ledger-cli/internal/model"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "berlin_raw.csv")
	rows := []model.RawLocation{
		{Name: "zebra bar", OSMType: "node", OSMID: "2", City: "Berlin", CheckDate: "2025-01-01"},
		{Name: "Apotheke", OSMType: "way", OSMID: "1", City: "Berlin", Street: "Hauptstr."},
	}
	require.NoError(t, Write(path, rows))

	snap, err := Read(context.Background(), path, NewAdapter(berlin(t)))
	require.NoError(t, err)
	assert.True(t, snap.HasDates)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "Apotheke", snap.Rows[0].Name, "sorted by lower-cased name")
	assert.Equal(t, "Hauptstr.", snap.Rows[0].Street)
	assert.Equal(t, "2025-01-01", snap.Rows[1].CheckDate)

	byKey := snap.ByKey()
	assert.Len(t, byKey["node:2"], 1)
}

func TestRead_MissingJoinKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,lat,lon\nX,52.5,13.4\n"), 0o644))

	_, err := Read(context.Background(), path, NewAdapter(berlin(t)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJoinKey))
}

func TestRead_HeaderOnlyWithAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(path, []byte("type,id,name\n"), 0o644))

	snap, err := Read(context.Background(), path, NewAdapter(berlin(t)))
	require.NoError(t, err)
	assert.Empty(t, snap.Rows)
	assert.False(t, snap.HasDates)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), NewAdapter(berlin(t)))
	assert.Error(t, err)
}

func TestSnapshot_ByKeySkipsUnkeyed(t *testing.T) {
	snap := &Snapshot{Rows: []model.RawLocation{
		{OSMType: "node", OSMID: "1"},
		{OSMType: "node"},
		{OSMType: "NODE", OSMID: "1"},
	}}
	byKey := snap.ByKey()
	assert.Len(t, byKey, 1)
	assert.Len(t, byKey["node:1"], 2)
}

func TestETag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	assert.Equal(t, "", ReadETag(path))

	require.NoError(t, os.WriteFile(path, []byte("osm_type,osm_id\n"), 0o644))
	require.NoError(t, WriteETag(path, `W/"abc"`))
	assert.Equal(t, `W/"abc"`, ReadETag(path))

	require.NoError(t, WriteETag(path, ""))
	assert.Equal(t, "", ReadETag(path))
}
