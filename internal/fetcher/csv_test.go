package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCSV_HeaderAndBOM(t *testing.T) {
	in := "\ufeffname,osm_id\nCafé,1\nSpäti,2\n"
	headerCh := make(chan []string, 1)

	rows, err := drain[[]string](StreamCSV(context.Background(), strings.NewReader(in), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "osm_id"}, <-headerCh)
	assert.Equal(t, [][]string{{"Café", "1"}, {"Späti", "2"}}, rows)
}

func TestStreamCSV_TrimAndDelimiter(t *testing.T) {
	in := " a ; b \n 1 ;2\n"
	rows, err := drain[[]string](StreamCSV(context.Background(), strings.NewReader(in), CSVOptions{
		Delimiter: ';',
		TrimSpace: true,
	}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_Malformed(t *testing.T) {
	_, err := drain[[]string](StreamCSV(context.Background(), strings.NewReader("a,\"b\n"), CSVOptions{}))
	require.Error(t, err)
}

func TestStreamCSVRecords(t *testing.T) {
	in := "type,id,addr:street,extra\nnode,5,Hauptstr.\nway,6,,x,overflow\n"
	headerCh := make(chan []string, 1)

	recs, err := drain[Record](StreamCSVRecords(context.Background(), strings.NewReader(in), headerCh))
	require.NoError(t, err)
	assert.Equal(t, []string{"type", "id", "addr:street", "extra"}, <-headerCh)
	require.Len(t, recs, 2)

	assert.Equal(t, "Hauptstr.", recs[0].Get("street", "addr:street"))
	assert.Equal(t, "", recs[0]["extra"])
	assert.Equal(t, "x", recs[1].Get("extra"))
	assert.True(t, recs[1].Has("osm_type", "type"))
	assert.False(t, recs[1].Has("osm_type"))
}

func TestStreamCSVRecords_HeaderOnly(t *testing.T) {
	headerCh := make(chan []string, 1)
	recs, err := drain[Record](StreamCSVRecords(context.Background(), strings.NewReader("osm_type,osm_id\n"), headerCh))
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, []string{"osm_type", "osm_id"}, <-headerCh)
}
