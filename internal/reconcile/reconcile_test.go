package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscheck/ledger-cli/internal/ledger"
	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/snapshot"
)

var today = model.NewDate(2026, time.March, 10)

func testOptions(t *testing.T) Options {
	t.Helper()
	region, err := snapshot.NewRegion("Berlin", "Berlin", 52.33, 13.07, 52.68, 13.78)
	require.NoError(t, err)
	return Options{IDPrefix: "DE-BE", Region: region, Today: today}
}

func newBook(t *testing.T, locs ...*model.Location) *ledger.Book {
	t.Helper()
	dir := t.TempDir()
	book, err := ledger.Open(context.Background(), ledger.Paths{
		Locations: filepath.Join(dir, "locations.csv"),
		Checks:    filepath.Join(dir, "checks.csv"),
	})
	require.NoError(t, err)
	for _, l := range locs {
		require.NoError(t, book.Locations.Insert(l))
	}
	return book
}

func raw(osmType, osmID, name string) model.RawLocation {
	return model.RawLocation{
		OSMType: osmType, OSMID: osmID, Name: name,
		Category: "cafe", City: "Berlin",
		Lat: "52.5", Lon: "13.4",
		OSMURL: snapshot.OSMURL(osmType, osmID),
	}
}

func curated() *model.Location {
	return &model.Location{
		LocationID:             "DE-BE-00007",
		OSMType:                "node",
		OSMID:                  "100",
		Name:                   "Old Name",
		Category:               "cafe",
		City:                   "Berlin",
		BTCMapURL:              "https://www.openstreetmap.org/node/100",
		Lat:                    model.NewCoordinate(52.5),
		Lon:                    model.NewCoordinate(13.4),
		LastVerifiedAt:         model.NewDate(2025, time.December, 1),
		VerifiedByCount:        4,
		VerificationConfidence: model.ConfidenceHigh,
		BountyBaseSats:         10000,
		NewLocationStatus:      model.NewLocationConfirmed,
		LastCheckID:            "ISSUE-12",
		LastUpdatedAt:          model.NewDate(2025, time.December, 1),
		CooldownUntil:          model.NewDate(2026, time.March, 1),
	}
}

func TestApply_UpdatesDescriptiveFieldsOnly(t *testing.T) {
	loc := curated()
	book := newBook(t, loc)

	row := raw("NODE", " 100 ", "New Name")
	row.Website = "https://new.example"
	stats, err := New(testOptions(t)).Apply(book, &snapshot.Snapshot{Rows: []model.RawLocation{row}})
	require.NoError(t, err)

	assert.Equal(t, Stats{Matched: 1, Updated: 1}, stats)
	assert.Equal(t, "New Name", loc.Name)
	assert.Equal(t, "https://new.example", loc.Website)
	assert.Equal(t, "node", loc.OSMType)
	assert.True(t, today.Equal(loc.LastUpdatedAt))

	// Locally owned state untouched.
	assert.Equal(t, model.Count(4), loc.VerifiedByCount)
	assert.Equal(t, model.ConfidenceHigh, loc.VerificationConfidence)
	assert.Equal(t, model.NewLocationConfirmed, loc.NewLocationStatus)
	assert.Equal(t, "ISSUE-12", loc.LastCheckID)
	assert.Equal(t, model.Sats(10000), loc.BountyBaseSats)
	assert.Equal(t, "2025-12-01", loc.LastVerifiedAt.String())
	assert.Equal(t, "2026-03-01", loc.CooldownUntil.String())
}

func TestApply_Idempotent(t *testing.T) {
	book := newBook(t, curated())
	snap := &snapshot.Snapshot{Rows: []model.RawLocation{
		raw("node", "100", "Café Eins"),
		raw("way", "200", "Späti"),
	}}
	r := New(testOptions(t))

	first, err := r.Apply(book, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Updated)
	assert.Equal(t, 1, first.Added)

	before := make(map[string]model.Location)
	for _, l := range book.Locations.All() {
		before[l.LocationID] = *l
	}

	second, err := r.Apply(book, snap)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 2, second.Matched)

	for _, l := range book.Locations.All() {
		assert.Equal(t, before[l.LocationID], *l)
	}
}

func TestApply_NewLocation(t *testing.T) {
	book := newBook(t, curated())
	row := raw("way", "200", "Späti")
	row.SurveyDate = "2025-01-01"
	row.OSMURL = ""

	stats, err := New(testOptions(t)).Apply(book, &snapshot.Snapshot{Rows: []model.RawLocation{row}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 1, stats.Retained)

	loc, ok := book.Locations.Get("DE-BE-00008")
	require.True(t, ok)
	assert.Equal(t, "way", loc.OSMType)
	assert.Equal(t, "200", loc.OSMID)
	assert.Equal(t, "https://www.openstreetmap.org/way/200", loc.BTCMapURL)
	assert.Equal(t, model.ConfidenceLow, loc.VerificationConfidence)
	assert.Equal(t, model.NewLocationNone, loc.NewLocationStatus)
	assert.Equal(t, model.Count(0), loc.VerifiedByCount)
	assert.True(t, loc.LastVerifiedAt.IsZero())
	assert.Equal(t, model.Sats(17000), loc.BountyBaseSats)
	assert.Equal(t, model.Sats(21000), loc.BountyCriticalSats)
	assert.Equal(t, model.Sats(21000), loc.BountyNewEntrySats)
	assert.True(t, bool(loc.EligibleNow))
	assert.True(t, bool(loc.EligibleForCheck))
	assert.True(t, today.Equal(loc.LastUpdatedAt))
}

func TestApply_IDsStableAndMonotonic(t *testing.T) {
	book := newBook(t,
		&model.Location{LocationID: "DE-BE-00003", OSMType: "node", OSMID: "3"},
		&model.Location{LocationID: "DE-BE-00009", Name: "manual entry"},
	)
	snap := &snapshot.Snapshot{Rows: []model.RawLocation{
		raw("node", "3", "three"),
		raw("node", "10", "ten"),
		raw("node", "11", "eleven"),
	}}

	_, err := New(testOptions(t)).Apply(book, snap)
	require.NoError(t, err)

	loc, _ := book.Locations.Get("DE-BE-00003")
	assert.Equal(t, "three", loc.Name)
	ten, _ := book.Locations.Get("DE-BE-00010")
	assert.Equal(t, "ten", ten.Name)
	eleven, _ := book.Locations.Get("DE-BE-00011")
	assert.Equal(t, "eleven", eleven.Name)

	// A later run with the same rows reuses the same ids.
	_, err = New(testOptions(t)).Apply(book, snap)
	require.NoError(t, err)
	assert.Equal(t, 4, book.Locations.Len())
}

func TestApply_NeverDeletes(t *testing.T) {
	book := newBook(t,
		curated(),
		&model.Location{LocationID: "DE-BE-00001", Name: "community submitted", NewLocationStatus: model.NewLocationPending},
	)
	stats, err := New(testOptions(t)).Apply(book, &snapshot.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Retained)
	assert.Equal(t, 2, book.Locations.Len())
}

func TestApply_SkipsBadRows(t *testing.T) {
	book := newBook(t)
	snap := &snapshot.Snapshot{Rows: []model.RawLocation{
		raw("", "5", "no type"),
		raw("node", "", "no id"),
		raw("node", "6", "first"),
		raw("Node", "6", "second"),
	}}
	stats, err := New(testOptions(t)).Apply(book, snap)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NoKey)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.Added)

	loc, _ := book.Locations.Get("DE-BE-00001")
	assert.Equal(t, "first", loc.Name)
}

func TestApply_Coordinates(t *testing.T) {
	book := newBook(t)
	garbage := raw("node", "1", "garbage")
	garbage.Lat = "fifty-two"
	offGlobe := raw("node", "2", "off globe")
	offGlobe.Lat = "152.5"
	munich := raw("node", "3", "munich")
	munich.Lat, munich.Lon = "48.137", "11.575"
	noCity := raw("node", "4", "no city")
	noCity.City = ""

	_, err := New(testOptions(t)).Apply(book, &snapshot.Snapshot{Rows: []model.RawLocation{garbage, offGlobe, munich, noCity}})
	require.NoError(t, err)

	for _, id := range []string{"DE-BE-00001", "DE-BE-00002"} {
		loc, _ := book.Locations.Get(id)
		assert.False(t, loc.Lat.Valid, id)
		assert.False(t, loc.Lon.Valid, id)
	}
	loc, _ := book.Locations.Get("DE-BE-00003")
	assert.Equal(t, "48.137", loc.Lat.String(), "out-of-region coordinates are kept")

	loc, _ = book.Locations.Get("DE-BE-00004")
	assert.Equal(t, "Berlin", loc.City)
}
