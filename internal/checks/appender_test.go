package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
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

func newBook(t *testing.T, locs ...*model.Location) (*ledger.Book, ledger.Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := ledger.Paths{
		Locations: filepath.Join(dir, "locations.csv"),
		Checks:    filepath.Join(dir, "checks.csv"),
	}
	book, err := ledger.Open(context.Background(), paths)
	require.NoError(t, err)
	book.IDPrefix = "DE-BE"
	for _, l := range locs {
		require.NoError(t, book.Locations.Insert(l))
	}
	return book, paths
}

func location(id string, last model.Date) *model.Location {
	l := &model.Location{
		LocationID:             id,
		OSMType:                "node",
		OSMID:                  "100",
		Name:                   "Café Satoshi",
		City:                   "Berlin",
		LastVerifiedAt:         last,
		VerificationConfidence: model.ConfidenceLow,
	}
	l.SetEligibility(true)
	return l
}

func newLocationSub(number int, name, osmType, osmID string) model.Submission {
	return model.Submission{
		Number:      number,
		Labels:      []string{"new-location"},
		SubmitterID: "bob",
		NewLocation: &model.NewLocation{
			Name: name, OSMType: osmType, OSMID: osmID,
			Lat: "52.52", Lon: "13.40",
		},
	}
}

func TestApply_EndToEndBaseCheck(t *testing.T) {
	loc := location("DE-BE-00001", today.AddDays(-400))
	book, _ := newBook(t, loc)

	// Two approved checks by alice in the last 90 days.
	for _, id := range []string{"ISSUE-1", "ISSUE-2"} {
		require.NoError(t, book.Checks.Insert(&model.Check{
			CheckID: id, LocationID: "DE-BE-00001", SubmitterID: "alice",
			ReviewStatus: model.ReviewApproved, ReviewedAt: today.AddDays(-30),
		}))
	}

	stats, err := New(testOptions(t)).Apply(book, []model.Submission{
		{Number: 10, LocationID: "DE-BE-00001", SubmitterID: "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Appended)

	chk, ok := book.Checks.Get("ISSUE-10")
	require.True(t, ok)
	assert.Equal(t, model.CheckTypeBase, chk.CheckType)
	// 400 days is 13 months since the last check: the 12-23 month tier of
	// 17000, times 1.2 for alice's two recent checks.
	assert.Equal(t, model.Sats(17000), chk.BaseBountySats)
	assert.Equal(t, "1.2", chk.ActivityFactor)
	assert.Equal(t, model.Sats(20400), chk.FinalBountySats)
	assert.Equal(t, model.PaidPending, chk.PaidStatus)
	assert.Equal(t, today, chk.ReviewedAt)
	assert.Equal(t, DefaultReviewer, chk.ReviewerID)

	assert.Equal(t, today, loc.LastVerifiedAt)
	assert.Equal(t, today.AddDays(90), loc.CooldownUntil)
	assert.Equal(t, model.Count(90), loc.CooldownDaysLeft)
	assert.Equal(t, model.YesNo(false), loc.EligibleNow)
	assert.Equal(t, model.YesNo(false), loc.EligibleForCheck)
	assert.Equal(t, "ISSUE-10", loc.LastCheckID)
	assert.Equal(t, model.Count(1), loc.VerifiedByCount)
	assert.Equal(t, model.ConfidenceMedium, loc.VerificationConfidence)
	assert.Equal(t, today, loc.LastUpdatedAt)
}

func TestApply_NeverVerifiedCriticalChange(t *testing.T) {
	book, _ := newBook(t, location("DE-BE-00001", model.Date{}))

	_, err := New(testOptions(t)).Apply(book, []model.Submission{
		{Number: 3, LocationID: "DE-BE-00001", SubmitterID: "carol", Labels: []string{"critical_change"}},
		{Number: 4, LocationID: "DE-BE-00001", SubmitterID: "dave", CheckType: "base", Labels: []string{"critical-change"}},
	})
	require.NoError(t, err)

	crit, ok := book.Checks.Get("ISSUE-3")
	require.True(t, ok)
	assert.Equal(t, model.CheckTypeCriticalChange, crit.CheckType)
	assert.Equal(t, model.Sats(21000), crit.BaseBountySats)
	assert.Equal(t, model.Sats(21000), crit.FinalBountySats)

	// Explicit check_type wins over the label; the location is now fresh.
	base, ok := book.Checks.Get("ISSUE-4")
	require.True(t, ok)
	assert.Equal(t, model.CheckTypeBase, base.CheckType)
	assert.Equal(t, model.Sats(10000), base.BaseBountySats)
}

func TestApply_ActivityCountsEarlierBatchChecks(t *testing.T) {
	var locs []*model.Location
	var subs []model.Submission
	for i := 1; i <= 6; i++ {
		l := location(ledger.FormatID("DE-BE", i), model.Date{})
		l.OSMID = strconv.Itoa(100 + i)
		locs = append(locs, l)
		subs = append(subs, model.Submission{Number: i, LocationID: l.LocationID, SubmitterID: "Alice"})
	}
	book, _ := newBook(t, locs...)

	_, err := New(testOptions(t)).Apply(book, subs)
	require.NoError(t, err)

	want := []model.Factor{10, 10, 12, 12, 12, 15}
	for i, f := range want {
		chk, ok := book.Checks.Get(fmt.Sprintf("ISSUE-%d", i+1))
		require.True(t, ok)
		assert.Equal(t, f.String(), chk.ActivityFactor, "check %d", i+1)
		assert.Equal(t, f.Apply(21000), chk.FinalBountySats, "check %d", i+1)
	}
}

func TestApply_BatchOrder(t *testing.T) {
	book, _ := newBook(t, location("DE-BE-00001", model.Date{}))

	_, err := New(testOptions(t)).Apply(book, []model.Submission{
		{Number: 9, LocationID: "DE-BE-00001"},
		{Number: 2, LocationID: "DE-BE-00001"},
	})
	require.NoError(t, err)

	loc, _ := book.Locations.Get("DE-BE-00001")
	assert.Equal(t, "ISSUE-9", loc.LastCheckID)

	first, _ := book.Checks.Get("ISSUE-2")
	second, _ := book.Checks.Get("ISSUE-9")
	assert.Equal(t, model.Sats(21000), first.BaseBountySats)
	assert.Equal(t, model.Sats(10000), second.BaseBountySats)
}

func TestApply_Skips(t *testing.T) {
	book, _ := newBook(t, location("DE-BE-00001", model.Date{}))
	require.NoError(t, book.Checks.Insert(&model.Check{CheckID: "ISSUE-1", LocationID: "DE-BE-00001"}))

	stats, err := New(testOptions(t)).Apply(book, []model.Submission{
		// already applied
		{Number: 1, LocationID: "DE-BE-00001"},
		{Number: 2, LocationID: "DE-BE-00001", ReviewStatus: model.ReviewRejected},
		// no location
		{Number: 3},
		{Number: 4, LocationID: "DE-BE-99999"},
		// no identifier
		{LocationID: "DE-BE-00001"},
		// new location without a name
		{Number: 5, Labels: []string{"new-location"}},
		{Number: 6, CheckID: "ISSUE-6", LocationID: "DE-BE-00001"},
		// duplicate within the batch
		{Number: 7, CheckID: "ISSUE-6", LocationID: "DE-BE-00001"},
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{
		Submissions: 8,
		Appended:    1,
		Duplicates:  2,
		NotApproved: 1,
		Malformed:   4,
	}, stats)
	assert.Equal(t, 2, book.Checks.Len())

	loc, _ := book.Locations.Get("DE-BE-00001")
	assert.Equal(t, model.Count(1), loc.VerifiedByCount)
}

func TestApply_NewLocationConfirmation(t *testing.T) {
	book, _ := newBook(t, location("DE-BE-00004", today.AddDays(-10)))
	a := New(testOptions(t))

	stats, err := a.Apply(book, []model.Submission{newLocationSub(20, "Bitcoin Bäckerei", "node", "555")})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NewLocations)

	loc, ok := book.Locations.Get("DE-BE-00005")
	require.True(t, ok, "ids continue after the highest existing suffix")
	assert.Equal(t, model.NewLocationPending, loc.NewLocationStatus)
	assert.Equal(t, model.ConfidenceLow, loc.VerificationConfidence)
	assert.Equal(t, model.Count(1), loc.VerifiedByCount)
	assert.Equal(t, "Berlin", loc.City)
	assert.Equal(t, "https://www.openstreetmap.org/node/555", loc.BTCMapURL)
	assert.Equal(t, "52.52", loc.Lat.String())

	creation, ok := book.Checks.Get("ISSUE-20")
	require.True(t, ok)
	assert.Equal(t, model.PaidAwaitingConfirmation, creation.PaidStatus)
	assert.Equal(t, model.Sats(21000), creation.BaseBountySats)

	// Second check: still pending, creation check still held.
	_, err = a.Apply(book, []model.Submission{{Number: 21, LocationID: "DE-BE-00005"}})
	require.NoError(t, err)
	assert.Equal(t, model.NewLocationPending, loc.NewLocationStatus)
	assert.Equal(t, model.ConfidenceLow, loc.VerificationConfidence)
	assert.Equal(t, model.PaidAwaitingConfirmation, creation.PaidStatus)
	second, _ := book.Checks.Get("ISSUE-21")
	assert.Equal(t, model.PaidPending, second.PaidStatus)

	// Third check reaches the threshold.
	stats, err = a.Apply(book, []model.Submission{{Number: 22, LocationID: "DE-BE-00005"}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Confirmed)
	assert.Equal(t, 1, stats.Released)
	assert.Equal(t, model.NewLocationConfirmed, loc.NewLocationStatus)
	assert.Equal(t, model.ConfidenceHigh, loc.VerificationConfidence)
	assert.Equal(t, model.Count(3), loc.VerifiedByCount)
	assert.Equal(t, model.PaidPending, creation.PaidStatus)
}

func TestApply_NewLocationConfirmedInOneBatch(t *testing.T) {
	book, _ := newBook(t, location("DE-BE-00004", today.AddDays(-10)))

	stats, err := New(testOptions(t)).Apply(book, []model.Submission{
		{Number: 22, LocationID: "DE-BE-00005"},
		newLocationSub(20, "Bitcoin Bäckerei", "node", "555"),
		{Number: 21, LocationID: "DE-BE-00005"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Appended)
	assert.Equal(t, 1, stats.NewLocations)
	assert.Equal(t, 1, stats.Confirmed)
	assert.Equal(t, 1, stats.Released)

	loc, ok := book.Locations.Get("DE-BE-00005")
	require.True(t, ok)
	assert.Equal(t, model.NewLocationConfirmed, loc.NewLocationStatus)
	assert.Equal(t, model.ConfidenceHigh, loc.VerificationConfidence)
	assert.Equal(t, model.Count(3), loc.VerifiedByCount)
	assert.Equal(t, "ISSUE-22", loc.LastCheckID)

	for _, id := range []string{"ISSUE-20", "ISSUE-21", "ISSUE-22"} {
		chk, ok := book.Checks.Get(id)
		require.True(t, ok, id)
		assert.Equal(t, model.PaidPending, chk.PaidStatus, id)
	}
}

func TestApply_BackdatedReviewLeavesLocationEligible(t *testing.T) {
	loc := location("DE-BE-00001", model.Date{})
	book, _ := newBook(t, loc)

	_, err := New(testOptions(t)).Apply(book, []model.Submission{
		{Number: 1, LocationID: "DE-BE-00001", ReviewedAt: today.AddDays(-120).String()},
	})
	require.NoError(t, err)

	assert.Equal(t, today.AddDays(-120), loc.LastVerifiedAt)
	assert.Equal(t, today.AddDays(-30), loc.CooldownUntil)
	assert.Equal(t, model.Count(0), loc.CooldownDaysLeft)
	assert.Equal(t, model.YesNo(true), loc.EligibleNow)
	assert.Equal(t, model.YesNo(true), loc.EligibleForCheck)
}

func TestApply_LastVerifiedNeverMovesBack(t *testing.T) {
	loc := location("DE-BE-00001", model.Date{})
	book, _ := newBook(t, loc)

	_, err := New(testOptions(t)).Apply(book, []model.Submission{
		{Number: 1, LocationID: "DE-BE-00001", ReviewedAt: "2026-03-05"},
		{Number: 2, LocationID: "DE-BE-00001", ReviewedAt: "2026-02-01"},
	})
	require.NoError(t, err)

	reviewed := model.NewDate(2026, time.March, 5)
	assert.Equal(t, reviewed, loc.LastVerifiedAt)
	assert.Equal(t, reviewed.AddDays(90), loc.CooldownUntil)
	assert.Equal(t, model.Count(85), loc.CooldownDaysLeft)
	assert.Equal(t, model.YesNo(false), loc.EligibleNow)
	assert.Equal(t, "ISSUE-2", loc.LastCheckID)
	assert.Equal(t, model.Count(2), loc.VerifiedByCount)
}

func TestApply_NewLocationWithKnownKey(t *testing.T) {
	book, _ := newBook(t, location("DE-BE-00001", model.Date{}))

	stats, err := New(testOptions(t)).Apply(book, []model.Submission{newLocationSub(30, "Café Satoshi", "NODE", "100")})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NewLocations)
	assert.Equal(t, 1, book.Locations.Len())

	chk, ok := book.Checks.Get("ISSUE-30")
	require.True(t, ok)
	assert.Equal(t, "DE-BE-00001", chk.LocationID)
	assert.Equal(t, model.PaidPending, chk.PaidStatus)
}

func TestApply_TwoNewLocationsInBatch(t *testing.T) {
	book, _ := newBook(t)

	_, err := New(testOptions(t)).Apply(book, []model.Submission{
		newLocationSub(2, "Second", "", ""),
		newLocationSub(1, "First", "way", "7"),
		newLocationSub(3, "First again", "way", "7"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, book.Locations.Len())
	first, _ := book.Locations.Get("DE-BE-00001")
	second, _ := book.Locations.Get("DE-BE-00002")
	assert.Equal(t, "First", first.Name)
	assert.Equal(t, "Second", second.Name)
	assert.Equal(t, model.Count(2), first.VerifiedByCount)
}

func TestApply_RerunIsNoop(t *testing.T) {
	book, paths := newBook(t, location("DE-BE-00001", model.Date{}))
	subs := []model.Submission{
		{Number: 1, LocationID: "DE-BE-00001", SubmitterID: "alice"},
		newLocationSub(2, "Späti", "node", "9"),
	}
	a := New(testOptions(t))

	_, err := a.Apply(book, subs)
	require.NoError(t, err)
	require.NoError(t, book.Flush())
	before, err := os.ReadFile(paths.Checks)
	require.NoError(t, err)

	again, err := ledger.Open(context.Background(), paths)
	require.NoError(t, err)
	again.IDPrefix = "DE-BE"
	stats, err := a.Apply(again, subs)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Appended)
	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 2, again.Locations.Len())
	require.NoError(t, again.Flush())

	after, err := os.ReadFile(paths.Checks)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestApply_ReviewFields(t *testing.T) {
	book, _ := newBook(t, location("DE-BE-00001", model.Date{}))

	_, err := New(testOptions(t)).Apply(book, []model.Submission{
		{Number: 1, LocationID: "DE-BE-00001", ReviewedAt: "2026-03-01", ReviewerID: "erin", ReviewStatus: model.ReviewApproved},
		{Number: 2, LocationID: "DE-BE-00001", ReviewedAt: "soon"},
	})
	require.NoError(t, err)

	c1, _ := book.Checks.Get("ISSUE-1")
	assert.Equal(t, model.NewDate(2026, time.March, 1), c1.ReviewedAt)
	assert.Equal(t, "erin", c1.ReviewerID)

	c2, _ := book.Checks.Get("ISSUE-2")
	assert.Equal(t, today, c2.ReviewedAt)

	loc, _ := book.Locations.Get("DE-BE-00001")
	assert.Equal(t, today.AddDays(90), loc.CooldownUntil)
}

func TestRelease(t *testing.T) {
	confirmed := location("DE-BE-00001", model.Date{})
	confirmed.NewLocationStatus = model.NewLocationConfirmed
	pending := location("DE-BE-00002", model.Date{})
	pending.OSMID = "200"
	pending.NewLocationStatus = model.NewLocationPending
	book, _ := newBook(t, confirmed, pending)

	held1 := &model.Check{CheckID: "A", LocationID: "DE-BE-00001", PaidStatus: model.PaidAwaitingConfirmation}
	held2 := &model.Check{CheckID: "B", LocationID: "DE-BE-00002", PaidStatus: model.PaidAwaitingConfirmation}
	paid := &model.Check{CheckID: "C", LocationID: "DE-BE-00001", PaidStatus: model.PaidPaid}
	for _, c := range []*model.Check{held1, held2, paid} {
		require.NoError(t, book.Checks.Insert(c))
	}

	assert.Equal(t, 1, New(testOptions(t)).Release(book))
	assert.Equal(t, model.PaidPending, held1.PaidStatus)
	assert.Equal(t, model.PaidAwaitingConfirmation, held2.PaidStatus)
	assert.Equal(t, model.PaidPaid, paid.PaidStatus)
}

func TestSortSubmissions(t *testing.T) {
	subs := []model.Submission{
		{Number: 2, SubmittedAt: "2026-01-02"},
		{Number: 1, SubmittedAt: "2026-01-05", CheckID: "B"},
		{Number: 1, SubmittedAt: "2026-01-05", CheckID: "A"},
		{Number: 1, SubmittedAt: "2026-01-01", CheckID: "Z"},
	}
	SortSubmissions(subs)

	var ids []string
	for _, s := range subs {
		ids = append(ids, s.ResolvedCheckID())
	}
	assert.Equal(t, []string{"Z", "A", "B", "ISSUE-2"}, ids)
}

func TestLoadSubmissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subs.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"number": 4, "location_id": "DE-BE-00001", "labels": ["critical-change"], "submitter_id": "alice"},
		{"number": 5, "labels": ["new-location"], "new_location": {"name": "Späti", "lat": "52.5", "lon": "13.4"}}
	]`), 0o644))

	subs, err := LoadSubmissions(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, model.CheckTypeCriticalChange, subs[0].ResolvedCheckType())
	assert.True(t, subs[1].IsNewLocation())
	assert.Equal(t, "Späti", subs[1].NewLocation.Name)

	missing, err := LoadSubmissions(context.Background(), filepath.Join(dir, "none.json"))
	require.NoError(t, err)
	assert.Empty(t, missing)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"number": 1}`), 0o644))
	_, err = LoadSubmissions(context.Background(), bad)
	require.Error(t, err)
}
