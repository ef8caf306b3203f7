package job

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/satscheck/ledger-cli/internal/bounty"
	"github.com/satscheck/ledger-cli/internal/checks"
	"github.com/satscheck/ledger-cli/internal/cooldown"
	"github.com/satscheck/ledger-cli/internal/fetcher"
	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/reconcile"
	"github.com/satscheck/ledger-cli/internal/resilience"
	"github.com/satscheck/ledger-cli/internal/snapshot"
)

// ErrUnknownLocation is returned by Quote for an id not in the ledger.
var ErrUnknownLocation = eris.New("job: unknown location")

// Snapshot downloads the upstream feed and rewrites the snapshot file. The
// stored ETag is sent unless force is set; an unchanged feed leaves the file
// alone. No ledger is touched.
func (r *Runner) Snapshot(ctx context.Context, f fetcher.Fetcher, force bool) (Stats, error) {
	stats := Stats{}
	runID := r.startRun(ctx, "snapshot")

	err := func() error {
		format, err := snapshot.ParseFormat(r.cfg.Snapshot.Format)
		if err != nil {
			return err
		}
		region, err := r.cfg.BuildRegion()
		if err != nil {
			return err
		}

		retry := resilience.DefaultRetryConfig()
		if r.cfg.Snapshot.MaxRetries > 0 {
			retry.MaxAttempts = r.cfg.Snapshot.MaxRetries
		}
		src := snapshot.NewSource(r.cfg.Snapshot.URL, format, f, snapshot.NewAdapter(region), retry)

		path := r.cfg.Snapshot.Path
		etag := ""
		if !force {
			etag = snapshot.ReadETag(path)
		}
		res, err := src.Fetch(ctx, etag)
		if err != nil {
			return err
		}
		if !res.Changed {
			stats["unchanged"] = 1
			r.log.Info("snapshot unchanged upstream", zap.String("path", path))
			return nil
		}

		stats["elements"] = res.Stats.Elements
		stats["kept"] = res.Stats.Kept
		stats["deleted"] = res.Stats.Deleted
		stats["no_coordinates"] = res.Stats.NoCoordinates
		stats["outside_region"] = res.Stats.OutsideRegion

		if err := snapshot.Write(path, res.Rows); err != nil {
			return err
		}
		return snapshot.WriteETag(path, res.ETag)
	}()

	r.finishRun(ctx, runID, stats, err)
	if err != nil {
		return stats, eris.Wrap(err, "job: snapshot")
	}
	return stats, nil
}

// Reconcile merges the snapshot file into the location ledger.
func (r *Runner) Reconcile(ctx context.Context) (Stats, error) {
	return r.unit(ctx, "reconcile", r.reconcile)
}

// Cooldown recomputes derived eligibility for every location.
func (r *Runner) Cooldown(ctx context.Context) (Stats, error) {
	return r.unit(ctx, "cooldown", r.cooldown)
}

// Sync reconciles and then recomputes cooldowns in one unit of work, so the
// ledger is written once.
func (r *Runner) Sync(ctx context.Context) (Stats, error) {
	return r.unit(ctx, "sync", func(ctx context.Context, u *Unit) error {
		if err := r.reconcile(ctx, u); err != nil {
			return err
		}
		return r.cooldown(ctx, u)
	})
}

// Apply appends the approved submissions at path. An empty path uses the
// configured submissions file.
func (r *Runner) Apply(ctx context.Context, path string) (Stats, error) {
	if path == "" {
		path = r.cfg.Ledger.SubmissionsPath
	}
	return r.unit(ctx, "apply", func(ctx context.Context, u *Unit) error {
		subs, err := checks.LoadSubmissions(ctx, path)
		if err != nil {
			return err
		}

		before := make(map[string]bool, u.Book.Checks.Len())
		for _, c := range u.Book.Checks.All() {
			before[c.CheckID] = true
		}

		st, err := r.appender(u).Apply(u.Book, subs)
		if err != nil {
			return err
		}
		u.Stats["submissions"] = st.Submissions
		u.Stats["appended"] = st.Appended
		u.Stats["new_locations"] = st.NewLocations
		u.Stats["confirmed"] = st.Confirmed
		u.Stats["released"] = st.Released
		u.Stats["skipped_duplicate"] = st.Duplicates
		u.Stats["skipped_not_approved"] = st.NotApproved
		u.Stats["skipped_malformed"] = st.Malformed

		for _, c := range u.Book.Checks.All() {
			if !before[c.CheckID] {
				u.Appended = append(u.Appended, c)
			}
		}
		return nil
	})
}

// Import adds the venues of a curated sheet export at path to the location
// ledger as pending locations.
func (r *Runner) Import(ctx context.Context, path string) (Stats, error) {
	return r.unit(ctx, "import", func(ctx context.Context, u *Unit) error {
		venues, sheet, err := checks.LoadSheet(ctx, path)
		if err != nil {
			return err
		}
		st, err := r.appender(u).Import(u.Book, venues)
		if err != nil {
			return err
		}
		u.Stats["rows"] = sheet.Rows
		u.Stats["skipped_unrated"] = sheet.Unrated
		u.Stats["skipped_incomplete"] = sheet.Incomplete
		u.Stats["imported"] = st.Imported
		u.Stats["existing"] = st.Existing
		return nil
	})
}

// Migrate rewrites ledgers whose files are behind the latest schema.
func (r *Runner) Migrate(ctx context.Context) (Stats, error) {
	return r.unit(ctx, "migrate", func(_ context.Context, u *Unit) error {
		if u.Book.Migrate() {
			u.Stats["migrated"] = 1
		}
		u.Stats["locations_from_version"] = u.Book.LocationsMigration.FromVersion
		u.Stats["checks_from_version"] = u.Book.ChecksMigration.FromVersion
		return nil
	})
}

// QuoteRequest describes a hypothetical check to price.
type QuoteRequest struct {
	LocationID  string
	SubmitterID string
	CheckType   model.CheckType
	NewLocation bool
}

// LocationQuote is a priced check together with the links a checker uses
// to find and confirm the location. The links are empty for a new location
// or one without an OSM element.
type LocationQuote struct {
	bounty.Quote
	Name      string
	OSMURL    string
	VerifyURL string
}

// Quote prices a check without writing anything.
func (r *Runner) Quote(ctx context.Context, req QuoteRequest) (LocationQuote, error) {
	today, err := r.Today()
	if err != nil {
		return LocationQuote{}, err
	}
	book, err := r.openBook(ctx)
	if err != nil {
		return LocationQuote{}, err
	}

	var (
		out  LocationQuote
		last model.Date
	)
	if !req.NewLocation {
		loc, ok := book.Locations.Get(strings.TrimSpace(req.LocationID))
		if !ok {
			return LocationQuote{}, eris.Wrapf(ErrUnknownLocation, "%q", req.LocationID)
		}
		last = model.MaxDate(loc.LastVerifiedAt, loc.SourceLastUpdate)
		out.Name = loc.Name
		out.OSMURL = snapshot.OSMURL(loc.OSMType, loc.OSMID)
		out.VerifyURL = snapshot.BTCMapVerifyURL(loc.OSMType, loc.OSMID)
	}

	calc := bounty.NewCalculator(r.cfg.Rules.ActivityWindowDays)
	kind := bounty.KindOf(req.CheckType, req.NewLocation)
	out.Quote = calc.Price(kind, last, req.SubmitterID, book.Checks.All(), today)
	return out, nil
}

func (r *Runner) reconcile(ctx context.Context, u *Unit) error {
	snap, err := r.readSnapshot(ctx, u.Region, false)
	if err != nil {
		return err
	}
	st, err := reconcile.New(reconcile.Options{
		IDPrefix: r.cfg.Region.IDPrefix,
		Region:   u.Region,
		Today:    u.Today,
	}).Apply(u.Book, snap)
	if err != nil {
		return err
	}
	u.Stats["matched"] = st.Matched
	u.Stats["updated"] = st.Updated
	u.Stats["added"] = st.Added
	u.Stats["retained"] = st.Retained
	u.Stats["skipped_no_key"] = st.NoKey
	u.Stats["skipped_duplicate_rows"] = st.Duplicates
	return nil
}

func (r *Runner) cooldown(ctx context.Context, u *Unit) error {
	snap, err := r.readSnapshot(ctx, u.Region, true)
	if err != nil {
		return err
	}
	var upstream map[string]snapshot.DatedTag
	if snap != nil {
		upstream = snap.BestDates()
	}
	st := cooldown.New(cooldown.Options{
		Days:  r.cfg.Rules.CooldownDays,
		Today: u.Today,
	}).Apply(u.Book.Locations, upstream)

	u.Stats["dated"] = st.Dated
	u.Stats["undated"] = st.Undated
	u.Stats["local_check"] = st.LocalCheck
	u.Stats["eligible"] = st.Eligible
	u.Stats["changed"] = st.Changed
	return nil
}

func (r *Runner) appender(u *Unit) *checks.Appender {
	return checks.New(checks.Options{
		IDPrefix:              r.cfg.Region.IDPrefix,
		Region:                u.Region,
		Today:                 u.Today,
		CooldownDays:          r.cfg.Rules.CooldownDays,
		WindowDays:            r.cfg.Rules.ActivityWindowDays,
		ConfirmationThreshold: r.cfg.Rules.ConfirmationThreshold,
	})
}
