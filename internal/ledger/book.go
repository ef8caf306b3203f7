package ledger

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satscheck/ledger-cli/internal/model"
)

// Paths locates the two ledger files.
type Paths struct {
	Locations string
	Checks    string
}

// Book is one unit of work over both ledgers: load everything, mutate in
// memory, then Flush once at the end.
type Book struct {
	Locations *Table[*model.Location]
	Checks    *Table[*model.Check]

	LocationsMigration Migration
	ChecksMigration    Migration

	// IDPrefix puts the region's own ids first when locations are written.
	IDPrefix string

	paths    Paths
	locExtra extraColumns[model.Location]
	chkExtra extraColumns[model.Check]
}

// Open reads both ledgers. The two files are decoded concurrently; nothing
// is mutated until both have loaded.
func Open(ctx context.Context, paths Paths) (*Book, error) {
	locSchema, err := Schema(TableLocations)
	if err != nil {
		return nil, err
	}
	chkSchema, err := Schema(TableChecks)
	if err != nil {
		return nil, err
	}

	var (
		locRows []*model.Location
		chkRows []*model.Check
		locMig   Migration
		chkMig   Migration
		locExtra extraColumns[model.Location]
		chkExtra extraColumns[model.Check]
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		locRows, locMig, locExtra, err = readCSV[model.Location](paths.Locations, locSchema)
		return err
	})
	g.Go(func() error {
		var err error
		chkRows, chkMig, chkExtra, err = readCSV[model.Check](paths.Checks, chkSchema)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	applyLocationMigration(locRows, locMig)

	locs, err := NewTable(TableLocations, locRows)
	if err != nil {
		return nil, err
	}
	checks, err := NewTable(TableChecks, chkRows)
	if err != nil {
		return nil, err
	}

	b := &Book{
		Locations:          locs,
		Checks:             checks,
		LocationsMigration: locMig,
		ChecksMigration:    chkMig,
		paths:              paths,
		locExtra:           locExtra,
		chkExtra:           chkExtra,
	}
	b.logLoad()
	return b, nil
}

// applyLocationMigration fills columns introduced after the file was
// written where an empty default would contradict another column.
func applyLocationMigration(rows []*model.Location, mig Migration) {
	if !slices.Contains(mig.Added, "eligible_for_check") {
		return
	}
	for _, l := range rows {
		l.EligibleForCheck = l.EligibleNow
	}
}

func (b *Book) logLoad() {
	log := zap.L().With(zap.String("component", "ledger"))
	for _, m := range []Migration{b.LocationsMigration, b.ChecksMigration} {
		if m.FromVersion != 0 && m.Changed() {
			log.Info("ledger schema migration",
				zap.String("table", m.Table),
				zap.Int("from_version", m.FromVersion),
				zap.Int("to_version", m.ToVersion),
				zap.Strings("added", m.Added),
			)
		}
		if len(m.Unknown) > 0 {
			log.Warn("ledger has columns outside the schema, keeping them after the schema columns",
				zap.String("table", m.Table),
				zap.Strings("columns", m.Unknown),
			)
		}
	}
	for _, l := range b.Locations.All() {
		if l.LocationID == "" {
			log.Warn("location row without location_id", zap.String("name", l.Name))
		}
	}
	log.Debug("ledgers loaded",
		zap.Int("locations", b.Locations.Len()),
		zap.Int("checks", b.Checks.Len()),
	)
}

// Migrate marks both tables for rewrite if their files are behind the
// latest schema. It returns true when a rewrite is due.
func (b *Book) Migrate() bool {
	changed := false
	if b.LocationsMigration.FromVersion != 0 && b.LocationsMigration.Changed() {
		b.Locations.Touch()
		changed = true
	}
	if b.ChecksMigration.FromVersion != 0 && b.ChecksMigration.Changed() {
		b.Checks.Touch()
		changed = true
	}
	return changed
}

// Flush writes every modified table in canonical order. It is the last step
// of a unit of work. Both files are staged in full before either replaces
// its ledger, so a failed write leaves both ledgers as they were.
func (b *Book) Flush() error {
	var staged []*stagedFile
	if b.Locations.Dirty() {
		SortLocations(b.Locations, b.IDPrefix)
		f, err := stageCSV(b.paths.Locations, b.Locations.All(), b.locExtra)
		if err != nil {
			return eris.Wrap(err, "ledger: flush locations")
		}
		staged = append(staged, f)
	}
	if b.Checks.Dirty() {
		SortChecks(b.Checks)
		f, err := stageCSV(b.paths.Checks, b.Checks.All(), b.chkExtra)
		if err != nil {
			for _, s := range staged {
				s.discard()
			}
			return eris.Wrap(err, "ledger: flush checks")
		}
		staged = append(staged, f)
	}
	for i, f := range staged {
		if err := f.commit(); err != nil {
			for _, s := range staged[i:] {
				s.discard()
			}
			return eris.Wrap(err, "ledger: flush")
		}
	}
	return nil
}

// SortLocations orders locations by id, ids under prefix first.
func SortLocations(t *Table[*model.Location], prefix string) {
	t.SortStable(func(a, b *model.Location) int { return CompareLocationIDs(a.LocationID, b.LocationID, prefix) })
}

// SortChecks orders checks by review date, then id.
func SortChecks(t *Table[*model.Check]) {
	t.SortStable(func(a, b *model.Check) int {
		if c := a.ReviewedAt.Time().Compare(b.ReviewedAt.Time()); c != 0 {
			return c
		}
		return CompareIDs(a.CheckID, b.CheckID)
	})
}
