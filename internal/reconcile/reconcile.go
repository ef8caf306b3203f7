// Package reconcile merges an external snapshot into the location ledger.
// It owns the descriptive fields of a location; verification state and
// derived eligibility are never written here.
package reconcile

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/satscheck/ledger-cli/internal/bounty"
	"github.com/satscheck/ledger-cli/internal/ledger"
	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/snapshot"
)

// Options configures a reconciliation run.
type Options struct {
	IDPrefix string
	Region   snapshot.Region
	Today    model.Date
}

// Stats summarizes a reconciliation run.
type Stats struct {
	Matched    int
	Updated    int
	Added      int
	NoKey      int
	Duplicates int
	Retained   int // ledger locations absent from the snapshot
}

// Reconciler merges snapshots into a ledger.
type Reconciler struct {
	opts Options
	log  *zap.Logger
}

// New returns a Reconciler.
func New(opts Options) *Reconciler {
	return &Reconciler{
		opts: opts,
		log:  zap.L().With(zap.String("component", "reconcile")),
	}
}

// Apply updates matching locations, appends new ones, and leaves every other
// location as it was. On error the book must not be flushed.
func (r *Reconciler) Apply(book *ledger.Book, snap *snapshot.Snapshot) (Stats, error) {
	var stats Stats
	locs := book.Locations

	byKey := make(map[string]*model.Location, locs.Len())
	for _, l := range locs.All() {
		key := l.CompositeKey()
		if key == "" {
			continue
		}
		if prev, dup := byKey[key]; dup {
			r.log.Warn("two locations share an external key, updating the first",
				zap.String("key", key),
				zap.String("kept", prev.LocationID),
				zap.String("ignored", l.LocationID),
			)
			continue
		}
		byKey[key] = l
	}

	alloc := ledger.NewIDAllocator(r.opts.IDPrefix, locs)
	seen := make(map[string]bool, len(snap.Rows))

	for i := range snap.Rows {
		row := &snap.Rows[i]
		key := row.CompositeKey()
		if key == "" {
			stats.NoKey++
			r.log.Warn("snapshot row without osm_type/osm_id, skipping", zap.String("name", row.Name))
			continue
		}
		if seen[key] {
			stats.Duplicates++
			r.log.Warn("duplicate snapshot row, keeping the first", zap.String("key", key))
			continue
		}
		seen[key] = true

		d := r.describe(row)
		if loc, ok := byKey[key]; ok {
			stats.Matched++
			if d.applyTo(loc) {
				loc.LastUpdatedAt = r.opts.Today
				locs.Touch()
				stats.Updated++
			}
			continue
		}

		id, err := alloc.Next()
		if err != nil {
			return stats, err
		}
		loc := r.newLocation(id, d, row)
		if err := locs.Insert(loc); err != nil {
			return stats, err
		}
		byKey[key] = loc
		stats.Added++
	}

	for _, l := range locs.All() {
		if !seen[l.CompositeKey()] {
			stats.Retained++
		}
	}

	r.log.Info("reconciled snapshot",
		zap.Int("matched", stats.Matched),
		zap.Int("updated", stats.Updated),
		zap.Int("added", stats.Added),
		zap.Int("retained", stats.Retained),
		zap.Int("skipped_no_key", stats.NoKey),
		zap.Int("skipped_duplicate", stats.Duplicates),
	)
	return stats, nil
}

func (r *Reconciler) newLocation(id string, d descriptive, row *model.RawLocation) *model.Location {
	last, _ := snapshot.BestDate(row)
	loc := &model.Location{
		LocationID:             id,
		VerificationConfidence: model.ConfidenceLow,
		BountyBaseSats:         bounty.Base(last, r.opts.Today),
		BountyCriticalSats:     bounty.CriticalSats,
		BountyNewEntrySats:     bounty.NewEntrySats,
		LastUpdatedAt:          r.opts.Today,
	}
	loc.SetEligibility(true)
	d.applyTo(loc)
	return loc
}

// descriptive holds the externally owned fields of a location.
type descriptive struct {
	OSMType, OSMID, BTCMapURL           string
	Name, Category                      string
	Street, Housenumber, Postcode, City string
	Lat, Lon                            model.Coordinate
	Website, OpeningHours               string
}

func (r *Reconciler) describe(row *model.RawLocation) descriptive {
	d := descriptive{
		OSMType:      strings.ToLower(strings.TrimSpace(row.OSMType)),
		OSMID:        strings.TrimSpace(row.OSMID),
		BTCMapURL:    strings.TrimSpace(row.OSMURL),
		Name:         strings.TrimSpace(row.Name),
		Category:     strings.TrimSpace(row.Category),
		Street:       strings.TrimSpace(row.Street),
		Housenumber:  strings.TrimSpace(row.Housenumber),
		Postcode:     strings.TrimSpace(row.Postcode),
		City:         strings.TrimSpace(row.City),
		Website:      strings.TrimSpace(row.Website),
		OpeningHours: strings.TrimSpace(row.OpeningHours),
	}
	if d.BTCMapURL == "" {
		d.BTCMapURL = snapshot.OSMURL(d.OSMType, d.OSMID)
	}
	if d.City == "" {
		d.City = r.opts.Region.DefaultCity
	}
	d.Lat, d.Lon = r.coordinates(row)
	return d
}

// coordinates parses a row's position. Unparsable or off-globe values are
// dropped; positions outside the region are kept with a warning.
func (r *Reconciler) coordinates(row *model.RawLocation) (model.Coordinate, model.Coordinate) {
	latS, lonS := strings.TrimSpace(row.Lat), strings.TrimSpace(row.Lon)
	if latS == "" || lonS == "" {
		return model.Coordinate{}, model.Coordinate{}
	}
	lat, errLat := strconv.ParseFloat(latS, 64)
	lon, errLon := strconv.ParseFloat(lonS, 64)
	if errLat != nil || errLon != nil || !snapshot.ValidLatLon(lat, lon) {
		r.log.Warn("invalid coordinates, storing empty",
			zap.String("key", row.CompositeKey()),
			zap.String("lat", latS),
			zap.String("lon", lonS),
		)
		return model.Coordinate{}, model.Coordinate{}
	}
	if !r.opts.Region.Contains(lat, lon) {
		r.log.Warn("coordinates outside region",
			zap.String("key", row.CompositeKey()),
			zap.String("region", r.opts.Region.Name),
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
		)
	}
	return model.NewCoordinate(lat), model.NewCoordinate(lon)
}

// applyTo copies d into loc and reports whether any field differed.
func (d descriptive) applyTo(loc *model.Location) bool {
	changed := false
	set := func(dst *string, v string) {
		if strings.TrimSpace(*dst) != v {
			*dst = v
			changed = true
		}
	}
	setCoord := func(dst *model.Coordinate, v model.Coordinate) {
		if dst.String() != v.String() {
			*dst = v
			changed = true
		}
	}

	set(&loc.OSMType, d.OSMType)
	set(&loc.OSMID, d.OSMID)
	set(&loc.BTCMapURL, d.BTCMapURL)
	set(&loc.Name, d.Name)
	set(&loc.Category, d.Category)
	set(&loc.Street, d.Street)
	set(&loc.Housenumber, d.Housenumber)
	set(&loc.Postcode, d.Postcode)
	set(&loc.City, d.City)
	setCoord(&loc.Lat, d.Lat)
	setCoord(&loc.Lon, d.Lon)
	set(&loc.Website, d.Website)
	set(&loc.OpeningHours, d.OpeningHours)
	return changed
}
