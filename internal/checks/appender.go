// Package checks appends approved submissions to the check ledger and moves
// community-submitted locations through confirmation.
package checks

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/satscheck/ledger-cli/internal/bounty"
	"github.com/satscheck/ledger-cli/internal/ledger"
	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/snapshot"
)

// Defaults applied when Options leave a field empty.
const (
	DefaultConfirmationThreshold = 3
	DefaultReviewer              = "maintainer"
)

// Options configures an append run.
type Options struct {
	IDPrefix              string
	Region                snapshot.Region
	Today                 model.Date
	CooldownDays          int
	WindowDays            int
	ConfirmationThreshold int
	Reviewer              string
}

// Stats summarizes an append run.
type Stats struct {
	Submissions  int
	Appended     int
	Duplicates   int
	NotApproved  int
	Malformed    int
	NewLocations int
	Confirmed    int
	Released     int
}

// Appender applies submission batches to a ledger book.
type Appender struct {
	opts Options
	calc bounty.Calculator
	log  *zap.Logger
}

// New returns an Appender, filling unset options with defaults.
func New(opts Options) *Appender {
	if opts.CooldownDays <= 0 {
		opts.CooldownDays = 90
	}
	if opts.ConfirmationThreshold <= 0 {
		opts.ConfirmationThreshold = DefaultConfirmationThreshold
	}
	if opts.Reviewer == "" {
		opts.Reviewer = DefaultReviewer
	}
	return &Appender{
		opts: opts,
		calc: bounty.NewCalculator(opts.WindowDays),
		log:  zap.L().With(zap.String("component", "checks")),
	}
}

// SortSubmissions orders a batch by number, then submitted_at, then check id.
func SortSubmissions(subs []model.Submission) {
	slices.SortStableFunc(subs, func(a, b model.Submission) int {
		if c := cmp.Compare(a.Number, b.Number); c != 0 {
			return c
		}
		if c := strings.Compare(a.SubmittedAt, b.SubmittedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ResolvedCheckID(), b.ResolvedCheckID())
	})
}

// Apply appends every approved submission in batch order and then releases
// held checks of confirmed locations. subs is not modified. An error means
// the book is in an unknown state and must not be flushed.
func (a *Appender) Apply(book *ledger.Book, subs []model.Submission) (Stats, error) {
	stats := Stats{Submissions: len(subs)}

	batch := slices.Clone(subs)
	SortSubmissions(batch)

	byKey := make(map[string]*model.Location, book.Locations.Len())
	for _, l := range book.Locations.All() {
		if key := l.CompositeKey(); key != "" {
			if _, dup := byKey[key]; !dup {
				byKey[key] = l
			}
		}
	}
	alloc := ledger.NewIDAllocator(a.opts.IDPrefix, book.Locations)

	for i := range batch {
		sub := &batch[i]
		checkID := sub.ResolvedCheckID()
		log := a.log.With(zap.Int("number", sub.Number), zap.String("check_id", checkID))

		if status := sub.ReviewStatus; status != "" && status != model.ReviewApproved {
			stats.NotApproved++
			log.Debug("submission not approved, skipping", zap.String("review_status", string(status)))
			continue
		}
		if checkID == "" {
			stats.Malformed++
			log.Warn("submission has neither check_id nor number, skipping")
			continue
		}
		if book.Checks.Has(checkID) {
			stats.Duplicates++
			log.Debug("check already applied")
			continue
		}

		loc, created, err := a.resolveLocation(book, sub, byKey, alloc, log)
		if err != nil {
			return stats, err
		}
		if loc == nil {
			stats.Malformed++
			continue
		}
		if created {
			stats.NewLocations++
		}

		chk := a.newCheck(sub, checkID, loc, created, book.Checks.All(), log)
		if err := book.Checks.Insert(chk); err != nil {
			return stats, err
		}
		stats.Appended++

		if a.verify(loc, chk) {
			stats.Confirmed++
			log.Info("location confirmed", zap.String("location_id", loc.LocationID))
		}
		book.Locations.Touch()
	}

	stats.Released = a.Release(book)

	a.log.Info("applied submissions",
		zap.Int("submissions", stats.Submissions),
		zap.Int("appended", stats.Appended),
		zap.Int("new_locations", stats.NewLocations),
		zap.Int("confirmed", stats.Confirmed),
		zap.Int("released", stats.Released),
		zap.Int("skipped_duplicate", stats.Duplicates),
		zap.Int("skipped_not_approved", stats.NotApproved),
		zap.Int("skipped_malformed", stats.Malformed),
	)
	return stats, nil
}

// resolveLocation finds the location a submission refers to, minting one for
// a new-location submission with an unknown key. A nil location without an
// error means the submission was malformed and has been logged.
func (a *Appender) resolveLocation(
	book *ledger.Book,
	sub *model.Submission,
	byKey map[string]*model.Location,
	alloc *ledger.IDAllocator,
	log *zap.Logger,
) (*model.Location, bool, error) {
	if !sub.IsNewLocation() {
		id := strings.TrimSpace(sub.LocationID)
		if id == "" {
			log.Warn("submission has no location_id, skipping")
			return nil, false, nil
		}
		loc, ok := book.Locations.Get(id)
		if !ok {
			log.Warn("submission refers to an unknown location, skipping", zap.String("location_id", id))
			return nil, false, nil
		}
		return loc, false, nil
	}

	nl := sub.NewLocation
	if nl == nil || strings.TrimSpace(nl.Name) == "" {
		log.Warn("new-location submission without a name, skipping")
		return nil, false, nil
	}
	if key := model.CompositeKey(nl.OSMType, nl.OSMID); key != "" {
		if loc, ok := byKey[key]; ok {
			log.Info("new location already in ledger, recording as a check",
				zap.String("key", key),
				zap.String("location_id", loc.LocationID),
			)
			return loc, false, nil
		}
	}
	if id := strings.TrimSpace(sub.LocationID); id != "" {
		if loc, ok := book.Locations.Get(id); ok {
			return loc, false, nil
		}
	}

	id, err := alloc.Next()
	if err != nil {
		return nil, false, err
	}
	loc := a.mint(id, nl, log)
	if err := book.Locations.Insert(loc); err != nil {
		return nil, false, err
	}
	if key := loc.CompositeKey(); key != "" {
		byKey[key] = loc
	}
	log.Info("minted location", zap.String("location_id", id), zap.String("name", loc.Name))
	return loc, true, nil
}

func (a *Appender) mint(id string, nl *model.NewLocation, log *zap.Logger) *model.Location {
	loc := &model.Location{
		LocationID:             id,
		OSMType:                strings.ToLower(strings.TrimSpace(nl.OSMType)),
		OSMID:                  strings.TrimSpace(nl.OSMID),
		Name:                   strings.TrimSpace(nl.Name),
		Category:               strings.TrimSpace(nl.Category),
		Street:                 strings.TrimSpace(nl.Street),
		Housenumber:            strings.TrimSpace(nl.Housenumber),
		Postcode:               strings.TrimSpace(nl.Postcode),
		City:                   strings.TrimSpace(nl.City),
		Website:                strings.TrimSpace(nl.Website),
		OpeningHours:           strings.TrimSpace(nl.OpeningHours),
		VerificationConfidence: model.ConfidenceLow,
		BountyBaseSats:         bounty.Base(model.Date{}, a.opts.Today),
		BountyCriticalSats:     bounty.CriticalSats,
		BountyNewEntrySats:     bounty.NewEntrySats,
		NewLocationStatus:      model.NewLocationPending,
		LastUpdatedAt:          a.opts.Today,
	}
	if loc.City == "" {
		loc.City = a.opts.Region.DefaultCity
	}
	if loc.OSMType != "" && loc.OSMID != "" {
		loc.BTCMapURL = snapshot.OSMURL(loc.OSMType, loc.OSMID)
	}
	loc.Lat, loc.Lon = a.coordinates(nl.Lat, nl.Lon, log)
	loc.SetEligibility(true)
	return loc
}

// coordinates parses submitted coordinates. Unparsable or off-globe values
// are stored empty; positions outside the region are kept with a warning.
func (a *Appender) coordinates(latS, lonS string, log *zap.Logger) (model.Coordinate, model.Coordinate) {
	latS, lonS = strings.TrimSpace(latS), strings.TrimSpace(lonS)
	if latS == "" || lonS == "" {
		return model.Coordinate{}, model.Coordinate{}
	}
	lat, errLat := strconv.ParseFloat(latS, 64)
	lon, errLon := strconv.ParseFloat(lonS, 64)
	if errLat != nil || errLon != nil || !snapshot.ValidLatLon(lat, lon) {
		log.Warn("invalid coordinates, storing empty", zap.String("lat", latS), zap.String("lon", lonS))
		return model.Coordinate{}, model.Coordinate{}
	}
	if !a.opts.Region.Contains(lat, lon) {
		log.Warn("coordinates outside region",
			zap.String("region", a.opts.Region.Name),
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
		)
	}
	return model.NewCoordinate(lat), model.NewCoordinate(lon)
}

func (a *Appender) newCheck(
	sub *model.Submission,
	checkID string,
	loc *model.Location,
	created bool,
	history []*model.Check,
	log *zap.Logger,
) *model.Check {
	reviewed := a.opts.Today
	if s := strings.TrimSpace(sub.ReviewedAt); s != "" {
		d, err := model.ParseDate(s)
		if err != nil || d.IsZero() {
			log.Warn("unparsable reviewed_at, using today", zap.String("reviewed_at", s))
		} else {
			reviewed = d
		}
	}
	reviewer := strings.TrimSpace(sub.ReviewerID)
	if reviewer == "" {
		reviewer = a.opts.Reviewer
	}

	checkType := sub.ResolvedCheckType()
	if created {
		checkType = model.CheckTypeBase
	}
	last := model.MaxDate(loc.LastVerifiedAt, loc.SourceLastUpdate)
	q := a.calc.Price(bounty.KindOf(checkType, created), last, sub.SubmitterID, history, a.opts.Today)

	paid := model.PaidPending
	if created {
		paid = model.PaidAwaitingConfirmation
	}

	return &model.Check{
		CheckID:          checkID,
		LocationID:       loc.LocationID,
		SubmitterID:      strings.TrimSpace(sub.SubmitterID),
		SubmittedAt:      strings.TrimSpace(sub.SubmittedAt),
		CheckType:        checkType,
		PublicPostURL:    strings.TrimSpace(sub.PublicPostURL),
		ReceiptProofURL:  strings.TrimSpace(sub.ReceiptProofURL),
		PaymentProofURL:  strings.TrimSpace(sub.PaymentProofURL),
		VenuePhotoURL:    strings.TrimSpace(sub.VenuePhotoURL),
		ProofHash:        strings.TrimSpace(sub.ProofHash),
		ObservationsPub:  strings.TrimSpace(sub.Observations),
		SuggestedUpdates: strings.TrimSpace(sub.SuggestedUpdates),
		ReviewStatus:     model.ReviewApproved,
		ReviewedAt:       reviewed,
		ReviewerID:       reviewer,
		BaseBountySats:   q.Base,
		ActivityFactor:   q.Factor.String(),
		FinalBountySats:  q.Final,
		PaidStatus:       paid,
	}
}

// verify records chk on loc and reports whether this check confirmed it.
func (a *Appender) verify(loc *model.Location, chk *model.Check) bool {
	// A batch is applied in submission order, which need not be review
	// order: last_verified_at only moves forward.
	if chk.ReviewedAt.After(loc.LastVerifiedAt) {
		loc.LastVerifiedAt = chk.ReviewedAt
		loc.CooldownUntil = chk.ReviewedAt.AddDays(a.opts.CooldownDays)
	}
	loc.CooldownDaysLeft = model.Count(max(0, a.opts.Today.DaysUntil(loc.CooldownUntil)))
	loc.SetEligibility(loc.CooldownDaysLeft == 0)
	loc.LastCheckID = chk.CheckID
	loc.VerifiedByCount++
	loc.LastUpdatedAt = a.opts.Today

	confirmed := false
	if loc.NewLocationStatus == model.NewLocationPending && int(loc.VerifiedByCount) >= a.opts.ConfirmationThreshold {
		loc.NewLocationStatus = model.NewLocationConfirmed
		confirmed = true
	}

	switch loc.NewLocationStatus {
	case model.NewLocationPending:
		loc.VerificationConfidence = model.ConfidenceLow
	case model.NewLocationConfirmed:
		loc.VerificationConfidence = model.ConfidenceHigh
	default:
		loc.VerificationConfidence = model.ConfidenceMedium
	}
	return confirmed
}

// Release moves every check held for confirmation to pending once its
// location is confirmed. It returns how many checks changed.
func (a *Appender) Release(book *ledger.Book) int {
	released := 0
	for _, c := range book.Checks.All() {
		if c.PaidStatus != model.PaidAwaitingConfirmation {
			continue
		}
		loc, ok := book.Locations.Get(c.LocationID)
		if !ok || loc.NewLocationStatus != model.NewLocationConfirmed {
			continue
		}
		c.PaidStatus = model.PaidPending
		released++
		a.log.Info("released held check",
			zap.String("check_id", c.CheckID),
			zap.String("location_id", c.LocationID),
		)
	}
	if released > 0 {
		book.Checks.Touch()
	}
	return released
}
