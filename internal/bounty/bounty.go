// Package bounty prices verification checks: a base amount from how long a
// location has gone unverified, scaled by how active the submitter has been.
package bounty

import (
	"strings"

	"github.com/satscheck/ledger-cli/internal/model"
)

// Base tiers.
const (
	TierRecent   model.Sats = 10000 // under 6 months
	TierHalfYear model.Sats = 13000 // 6 to 11 months
	TierYear     model.Sats = 17000 // 12 to 23 months
	TierStale    model.Sats = 21000 // 24 months or more, or never verified

	// CriticalSats is the fixed base for a critical-change report.
	CriticalSats model.Sats = 21000
	// NewEntrySats is the fixed base for submitting a new location.
	NewEntrySats model.Sats = 21000
)

// DefaultWindowDays is how far back submitter activity is counted.
const DefaultWindowDays = 90

// Kind is what a check is priced as.
type Kind string

const (
	KindBase           Kind = "base"
	KindCriticalChange Kind = "critical_change"
	KindNewLocation    Kind = "new_location"
)

// KindOf maps a check type to its pricing kind.
func KindOf(t model.CheckType, newLocation bool) Kind {
	switch {
	case newLocation:
		return KindNewLocation
	case t == model.CheckTypeCriticalChange:
		return KindCriticalChange
	}
	return KindBase
}

// MonthsBetween returns the whole calendar months from a to b. A month only
// counts once its day of month is reached.
func MonthsBetween(a, b model.Date) int {
	ay, am, ad := a.Time().Date()
	by, bm, bd := b.Time().Date()
	months := (by-ay)*12 + int(bm-am)
	if bd < ad {
		months--
	}
	return months
}

// Base returns the staleness tier for a location last verified on last.
// A zero last means never verified.
func Base(last, today model.Date) model.Sats {
	if last.IsZero() {
		return TierStale
	}
	switch m := MonthsBetween(last, today); {
	case m >= 24:
		return TierStale
	case m >= 12:
		return TierYear
	case m >= 6:
		return TierHalfYear
	default:
		return TierRecent
	}
}

// BaseFor returns the base amount for a check of the given kind.
func BaseFor(kind Kind, last, today model.Date) model.Sats {
	switch kind {
	case KindCriticalChange:
		return CriticalSats
	case KindNewLocation:
		return NewEntrySats
	}
	return Base(last, today)
}

// ActivityFactor maps a count of recent approved checks to a multiplier.
func ActivityFactor(recent int) model.Factor {
	switch {
	case recent >= 10:
		return 20
	case recent >= 5:
		return 15
	case recent >= 2:
		return 12
	default:
		return model.FactorOne
	}
}

// CountRecent counts approved checks by submitter reviewed within
// windowDays of today. An empty submitter counts nothing.
func CountRecent(checks []*model.Check, submitter string, today model.Date, windowDays int) int {
	submitter = strings.TrimSpace(submitter)
	if submitter == "" {
		return 0
	}
	cutoff := today.AddDays(-windowDays)
	n := 0
	for _, c := range checks {
		if c.ReviewStatus != model.ReviewApproved || c.ReviewedAt.IsZero() {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(c.SubmitterID), submitter) {
			continue
		}
		if !c.ReviewedAt.Before(cutoff) {
			n++
		}
	}
	return n
}
