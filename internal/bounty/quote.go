package bounty

import (
	"github.com/satscheck/ledger-cli/internal/model"
)

// Quote is the price of one check and how it was reached.
type Quote struct {
	Kind         Kind
	LastVerified model.Date // zero when never verified
	MonthsSince  int        // -1 when never verified
	RecentChecks int
	Base         model.Sats
	Factor       model.Factor
	Final        model.Sats
}

// Calculator prices checks against a check history.
type Calculator struct {
	WindowDays int
}

// NewCalculator returns a calculator counting activity over windowDays,
// or DefaultWindowDays when windowDays is not positive.
func NewCalculator(windowDays int) Calculator {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return Calculator{WindowDays: windowDays}
}

// Price computes the bounty for a check of kind at a location last verified
// on last, submitted by submitter, given the checks already in history.
func (c Calculator) Price(kind Kind, last model.Date, submitter string, history []*model.Check, today model.Date) Quote {
	q := Quote{
		Kind:         kind,
		LastVerified: last,
		MonthsSince:  -1,
		Base:         BaseFor(kind, last, today),
	}
	if !last.IsZero() {
		q.MonthsSince = MonthsBetween(last, today)
	}

	q.RecentChecks = CountRecent(history, submitter, today, c.WindowDays)
	q.Factor = ActivityFactor(q.RecentChecks)
	q.Final = q.Factor.Apply(q.Base)
	return q
}
