// Package cooldown derives each location's effective verification date,
// cooldown window and check eligibility.
package cooldown

import (
	"go.uber.org/zap"

	"github.com/satscheck/ledger-cli/internal/bounty"
	"github.com/satscheck/ledger-cli/internal/ledger"
	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/snapshot"
)

// DefaultDays is the cooldown after a verification.
const DefaultDays = 90

// Options configures a calculation.
type Options struct {
	Days  int
	Today model.Date
}

// Stats summarizes a calculation.
type Stats struct {
	Dated      int
	Undated    int
	LocalCheck int
	Eligible   int
	Changed    int
}

// Result is the derived state of one location.
type Result struct {
	SourceLastUpdate model.Date
	Tag              model.SourceTag
	CooldownUntil    model.Date
	DaysLeft         int
	Eligible         bool
	BountyBase       model.Sats
}

// Calculator computes cooldowns.
type Calculator struct {
	opts Options
	log  *zap.Logger
}

// New returns a Calculator. A non-positive Days uses DefaultDays.
func New(opts Options) *Calculator {
	if opts.Days <= 0 {
		opts.Days = DefaultDays
	}
	return &Calculator{
		opts: opts,
		log:  zap.L().With(zap.String("component", "cooldown")),
	}
}

// Evaluate derives the state of a location given its upstream date, if any.
func (c *Calculator) Evaluate(loc *model.Location, upstream snapshot.DatedTag) Result {
	local := loc.LastVerifiedAt
	effective := model.MaxDate(upstream.Date, local)

	res := Result{
		SourceLastUpdate: effective,
		BountyBase:       bounty.Base(effective, c.opts.Today),
	}
	if effective.IsZero() {
		res.Eligible = true
		return res
	}

	if !local.IsZero() && local.Equal(effective) {
		res.Tag = model.SourceLocalCheck
	} else {
		res.Tag = upstream.Tag
	}

	res.CooldownUntil = effective.AddDays(c.opts.Days)
	res.DaysLeft = max(0, c.opts.Today.DaysUntil(res.CooldownUntil))
	res.Eligible = res.DaysLeft == 0
	return res
}

// Apply writes the derived state of every location. upstream may be nil
// when no snapshot is available. Running it twice on the same inputs
// changes nothing the second time.
func (c *Calculator) Apply(locs *ledger.Table[*model.Location], upstream map[string]snapshot.DatedTag) Stats {
	var stats Stats
	for _, loc := range locs.All() {
		res := c.Evaluate(loc, upstream[loc.CompositeKey()])

		switch {
		case res.SourceLastUpdate.IsZero():
			stats.Undated++
		case res.Tag == model.SourceLocalCheck:
			stats.Dated++
			stats.LocalCheck++
		default:
			stats.Dated++
		}
		if res.Eligible {
			stats.Eligible++
		}

		if write(loc, res) {
			stats.Changed++
		}
	}
	if stats.Changed > 0 {
		locs.Touch()
	}

	c.log.Info("cooldowns computed",
		zap.Int("dated", stats.Dated),
		zap.Int("undated", stats.Undated),
		zap.Int("local_check", stats.LocalCheck),
		zap.Int("eligible", stats.Eligible),
		zap.Int("changed", stats.Changed),
	)
	return stats
}

func write(loc *model.Location, res Result) bool {
	before := *loc

	loc.SourceLastUpdate = res.SourceLastUpdate
	loc.SourceLastUpdateTag = res.Tag
	loc.CooldownUntil = res.CooldownUntil
	loc.CooldownDaysLeft = model.Count(res.DaysLeft)
	loc.SetEligibility(res.Eligible)
	loc.BountyBaseSats = res.BountyBase

	return before != *loc
}
