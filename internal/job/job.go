// Package job runs each ledger command as one unit of work: load both
// ledgers, mutate them in memory, flush once, and record the run.
package job

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/satscheck/ledger-cli/internal/config"
	"github.com/satscheck/ledger-cli/internal/ledger"
	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/snapshot"
	"github.com/satscheck/ledger-cli/internal/store"
)

// Stats is the flat counter set reported by a run.
type Stats map[string]int

// Unit is the state a command mutates.
type Unit struct {
	Book   *ledger.Book
	Today  model.Date
	Region snapshot.Region
	Stats  Stats

	// Appended collects checks added during the unit, for run history.
	Appended []*model.Check
}

// Runner executes commands against the configured ledgers.
type Runner struct {
	cfg   *config.Config
	store store.Store
	now   func() time.Time
	log   *zap.Logger
}

// NewRunner returns a Runner. st may be nil to skip run history.
func NewRunner(cfg *config.Config, st store.Store) *Runner {
	return &Runner{
		cfg:   cfg,
		store: st,
		now:   time.Now,
		log:   zap.L().With(zap.String("component", "job")),
	}
}

// WithClock replaces the clock used to compute today.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Today returns the current date in the configured timezone.
func (r *Runner) Today() (model.Date, error) {
	return r.cfg.Today(r.now())
}

func (r *Runner) paths() ledger.Paths {
	return ledger.Paths{
		Locations: r.cfg.Ledger.LocationsPath,
		Checks:    r.cfg.Ledger.ChecksPath,
	}
}

// openBook loads both ledgers with the configured id prefix.
func (r *Runner) openBook(ctx context.Context) (*ledger.Book, error) {
	book, err := ledger.Open(ctx, r.paths())
	if err != nil {
		return nil, err
	}
	book.IDPrefix = r.cfg.Region.IDPrefix
	return book, nil
}

// unit runs fn over freshly loaded ledgers and flushes them if fn succeeds.
// Nothing is written when fn or the load fails.
func (r *Runner) unit(ctx context.Context, command string, fn func(ctx context.Context, u *Unit) error) (Stats, error) {
	stats := Stats{}
	runID := r.startRun(ctx, command)

	err := func() error {
		today, err := r.Today()
		if err != nil {
			return err
		}
		region, err := r.cfg.BuildRegion()
		if err != nil {
			return err
		}
		book, err := r.openBook(ctx)
		if err != nil {
			return err
		}

		u := &Unit{Book: book, Today: today, Region: region, Stats: stats}
		if err := fn(ctx, u); err != nil {
			return err
		}
		if err := book.Flush(); err != nil {
			return err
		}
		r.recordChecks(ctx, runID, u.Appended)
		return nil
	}()

	r.finishRun(ctx, runID, stats, err)
	if err != nil {
		return stats, eris.Wrapf(err, "job: %s", command)
	}
	r.log.Info("job complete", zap.String("command", command), zap.Any("stats", stats))
	return stats, nil
}

// startRun opens a history record and returns its id, or "" without one.
// The ledger files are the source of truth, so a failing store is logged and
// never blocks a ledger update.
func (r *Runner) startRun(ctx context.Context, command string) string {
	if r.store == nil {
		return ""
	}
	run, err := r.store.StartRun(ctx, command)
	if err != nil {
		r.log.Warn("run history unavailable", zap.String("command", command), zap.Error(err))
		return ""
	}
	return run.ID
}

func (r *Runner) recordChecks(ctx context.Context, runID string, checks []*model.Check) {
	if runID == "" || len(checks) == 0 {
		return
	}
	if err := r.store.RecordChecks(ctx, runID, checks); err != nil {
		r.log.Warn("failed to record appended checks", zap.String("run_id", runID), zap.Error(err))
	}
}

func (r *Runner) finishRun(ctx context.Context, runID string, stats Stats, runErr error) {
	if runID == "" {
		return
	}
	if err := r.store.FinishRun(ctx, runID, stats, runErr); err != nil {
		r.log.Warn("failed to finish run", zap.String("run_id", runID), zap.Error(err))
	}
}

// readSnapshot loads the configured snapshot file. When optional is set a
// missing file yields nil instead of an error.
func (r *Runner) readSnapshot(ctx context.Context, region snapshot.Region, optional bool) (*snapshot.Snapshot, error) {
	path := r.cfg.Snapshot.Path
	if optional {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			r.log.Warn("no snapshot file, using local verification dates only", zap.String("path", path))
			return nil, nil
		}
	}
	return snapshot.Read(ctx, path, snapshot.NewAdapter(region))
}
