package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/satscheck/ledger-cli/internal/config"
	"github.com/satscheck/ledger-cli/internal/job"
	"github.com/satscheck/ledger-cli/internal/resilience"
	"github.com/satscheck/ledger-cli/internal/store"
)

// initStore opens and migrates the configured run history store. Postgres
// connects that fail transiently (refused, reset, timeout) are retried.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.Validate("store"); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		retry := resilience.DefaultRetryConfig()
		retry.OnRetry = resilience.RetryLogger("store", "connect")
		st, err = resilience.DoVal(ctx, retry, func(ctx context.Context) (store.Store, error) {
			pg, err := store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
				MaxConns: c.Store.MaxConns,
				MinConns: c.Store.MinConns,
			})
			if err != nil {
				return nil, err
			}
			return pg, nil
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newRunner validates the ledger settings and builds a job runner. Run
// history is best effort: a store that fails to open is logged and the
// command runs without it. The returned func releases the store.
func newRunner(ctx context.Context, mode string) (*job.Runner, func(), error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, nil, err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		zap.L().Warn("run history disabled", zap.Error(err))
		return job.NewRunner(cfg, nil), func() {}, nil
	}
	return job.NewRunner(cfg, st), func() { _ = st.Close() }, nil
}
