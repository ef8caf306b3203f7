package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyRecords bulk-inserts items into table with the COPY protocol. row maps
// one item to its values in column order. An empty batch is a no-op.
func CopyRecords[T any](ctx context.Context, pool Pool, table string, columns []string, items []T, row func(T) []any) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	i := 0
	src := pgx.CopyFromFunc(func() ([]any, error) {
		if i >= len(items) {
			return nil, nil
		}
		values := row(items[i])
		if len(values) != len(columns) {
			return nil, eris.Errorf("db: row %d has %d values for %d columns", i, len(values), len(columns))
		}
		i++
		return values, nil
	})

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}
