package checks

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/satscheck/ledger-cli/internal/fetcher"
	"github.com/satscheck/ledger-cli/internal/model"
)

// LoadSubmissions reads a JSON array of structured submissions. A missing
// file is an empty batch.
func LoadSubmissions(ctx context.Context, path string) ([]model.Submission, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "checks: open submissions %s", path)
	}
	defer f.Close() //nolint:errcheck

	items, errs := fetcher.DecodeJSONArray[model.Submission](ctx, f)
	var subs []model.Submission
	for s := range items {
		subs = append(subs, s)
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrapf(err, "checks: decode submissions %s", path)
	}
	return subs, nil
}
