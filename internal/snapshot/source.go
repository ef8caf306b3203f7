package snapshot

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/satscheck/ledger-cli/internal/fetcher"
	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/resilience"
)

// Format names an upstream feed shape.
type Format string

const (
	FormatBTCMap   Format = "btcmap"
	FormatOverpass Format = "overpass"
)

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatBTCMap, FormatOverpass:
		return f, nil
	}
	return "", eris.Errorf("snapshot: unknown format %q (want btcmap or overpass)", s)
}

// FetchStats counts what happened to upstream elements.
type FetchStats struct {
	Elements      int
	Deleted       int
	NoCoordinates int
	OutsideRegion int
	Kept          int
}

func (s *FetchStats) count(reason DropReason) {
	s.Elements++
	switch reason {
	case DropDeleted:
		s.Deleted++
	case DropNoCoordinates:
		s.NoCoordinates++
	case DropOutsideRegion:
		s.OutsideRegion++
	default:
		s.Kept++
	}
}

// Result is one fetch. When Changed is false the upstream reported the
// previous ETag unchanged and Rows is empty.
type Result struct {
	Rows    []model.RawLocation
	ETag    string
	Changed bool
	Stats   FetchStats
}

// Source downloads one upstream feed and normalizes it.
type Source struct {
	url     string
	format  Format
	fetcher fetcher.Fetcher
	adapter *Adapter
	retry   resilience.RetryConfig
}

// NewSource creates a source. For Overpass, endpoint is the interpreter URL
// and the query is built from the adapter's region.
func NewSource(endpoint string, format Format, f fetcher.Fetcher, a *Adapter, retry resilience.RetryConfig) *Source {
	u := endpoint
	if format == FormatOverpass {
		u = OverpassURL(endpoint, a.Region())
	}
	retry.OnRetry = resilience.RetryLogger("snapshot", "fetch")
	return &Source{url: u, format: format, fetcher: f, adapter: a, retry: retry}
}

// URL returns the URL the source downloads.
func (s *Source) URL() string { return s.url }

// Fetch downloads and normalizes the feed. A body cut short mid-stream is
// retried from the start.
func (s *Source) Fetch(ctx context.Context, etag string) (*Result, error) {
	res, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*Result, error) {
		return s.fetchOnce(ctx, etag)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: fetch %s", s.format)
	}
	if res.Changed {
		SortByName(res.Rows)
		zap.L().Info("snapshot fetched",
			zap.String("format", string(s.format)),
			zap.Int("elements", res.Stats.Elements),
			zap.Int("kept", res.Stats.Kept),
			zap.Int("deleted", res.Stats.Deleted),
			zap.Int("outside_region", res.Stats.OutsideRegion),
			zap.Int("no_coordinates", res.Stats.NoCoordinates),
		)
	}
	return res, nil
}

func (s *Source) fetchOnce(ctx context.Context, etag string) (*Result, error) {
	body, newETag, changed, err := s.fetcher.DownloadIfChanged(ctx, s.url, etag)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &Result{ETag: newETag}, nil
	}
	defer body.Close() //nolint:errcheck

	res := &Result{ETag: newETag, Changed: true}
	switch s.format {
	case FormatBTCMap:
		items, errs := fetcher.DecodeJSONArray[BTCMapElement](ctx, body)
		err = decodeInto(ctx, res, items, errs, s.adapter.FromBTCMap)
	case FormatOverpass:
		items, errs := fetcher.DecodeJSONArrayField[OSMElement](ctx, body, "elements")
		err = decodeInto(ctx, res, items, errs, s.adapter.FromOverpass)
	default:
		err = eris.Errorf("snapshot: unknown format %q", s.format)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func decodeInto[T any](ctx context.Context, res *Result, items <-chan T, errs <-chan error, adapt func(T) (model.RawLocation, DropReason)) error {
	for item := range items {
		row, reason := adapt(item)
		res.Stats.count(reason)
		if reason == Kept {
			res.Rows = append(res.Rows, row)
		}
	}
	if err := <-errs; err != nil {
		return err
	}
	return ctx.Err()
}

// OverpassURL builds a GET query for every element in the region that
// accepts bitcoin.
func OverpassURL(endpoint string, r Region) string {
	s, w, n, e := r.BBox()
	bbox := fmt.Sprintf("%g,%g,%g,%g", s, w, n, e)
	query := "[out:json][timeout:120];(" +
		`nwr["currency:XBT"="yes"](` + bbox + ");" +
		`nwr["payment:bitcoin"="yes"](` + bbox + ");" +
		`nwr["payment:lightning"="yes"](` + bbox + ");" +
		`nwr["payment:onchain"="yes"](` + bbox + ");" +
		");out center tags;"
	return endpoint + "?data=" + url.QueryEscape(query)
}
