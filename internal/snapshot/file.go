package snapshot

import (
	"context"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/satscheck/ledger-cli/internal/fetcher"
	"github.com/satscheck/ledger-cli/internal/ledger"
	"github.com/satscheck/ledger-cli/internal/model"
)

// ErrJoinKey marks a snapshot that lacks the osm_type/osm_id columns, so no
// row can be matched to a location. It is fatal.
var ErrJoinKey = eris.New("snapshot: join key columns missing")

// Snapshot is a loaded snapshot file.
type Snapshot struct {
	Rows []model.RawLocation

	// HasDates is false when the file carries neither check_date nor
	// survey:date, so every location falls back to its local date.
	HasDates bool
}

// ByKey returns rows grouped by composite key, in file order. Rows without
// a key are left out.
func (s *Snapshot) ByKey() map[string][]*model.RawLocation {
	out := make(map[string][]*model.RawLocation, len(s.Rows))
	for i := range s.Rows {
		r := &s.Rows[i]
		if k := r.CompositeKey(); k != "" {
			out[k] = append(out[k], r)
		}
	}
	return out
}

// Read loads the snapshot CSV at path through the adapter's alias mapping.
func Read(ctx context.Context, path string, a *Adapter) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	recs, errs := fetcher.StreamCSVRecords(ctx, f, headerCh)

	snap := &Snapshot{}
	var checked bool
	for rec := range recs {
		if !checked {
			if err := checkHeader(<-headerCh, snap); err != nil {
				// Drain so the reader goroutines exit.
				for range recs { //nolint:revive
				}
				return nil, eris.Wrapf(err, "snapshot: %s", path)
			}
			checked = true
		}
		snap.Rows = append(snap.Rows, a.FromRecord(rec))
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrapf(err, "snapshot: read %s", path)
	}
	if !checked {
		var header []string
		select {
		case header = <-headerCh:
		default:
		}
		if err := checkHeader(header, snap); err != nil {
			return nil, eris.Wrapf(err, "snapshot: %s", path)
		}
	}

	zap.L().Debug("snapshot loaded",
		zap.String("path", path),
		zap.Int("rows", len(snap.Rows)),
		zap.Bool("has_dates", snap.HasDates),
	)
	return snap, nil
}

func checkHeader(header []string, snap *Snapshot) error {
	rec := make(fetcher.Record, len(header))
	for _, h := range header {
		rec[h] = ""
	}
	if !rec.Has("osm_type", "type") || !rec.Has("osm_id", "id") {
		return eris.Wrapf(ErrJoinKey, "header %v", header)
	}
	snap.HasDates = rec.Has("check_date", "survey:date", "survey_date")
	if !snap.HasDates {
		zap.L().Warn("snapshot has no date columns, cooldowns use local checks only")
	}
	return nil
}

// Write sorts rows by name and writes them to path atomically.
func Write(path string, rows []model.RawLocation) error {
	SortByName(rows)
	ptrs := make([]*model.RawLocation, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	return eris.Wrap(ledger.WriteCSV(path, ptrs), "snapshot: write")
}

// SortByName orders rows by case-insensitive name, then composite key.
func SortByName(rows []model.RawLocation) {
	slices.SortStableFunc(rows, func(a, b model.RawLocation) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.CompositeKey(), b.CompositeKey())
	})
}

// ETagPath is where the upstream ETag of the snapshot at path is kept.
func ETagPath(path string) string { return path + ".etag" }

// ReadETag returns the stored ETag for the snapshot at path, or "" when the
// snapshot or its ETag is missing.
func ReadETag(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	b, err := os.ReadFile(ETagPath(path))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// WriteETag stores etag next to the snapshot at path. An empty etag removes
// any stored one.
func WriteETag(path, etag string) error {
	if etag == "" {
		if err := os.Remove(ETagPath(path)); err != nil && !os.IsNotExist(err) {
			return eris.Wrap(err, "snapshot: remove etag")
		}
		return nil
	}
	return eris.Wrap(os.WriteFile(ETagPath(path), []byte(etag+"\n"), 0o644), "snapshot: write etag")
}
