package ledger

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

const utf8BOM = "\ufeff"

// extraColumns holds the cells of columns a ledger file carries beyond its
// schema, by row, so that a rewrite keeps them after the schema columns.
type extraColumns[T any] struct {
	header []string
	cells  map[*T][]string
}

// row returns the extra cells of r; rows added since loading get empty cells.
func (e extraColumns[T]) row(r *T) []string {
	if cells, ok := e.cells[r]; ok {
		return cells
	}
	return make([]string, len(e.header))
}

// readCSV decodes every row of path into T after validating the header
// against schema. A missing file is an empty table at schema version 0.
func readCSV[T any](path string, schema *TableSchema) ([]*T, Migration, extraColumns[T], error) {
	var extra extraColumns[T]
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Migration{Table: schema.Name, ToVersion: schema.Latest(), Added: schema.Columns()}, extra, nil
	}
	if err != nil {
		return nil, Migration{}, extra, eris.Wrapf(err, "ledger: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return nil, Migration{Table: schema.Name, ToVersion: schema.Latest(), Added: schema.Columns()}, extra, nil
	}
	if err != nil {
		return nil, Migration{}, extra, eris.Wrapf(err, "ledger: read header of %s", path)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	mig, err := schema.Migrate(header)
	if err != nil {
		return nil, Migration{}, extra, eris.Wrapf(err, "ledger: %s", path)
	}

	var extraIdx []int
	for i, h := range header {
		if slices.Contains(mig.Unknown, h) {
			extraIdx = append(extraIdx, i)
			extra.header = append(extra.header, h)
		}
	}
	extra.cells = make(map[*T][]string)

	dec, err := csvutil.NewDecoder(r, header...)
	if err != nil {
		return nil, Migration{}, extra, eris.Wrapf(err, "ledger: decoder for %s", path)
	}

	var rows []*T
	for {
		v := new(T)
		if err := dec.Decode(v); err == io.EOF {
			break
		} else if err != nil {
			return nil, Migration{}, extra, eris.Wrapf(err, "ledger: decode %s", path)
		}
		rows = append(rows, v)

		if len(extraIdx) > 0 {
			record := dec.Record()
			cells := make([]string, len(extraIdx))
			for j, i := range extraIdx {
				if i < len(record) {
					cells[j] = record[i]
				}
			}
			extra.cells[v] = cells
		}
	}
	return rows, mig, extra, nil
}

// stagedFile is a written and synced temporary file waiting to be renamed
// over its target.
type stagedFile struct {
	path string
	tmp  string
}

func (s *stagedFile) commit() error {
	if err := os.Rename(s.tmp, s.path); err != nil {
		return eris.Wrapf(err, "ledger: replace %s", s.path)
	}
	return nil
}

func (s *stagedFile) discard() { _ = os.Remove(s.tmp) }

// extraWriter appends the extra cells of the row being encoded to each
// record csvutil writes.
type extraWriter struct {
	w     *csv.Writer
	cells []string
}

func (x *extraWriter) Write(record []string) error {
	if len(x.cells) == 0 {
		return x.w.Write(record)
	}
	return x.w.Write(append(slices.Clip(record), x.cells...))
}

// stageCSV writes rows, then the extra columns, to a temporary file next to
// path. Nothing at path changes until the returned file is committed.
func stageCSV[T any](path string, rows []*T, extra extraColumns[T]) (*stagedFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ledger: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: create temp for %s", path)
	}
	staged := &stagedFile{path: path, tmp: tmp.Name()}
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			staged.discard()
		}
	}()

	w := csv.NewWriter(tmp)
	xw := &extraWriter{w: w, cells: extra.header}
	enc := csvutil.NewEncoder(xw)
	if err := enc.EncodeHeader(new(T)); err != nil {
		return nil, eris.Wrapf(err, "ledger: encode header for %s", path)
	}
	enc.AutoHeader = false
	for _, row := range rows {
		xw.cells = extra.row(row)
		if err := enc.Encode(row); err != nil {
			return nil, eris.Wrapf(err, "ledger: encode row for %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrapf(err, "ledger: flush %s", path)
	}
	if err := tmp.Sync(); err != nil {
		return nil, eris.Wrapf(err, "ledger: sync %s", path)
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrapf(err, "ledger: close %s", path)
	}
	ok = true
	return staged, nil
}

// WriteCSV replaces path with rows, writing to a temporary file in the same
// directory and renaming it into place so readers never see a partial file.
func WriteCSV[T any](path string, rows []*T) error {
	staged, err := stageCSV(path, rows, extraColumns[T]{})
	if err != nil {
		return err
	}
	if err := staged.commit(); err != nil {
		staged.discard()
		return err
	}
	return nil
}
