package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

const utf8BOM = "\ufeff"

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, the first row goes to HeaderCh, not the row channel
	HeaderCh   chan<- []string // optional: receives the header row
	Comment    rune            // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV rows and sends them to a channel. A leading UTF-8 BOM
// is stripped. Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if first && len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], utf8BOM)
			}
			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// Record is one CSV row keyed by trimmed header name.
type Record map[string]string

// Get returns the first non-empty value among the given column aliases.
func (r Record) Get(aliases ...string) string {
	for _, a := range aliases {
		if v := strings.TrimSpace(r[a]); v != "" {
			return v
		}
	}
	return ""
}

// Has reports whether any alias is a column of the row.
func (r Record) Has(aliases ...string) bool {
	for _, a := range aliases {
		if _, ok := r[a]; ok {
			return true
		}
	}
	return false
}

// StreamCSVRecords streams a headed CSV as Records. The header is sent to
// headerCh (if non-nil, it must be buffered) before any record. Short rows
// leave missing columns empty and extra cells are dropped.
func StreamCSVRecords(ctx context.Context, r io.Reader, headerCh chan<- []string) (<-chan Record, <-chan error) {
	recCh := make(chan Record, 64)
	errCh := make(chan error, 1)

	hdr := make(chan []string, 1)
	rows, rowErrs := StreamCSV(ctx, r, CSVOptions{HasHeader: true, HeaderCh: hdr, TrimSpace: true})

	go func() {
		defer close(recCh)
		defer close(errCh)

		var header []string
		for row := range rows {
			if header == nil {
				select {
				case header = <-hdr:
				default:
				}
				if headerCh != nil && header != nil {
					headerCh <- header
					headerCh = nil
				}
			}
			rec := make(Record, len(header))
			for i, name := range header {
				if i < len(row) {
					rec[name] = row[i]
				} else {
					rec[name] = ""
				}
			}
			select {
			case recCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
		if err := <-rowErrs; err != nil {
			errCh <- err
			return
		}
		// A header-only file still reports its header.
		if headerCh != nil {
			select {
			case header = <-hdr:
				headerCh <- header
			default:
			}
		}
	}()

	return recCh, errCh
}
