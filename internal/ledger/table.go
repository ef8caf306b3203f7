// Package ledger holds the location and check ledgers in memory as typed
// tables keyed by primary key, and reads and writes them as CSV files.
package ledger

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

// ErrDuplicateKey is returned when two rows share a primary key.
var ErrDuplicateKey = eris.New("ledger: duplicate primary key")

// Record is a ledger row addressable by primary key.
type Record interface {
	Key() string
}

// Table is an ordered set of rows with a primary-key index. Rows are held by
// pointer; callers mutate them in place and call Touch.
type Table[R Record] struct {
	name  string
	rows  []R
	index map[string]R
	dirty bool
}

// NewTable indexes rows. Rows with an empty key are kept but not indexed.
func NewTable[R Record](name string, rows []R) (*Table[R], error) {
	t := &Table[R]{
		name:  name,
		rows:  make([]R, 0, len(rows)),
		index: make(map[string]R, len(rows)),
	}
	for _, r := range rows {
		key := r.Key()
		if key != "" {
			if _, ok := t.index[key]; ok {
				return nil, eris.Wrapf(ErrDuplicateKey, "%s: %q", name, key)
			}
			t.index[key] = r
		}
		t.rows = append(t.rows, r)
	}
	return t, nil
}

// Name returns the table name.
func (t *Table[R]) Name() string { return t.name }

// Len returns the number of rows.
func (t *Table[R]) Len() int { return len(t.rows) }

// Get looks a row up by primary key.
func (t *Table[R]) Get(key string) (R, bool) {
	r, ok := t.index[key]
	return r, ok
}

// Has reports whether key is present.
func (t *Table[R]) Has(key string) bool {
	_, ok := t.index[key]
	return ok
}

// Insert appends a row. The key must be non-empty and unused.
func (t *Table[R]) Insert(r R) error {
	key := r.Key()
	if key == "" {
		return eris.Errorf("ledger: %s: insert with empty key", t.name)
	}
	if _, ok := t.index[key]; ok {
		return eris.Wrapf(ErrDuplicateKey, "%s: %q", t.name, key)
	}
	t.index[key] = r
	t.rows = append(t.rows, r)
	t.dirty = true
	return nil
}

// All returns the rows in table order. The slice must not be modified.
func (t *Table[R]) All() []R { return t.rows }

// Keys returns every indexed key.
func (t *Table[R]) Keys() []string {
	keys := make([]string, 0, len(t.index))
	for k := range t.index {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Touch marks the table as modified so the next flush writes it.
func (t *Table[R]) Touch() { t.dirty = true }

// Dirty reports whether the table changed since it was loaded.
func (t *Table[R]) Dirty() bool { return t.dirty }

// SortStable orders the rows with cmpFn, keeping the relative order of equal
// rows.
func (t *Table[R]) SortStable(cmpFn func(a, b R) int) {
	slices.SortStableFunc(t.rows, cmpFn)
}

// CompareIDs orders identifiers naturally: the non-numeric prefix
// lexically, then the trailing number numerically, so "DE-BE-00009" sorts
// before "DE-BE-00010" and "ISSUE-9" before "ISSUE-10".
func CompareIDs(a, b string) int {
	pa, na, oka := splitID(a)
	pb, nb, okb := splitID(b)
	if c := cmp.Compare(pa, pb); c != 0 {
		return c
	}
	switch {
	case oka && okb:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
	case oka:
		return -1
	case okb:
		return 1
	}
	return cmp.Compare(a, b)
}

func splitID(id string) (prefix string, num int, ok bool) {
	end := len(id)
	start := strings.LastIndexFunc(id, func(r rune) bool { return !unicode.IsDigit(r) }) + 1
	if start >= end {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[start:end])
	if err != nil {
		return id, 0, false
	}
	return id[:start], n, true
}
