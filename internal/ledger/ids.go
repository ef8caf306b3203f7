package ledger

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/satscheck/ledger-cli/internal/model"
)

// ErrIDCollision means a freshly allocated location id is already taken.
// Allocation is monotonic, so this only happens when the ledger was edited
// underneath a run; the run aborts.
var ErrIDCollision = eris.New("ledger: location id collision")

// IDAllocator hands out location ids PREFIX-NNNNN, one above the highest
// suffix present when it was created.
type IDAllocator struct {
	prefix string
	next   int
	table  *Table[*model.Location]
}

// NewIDAllocator seeds an allocator from the ids in t.
func NewIDAllocator(prefix string, t *Table[*model.Location]) *IDAllocator {
	top := 0
	for _, l := range t.All() {
		if n, ok := IDSuffix(l.LocationID, prefix); ok && n > top {
			top = n
		}
	}
	return &IDAllocator{prefix: prefix, next: top + 1, table: t}
}

// Next returns the next id.
func (a *IDAllocator) Next() (string, error) {
	id := FormatID(a.prefix, a.next)
	if a.table.Has(id) {
		return "", eris.Wrapf(ErrIDCollision, "%s", id)
	}
	a.next++
	return id, nil
}

// FormatID renders a location id.
func FormatID(prefix string, n int) string {
	return fmt.Sprintf("%s-%05d", prefix, n)
}

// IDSuffix returns the numeric suffix of id if it is PREFIX-digits.
func IDSuffix(id, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok || rest == "" {
		return 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CompareLocationIDs orders ids under prefix by numeric suffix first, then
// every other id naturally.
func CompareLocationIDs(a, b, prefix string) int {
	na, oka := IDSuffix(a, prefix)
	nb, okb := IDSuffix(b, prefix)
	switch {
	case oka && okb:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	case oka:
		return -1
	case okb:
		return 1
	}
	return CompareIDs(a, b)
}
