package checks

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/satscheck/ledger-cli/internal/fetcher"
	"github.com/satscheck/ledger-cli/internal/model"
)

// Column names of the curated venue sheet export, with plain aliases.
var (
	sheetName    = []string{"Name Lokal bzw. Geschäft", "name"}
	sheetAddress = []string{"Adresse", "address"}
	sheetStatus  = []string{"Stand der Dinge (Bitte aktualisieren, wenn sich was geändert hat)", "Stand der Dinge", "status"}
)

// unratedStatus marks sheet rows nobody has visited yet.
const unratedStatus = "nicht bewertet"

// SheetStats counts the rows of a curated sheet.
type SheetStats struct {
	Rows       int
	Unrated    int
	Incomplete int
}

// LoadSheet reads a curated venue list exported from the maintainers'
// spreadsheet. Rows without a name or address, and rows still marked
// "Nicht bewertet", are skipped.
func LoadSheet(ctx context.Context, path string) ([]model.NewLocation, SheetStats, error) {
	var stats SheetStats
	f, err := os.Open(path)
	if err != nil {
		return nil, stats, eris.Wrapf(err, "checks: open sheet %s", path)
	}
	defer f.Close() //nolint:errcheck

	recs, errs := fetcher.StreamCSVRecords(ctx, f, nil)
	var out []model.NewLocation
	for rec := range recs {
		stats.Rows++
		name := rec.Get(sheetName...)
		addr := rec.Get(sheetAddress...)
		if name == "" || addr == "" {
			stats.Incomplete++
			continue
		}
		if strings.HasPrefix(strings.ToLower(rec.Get(sheetStatus...)), unratedStatus) {
			stats.Unrated++
			continue
		}

		street, number, postcode, city := ParseAddress(addr)
		out = append(out, model.NewLocation{
			Name:        name,
			Street:      street,
			Housenumber: number,
			Postcode:    postcode,
			City:        city,
		})
	}
	if err := <-errs; err != nil {
		return nil, stats, eris.Wrapf(err, "checks: read sheet %s", path)
	}
	return out, stats, nil
}

// ParseAddress splits a German "Street No, PLZ City" address. The house
// number is the last word of the street part and the postcode the first
// word of the city part. An address without a comma yields nothing.
func ParseAddress(addr string) (street, housenumber, postcode, city string) {
	var parts []string
	for _, p := range strings.Split(addr, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", "", "", ""
	}

	street = parts[0]
	if i := strings.LastIndex(street, " "); i >= 0 {
		street, housenumber = street[:i], street[i+1:]
	}

	city = parts[1]
	if f := strings.Fields(city); len(f) >= 2 {
		postcode = f[0]
		city = strings.TrimSpace(strings.TrimPrefix(city, f[0]))
	}
	return strings.TrimSpace(street), strings.TrimSpace(housenumber), postcode, city
}
