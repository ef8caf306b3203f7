package snapshot

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

var world = geom.NewBounds(geom.XY).Set(-180, -90, 180, 90)

// Region is the area the ledger covers: a bounding box plus the city name
// used when a record carries none.
type Region struct {
	Name        string
	DefaultCity string
	bounds      *geom.Bounds
}

// NewRegion builds a region from a lat/lon bounding box.
func NewRegion(name, defaultCity string, minLat, minLon, maxLat, maxLon float64) (Region, error) {
	if !ValidLatLon(minLat, minLon) || !ValidLatLon(maxLat, maxLon) {
		return Region{}, eris.Errorf("snapshot: region %q: bounding box outside lat/lon range", name)
	}
	if minLat >= maxLat || minLon >= maxLon {
		return Region{}, eris.Errorf("snapshot: region %q: empty bounding box", name)
	}
	return Region{
		Name:        name,
		DefaultCity: defaultCity,
		bounds:      geom.NewBounds(geom.XY).Set(minLon, minLat, maxLon, maxLat),
	}, nil
}

// Contains reports whether the point lies in the bounding box, edges
// included. A region without a box contains every point.
func (r Region) Contains(lat, lon float64) bool {
	if r.bounds == nil {
		return true
	}
	return r.bounds.OverlapsPoint(geom.XY, geom.Coord{lon, lat})
}

// BBox returns the box as south, west, north, east.
func (r Region) BBox() (south, west, north, east float64) {
	if r.bounds == nil {
		return -90, -180, 90, 180
	}
	return r.bounds.Min(1), r.bounds.Min(0), r.bounds.Max(1), r.bounds.Max(0)
}

// ValidLatLon reports whether lat/lon is a finite point on the globe.
func ValidLatLon(lat, lon float64) bool {
	for _, v := range []float64{lat, lon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return world.OverlapsPoint(geom.XY, geom.Coord{lon, lat})
}
