// Package snapshot turns third-party location data (BTCMap elements,
// Overpass elements, or a previously written snapshot CSV) into canonical
// RawLocation records, and reads and writes the snapshot file.
package snapshot

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/satscheck/ledger-cli/internal/fetcher"
	"github.com/satscheck/ledger-cli/internal/model"
)

// categoryKeys are the OSM tags that name a venue's kind, in priority order.
var categoryKeys = []string{"amenity", "shop", "office", "tourism", "leisure", "craft"}

// DropReason explains why an upstream element produced no record.
type DropReason string

const (
	Kept              DropReason = ""
	DropDeleted       DropReason = "deleted"
	DropNoCoordinates DropReason = "no_coordinates"
	DropOutsideRegion DropReason = "outside_region"
)

// BTCMapElement is one entry of the BTCMap v2 elements feed.
type BTCMapElement struct {
	ID        string         `json:"id"` // "node:123"
	OSM       OSMElement     `json:"osm_json"`
	Tags      map[string]any `json:"tags"`
	DeletedAt string         `json:"deleted_at"`
}

// OSMElement is an OpenStreetMap element as returned by Overpass or
// embedded in a BTCMap element.
type OSMElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *LatLon           `json:"center"`
	Bounds *OSMBounds        `json:"bounds"`
	Tags   map[string]string `json:"tags"`
}

// LatLon is a point.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// OSMBounds is the extent of a way or relation.
type OSMBounds struct {
	MinLat float64 `json:"minlat"`
	MinLon float64 `json:"minlon"`
	MaxLat float64 `json:"maxlat"`
	MaxLon float64 `json:"maxlon"`
}

// position returns the element's point: its own coordinates, its center, or
// the middle of its bounds.
func (e OSMElement) position() (lat, lon float64, ok bool) {
	switch {
	case e.Lat != nil && e.Lon != nil:
		return *e.Lat, *e.Lon, true
	case e.Center != nil:
		return e.Center.Lat, e.Center.Lon, true
	case e.Bounds != nil:
		return (e.Bounds.MinLat + e.Bounds.MaxLat) / 2, (e.Bounds.MinLon + e.Bounds.MaxLon) / 2, true
	}
	return 0, 0, false
}

// Adapter normalizes upstream records for one region.
type Adapter struct {
	region Region
}

// NewAdapter returns an adapter for region.
func NewAdapter(region Region) *Adapter {
	return &Adapter{region: region}
}

// FromBTCMap normalizes a BTCMap element. Deleted elements and elements
// without a position inside the region are dropped.
func (a *Adapter) FromBTCMap(e BTCMapElement) (model.RawLocation, DropReason) {
	if strings.TrimSpace(e.DeletedAt) != "" {
		return model.RawLocation{}, DropDeleted
	}

	osmType, osmID, _ := strings.Cut(e.ID, ":")
	if osmID == "" {
		osmType = e.OSM.Type
		if e.OSM.ID != 0 {
			osmID = strconv.FormatInt(e.OSM.ID, 10)
		}
	}

	category, _ := e.Tags["category"].(string)
	return a.fromOSM(osmType, osmID, e.OSM, category)
}

// FromOverpass normalizes an Overpass element.
func (a *Adapter) FromOverpass(e OSMElement) (model.RawLocation, DropReason) {
	return a.fromOSM(e.Type, strconv.FormatInt(e.ID, 10), e, "")
}

func (a *Adapter) fromOSM(osmType, osmID string, e OSMElement, upstreamCategory string) (model.RawLocation, DropReason) {
	lat, lon, ok := e.position()
	if !ok || !ValidLatLon(lat, lon) {
		return model.RawLocation{}, DropNoCoordinates
	}
	if !a.region.Contains(lat, lon) {
		return model.RawLocation{}, DropOutsideRegion
	}

	tags := e.Tags
	tag := func(k string) string { return clean(tags[k]) }

	r := model.RawLocation{
		Name:                 tag("name"),
		Street:               tag("addr:street"),
		Housenumber:          tag("addr:housenumber"),
		Postcode:             tag("addr:postcode"),
		City:                 tag("addr:city"),
		Suburb:               tag("addr:suburb"),
		Lat:                  formatCoord(lat),
		Lon:                  formatCoord(lon),
		XBT:                  paymentFlag(tags["currency:XBT"]),
		BTC:                  paymentFlag(tags["currency:BTC"]),
		Onchain:              paymentFlag(tags["payment:onchain"]),
		Lightning:            paymentFlag(tags["payment:lightning"]),
		LightningContactless: tag("payment:lightning_contactless"),
		OpeningHours:         tag("opening_hours"),
		Website:              clean(firstNonEmpty(tags["website"], tags["contact:website"])),
		Phone:                clean(firstNonEmpty(tags["phone"], tags["contact:phone"])),
		SurveyDate:           tag("survey:date"),
		CheckDate:            tag("check_date"),
		OSMType:              strings.ToLower(clean(osmType)),
		OSMID:                clean(osmID),
	}

	r.Category = clean(upstreamCategory)
	for _, k := range categoryKeys {
		if v, ok := tags[k]; ok {
			r.CategoryKey = k
			r.Category = clean(v)
			break
		}
	}
	if r.Category == "" {
		r.Category = "other"
	}

	a.finish(&r)
	return r, Kept
}

// FromRecord normalizes a row of a flat snapshot CSV, accepting the column
// aliases older exports used. No region filter is applied.
func (a *Adapter) FromRecord(rec fetcher.Record) model.RawLocation {
	r := model.RawLocation{
		Name:                 clean(rec.Get("name")),
		CategoryKey:          clean(rec.Get("category_key")),
		Category:             clean(rec.Get("category")),
		Address:              clean(rec.Get("address")),
		Street:               clean(rec.Get("addr:street", "street")),
		Housenumber:          clean(rec.Get("addr:housenumber", "housenumber")),
		Postcode:             clean(rec.Get("addr:postcode", "postcode")),
		City:                 clean(rec.Get("addr:city", "city")),
		Suburb:               clean(rec.Get("addr:suburb", "suburb")),
		Lat:                  clean(rec.Get("lat", "latitude")),
		Lon:                  clean(rec.Get("lon", "longitude", "lng")),
		XBT:                  clean(rec.Get("xbt")),
		BTC:                  clean(rec.Get("btc")),
		Onchain:              clean(rec.Get("onchain")),
		Lightning:            clean(rec.Get("lightning")),
		LightningContactless: clean(rec.Get("payment:lightning_contactless", "lightning_contactless")),
		OpeningHours:         clean(rec.Get("opening_hours")),
		Website:              clean(rec.Get("website", "contact:website")),
		Phone:                clean(rec.Get("phone", "contact:phone")),
		SurveyDate:           clean(rec.Get("survey:date", "survey_date")),
		CheckDate:            clean(rec.Get("check_date")),
		OSMType:              strings.ToLower(clean(rec.Get("osm_type", "type"))),
		OSMID:                clean(rec.Get("osm_id", "id")),
		OSMURL:               clean(rec.Get("osm_url")),
	}
	a.finish(&r)
	return r
}

// finish fills the derived fields shared by every input shape.
func (a *Adapter) finish(r *model.RawLocation) {
	if r.Address == "" {
		r.Address = formatAddress(r)
	}
	if r.City == "" {
		r.City = a.region.DefaultCity
	}
	if r.OSMURL == "" {
		r.OSMURL = OSMURL(r.OSMType, r.OSMID)
	}
}

// OSMURL returns the openstreetmap.org page of an element, or "".
func OSMURL(osmType, osmID string) string {
	if osmType == "" || osmID == "" {
		return ""
	}
	return "https://www.openstreetmap.org/" + osmType + "/" + osmID
}

// BTCMapVerifyURL returns the btcmap.org form for confirming an element
// still accepts bitcoin, or "".
func BTCMapVerifyURL(osmType, osmID string) string {
	if osmType == "" || osmID == "" {
		return ""
	}
	return "https://btcmap.org/verify-location?id=" + osmType + ":" + osmID
}

func formatAddress(r *model.RawLocation) string {
	var parts []string
	if r.Street != "" {
		parts = append(parts, strings.TrimSpace(r.Street+" "+r.Housenumber))
	}
	if pc := strings.TrimSpace(r.Postcode + " " + r.City); pc != "" {
		parts = append(parts, pc)
	}
	if r.Suburb != "" {
		parts = append(parts, r.Suburb)
	}
	return strings.Join(parts, ", ")
}

// paymentFlag maps OSM yes/no tags to "True"/"False"; anything else is "".
func paymentFlag(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true":
		return "True"
	case "no", "false":
		return "False"
	}
	return ""
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// clean trims s and puts it in Unicode NFC so that composed and decomposed
// spellings of the same name compare equal.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Region returns the region the adapter filters by.
func (a *Adapter) Region() Region { return a.region }
