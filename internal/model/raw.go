package model

// RawLocation is the canonical, schema-agnostic snapshot record produced by
// the snapshot adapter. Every field is a plain string; absent values are "".
type RawLocation struct {
	Name                 string `csv:"name" json:"name"`
	CategoryKey          string `csv:"category_key" json:"category_key"`
	Category             string `csv:"category" json:"category"`
	Address              string `csv:"address" json:"address"`
	Street               string `csv:"addr:street" json:"street"`
	Housenumber          string `csv:"addr:housenumber" json:"housenumber"`
	Postcode             string `csv:"addr:postcode" json:"postcode"`
	City                 string `csv:"addr:city" json:"city"`
	Suburb               string `csv:"addr:suburb" json:"suburb"`
	Lat                  string `csv:"lat" json:"lat"`
	Lon                  string `csv:"lon" json:"lon"`
	XBT                  string `csv:"xbt" json:"xbt"`
	BTC                  string `csv:"btc" json:"btc"`
	Onchain              string `csv:"onchain" json:"onchain"`
	Lightning            string `csv:"lightning" json:"lightning"`
	LightningContactless string `csv:"payment:lightning_contactless" json:"lightning_contactless"`
	OpeningHours         string `csv:"opening_hours" json:"opening_hours"`
	Website              string `csv:"website" json:"website"`
	Phone                string `csv:"phone" json:"phone"`
	SurveyDate           string `csv:"survey:date" json:"survey_date"`
	CheckDate            string `csv:"check_date" json:"check_date"`
	OSMType              string `csv:"osm_type" json:"osm_type"`
	OSMID                string `csv:"osm_id" json:"osm_id"`
	OSMURL               string `csv:"osm_url" json:"osm_url"`
}

// CompositeKey returns the normalized external key of the record.
func (r *RawLocation) CompositeKey() string { return CompositeKey(r.OSMType, r.OSMID) }
