// Package model defines the ledger records, the canonical snapshot record and
// the structured submission input.
package model

import "strings"

// Confidence describes how much a location's data is trusted.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// NewLocationStatus tracks community-submitted locations through confirmation.
// Empty means the location came from the external source.
type NewLocationStatus string

const (
	NewLocationNone      NewLocationStatus = ""
	NewLocationPending   NewLocationStatus = "pending"
	NewLocationConfirmed NewLocationStatus = "confirmed"
)

// LocationStatusActive is the curated status of a venue in use.
const LocationStatusActive = "active"

// SourceTag names the field that produced a location's effective
// last-verification date.
type SourceTag string

const (
	SourceNone       SourceTag = ""
	SourceCheckDate  SourceTag = "check_date"
	SourceSurveyDate SourceTag = "survey:date"
	SourceLocalCheck SourceTag = "local_check"
)

// Location is one row of the location ledger. Column order follows field
// order and must not change.
type Location struct {
	LocationID string `csv:"location_id"`

	// Externally sourced, owned by the reconciler.
	OSMType      string     `csv:"osm_type"`
	OSMID        string     `csv:"osm_id"`
	BTCMapURL    string     `csv:"btcmap_url"`
	Name         string     `csv:"name"`
	Category     string     `csv:"category"`
	Street       string     `csv:"street"`
	Housenumber  string     `csv:"housenumber"`
	Postcode     string     `csv:"postcode"`
	City         string     `csv:"city"`
	Lat          Coordinate `csv:"lat"`
	Lon          Coordinate `csv:"lon"`
	Website      string     `csv:"website"`
	OpeningHours string     `csv:"opening_hours"`

	// Verification state, owned by the check appender.
	LastVerifiedAt         Date       `csv:"last_verified_at"`
	VerifiedByCount        Count      `csv:"verified_by_count"`
	VerificationConfidence Confidence `csv:"verification_confidence"`

	BountyBaseSats     Sats `csv:"bounty_base_sats"`
	BountyCriticalSats Sats `csv:"bounty_critical_sats"`
	BountyNewEntrySats Sats `csv:"bounty_new_entry_sats"`

	NewLocationStatus NewLocationStatus `csv:"new_location_status"`
	EligibleNow       YesNo             `csv:"eligible_now"`
	LastCheckID       string            `csv:"last_check_id"`
	LastUpdatedAt     Date              `csv:"last_updated_at"`

	// Derived eligibility, owned by the cooldown calculator.
	SourceLastUpdate    Date      `csv:"source_last_update"`
	SourceLastUpdateTag SourceTag `csv:"source_last_update_tag"`
	CooldownUntil       Date      `csv:"cooldown_until"`
	CooldownDaysLeft    Count     `csv:"cooldown_days_left"`
	EligibleForCheck    YesNo     `csv:"eligible_for_check"`

	// Curated by maintainers; imports seed it as active.
	LocationStatus string `csv:"location_status"`
}

// Key returns the ledger primary key.
func (l *Location) Key() string { return l.LocationID }

// CompositeKey returns the normalized external key, or "" when either part
// is missing.
func (l *Location) CompositeKey() string { return CompositeKey(l.OSMType, l.OSMID) }

// CompositeKey builds the "type:id" external key. The type is lower-cased and
// both parts trimmed; an empty part yields "".
func CompositeKey(osmType, osmID string) string {
	t := strings.ToLower(strings.TrimSpace(osmType))
	id := strings.TrimSpace(osmID)
	if t == "" || id == "" {
		return ""
	}
	return t + ":" + id
}

// SetEligibility keeps eligible_now and eligible_for_check in sync.
func (l *Location) SetEligibility(eligible bool) {
	l.EligibleNow = YesNo(eligible)
	l.EligibleForCheck = YesNo(eligible)
}
