package model

import (
	"fmt"
	"strings"
)

// Submission labels understood by the appender.
const (
	LabelNewLocation    = "new-location"
	LabelCriticalChange = "critical-change"
)

// Submission is the structured output of the submission-extraction layer.
// The core never sees raw issue text.
type Submission struct {
	Number      int      `json:"number"`
	CheckID     string   `json:"check_id,omitempty"`
	LocationID  string   `json:"location_id,omitempty"`
	CheckType   string   `json:"check_type,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	SubmitterID string   `json:"submitter_id,omitempty"`
	SubmittedAt string   `json:"submitted_at,omitempty"`

	ReviewStatus ReviewStatus `json:"review_status,omitempty"`
	ReviewedAt   string       `json:"reviewed_at,omitempty"`
	ReviewerID   string       `json:"reviewer_id,omitempty"`

	PublicPostURL    string `json:"public_post_url,omitempty"`
	ReceiptProofURL  string `json:"receipt_proof_url,omitempty"`
	PaymentProofURL  string `json:"payment_proof_url,omitempty"`
	VenuePhotoURL    string `json:"venue_photo_url,omitempty"`
	ProofHash        string `json:"proof_hash,omitempty"`
	Observations     string `json:"observations,omitempty"`
	SuggestedUpdates string `json:"suggested_updates,omitempty"`

	NewLocation *NewLocation `json:"new_location,omitempty"`
}

// NewLocation carries the venue details of a community-submitted location.
type NewLocation struct {
	Name         string `json:"name"`
	Category     string `json:"category,omitempty"`
	Street       string `json:"street,omitempty"`
	Housenumber  string `json:"housenumber,omitempty"`
	Postcode     string `json:"postcode,omitempty"`
	City         string `json:"city,omitempty"`
	Lat          string `json:"lat,omitempty"`
	Lon          string `json:"lon,omitempty"`
	Website      string `json:"website,omitempty"`
	OpeningHours string `json:"opening_hours,omitempty"`
	OSMType      string `json:"osm_type,omitempty"`
	OSMID        string `json:"osm_id,omitempty"`
}

// ResolvedCheckID returns the explicit check id, or one derived from the
// submission number. Empty when neither is present.
func (s *Submission) ResolvedCheckID() string {
	if id := strings.TrimSpace(s.CheckID); id != "" {
		return id
	}
	if s.Number > 0 {
		return fmt.Sprintf("ISSUE-%d", s.Number)
	}
	return ""
}

// HasLabel reports whether the submission carries label (case-insensitive,
// "_" and "-" treated alike).
func (s *Submission) HasLabel(label string) bool {
	want := normalizeLabel(label)
	for _, l := range s.Labels {
		if normalizeLabel(l) == want {
			return true
		}
	}
	return false
}

// IsNewLocation reports whether the submission proposes a new location.
func (s *Submission) IsNewLocation() bool {
	return s.NewLocation != nil || s.HasLabel(LabelNewLocation)
}

// ResolvedCheckType picks the explicit check type, then the critical-change
// label, else base.
func (s *Submission) ResolvedCheckType() CheckType {
	switch CheckType(strings.ToLower(strings.TrimSpace(s.CheckType))) {
	case CheckTypeBase:
		return CheckTypeBase
	case CheckTypeCriticalChange:
		return CheckTypeCriticalChange
	}
	if s.HasLabel(LabelCriticalChange) {
		return CheckTypeCriticalChange
	}
	return CheckTypeBase
}

func normalizeLabel(l string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(l)), "_", "-")
}
