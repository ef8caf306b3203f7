package model

// CheckType distinguishes a routine check from a report of a critical change.
type CheckType string

const (
	CheckTypeBase           CheckType = "base"
	CheckTypeCriticalChange CheckType = "critical_change"
)

// ReviewStatus is the maintainer decision on a submission.
type ReviewStatus string

const (
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewPending  ReviewStatus = "pending"
)

// PaidStatus is the payout state of a check. The transition pending → paid
// belongs to the external payout process.
type PaidStatus string

const (
	PaidPending              PaidStatus = "pending"
	PaidAwaitingConfirmation PaidStatus = "awaiting_confirmation"
	PaidPaid                 PaidStatus = "paid"
)

// Check is one row of the check ledger. Rows are append-only: apart from
// the payout columns nothing rewrites a check once it is written, so the
// columns the ledger never computes with keep their cell text.
type Check struct {
	CheckID     string    `csv:"check_id"`
	LocationID  string    `csv:"location_id"`
	SubmitterID string    `csv:"submitter_id"`
	SubmittedAt string    `csv:"submitted_at"`
	CheckType   CheckType `csv:"check_type"`

	PublicPostURL    string `csv:"public_post_url"`
	ReceiptProofURL  string `csv:"receipt_proof_url"`
	PaymentProofURL  string `csv:"payment_proof_url"`
	VenuePhotoURL    string `csv:"venue_photo_url"`
	ProofHash        string `csv:"proof_hash"`
	ObservationsPub  string `csv:"observations_public"`
	SuggestedUpdates string `csv:"suggested_updates"`

	ReviewStatus          ReviewStatus `csv:"review_status"`
	ReviewedAt            Date         `csv:"reviewed_at"`
	ReviewerID            string       `csv:"reviewer_id"`
	RejectionReasonPublic string       `csv:"rejection_reason_public"`

	BaseBountySats  Sats   `csv:"base_bounty_sats"`
	ActivityFactor  string `csv:"activity_factor"`
	FinalBountySats Sats   `csv:"final_bounty_sats"`

	PaidStatus PaidStatus `csv:"paid_status"`
	PaidAt     string     `csv:"paid_at"` // owned by the payout process
}

// Key returns the ledger primary key.
func (c *Check) Key() string { return c.CheckID }
