package catedral

import (
	"time"

	"github.com/shopspring/decimal"
)

type DonationStatus string

const (
	DonationPending    DonationStatus = "pending"
	DonationProcessing DonationStatus = "processing"
	DonationCompleted  DonationStatus = "completed"
	DonationFailed     DonationStatus = "failed"
	DonationRefunded   DonationStatus = "refunded"
)

var donationStatuses = []DonationStatus{DonationPending, DonationProcessing, DonationCompleted, DonationFailed, DonationRefunded}

func (s DonationStatus) Valid() bool {
	for _, st := range donationStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Final reports whether the provider confirmed an outcome that later stale callbacks must not undo.
func (s DonationStatus) Final() bool {
	return s == DonationCompleted || s == DonationRefunded
}

// CanTransition decides whether a donation in status from may be moved to status to.
//
// Re-applying the current status is always allowed so duplicate notifications converge.
// refunded is only reachable from completed, and completed/refunded never move back.
// failed may still become completed (a late approval means funds were captured), but
// never returns to pending or processing.
func CanTransition(from, to DonationStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch to {
	case DonationRefunded:
		return from == DonationCompleted
	case DonationCompleted:
		return from == DonationPending || from == DonationProcessing || from == DonationFailed
	case DonationFailed:
		return from == DonationPending || from == DonationProcessing
	case DonationProcessing:
		return from == DonationPending
	case DonationPending:
		return from == DonationProcessing
	}
	return false
}

// AllowedPredecessors lists every stored status from which a write of status to is accepted.
func AllowedPredecessors(to DonationStatus) []DonationStatus {
	var rez []DonationStatus
	for _, from := range donationStatuses {
		if CanTransition(from, to) {
			rez = append(rez, from)
		}
	}
	return rez
}

type DonationCampaign struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
	ImageURL    string `json:"image_url"`

	GoalAmount     decimal.NullDecimal `json:"goal_amount"`
	DefaultAmounts []decimal.Decimal   `json:"default_amounts"`
	MinAmount      decimal.Decimal     `json:"min_amount"`

	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Donation is one attempt to contribute to a campaign.
type Donation struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`

	DonorName  string `json:"donor_name"`
	DonorEmail string `json:"donor_email"`
	DonorPhone string `json:"donor_phone"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   DonationStatus  `json:"status"`

	Gateway              GatewayName         `json:"gateway"`
	Environment          Environment         `json:"environment"`
	ProviderPaymentID    string              `json:"provider_payment_id"`
	ProviderStatus       string              `json:"provider_status"`
	ProviderStatusDetail string              `json:"provider_status_detail"`
	PaymentType          string              `json:"payment_type"`
	ProviderAmount       decimal.NullDecimal `json:"provider_amount"`
	ReceiptURL           string              `json:"receipt_url"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CampaignBrief struct {
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
}

// DonationView is a donation joined with the title and image of its campaign.
type DonationView struct {
	Donation
	Campaign CampaignBrief `json:"donation_campaigns"`
}

// DonationUpdate is applied by the payment pipeline. Nil fields are left untouched.
type DonationUpdate struct {
	Status DonationStatus

	Gateway              *GatewayName
	Environment          *Environment
	ProviderPaymentID    *string
	ProviderStatus       *string
	ProviderStatusDetail *string
	PaymentType          *string
	ProviderAmount       *decimal.Decimal
	ReceiptURL           *string
}

// StatusChange reports what a guarded update did.
type StatusChange struct {
	Previous DonationStatus
	Current  DonationStatus
	Applied  bool
}

// Completed reports whether this update moved the donation into completed.
func (c *StatusChange) Completed() bool {
	return c != nil && c.Applied && c.Previous != DonationCompleted && c.Current == DonationCompleted
}

type DonationFilter struct {
	ID         *string
	CampaignID *string
	Status     *DonationStatus

	Gateway           *GatewayName
	ProviderPaymentID *string

	Limit  uint64
	Offset uint64
}

type CampaignFilter struct {
	ID     *string
	Slug   *string
	Active *bool

	Limit uint64
}

// CampaignUpdate is an administrator edit. Nil fields are left untouched.
type CampaignUpdate struct {
	Title       *string
	Description *string
	Slug        *string
	ImageURL    *string

	GoalAmount     *decimal.NullDecimal
	DefaultAmounts []decimal.Decimal
	MinAmount      *decimal.Decimal
	Active         *bool
}
