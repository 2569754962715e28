package catedral

import "time"

const Version = "v0.3.0"

// DefaultCurrency is used for campaigns and donations that do not specify one.
const DefaultCurrency = "BRL"

// PaymentNotification is one entry in the log of webhook deliveries received from gateways.
// Retries of the same event share an entry and only bump Deliveries.
type PaymentNotification struct {
	ID         int64       `json:"id" db:"id"`
	Gateway    GatewayName `json:"gateway" db:"gateway"`
	EventID    string      `json:"event_id" db:"event_id"`
	Topic      string      `json:"topic" db:"topic"`
	PaymentID  string      `json:"payment_id" db:"payment_id"`
	Deliveries int         `json:"deliveries" db:"deliveries"`

	Outcome     string     `json:"outcome" db:"outcome"`
	ReceivedAt  time.Time  `json:"received_at" db:"received_at"`
	ProcessedAt *time.Time `json:"processed_at" db:"processed_at"`
}

const (
	OutcomeApplied  = "applied"
	OutcomeIgnored  = "ignored"
	OutcomeUnknown  = "unknown_donation"
	OutcomeRejected = "rejected_transition"
)
