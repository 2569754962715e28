package catedral

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type GatewayName string

const (
	GatewayMercadoPago GatewayName = "mercadopago"
	GatewayStripe      GatewayName = "stripe"
)

func (g GatewayName) Valid() bool {
	return g == GatewayMercadoPago || g == GatewayStripe
}

type Environment string

const (
	EnvironmentTest Environment = "test"
	EnvironmentLive Environment = "live"
)

func (e Environment) Valid() bool {
	return e == EnvironmentTest || e == EnvironmentLive
}

// Other is the opposite credential environment.
func (e Environment) Other() Environment {
	if e == EnvironmentLive {
		return EnvironmentTest
	}
	return EnvironmentLive
}

// Secret is a credential value that must never reach logs or API responses.
type Secret string

func (s Secret) LogValue() slog.Value {
	if s == "" {
		return slog.StringValue("")
	}
	return slog.StringValue("[redacted]")
}

// Masked keeps only the last 4 characters, for admin screens.
func (s Secret) Masked() string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + string(s[len(s)-4:])
}

// GatewaySettings is one row per payment gateway, edited by administrators.
type GatewaySettings struct {
	Gateway GatewayName `json:"gateway"`

	TestPublicKey string `json:"test_public_key"`
	TestSecretKey Secret `json:"-"`
	LivePublicKey string `json:"live_public_key"`
	LiveSecretKey Secret `json:"-"`

	ActiveEnvironment Environment `json:"active_environment"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// GatewaySettingsUpdate is an administrator edit. Nil fields are left untouched.
type GatewaySettingsUpdate struct {
	TestPublicKey     *string
	TestSecretKey     *Secret
	LivePublicKey     *string
	LiveSecretKey     *Secret
	ActiveEnvironment *Environment
}

type Credentials struct {
	Environment Environment
	PublicKey   string
	SecretKey   Secret
}

func (s *GatewaySettings) Credentials(env Environment) Credentials {
	if env == EnvironmentLive {
		return Credentials{Environment: env, PublicKey: s.LivePublicKey, SecretKey: s.LiveSecretKey}
	}
	return Credentials{Environment: EnvironmentTest, PublicKey: s.TestPublicKey, SecretKey: s.TestSecretKey}
}

// ResolveEnvironment picks test or live credentials. hint may be an environment name or a
// public key whose prefix identifies its environment; otherwise the stored active environment wins.
func (s *GatewaySettings) ResolveEnvironment(hint string) Environment {
	if env := Environment(hint); env.Valid() {
		return env
	}
	if env, ok := EnvironmentFromKey(hint); ok {
		return env
	}
	if s.ActiveEnvironment == EnvironmentLive {
		return EnvironmentLive
	}
	return EnvironmentTest
}

var keyPrefixes = []struct {
	prefix string
	env    Environment
}{
	{"TEST-", EnvironmentTest},
	{"APP_USR-", EnvironmentLive},
	{"pk_test_", EnvironmentTest},
	{"pk_live_", EnvironmentLive},
}

func EnvironmentFromKey(key string) (Environment, bool) {
	for _, p := range keyPrefixes {
		if strings.HasPrefix(key, p.prefix) {
			return p.env, true
		}
	}
	return "", false
}

type Identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// ChargeRequest is what the orchestrator submits to a gateway. DonationID doubles as the
// idempotency key and as the cross-reference the webhook uses to find the donation.
type ChargeRequest struct {
	DonationID  string
	CampaignID  string
	Amount      decimal.Decimal
	Currency    string
	Description string

	Token           string
	PaymentMethodID string
	IssuerID        string
	Installments    int

	PayerEmail     string
	PayerName      string
	Identification *Identification

	NotificationURL string
}

// ProviderPayment is the canonical view of a payment object fetched from a gateway.
type ProviderPayment struct {
	ID                string
	Status            string
	StatusDetail      string
	PaymentType       string
	PaymentMethodID   string
	Amount            decimal.NullDecimal
	ExternalReference string
	ReceiptURL        string
}

// Gateway is a payment provider able to charge a client-side token and to report the
// authoritative state of a payment by id.
type Gateway interface {
	Name() GatewayName
	MapStatus(providerStatus string) DonationStatus
	Charge(ctx context.Context, creds Credentials, req ChargeRequest) (*ProviderPayment, error)
	FetchPayment(ctx context.Context, creds Credentials, paymentID string) (*ProviderPayment, error)
}

type CheckoutRequest struct {
	DonationID string
	Title      string
	Amount     decimal.Decimal
	Currency   string
	PayerEmail string
	PayerName  string

	SuccessURL      string
	FailureURL      string
	PendingURL      string
	NotificationURL string
}

type Checkout struct {
	PreferenceID string `json:"preferenceId"`
	RedirectURL  string `json:"redirectUrl"`
}

// RedirectCheckout is implemented by gateways offering a hosted, redirect-based checkout.
type RedirectCheckout interface {
	CreateCheckout(ctx context.Context, creds Credentials, req CheckoutRequest) (*Checkout, error)
}

type IntentRequest struct {
	DonationID    string
	CampaignID    string
	CampaignTitle string
	Amount        decimal.Decimal
	Currency      string
	DonorName     string
	DonorEmail    string
	DonorPhone    string
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// IntentCreator is implemented by gateways where the browser confirms a server-created intent.
type IntentCreator interface {
	CreateIntent(ctx context.Context, creds Credentials, req IntentRequest) (*Intent, error)
}

// Notification is the canonical form of every webhook shape a gateway may send.
type Notification struct {
	Gateway GatewayName
	// EventID identifies the delivery for the notification log; it is stable across retries.
	EventID   string
	Topic     string
	Action    string
	PaymentID string
	// Relevant is false for recognized events that carry nothing to reconcile.
	Relevant bool
}
