// Package stripe is the second payment gateway, built on PaymentIntents.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/catedral-dev/catedral"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var _ catedral.Gateway = &Gateway{}
var _ catedral.IntentCreator = &Gateway{}

// Synthetic statuses derived from more than PaymentIntent.Status.
const (
	statusPaymentFailed = "payment_failed"
	statusRefunded      = "refunded"
)

type Gateway struct {
	// apiURL overrides the Stripe API endpoint (tests).
	apiURL string
	http   *http.Client
}

func New(apiURL string) *Gateway {
	return &Gateway{
		apiURL: apiURL,
		http:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (g *Gateway) Name() catedral.GatewayName {
	return catedral.GatewayStripe
}

func (g *Gateway) MapStatus(providerStatus string) catedral.DonationStatus {
	return MapStatus(providerStatus)
}

// MapStatus translates a PaymentIntent status (or one of the synthetic ones). Unknown values stay pending.
func MapStatus(status string) catedral.DonationStatus {
	switch status {
	case string(stripe.PaymentIntentStatusSucceeded):
		return catedral.DonationCompleted
	case string(stripe.PaymentIntentStatusCanceled), statusPaymentFailed:
		return catedral.DonationFailed
	case string(stripe.PaymentIntentStatusProcessing):
		return catedral.DonationProcessing
	case statusRefunded:
		return catedral.DonationRefunded
	default:
		return catedral.DonationPending
	}
}

func (g *Gateway) client(creds catedral.Credentials) *stripe.Client {
	cfg := &stripe.BackendConfig{
		HTTPClient: g.http,
		// A charge is never re-submitted behind the caller's back.
		MaxNetworkRetries: stripe.Int64(0),
	}
	if g.apiURL != "" {
		cfg.URL = stripe.String(g.apiURL)
	}
	return stripe.NewClient(string(creds.SecretKey), stripe.WithBackends(stripe.NewBackendsWithConfig(cfg)))
}

// Charge confirms a PaymentIntent server-side with a PaymentMethod id created in the browser.
func (g *Gateway) Charge(ctx context.Context, creds catedral.Credentials, req catedral.ChargeRequest) (*catedral.ProviderPayment, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(toCents(req.Amount)),
		Currency:      stripe.String(currency(req.Currency)),
		PaymentMethod: stripe.String(req.Token),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.PayerEmail != "" {
		params.ReceiptEmail = stripe.String(req.PayerEmail)
	}
	params.SetIdempotencyKey(req.DonationID)
	params.AddMetadata("donation_id", req.DonationID)
	params.AddMetadata("campaign_id", req.CampaignID)
	params.AddExpand("latest_charge")

	pi, err := g.client(creds).V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	return canonical(pi), nil
}

func (g *Gateway) FetchPayment(ctx context.Context, creds catedral.Credentials, paymentID string) (*catedral.ProviderPayment, error) {
	params := &stripe.PaymentIntentRetrieveParams{}
	params.AddExpand("latest_charge")
	pi, err := g.client(creds).V1PaymentIntents.Retrieve(ctx, paymentID, params)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	return canonical(pi), nil
}

// CreateIntent creates an unconfirmed PaymentIntent the browser confirms with Stripe.js.
func (g *Gateway) CreateIntent(ctx context.Context, creds catedral.Credentials, req catedral.IntentRequest) (*catedral.Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:      stripe.Int64(toCents(req.Amount)),
		Currency:    stripe.String(currency(req.Currency)),
		Description: stripe.String(fmt.Sprintf("Doação - %s", req.CampaignTitle)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.DonorEmail != "" {
		params.ReceiptEmail = stripe.String(req.DonorEmail)
	}
	params.SetIdempotencyKey("intent-" + req.DonationID)
	params.AddMetadata("donation_id", req.DonationID)
	params.AddMetadata("campaign_id", req.CampaignID)
	params.AddMetadata("donor_name", req.DonorName)
	params.AddMetadata("donor_email", req.DonorEmail)
	params.AddMetadata("donor_phone", req.DonorPhone)

	pi, err := g.client(creds).V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	return &catedral.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func canonical(pi *stripe.PaymentIntent) *catedral.ProviderPayment {
	p := &catedral.ProviderPayment{
		ID:                pi.ID,
		Status:            string(pi.Status),
		ExternalReference: pi.Metadata["donation_id"],
	}
	if len(pi.PaymentMethodTypes) > 0 {
		p.PaymentType = pi.PaymentMethodTypes[0]
	}
	if pi.AmountReceived > 0 {
		p.Amount = decimal.NewNullDecimal(decimal.New(pi.AmountReceived, -2))
	}
	if pi.LastPaymentError != nil {
		p.StatusDetail = lastErrorCode(pi.LastPaymentError)
		if pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod {
			p.Status = statusPaymentFailed
		}
	}
	if ch := pi.LatestCharge; ch != nil {
		p.ReceiptURL = ch.ReceiptURL
		if ch.PaymentMethodDetails != nil && ch.PaymentMethodDetails.Type != "" {
			p.PaymentType = string(ch.PaymentMethodDetails.Type)
		}
		if ch.Refunded {
			p.Status = statusRefunded
		}
	}
	return p
}

func lastErrorCode(e *stripe.Error) string {
	if e.DeclineCode != "" {
		return string(e.DeclineCode)
	}
	return string(e.Code)
}

func classifyError(ctx context.Context, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode >= 500:
			return catedral.GatewayUnavailable(err)
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			return catedral.Configurationf("Stripe rejected the configured secret key")
		case stripeErr.HTTPStatusCode == http.StatusNotFound:
			return catedral.NotFoundf("Payment not found at Stripe")
		case stripeErr.HTTPStatusCode >= 400:
			return catedral.GatewayRejected(stripeErr.Msg, lastErrorCode(stripeErr))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return catedral.GatewayTimeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return catedral.GatewayTimeout(err)
	}
	return catedral.GatewayUnavailable(err)
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func currency(c string) string {
	if c == "" {
		return "brl"
	}
	return strings.ToLower(c)
}
