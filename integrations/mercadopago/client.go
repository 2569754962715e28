// Package mercadopago talks to the Mercado Pago payments API: card-token charges,
// payment lookups and checkout preferences.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/catedral-dev/catedral"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultBaseURL = "https://api.mercadopago.com"

var _ catedral.Gateway = &Client{}
var _ catedral.RedirectCheckout = &Client{}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API at baseURL. Request deadlines come from the caller's context.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (c *Client) Name() catedral.GatewayName {
	return catedral.GatewayMercadoPago
}

func (c *Client) MapStatus(providerStatus string) catedral.DonationStatus {
	return MapStatus(providerStatus)
}

// MapStatus translates a Mercado Pago payment status. Unknown values stay pending.
func MapStatus(status string) catedral.DonationStatus {
	switch status {
	case "approved":
		return catedral.DonationCompleted
	case "rejected", "cancelled":
		return catedral.DonationFailed
	case "in_process", "pending":
		return catedral.DonationPending
	case "refunded", "charged_back":
		return catedral.DonationRefunded
	default:
		return catedral.DonationPending
	}
}

type payer struct {
	Email          string                   `json:"email,omitempty"`
	FirstName      string                   `json:"first_name,omitempty"`
	Identification *catedral.Identification `json:"identification,omitempty"`
}

type paymentRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Token             string      `json:"token"`
	Description       string      `json:"description"`
	Installments      int         `json:"installments"`
	PaymentMethodID   string      `json:"payment_method_id"`
	IssuerID          string      `json:"issuer_id,omitempty"`
	Payer             payer       `json:"payer"`
	ExternalReference string      `json:"external_reference"`
	NotificationURL   string      `json:"notification_url,omitempty"`
}

type payment struct {
	ID                 int64               `json:"id"`
	Status             string              `json:"status"`
	StatusDetail       string              `json:"status_detail"`
	PaymentTypeID      string              `json:"payment_type_id"`
	PaymentMethodID    string              `json:"payment_method_id"`
	TransactionAmount  decimal.NullDecimal `json:"transaction_amount"`
	ExternalReference  string              `json:"external_reference"`
	TransactionDetails struct {
		ExternalResourceURL string `json:"external_resource_url"`
	} `json:"transaction_details"`
}

func (p *payment) canonical() *catedral.ProviderPayment {
	return &catedral.ProviderPayment{
		ID:                strconv.FormatInt(p.ID, 10),
		Status:            p.Status,
		StatusDetail:      p.StatusDetail,
		PaymentType:       p.PaymentTypeID,
		PaymentMethodID:   p.PaymentMethodID,
		Amount:            p.TransactionAmount,
		ExternalReference: p.ExternalReference,
		ReceiptURL:        p.TransactionDetails.ExternalResourceURL,
	}
}

type apiError struct {
	Message      string `json:"message"`
	Error        string `json:"error"`
	Status       int    `json:"status"`
	StatusDetail string `json:"status_detail"`
	Cause        []struct {
		Code        any    `json:"code"`
		Description string `json:"description"`
	} `json:"cause"`
}

func (e *apiError) reason() string {
	if len(e.Cause) > 0 && e.Cause[0].Description != "" {
		return e.Cause[0].Description
	}
	if e.Message != "" {
		return e.Message
	}
	return "Erro ao processar pagamento"
}

// Charge creates a payment from a card token. The donation id is sent both as the
// idempotency key and as external_reference.
func (c *Client) Charge(ctx context.Context, creds catedral.Credentials, req catedral.ChargeRequest) (*catedral.ProviderPayment, error) {
	installments := req.Installments
	if installments < 1 {
		installments = 1
	}
	body := paymentRequest{
		TransactionAmount: json.Number(req.Amount.StringFixed(2)),
		Token:             req.Token,
		Description:       req.Description,
		Installments:      installments,
		PaymentMethodID:   req.PaymentMethodID,
		IssuerID:          req.IssuerID,
		Payer: payer{
			Email:          req.PayerEmail,
			FirstName:      req.PayerName,
			Identification: req.Identification,
		},
		ExternalReference: req.DonationID,
		NotificationURL:   req.NotificationURL,
	}

	var rez payment
	if err := c.do(ctx, creds, http.MethodPost, "/v1/payments", req.DonationID, body, &rez); err != nil {
		return nil, err
	}
	return rez.canonical(), nil
}

func (c *Client) FetchPayment(ctx context.Context, creds catedral.Credentials, paymentID string) (*catedral.ProviderPayment, error) {
	if _, err := strconv.ParseInt(paymentID, 10, 64); err != nil {
		return nil, catedral.NotFoundf("Invalid Mercado Pago payment id")
	}
	var rez payment
	if err := c.do(ctx, creds, http.MethodGet, "/v1/payments/"+paymentID, "", nil, &rez); err != nil {
		return nil, err
	}
	return rez.canonical(), nil
}

type preferenceItem struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unit_price"`
	CurrencyID string      `json:"currency_id,omitempty"`
}

type preferenceRequest struct {
	Items             []preferenceItem `json:"items"`
	Payer             payer            `json:"payer"`
	ExternalReference string           `json:"external_reference"`
	BackURLs          struct {
		Success string `json:"success"`
		Failure string `json:"failure"`
		Pending string `json:"pending"`
	} `json:"back_urls"`
	AutoReturn      string `json:"auto_return,omitempty"`
	NotificationURL string `json:"notification_url,omitempty"`
}

type preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CreateCheckout creates a checkout preference. Test credentials get the sandbox URL.
func (c *Client) CreateCheckout(ctx context.Context, creds catedral.Credentials, req catedral.CheckoutRequest) (*catedral.Checkout, error) {
	body := preferenceRequest{
		Items: []preferenceItem{{
			ID:         req.DonationID,
			Title:      req.Title,
			Quantity:   1,
			UnitPrice:  json.Number(req.Amount.StringFixed(2)),
			CurrencyID: req.Currency,
		}},
		Payer:             payer{Email: req.PayerEmail, FirstName: req.PayerName},
		ExternalReference: req.DonationID,
		NotificationURL:   req.NotificationURL,
	}
	body.BackURLs.Success = req.SuccessURL
	body.BackURLs.Failure = req.FailureURL
	body.BackURLs.Pending = req.PendingURL
	if req.SuccessURL != "" {
		body.AutoReturn = "approved"
	}

	var rez preference
	if err := c.do(ctx, creds, http.MethodPost, "/checkout/preferences", req.DonationID, body, &rez); err != nil {
		return nil, err
	}
	url := rez.InitPoint
	if creds.Environment == catedral.EnvironmentTest && rez.SandboxInitPoint != "" {
		url = rez.SandboxInitPoint
	}
	return &catedral.Checkout{PreferenceID: rez.ID, RedirectURL: url}, nil
}

func (c *Client) do(ctx context.Context, creds catedral.Credentials, method, path, idempotencyKey string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+string(creds.SecretKey))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return classifyTransportError(ctx, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(data, out); err != nil {
			err = fmt.Errorf("invalid Mercado Pago response: %w", err)
			if method == http.MethodGet {
				return catedral.GatewayUnavailable(err)
			}
			// The request went through; whatever it created exists at the provider.
			return catedral.GatewayUnconfirmed(err)
		}
		return nil
	case resp.StatusCode >= 500:
		return catedral.GatewayUnavailable(fmt.Errorf("mercado pago returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		slog.WarnContext(ctx, "Mercado Pago refused credentials", slog.Int("status", resp.StatusCode), slog.String("environment", string(creds.Environment)))
		return catedral.Configurationf("Mercado Pago rejected the configured access token")
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return catedral.NotFoundf("Payment not found at Mercado Pago")
	default:
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err != nil {
			return catedral.GatewayRejected("", "")
		}
		return catedral.GatewayRejected(apiErr.reason(), apiErr.StatusDetail)
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return catedral.GatewayTimeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return catedral.GatewayTimeout(err)
	}
	return catedral.GatewayUnavailable(err)
}
