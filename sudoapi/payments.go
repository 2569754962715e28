package sudoapi

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/integrations/prometheus"
	"github.com/catedral-dev/catedral/internal/config"
	"github.com/catedral-dev/catedral/sudoapi/flags"
	"github.com/shopspring/decimal"
)

type ChargeRequest struct {
	DonationID string          `json:"donationId"`
	CampaignID string          `json:"campaignId"`
	Amount     decimal.Decimal `json:"amount"`

	Token           string `json:"paymentToken"`
	PaymentMethodID string `json:"paymentMethodId"`
	IssuerID        string `json:"issuerId"`
	Installments    int    `json:"installments"`

	DonorEmail     string                   `json:"donorEmail"`
	DonorName      string                   `json:"donorName"`
	DonorPhone     string                   `json:"donorPhone"`
	Identification *catedral.Identification `json:"identification"`

	// EnvironmentHint is an optional environment name or the public key the browser used.
	EnvironmentHint string `json:"environment"`
}

type ChargeResult struct {
	ProviderPaymentID string                  `json:"providerPaymentId"`
	Status            string                  `json:"status"`
	StatusDetail      string                  `json:"statusDetail"`
	PaymentMethodID   string                  `json:"paymentMethodId,omitempty"`
	DonationStatus    catedral.DonationStatus `json:"donationStatus"`
}

// Charge exchanges a client-side payment token for a provider charge and records the outcome
// on the donation before returning.
//
// The donation id is the idempotency key, so a retried charge never captures twice. Nothing is
// written unless the provider answered: timeouts and rejections leave the donation as it was.
func (s *BaseAPI) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.Token == "" {
		return nil, catedral.Validationf("error.missing_token", "Payment token not provided")
	}
	if req.PaymentMethodID == "" {
		return nil, catedral.Validationf("error.missing_payment_method", "Payment method not provided")
	}
	if req.Installments < 0 {
		return nil, catedral.Validationf("error.invalid_input", "Invalid installment count")
	}

	donation, err := s.Donation(ctx, req.DonationID)
	if err != nil {
		return nil, err
	}
	if donation.CampaignID != req.CampaignID || !donation.Amount.Equal(req.Amount) {
		return nil, catedral.Validationf("error.donation_mismatch", "Payment data does not match the donation")
	}
	if donation.Status.Final() {
		// Already settled by an earlier attempt or by a webhook.
		return &ChargeResult{
			ProviderPaymentID: donation.ProviderPaymentID,
			Status:            donation.ProviderStatus,
			StatusDetail:      donation.ProviderStatusDetail,
			DonationStatus:    donation.Status,
		}, nil
	}

	gw, err := s.donationGateway(donation)
	if err != nil {
		return nil, err
	}
	// The browser tokenized the card against the environment it was handed; without a hint the
	// donation keeps the environment it was created in.
	creds, err := s.secretCredentials(ctx, gw.Name(), cmp.Or(req.EnvironmentHint, string(donation.Environment)))
	if err != nil {
		return nil, err
	}

	email := req.DonorEmail
	if email == "" {
		email = donation.DonorEmail
	}
	name := req.DonorName
	if name == "" {
		name = donation.DonorName
	}
	chargeReq := catedral.ChargeRequest{
		DonationID:  donation.ID,
		CampaignID:  donation.CampaignID,
		Amount:      donation.Amount,
		Currency:    donation.Currency,
		Description: fmt.Sprintf("Doação - Campanha ID: %s", donation.CampaignID),

		Token:           req.Token,
		PaymentMethodID: req.PaymentMethodID,
		IssuerID:        req.IssuerID,
		Installments:    max(req.Installments, 1),

		PayerEmail:     email,
		PayerName:      name,
		Identification: req.Identification,

		NotificationURL: notificationURL(gw.Name()),
	}

	payment, err := s.callGateway(ctx, gw, "charge", func(ctx context.Context) (*catedral.ProviderPayment, error) {
		return gw.Charge(ctx, creds, chargeReq)
	})
	if err != nil {
		prometheus.Payments.WithLabelValues(string(gw.Name()), catedral.ErrorKindOf(err).String()).Inc()
		if errors.Is(err, catedral.ErrGatewayUnconfirmed) {
			attrs := []slog.Attr{slog.String("donation_id", donation.ID), slog.String("gateway", string(gw.Name()))}
			slog.LogAttrs(ctx, slog.LevelError, "Charge accepted but the provider answer could not be read", append(attrs, slog.Any("err", err))...)
			s.Alert(ctx, "Charge accepted by the provider but its answer could not be read. Manual reconciliation needed.", attrs...)
			return nil, err
		}
		slog.WarnContext(ctx, "Charge failed", slog.String("donation_id", donation.ID), slog.String("gateway", string(gw.Name())), slog.Any("err", err))
		return nil, err
	}

	status := gw.MapStatus(payment.Status)
	prometheus.Payments.WithLabelValues(string(gw.Name()), string(status)).Inc()

	// The provider has answered; the write must happen even if the donor went away.
	change, err := s.db.ApplyDonationUpdate(context.WithoutCancel(ctx), donation.ID, paymentUpdate(gw, creds.Environment, status, payment))
	if err != nil || change == nil {
		return nil, s.persistenceFailure(ctx, err, donation.ID, gw.Name(), payment.ID, status)
	}
	if !change.Applied {
		slog.WarnContext(ctx, "Charge result not applied over final donation status",
			slog.String("donation_id", donation.ID), slog.String("stored", string(change.Previous)), slog.String("provider", string(status)))
	}
	if change.Completed() {
		s.sendReceipt(ctx, donation.ID)
	}

	return &ChargeResult{
		ProviderPaymentID: payment.ID,
		Status:            payment.Status,
		StatusDetail:      payment.StatusDetail,
		PaymentMethodID:   payment.PaymentMethodID,
		DonationStatus:    change.Current,
	}, nil
}

// CreateCheckout creates a hosted checkout for a pending donation. The webhook settles it later.
func (s *BaseAPI) CreateCheckout(ctx context.Context, donationID string) (*catedral.Checkout, error) {
	donation, err := s.Donation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation.Status != catedral.DonationPending {
		return nil, catedral.Validationf("error.invalid_input", "Donation is not pending")
	}
	gw, err := s.donationGateway(donation)
	if err != nil {
		return nil, err
	}
	redirect, ok := gw.(catedral.RedirectCheckout)
	if !ok {
		return nil, catedral.Validationf("error.invalid_input", "Gateway %s does not offer a redirect checkout", gw.Name())
	}
	campaign, err := s.campaignFor(ctx, donation)
	if err != nil {
		return nil, err
	}
	creds, err := s.secretCredentials(ctx, gw.Name(), string(donation.Environment))
	if err != nil {
		return nil, err
	}

	back := returnURL(donation.ID)
	var checkout *catedral.Checkout
	_, err = s.callGateway(ctx, gw, "checkout", func(ctx context.Context) (*catedral.ProviderPayment, error) {
		var err error
		checkout, err = redirect.CreateCheckout(ctx, creds, catedral.CheckoutRequest{
			DonationID: donation.ID,
			Title:      campaign.Title,
			Amount:     donation.Amount,
			Currency:   donation.Currency,
			PayerEmail: donation.DonorEmail,
			PayerName:  donation.DonorName,

			SuccessURL:      back,
			FailureURL:      back,
			PendingURL:      back,
			NotificationURL: notificationURL(gw.Name()),
		})
		return nil, err
	})
	if err != nil {
		slog.WarnContext(ctx, "Checkout creation failed", slog.String("donation_id", donation.ID), slog.Any("err", err))
		return nil, err
	}
	return checkout, nil
}

type IntentResult struct {
	ClientSecret string `json:"clientSecret"`
	DonationID   string `json:"donationId"`
}

// CreateIntent creates a provider payment intent the browser confirms itself, and moves the
// donation to processing.
func (s *BaseAPI) CreateIntent(ctx context.Context, donationID string) (*IntentResult, error) {
	donation, err := s.Donation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation.Status != catedral.DonationPending && donation.Status != catedral.DonationProcessing {
		return nil, catedral.Validationf("error.invalid_input", "Donation is already settled")
	}
	gw, err := s.donationGateway(donation)
	if err != nil {
		return nil, err
	}
	creator, ok := gw.(catedral.IntentCreator)
	if !ok {
		return nil, catedral.Validationf("error.invalid_input", "Gateway %s does not support payment intents", gw.Name())
	}
	campaign, err := s.campaignFor(ctx, donation)
	if err != nil {
		return nil, err
	}
	creds, err := s.secretCredentials(ctx, gw.Name(), string(donation.Environment))
	if err != nil {
		return nil, err
	}

	var intent *catedral.Intent
	_, err = s.callGateway(ctx, gw, "intent", func(ctx context.Context) (*catedral.ProviderPayment, error) {
		var err error
		intent, err = creator.CreateIntent(ctx, creds, catedral.IntentRequest{
			DonationID:    donation.ID,
			CampaignID:    donation.CampaignID,
			CampaignTitle: campaign.Title,
			Amount:        donation.Amount,
			Currency:      donation.Currency,
			DonorName:     donation.DonorName,
			DonorEmail:    donation.DonorEmail,
			DonorPhone:    donation.DonorPhone,
		})
		return nil, err
	})
	if err != nil {
		slog.WarnContext(ctx, "Intent creation failed", slog.String("donation_id", donation.ID), slog.Any("err", err))
		return nil, err
	}

	name := gw.Name()
	change, err := s.db.ApplyDonationUpdate(context.WithoutCancel(ctx), donation.ID, catedral.DonationUpdate{
		Status:            catedral.DonationProcessing,
		Gateway:           &name,
		Environment:       &creds.Environment,
		ProviderPaymentID: &intent.ID,
		ProviderStatus:    &intent.Status,
	})
	if err != nil || change == nil {
		return nil, catedral.Persistence(err, "Couldn't store payment intent")
	}
	slog.InfoContext(ctx, "Payment intent created", slog.String("donation_id", donation.ID), slog.String("intent_id", intent.ID))

	return &IntentResult{ClientSecret: intent.ClientSecret, DonationID: donation.ID}, nil
}

// callGateway runs f under the gateway timeout and records its latency.
func (s *BaseAPI) callGateway(ctx context.Context, gw catedral.Gateway, op string, f func(ctx context.Context) (*catedral.ProviderPayment, error)) (*catedral.ProviderPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout())
	defer cancel()
	defer prometheus.ObserveGateway(string(gw.Name()), op, time.Now())

	payment, err := f(ctx)
	if err != nil && catedral.ErrorKindOf(err) == catedral.KindUnknown {
		err = catedral.GatewayUnavailable(err)
	}
	return payment, err
}

// donationGateway is the gateway the donation was created against.
func (s *BaseAPI) donationGateway(donation *catedral.Donation) (catedral.Gateway, error) {
	if donation.Gateway == "" {
		return s.ActiveGateway()
	}
	return s.gateway(donation.Gateway)
}

// persistenceFailure handles a provider answer that could not be written. The money may have
// moved, so this needs a human.
func (s *BaseAPI) persistenceFailure(ctx context.Context, err error, donationID string, gateway catedral.GatewayName, paymentID string, status catedral.DonationStatus) error {
	if err == nil {
		err = fmt.Errorf("donation %s vanished", donationID)
	}
	attrs := []slog.Attr{
		slog.String("donation_id", donationID),
		slog.String("gateway", string(gateway)),
		slog.String("provider_payment_id", paymentID),
		slog.String("mapped_status", string(status)),
	}
	slog.LogAttrs(ctx, slog.LevelError, "Payment processed but donation could not be updated", append(attrs, slog.Any("err", err))...)
	prometheus.PersistenceFailures.Inc()
	s.Alert(ctx, "Payment processed but donation could not be updated. Manual reconciliation needed.", attrs...)
	return catedral.Persistence(err, "Payment processed but the donation could not be updated")
}

// paymentUpdate turns a provider payment into the donation write for status. env is the
// credential environment the payment was seen through.
func paymentUpdate(gw catedral.Gateway, env catedral.Environment, status catedral.DonationStatus, payment *catedral.ProviderPayment) catedral.DonationUpdate {
	name := gw.Name()
	upd := catedral.DonationUpdate{
		Status:               status,
		Gateway:              &name,
		Environment:          &env,
		ProviderPaymentID:    &payment.ID,
		ProviderStatus:       &payment.Status,
		ProviderStatusDetail: &payment.StatusDetail,
	}
	if payment.ReceiptURL != "" {
		upd.ReceiptURL = &payment.ReceiptURL
	}
	if status == catedral.DonationCompleted {
		if payment.PaymentType != "" {
			upd.PaymentType = &payment.PaymentType
		}
		if payment.Amount.Valid {
			upd.ProviderAmount = &payment.Amount.Decimal
		}
	}
	return upd
}

// notificationURL is sent along with requests to gateways that accept a per-payment webhook URL.
func notificationURL(gateway catedral.GatewayName) string {
	if gateway != catedral.GatewayMercadoPago {
		return ""
	}
	base := strings.TrimSuffix(flags.PublicBaseURL.Value(), "/")
	if base == "" {
		return ""
	}
	return base + "/webhooks/payment-provider"
}

func returnURL(donationID string) string {
	return strings.TrimSuffix(config.Common.HostPrefix, "/") + "/doacoes/obrigado?donation_id=" + url.QueryEscape(donationID)
}
