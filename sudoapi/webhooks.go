package sudoapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/integrations/prometheus"
	"github.com/google/uuid"
)

// Reconcile settles a donation from a gateway notification. The notification body is never
// trusted: the payment is re-fetched from the provider and the guarded status update makes
// redeliveries converge on the same row.
//
// An error means the gateway should retry later (provider lookup or database failure).
// Unknown payments and donations are acknowledged.
func (s *BaseAPI) Reconcile(ctx context.Context, n catedral.Notification) (string, error) {
	if !n.Relevant {
		prometheus.Webhooks.WithLabelValues(string(n.Gateway), catedral.OutcomeIgnored).Inc()
		return catedral.OutcomeIgnored, nil
	}

	record, err := s.db.RecordNotification(ctx, n)
	if err != nil {
		slog.WarnContext(ctx, "Couldn't record payment notification", slog.Any("err", err))
	} else if record.Deliveries > 1 {
		slog.DebugContext(ctx, "Notification redelivered", slog.String("event_id", n.EventID), slog.Int("deliveries", record.Deliveries))
	}

	outcome, err := s.reconcile(ctx, n)
	if err != nil {
		prometheus.Webhooks.WithLabelValues(string(n.Gateway), "error").Inc()
		slog.WarnContext(ctx, "Webhook reconciliation failed",
			slog.String("gateway", string(n.Gateway)), slog.String("payment_id", n.PaymentID), slog.Any("err", err))
		return "", err
	}
	prometheus.Webhooks.WithLabelValues(string(n.Gateway), outcome).Inc()

	if record != nil {
		if err := s.db.MarkNotificationProcessed(ctx, record.ID, outcome); err != nil {
			slog.WarnContext(ctx, "Couldn't mark notification processed", slog.Int64("id", record.ID), slog.Any("err", err))
		}
	}
	return outcome, nil
}

func (s *BaseAPI) reconcile(ctx context.Context, n catedral.Notification) (string, error) {
	gw, err := s.gateway(n.Gateway)
	if err != nil {
		return "", err
	}
	// A donation that already carries this payment id says which credentials to ask with.
	var env catedral.Environment
	known, err := s.db.DonationByProviderPayment(ctx, gw.Name(), n.PaymentID)
	if err != nil {
		return "", catedral.Persistence(err, "Couldn't look up donation")
	}
	if known != nil {
		env = known.Environment
	}

	payment, env, err := s.fetchPayment(ctx, gw, env, n.PaymentID)
	if errors.Is(err, catedral.ErrNotFound) {
		slog.InfoContext(ctx, "Notified payment unknown to provider", slog.String("gateway", string(gw.Name())), slog.String("payment_id", n.PaymentID))
		return catedral.OutcomeIgnored, nil
	} else if err != nil {
		return "", err
	}

	donation, err := s.donationForPayment(ctx, gw.Name(), payment)
	if err != nil {
		return "", catedral.Persistence(err, "Couldn't look up donation")
	}
	if donation == nil {
		slog.InfoContext(ctx, "No donation for notified payment",
			slog.String("payment_id", payment.ID), slog.String("external_reference", payment.ExternalReference))
		return catedral.OutcomeUnknown, nil
	}
	if payment.Amount.Valid && !payment.Amount.Decimal.Equal(donation.Amount) {
		s.Alert(ctx, "Provider amount differs from donation amount",
			slog.String("donation_id", donation.ID), slog.String("payment_id", payment.ID),
			slog.String("donation_amount", donation.Amount.String()), slog.String("provider_amount", payment.Amount.Decimal.String()))
	}

	status := gw.MapStatus(payment.Status)
	change, err := s.db.ApplyDonationUpdate(ctx, donation.ID, paymentUpdate(gw, env, status, payment))
	if err != nil {
		return "", catedral.Persistence(err, "Couldn't update donation")
	}
	if change == nil {
		return catedral.OutcomeUnknown, nil
	}
	if !change.Applied {
		slog.InfoContext(ctx, "Stale provider status ignored",
			slog.String("donation_id", donation.ID), slog.String("stored", string(change.Previous)), slog.String("provider", string(status)))
		return catedral.OutcomeRejected, nil
	}

	slog.InfoContext(ctx, "Donation reconciled",
		slog.String("donation_id", donation.ID), slog.String("from", string(change.Previous)), slog.String("to", string(change.Current)))
	if change.Completed() {
		s.sendReceipt(ctx, donation.ID)
	}
	return catedral.OutcomeApplied, nil
}

// donationForPayment follows the external reference first and falls back to the stored
// provider payment id.
func (s *BaseAPI) donationForPayment(ctx context.Context, gateway catedral.GatewayName, payment *catedral.ProviderPayment) (*catedral.Donation, error) {
	if _, err := uuid.Parse(payment.ExternalReference); err == nil {
		donation, err := s.db.Donation(ctx, payment.ExternalReference)
		if err != nil || donation != nil {
			return donation, err
		}
	}
	if payment.ID == "" {
		return nil, nil
	}
	return s.db.DonationByProviderPayment(ctx, gateway, payment.ID)
}

// fetchPayment asks the provider about paymentID with the credentials of env, or the active
// environment when env is empty. A payment unknown there is asked about once more with the other
// environment's credentials, if any are stored. The environment that answered is returned.
func (s *BaseAPI) fetchPayment(ctx context.Context, gw catedral.Gateway, env catedral.Environment, paymentID string) (*catedral.ProviderPayment, catedral.Environment, error) {
	creds, err := s.secretCredentials(ctx, gw.Name(), string(env))
	if err != nil {
		return nil, "", err
	}
	payment, err := s.callGateway(ctx, gw, "fetch", func(ctx context.Context) (*catedral.ProviderPayment, error) {
		return gw.FetchPayment(ctx, creds, paymentID)
	})
	if !errors.Is(err, catedral.ErrNotFound) {
		return payment, creds.Environment, err
	}

	other, oerr := s.secretCredentials(ctx, gw.Name(), string(creds.Environment.Other()))
	if oerr != nil {
		return nil, "", err
	}
	payment, err = s.callGateway(ctx, gw, "fetch", func(ctx context.Context) (*catedral.ProviderPayment, error) {
		return gw.FetchPayment(ctx, other, paymentID)
	})
	if err == nil {
		slog.InfoContext(ctx, "Payment found with the other environment's credentials",
			slog.String("payment_id", paymentID), slog.String("environment", string(other.Environment)))
	}
	return payment, other.Environment, err
}
