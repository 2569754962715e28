package sudoapi

import (
	"context"
	"log/slog"

	"github.com/catedral-dev/catedral"
)

// ResolveStatus returns the donation joined with its campaign. When the caller knows the
// provider transaction id, the provider is asked first and a confirmed approval is recorded,
// covering the case where both the charge response and the webhook were lost. Lookup failures
// there are only logged.
func (s *BaseAPI) ResolveStatus(ctx context.Context, donationID, providerTxID string) (*catedral.DonationView, error) {
	donation, err := s.Donation(ctx, donationID)
	if err != nil {
		return nil, err
	}

	if providerTxID != "" && donation.Status != catedral.DonationCompleted && donation.Status != catedral.DonationRefunded {
		s.confirmFromProvider(ctx, donation, providerTxID)
	}

	view, err := s.db.DonationView(ctx, donation.ID)
	if err != nil {
		return nil, WrapError(err, "Couldn't read donation")
	}
	if view == nil {
		return nil, catedral.NotFoundf("Donation not found")
	}
	return view, nil
}

func (s *BaseAPI) confirmFromProvider(ctx context.Context, donation *catedral.Donation, providerTxID string) {
	gw, err := s.donationGateway(donation)
	if err != nil {
		return
	}
	payment, env, err := s.fetchPayment(ctx, gw, donation.Environment, providerTxID)
	if err != nil {
		slog.WarnContext(ctx, "Provider lookup failed", slog.String("donation_id", donation.ID), slog.String("payment_id", providerTxID), slog.Any("err", err))
		return
	}

	status := gw.MapStatus(payment.Status)
	if status != catedral.DonationCompleted {
		return
	}
	// The transaction id comes from the browser; only trust it for its own donation.
	if payment.ExternalReference != donation.ID && (payment.ExternalReference != "" || payment.ID != donation.ProviderPaymentID) {
		slog.WarnContext(ctx, "Provider transaction belongs to another donation",
			slog.String("donation_id", donation.ID), slog.String("payment_id", payment.ID), slog.String("external_reference", payment.ExternalReference))
		return
	}

	change, err := s.db.ApplyDonationUpdate(context.WithoutCancel(ctx), donation.ID, paymentUpdate(gw, env, status, payment))
	if err != nil || change == nil {
		_ = s.persistenceFailure(ctx, err, donation.ID, gw.Name(), payment.ID, status)
		return
	}
	if change.Completed() {
		slog.InfoContext(ctx, "Donation completed from status check", slog.String("donation_id", donation.ID))
		s.sendReceipt(ctx, donation.ID)
	}
}
