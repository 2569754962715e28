package sudoapi_test

import (
	"context"
	"errors"
	"testing"

	"github.com/catedral-dev/catedral"
)

func TestResolveStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown", func(t *testing.T) {
		h := newHarness(t, nil)
		for _, id := range []string{"0190a3e4-0000-7000-8000-000000000000", "not-a-uuid", ""} {
			if _, err := h.base.ResolveStatus(ctx, id, ""); !errors.Is(err, catedral.ErrNotFound) {
				t.Fatalf("%q: expected not found, got %v", id, err)
			}
		}
	})

	t.Run("view", func(t *testing.T) {
		h := newHarness(t, nil)
		id := h.create(t, 50)
		view, err := h.base.ResolveStatus(ctx, id, "")
		if err != nil {
			t.Fatal(err)
		}
		if view.ID != id || view.Status != catedral.DonationPending || view.Campaign.Title != "Reforma da Catedral" {
			t.Fatalf("Unexpected view: %+v", view)
		}
	})

	t.Run("completed stays completed", func(t *testing.T) {
		h := newHarness(t, nil)
		id := h.create(t, 50)
		rez, err := h.base.Charge(ctx, chargeRequest(id, 50))
		if err != nil {
			t.Fatal(err)
		}
		h.mp.SetPayment(&catedral.ProviderPayment{ID: rez.ProviderPaymentID, Status: "pending", ExternalReference: id})
		view, err := h.base.ResolveStatus(ctx, id, rez.ProviderPaymentID)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != catedral.DonationCompleted {
			t.Fatalf("Stale lookup regressed donation to %s", view.Status)
		}
	})

	t.Run("lost confirmation", func(t *testing.T) {
		h := newHarness(t, nil)
		id, paymentID := pendingCharge(t, h)
		h.mp.SetPayment(&catedral.ProviderPayment{ID: paymentID, Status: "approved", ExternalReference: id})
		view, err := h.base.ResolveStatus(ctx, id, paymentID)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != catedral.DonationCompleted {
			t.Fatalf("Expected completed, got %s", view.Status)
		}
		expectMail(t, h.mails)
	})

	t.Run("lost confirmation in live", func(t *testing.T) {
		h := newHarness(t, nil)
		h.mp.ChargeFunc = func(catedral.ChargeRequest) (*catedral.ProviderPayment, error) {
			return &catedral.ProviderPayment{Status: "in_process"}, nil
		}
		id := h.create(t, 50)
		req := chargeRequest(id, 50)
		req.EnvironmentHint = "live"
		rez, err := h.base.Charge(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		h.mp.SetPayment(&catedral.ProviderPayment{ID: rez.ProviderPaymentID, Status: "approved", ExternalReference: id})
		view, err := h.base.ResolveStatus(ctx, id, rez.ProviderPaymentID)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != catedral.DonationCompleted {
			t.Fatalf("Expected completed, got %s", view.Status)
		}
		if envs := h.mp.FetchEnvironments(); len(envs) != 1 || envs[0] != catedral.EnvironmentLive {
			t.Fatalf("Status check fetched with %v", envs)
		}
		expectMail(t, h.mails)
	})

	t.Run("failed lookup is not fatal", func(t *testing.T) {
		h := newHarness(t, nil)
		id, paymentID := pendingCharge(t, h)
		h.mp.FetchErr = catedral.GatewayTimeout(context.DeadlineExceeded)
		view, err := h.base.ResolveStatus(ctx, id, paymentID)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if view.Status != catedral.DonationPending {
			t.Fatalf("Expected pending, got %s", view.Status)
		}
	})

	t.Run("foreign transaction", func(t *testing.T) {
		h := newHarness(t, nil)
		id, _ := pendingCharge(t, h)
		h.mp.SetPayment(&catedral.ProviderPayment{ID: "999", Status: "approved", ExternalReference: "0190a3e4-0000-7000-8000-000000000001"})
		view, err := h.base.ResolveStatus(ctx, id, "999")
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != catedral.DonationPending {
			t.Fatalf("Another donation's payment completed this one")
		}
	})

	t.Run("non-final lookup", func(t *testing.T) {
		h := newHarness(t, nil)
		id, paymentID := pendingCharge(t, h)
		h.mp.SetPayment(&catedral.ProviderPayment{ID: paymentID, Status: "rejected", ExternalReference: id})
		view, err := h.base.ResolveStatus(ctx, id, paymentID)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != catedral.DonationPending {
			t.Fatalf("Status check only records approvals, got %s", view.Status)
		}
	})
}
