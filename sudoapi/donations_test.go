package sudoapi_test

import (
	"context"
	"errors"
	"testing"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/sudoapi"
	"github.com/shopspring/decimal"
)

func TestCreateDonation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	rez, err := h.base.CreateDonation(ctx, sudoapi.DonationRequest{
		CampaignID: "c1",
		Amount:     decimal.NewFromInt(50),
		DonorName:  "A",
		DonorEmail: "a@b.com",
		DonorPhone: "11999999999",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rez.PublicKey != "TEST-public" || rez.Environment != catedral.EnvironmentTest {
		t.Fatalf("Expected the test public key, got %q (%s)", rez.PublicKey, rez.Environment)
	}

	donations, err := h.store.Donations(ctx, catedral.DonationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(donations) != 1 {
		t.Fatalf("Expected exactly one donation, got %d", len(donations))
	}
	d := donations[0]
	if d.ID != rez.DonationID || d.Status != catedral.DonationPending || !d.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("Unexpected donation: %+v", d)
	}
	if d.Gateway != catedral.GatewayMercadoPago || d.Currency != "BRL" {
		t.Fatalf("Unexpected gateway/currency: %s %s", d.Gateway, d.Currency)
	}
}

func TestCreateDonationValidation(t *testing.T) {
	t.Parallel()
	valid := sudoapi.DonationRequest{
		CampaignID: "c1",
		Amount:     decimal.NewFromInt(50),
		DonorName:  "A",
		DonorEmail: "a@b.com",
		DonorPhone: "11999999999",
	}
	tests := map[string]struct {
		mutate func(r *sudoapi.DonationRequest)
		key    string
	}{
		"missing email":     {func(r *sudoapi.DonationRequest) { r.DonorEmail = "" }, "error.missing_required"},
		"missing phone":     {func(r *sudoapi.DonationRequest) { r.DonorPhone = "" }, "error.missing_required"},
		"missing campaign":  {func(r *sudoapi.DonationRequest) { r.CampaignID = "" }, "error.missing_required"},
		"bad email":         {func(r *sudoapi.DonationRequest) { r.DonorEmail = "not-an-email" }, "error.invalid_input"},
		"zero amount":       {func(r *sudoapi.DonationRequest) { r.Amount = decimal.Zero }, "error.invalid_amount"},
		"negative amount":   {func(r *sudoapi.DonationRequest) { r.Amount = decimal.NewFromInt(-3) }, "error.invalid_amount"},
		"below minimum":     {func(r *sudoapi.DonationRequest) { r.Amount = decimal.NewFromInt(1) }, "error.below_minimum"},
		"inactive campaign": {func(r *sudoapi.DonationRequest) { r.CampaignID = "old" }, "error.campaign_inactive"},
		"unknown campaign":  {func(r *sudoapi.DonationRequest) { r.CampaignID = "nope" }, "error.campaign_inactive"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			req := valid
			test.mutate(&req)
			_, err := h.base.CreateDonation(context.Background(), req)
			if !errors.Is(err, catedral.ErrValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			if msg := catedral.ErrorMessage("en", err); msg != catedral.GetText("en", test.key) {
				t.Fatalf("Expected message for %s, got %q", test.key, msg)
			}
			donations, _ := h.store.Donations(context.Background(), catedral.DonationFilter{})
			if len(donations) != 0 {
				t.Fatal("Donation inserted despite validation error")
			}
		})
	}
}

func TestCreateDonationEnvironment(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.store.SetSettings(&catedral.GatewaySettings{
		Gateway:           catedral.GatewayMercadoPago,
		TestPublicKey:     "TEST-public",
		LivePublicKey:     "APP_USR-public",
		ActiveEnvironment: catedral.EnvironmentLive,
	})
	rez, err := h.base.CreateDonation(context.Background(), sudoapi.DonationRequest{
		CampaignID: "c1", Amount: decimal.NewFromInt(10), DonorName: "A", DonorEmail: "a@b.com", DonorPhone: "1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rez.PublicKey != "APP_USR-public" {
		t.Fatalf("Expected the live key, got %q", rez.PublicKey)
	}
}

func TestCreateDonationMissingPublicKey(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.store.SetSettings(&catedral.GatewaySettings{
		Gateway:           catedral.GatewayMercadoPago,
		LivePublicKey:     "APP_USR-public",
		ActiveEnvironment: catedral.EnvironmentTest,
	})
	_, err := h.base.CreateDonation(context.Background(), sudoapi.DonationRequest{
		CampaignID: "c1", Amount: decimal.NewFromInt(10), DonorName: "A", DonorEmail: "a@b.com", DonorPhone: "1",
	})
	if !errors.Is(err, catedral.ErrConfiguration) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
	if catedral.ErrorCode(err) != 500 {
		t.Fatalf("Expected 500, got %d", catedral.ErrorCode(err))
	}
	donations, _ := h.store.Donations(context.Background(), catedral.DonationFilter{})
	if len(donations) != 0 {
		t.Fatal("Donation inserted without a public key")
	}
}
