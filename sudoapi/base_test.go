package sudoapi_test

import (
	"context"
	"testing"
	"time"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/internal/testutil"
	"github.com/catedral-dev/catedral/sudoapi"
	"github.com/shopspring/decimal"
)

type chanMailer chan *catedral.MailerMessage

func (m chanMailer) SendEmail(_ context.Context, msg *catedral.MailerMessage) error {
	m <- msg
	return nil
}

type harness struct {
	base   *sudoapi.BaseAPI
	store  *testutil.MemStore
	mp     *testutil.StubGateway
	stripe *testutil.StubGateway
	mails  chanMailer
}

func newHarness(t *testing.T, alerter sudoapi.AlertSender) *harness {
	t.Helper()
	h := &harness{
		store:  testutil.NewMemStore(),
		mp:     testutil.NewStubGateway(catedral.GatewayMercadoPago),
		stripe: testutil.NewStubGateway(catedral.GatewayStripe),
		mails:  make(chanMailer, 10),
	}
	testutil.Fixture(h.store)
	base, err := sudoapi.GetBaseAPI(h.store, []catedral.Gateway{h.mp, h.stripe}, h.mails, alerter)
	if err != nil {
		t.Fatalf("Couldn't build API: %v", err)
	}
	t.Cleanup(func() { base.Close() })
	h.base = base
	return h
}

func (h *harness) create(t *testing.T, amount int64) string {
	t.Helper()
	rez, err := h.base.CreateDonation(context.Background(), sudoapi.DonationRequest{
		CampaignID: "c1",
		Amount:     decimal.NewFromInt(amount),
		DonorName:  "A",
		DonorEmail: "a@b.com",
		DonorPhone: "11999999999",
	})
	if err != nil {
		t.Fatalf("Couldn't create donation: %v", err)
	}
	return rez.DonationID
}

func (h *harness) donation(t *testing.T, id string) *catedral.Donation {
	t.Helper()
	d, err := h.store.Donation(context.Background(), id)
	if err != nil || d == nil {
		t.Fatalf("Donation %s missing: %v", id, err)
	}
	return d
}

func chargeRequest(id string, amount int64) sudoapi.ChargeRequest {
	return sudoapi.ChargeRequest{
		DonationID:      id,
		CampaignID:      "c1",
		Amount:          decimal.NewFromInt(amount),
		Token:           "card-token",
		PaymentMethodID: "visa",
		DonorEmail:      "a@b.com",
		DonorName:       "A",
	}
}

func expectMail(t *testing.T, mails chanMailer) *catedral.MailerMessage {
	t.Helper()
	select {
	case msg := <-mails:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a receipt email")
	}
	return nil
}

func expectNoMail(t *testing.T, mails chanMailer) {
	t.Helper()
	select {
	case msg := <-mails:
		t.Fatalf("Unexpected email to %s", msg.To)
	case <-time.After(100 * time.Millisecond):
	}
}
