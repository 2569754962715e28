package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/api"
	"github.com/catedral-dev/catedral/internal/testutil"
	"github.com/catedral-dev/catedral/sudoapi"
	"github.com/catedral-dev/catedral/sudoapi/flags"
	"github.com/shopspring/decimal"
)

type server struct {
	srv   *httptest.Server
	store *testutil.MemStore
	mp    *testutil.StubGateway
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{
		store: testutil.NewMemStore(),
		mp:    testutil.NewStubGateway(catedral.GatewayMercadoPago),
	}
	testutil.Fixture(s.store)
	base, err := sudoapi.GetBaseAPI(s.store, []catedral.Gateway{s.mp, testutil.NewStubGateway(catedral.GatewayStripe)}, nil, nil)
	if err != nil {
		t.Fatalf("Couldn't build API: %v", err)
	}
	s.srv = httptest.NewServer(api.New(base).Handler())
	t.Cleanup(func() {
		s.srv.Close()
		base.Close()
	})
	return s
}

func (s *server) do(t *testing.T, method, path string, body any, header http.Header) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("Invalid JSON response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func (s *server) createDonation(t *testing.T) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/donations", map[string]any{
		"campaignId": "c1",
		"amount":     50,
		"donorName":  "Maria",
		"donorEmail": "maria@example.com",
		"donorPhone": "11999999999",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %v", code, body)
	}
	id, _ := body["donationId"].(string)
	if id == "" {
		t.Fatalf("No donation id in %v", body)
	}
	return id
}

func payment(id string) map[string]any {
	return map[string]any{
		"donationId": id,
		"campaignId": "c1",
		"amount":     50,
		"paymentData": map[string]any{
			"token":             "card-token",
			"payment_method_id": "visa",
			"issuer_id":         25,
			"installments":      1,
			"payer":             map[string]any{"email": "maria@example.com"},
		},
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		if code, body := s.do(t, http.MethodGet, path, nil, nil); code != http.StatusOK || body["status"] != "ok" {
			t.Fatalf("%s: %d %v", path, code, body)
		}
	}
}

func TestCreateDonation(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	code, body := s.do(t, http.MethodPost, "/donations", map[string]any{
		"campaignId": "c1",
		"amount":     "50.00",
		"donorName":  "Maria",
		"donorEmail": "maria@example.com",
		"donorPhone": "11999999999",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %v", code, body)
	}
	if body["publicKey"] != "TEST-public" || body["gateway"] != "mercadopago" || body["environment"] != "test" {
		t.Fatalf("Unexpected body: %v", body)
	}
}

func TestCreateDonationLocalizedErrors(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	tests := map[string]struct {
		lang string
		body string
		msg  string
	}{
		"missing en":    {"en-US,en;q=0.9", `{"campaignId":"c1","amount":50}`, "Missing required fields."},
		"missing pt":    {"pt-BR", `{"campaignId":"c1","amount":50}`, "Dados obrigatórios ausentes."},
		"no header":     {"", `{"campaignId":"c1","amount":50}`, "Dados obrigatórios ausentes."},
		"bad json":      {"en", `{"campaignId":`, "Invalid data. Check the fields and try again."},
		"inactive":      {"en", `{"campaignId":"old","amount":50,"donorName":"A","donorEmail":"a@b.com","donorPhone":"1"}`, "Campaign not found or inactive."},
		"below minimum": {"en", `{"campaignId":"c1","amount":1,"donorName":"A","donorEmail":"a@b.com","donorPhone":"1"}`, "The amount is below the minimum allowed for this campaign."},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			header := http.Header{}
			if test.lang != "" {
				header.Set("Accept-Language", test.lang)
			}
			code, body := s.do(t, http.MethodPost, "/donations", test.body, header)
			if code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", code)
			}
			if body["error"] != test.msg || body["kind"] != "validation" {
				t.Fatalf("Unexpected body: %v", body)
			}
		})
	}
}

func TestPaymentApproved(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	id := s.createDonation(t)

	code, body := s.do(t, http.MethodPost, "/payments", payment(id), nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, body)
	}
	if body["status"] != "approved" || body["donationStatus"] != "completed" || body["providerPaymentId"] != "pay-1" {
		t.Fatalf("Unexpected body: %v", body)
	}

	code, body = s.do(t, http.MethodPost, "/donations/status", map[string]any{"donationId": id}, nil)
	if code != http.StatusOK || body["status"] != "completed" {
		t.Fatalf("Unexpected status: %d %v", code, body)
	}
	campaign, _ := body["donation_campaigns"].(map[string]any)
	if campaign["title"] != "Reforma da Catedral" {
		t.Fatalf("Campaign not joined: %v", body)
	}
}

func TestPaymentFailures(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		err    error
		code   int
		kind   string
		detail string
	}{
		"rejected":    {catedral.GatewayRejected("Saldo insuficiente", "cc_rejected_insufficient_amount"), 400, "gateway_rejected", "cc_rejected_insufficient_amount"},
		"timeout":     {catedral.GatewayTimeout(errors.New("deadline exceeded")), 504, "gateway_timeout", ""},
		"unavailable": {catedral.GatewayUnavailable(errors.New("connection refused")), 503, "gateway_unavailable", ""},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := newServer(t)
			s.mp.ChargeFunc = func(catedral.ChargeRequest) (*catedral.ProviderPayment, error) {
				return nil, test.err
			}
			id := s.createDonation(t)
			code, body := s.do(t, http.MethodPost, "/payments", payment(id), nil)
			if code != test.code || body["kind"] != test.kind {
				t.Fatalf("Expected %d %s, got %d: %v", test.code, test.kind, code, body)
			}
			if detail, _ := body["status_detail"].(string); detail != test.detail {
				t.Fatalf("Unexpected status detail %q", detail)
			}
			if _, ok := body["donationId"]; ok {
				t.Fatalf("Donation id leaked for a %s error", test.kind)
			}
		})
	}
}

func TestPaymentPersistenceFailure(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	id := s.createDonation(t)
	s.store.ApplyErr = errors.New("connection reset")

	code, body := s.do(t, http.MethodPost, "/payments", payment(id), nil)
	if code != http.StatusInternalServerError || body["kind"] != "persistence" {
		t.Fatalf("Expected persistence failure, got %d: %v", code, body)
	}
	if body["donationId"] != id {
		t.Fatalf("Donation id not reported: %v", body)
	}
	if strings.Contains(body["error"].(string), "connection reset") {
		t.Fatalf("Internal error leaked: %v", body)
	}
}

func TestPaymentUnconfirmed(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	id := s.createDonation(t)
	s.mp.ChargeFunc = func(catedral.ChargeRequest) (*catedral.ProviderPayment, error) {
		return nil, catedral.GatewayUnconfirmed(errors.New("invalid Mercado Pago response"))
	}

	code, body := s.do(t, http.MethodPost, "/payments", payment(id), nil)
	if code != http.StatusBadGateway || body["kind"] != "gateway_unconfirmed" || body["donationId"] != id {
		t.Fatalf("Expected an unconfirmed charge with the donation id, got %d: %v", code, body)
	}
}

func TestDonationStatusNotFound(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	for _, id := range []string{"nope", "0190b6a4-0000-7000-8000-000000000000"} {
		code, body := s.do(t, http.MethodPost, "/donations/status", map[string]any{"donationId": id}, nil)
		if code != http.StatusNotFound || body["kind"] != "not_found" {
			t.Fatalf("%s: expected 404, got %d %v", id, code, body)
		}
	}
}

func TestDonationStatusConfirmsFromProvider(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	id := s.createDonation(t)
	s.mp.SetPayment(&catedral.ProviderPayment{
		ID: "987", Status: "approved", ExternalReference: id,
		Amount: decimal.NewNullDecimal(decimal.NewFromInt(50)),
	})

	code, body := s.do(t, http.MethodPost, "/donations/status", `{"donationId":"`+id+`","providerTransactionId":987}`, nil)
	if code != http.StatusOK || body["status"] != "completed" || body["provider_payment_id"] != "987" {
		t.Fatalf("Unexpected status: %d %v", code, body)
	}
}

func TestMercadoPagoWebhook(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	id := s.createDonation(t)
	s.mp.SetPayment(&catedral.ProviderPayment{
		ID: "123", Status: "approved", ExternalReference: id,
		Amount: decimal.NewNullDecimal(decimal.NewFromInt(50)),
	})

	notif := `{"id":555,"type":"payment","action":"payment.updated","data":{"id":"123"}}`
	for i := range 2 {
		code, body := s.do(t, http.MethodPost, "/webhooks/payment-provider", notif, nil)
		if code != http.StatusOK || body["received"] != true {
			t.Fatalf("Delivery %d: %d %v", i+1, code, body)
		}
	}
	d, _ := s.store.Donation(t.Context(), id)
	if d.Status != catedral.DonationCompleted || d.ProviderPaymentID != "123" {
		t.Fatalf("Donation not reconciled: %+v", d)
	}

	code, body := s.do(t, http.MethodPost, "/webhooks/payment-provider?type=merchant_order&data.id=9", nil, nil)
	if code != http.StatusOK || body["outcome"] != catedral.OutcomeIgnored {
		t.Fatalf("Irrelevant notification: %d %v", code, body)
	}

	code, _ = s.do(t, http.MethodPost, "/webhooks/payment-provider", "not json", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for garbage, got %d", code)
	}
}

func TestMercadoPagoWebhookRetryableFailure(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	s.mp.FetchErr = catedral.GatewayUnavailable(errors.New("connection refused"))

	code, _ := s.do(t, http.MethodPost, "/webhooks/payment-provider?type=payment&data.id=1", nil, nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 so the provider retries, got %d", code)
	}
}

func TestMercadoPagoWebhookSignature(t *testing.T) {
	flags.MercadoPagoWebhookSecret.Update("whsec")
	t.Cleanup(func() { flags.MercadoPagoWebhookSecret.Update("") })
	s := newServer(t)

	header := http.Header{}
	header.Set("X-Signature", "ts=1,v1=deadbeef")
	header.Set("X-Request-Id", "req-1")
	code, _ := s.do(t, http.MethodPost, "/webhooks/payment-provider?type=payment&data.id=1", nil, header)
	if code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/webhooks/payment-provider?type=payment&data.id=1", nil, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for an unsigned Webhooks delivery, got %d", code)
	}
	code, _ = s.do(t, http.MethodPost, "/webhooks/payment-provider?topic=payment&id=1", nil, header)
	if code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for a badly signed IPN delivery, got %d", code)
	}
}

func TestMercadoPagoUnsignedIPN(t *testing.T) {
	flags.MercadoPagoWebhookSecret.Update("whsec")
	t.Cleanup(func() { flags.MercadoPagoWebhookSecret.Update("") })
	s := newServer(t)
	id := s.createDonation(t)
	s.mp.SetPayment(&catedral.ProviderPayment{
		ID: "123", Status: "approved", ExternalReference: id,
		Amount: decimal.NewNullDecimal(decimal.NewFromInt(50)),
	})

	code, body := s.do(t, http.MethodPost, "/webhooks/payment-provider?topic=payment&id=123", nil, nil)
	if code != http.StatusOK || body["outcome"] != catedral.OutcomeApplied {
		t.Fatalf("IPN delivery refused: %d %v", code, body)
	}
	d, _ := s.store.Donation(t.Context(), id)
	if d.Status != catedral.DonationCompleted {
		t.Fatalf("Donation not reconciled from IPN: %s", d.Status)
	}
}

func TestStripeWebhookWithoutSecret(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	code, body := s.do(t, http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`, nil)
	if code != http.StatusInternalServerError || body["kind"] != "configuration" {
		t.Fatalf("Expected configuration error, got %d %v", code, body)
	}
}

func TestCampaigns(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	req, _ := http.NewRequest(http.MethodGet, s.srv.URL+"/campaigns", nil)
	resp, err := s.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var campaigns []catedral.DonationCampaign
	if err := json.NewDecoder(resp.Body).Decode(&campaigns); err != nil {
		t.Fatal(err)
	}
	if len(campaigns) != 1 || campaigns[0].ID != "c1" {
		t.Fatalf("Expected only the active campaign, got %+v", campaigns)
	}

	code, body := s.do(t, http.MethodGet, "/campaigns/reforma-da-catedral", nil, nil)
	if code != http.StatusOK || body["id"] != "c1" {
		t.Fatalf("Unexpected campaign: %d %v", code, body)
	}
	if code, _ := s.do(t, http.MethodGet, "/campaigns/missing", nil, nil); code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", code)
	}
}
