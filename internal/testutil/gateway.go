package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/integrations/mercadopago"
	"github.com/catedral-dev/catedral/integrations/stripe"
	"github.com/shopspring/decimal"
)

var (
	_ catedral.Gateway          = &StubGateway{}
	_ catedral.RedirectCheckout = &StubGateway{}
	_ catedral.IntentCreator    = &StubGateway{}
)

// StubGateway behaves like a provider that deduplicates charges by idempotency key. A charged
// payment is only visible to credentials of the environment it was charged in.
type StubGateway struct {
	GatewayName catedral.GatewayName

	// ChargeFunc decides the answer to a new charge. The default approves it.
	ChargeFunc func(req catedral.ChargeRequest) (*catedral.ProviderPayment, error)
	// FetchErr, when set, fails every FetchPayment.
	FetchErr error

	mu       sync.Mutex
	byKey    map[string]*catedral.ProviderPayment
	payments map[string]*catedral.ProviderPayment
	envs     map[string]catedral.Environment
	calls    int
	creds    []catedral.Credentials
	fetches  []catedral.Credentials
}

func NewStubGateway(name catedral.GatewayName) *StubGateway {
	return &StubGateway{
		GatewayName: name,
		byKey:       make(map[string]*catedral.ProviderPayment),
		payments:    make(map[string]*catedral.ProviderPayment),
		envs:        make(map[string]catedral.Environment),
	}
}

func (g *StubGateway) Name() catedral.GatewayName {
	return g.GatewayName
}

func (g *StubGateway) MapStatus(providerStatus string) catedral.DonationStatus {
	if g.GatewayName == catedral.GatewayStripe {
		return stripe.MapStatus(providerStatus)
	}
	return mercadopago.MapStatus(providerStatus)
}

func (g *StubGateway) Charge(ctx context.Context, creds catedral.Credentials, req catedral.ChargeRequest) (*catedral.ProviderPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.creds = append(g.creds, creds)
	if p, ok := g.byKey[req.DonationID]; ok {
		cp := *p
		return &cp, nil
	}

	var p *catedral.ProviderPayment
	if g.ChargeFunc != nil {
		var err error
		if p, err = g.ChargeFunc(req); err != nil {
			return nil, err
		}
	} else {
		p = &catedral.ProviderPayment{Status: "approved", StatusDetail: "accredited", PaymentType: "credit_card"}
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("pay-%d", len(g.byKey)+1)
	}
	if p.ExternalReference == "" {
		p.ExternalReference = req.DonationID
	}
	if !p.Amount.Valid {
		p.Amount = decimal.NewNullDecimal(req.Amount)
	}
	p.PaymentMethodID = req.PaymentMethodID
	g.byKey[req.DonationID] = p
	g.payments[p.ID] = p
	g.envs[p.ID] = creds.Environment
	cp := *p
	return &cp, nil
}

func (g *StubGateway) FetchPayment(ctx context.Context, creds catedral.Credentials, paymentID string) (*catedral.ProviderPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches = append(g.fetches, creds)
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	p, ok := g.payments[paymentID]
	if env, bound := g.envs[paymentID]; bound && env != creds.Environment {
		ok = false
	}
	if !ok {
		return nil, catedral.NotFoundf("Payment not found")
	}
	cp := *p
	return &cp, nil
}

// SetPayment makes the provider report p on FetchPayment.
func (g *StubGateway) SetPayment(p *catedral.ProviderPayment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *p
	g.payments[p.ID] = &cp
}

func (g *StubGateway) CreateCheckout(ctx context.Context, creds catedral.Credentials, req catedral.CheckoutRequest) (*catedral.Checkout, error) {
	return &catedral.Checkout{
		PreferenceID: "pref-" + req.DonationID,
		RedirectURL:  fmt.Sprintf("https://checkout.example/%s?env=%s", req.DonationID, creds.Environment),
	}, nil
}

func (g *StubGateway) CreateIntent(ctx context.Context, creds catedral.Credentials, req catedral.IntentRequest) (*catedral.Intent, error) {
	return &catedral.Intent{ID: "pi_" + req.DonationID, ClientSecret: "pi_" + req.DonationID + "_secret", Status: "requires_payment_method"}, nil
}

// Calls is the number of Charge invocations.
func (g *StubGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// UniqueCharges is the number of distinct charges the provider captured.
func (g *StubGateway) UniqueCharges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byKey)
}

// LastCredentials returns the credentials of the most recent charge.
func (g *StubGateway) LastCredentials() catedral.Credentials {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.creds) == 0 {
		return catedral.Credentials{}
	}
	return g.creds[len(g.creds)-1]
}

// FetchEnvironments lists the credential environment of every FetchPayment call, in order.
func (g *StubGateway) FetchEnvironments() []catedral.Environment {
	g.mu.Lock()
	defer g.mu.Unlock()
	envs := make([]catedral.Environment, 0, len(g.fetches))
	for _, c := range g.fetches {
		envs = append(envs, c.Environment)
	}
	return envs
}

// Fixture seeds store with an active campaign "c1" (minimum 5) and Mercado Pago and Stripe test
// credentials.
func Fixture(store *MemStore) {
	store.AddCampaign(&catedral.DonationCampaign{
		ID:             "c1",
		Title:          "Reforma da Catedral",
		Slug:           "reforma-da-catedral",
		DefaultAmounts: []decimal.Decimal{decimal.NewFromInt(20), decimal.NewFromInt(50)},
		MinAmount:      decimal.NewFromInt(5),
		Active:         true,
	})
	store.AddCampaign(&catedral.DonationCampaign{
		ID:        "old",
		Title:     "Campanha encerrada",
		Slug:      "campanha-encerrada",
		MinAmount: decimal.NewFromInt(5),
		Active:    false,
	})
	store.SetSettings(&catedral.GatewaySettings{
		Gateway:           catedral.GatewayMercadoPago,
		TestPublicKey:     "TEST-public",
		TestSecretKey:     "TEST-secret",
		LivePublicKey:     "APP_USR-public",
		LiveSecretKey:     "APP_USR-secret",
		ActiveEnvironment: catedral.EnvironmentTest,
	})
	store.SetSettings(&catedral.GatewaySettings{
		Gateway:           catedral.GatewayStripe,
		TestPublicKey:     "pk_test_public",
		TestSecretKey:     "sk_test_secret",
		ActiveEnvironment: catedral.EnvironmentTest,
	})
}
