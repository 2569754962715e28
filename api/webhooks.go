package api

import (
	"log/slog"
	"net/http"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/integrations/mercadopago"
	"github.com/catedral-dev/catedral/integrations/stripe"
	"github.com/catedral-dev/catedral/sudoapi/flags"
)

type webhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// mercadoPagoWebhook accepts every notification layout Mercado Pago uses (JSON body or query
// string). Non-2xx answers make the provider retry, so they are reserved for failures on our side.
func (s *API) mercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		errorData(w, r, err)
		return
	}
	query := r.URL.Query()

	// Unsigned IPN deliveries are let through: reconciliation only trusts the payment it fetches
	// from the provider, never the notification itself.
	signature := r.Header.Get("X-Signature")
	if signature == "" && mercadopago.IsLegacyIPN(query) {
		slog.DebugContext(r.Context(), "Unsigned IPN notification", slog.String("id", query.Get("id")))
	} else if secret := flags.MercadoPagoWebhookSecret.Value(); secret != "" {
		dataID := mercadopago.SignatureDataID(query, body)
		if !mercadopago.VerifySignature(secret, signature, r.Header.Get("X-Request-Id"), dataID) {
			slog.WarnContext(r.Context(), "Mercado Pago notification with invalid signature", slog.String("data_id", dataID))
			errorData(w, r, catedral.ErrUnauthorized)
			return
		}
	}

	n, err := mercadopago.ParseNotification(query, body)
	if err != nil {
		errorData(w, r, err)
		return
	}
	s.reconcile(w, r, n)
}

func (s *API) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		errorData(w, r, err)
		return
	}
	n, err := stripe.ParseEvent(body, r.Header.Get("Stripe-Signature"), flags.StripeWebhookSecret.Value())
	if err != nil {
		errorData(w, r, err)
		return
	}
	s.reconcile(w, r, n)
}

func (s *API) reconcile(w http.ResponseWriter, r *http.Request, n catedral.Notification) {
	outcome, err := s.base.Reconcile(r.Context(), n)
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, webhookAck{Received: true, Outcome: outcome})
}
