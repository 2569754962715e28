package stripe

import (
	"encoding/json"
	"strings"

	"github.com/catedral-dev/catedral"
	"github.com/stripe/stripe-go/v82/webhook"
)

type eventObject struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	PaymentIntent string `json:"payment_intent"`
}

// ParseEvent verifies the Stripe-Signature header and reduces the event to the payment
// intent it concerns. Events unrelated to payment intents are returned as not relevant.
func ParseEvent(payload []byte, signature, secret string) (catedral.Notification, error) {
	if secret == "" {
		return catedral.Notification{}, catedral.Configurationf("Stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return catedral.Notification{}, catedral.ErrUnauthorized
	}

	n := catedral.Notification{
		Gateway: catedral.GatewayStripe,
		EventID: event.ID,
		Topic:   string(event.Type),
	}
	if event.Data == nil {
		return n, nil
	}
	var obj eventObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return n, catedral.Validationf("error.invalid_input", "Invalid Stripe event object")
	}

	switch {
	case strings.HasPrefix(n.Topic, "payment_intent."):
		n.PaymentID = obj.ID
	case n.Topic == "charge.refunded" || n.Topic == "charge.succeeded" || n.Topic == "charge.failed":
		n.PaymentID = obj.PaymentIntent
	}
	n.Relevant = n.PaymentID != ""
	return n, nil
}
