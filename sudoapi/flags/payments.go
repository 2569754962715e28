package flags

import "github.com/catedral-dev/catedral/internal/config"

var (
	ActiveGateway = config.GenFlag[string]("payments.gateway", "mercadopago", "Payment gateway used for new donations (mercadopago or stripe)")
	Currency      = config.GenFlag[string]("payments.currency", "BRL", "Currency for donations")

	// GatewayTimeoutSeconds is clamped to 25..30 when used.
	GatewayTimeoutSeconds = config.GenFlag[int]("payments.gateway_timeout_seconds", 25, "Timeout for outbound payment provider requests, in seconds")

	PublicBaseURL = config.GenFlag[string]("payments.public_base_url", "http://localhost:8080", "Public URL of this API, used to build webhook notification URLs")

	SettingsCacheSeconds = config.GenFlag[int]("payments.settings_cache_seconds", 60, "How long gateway settings are cached before being re-read")
)

var (
	MercadoPagoWebhookSecret = config.GenSecretFlag("integrations.mercadopago.webhook_secret", "Secret for verifying x-signature on Mercado Pago notifications")
	MercadoPagoAPIURL        = config.GenFlag[string]("integrations.mercadopago.api_url", "https://api.mercadopago.com", "Mercado Pago API base URL")

	StripeWebhookSecret = config.GenSecretFlag("integrations.stripe.webhook_secret", "Stripe webhook endpoint signing secret (whsec_...)")
)

var (
	ReceiptEmail   = config.GenFlag("feature.donations.receipt_email", true, "Email a receipt to the donor when a donation is completed")
	EmailBranding  = config.GenFlag("admin.mailer.branding", "Catedral Diocesana", "Branding to use at the end of emails")
	ReceiptReplyTo = config.GenFlag[string]("admin.mailer.reply_to", "", "Reply-To address for donation receipts")
)
