package flags

import "github.com/catedral-dev/catedral/internal/config"

var (
	ListenHost = config.GenFlag[string]("server.listen.host", "localhost", "Host to listen to")
	ListenPort = config.GenFlag[int]("server.listen.port", 8080, "Port to listen on")

	// CORSOrigins is the list of origins allowed to call the public API from a browser.
	CORSOrigins = config.GenFlag[[]string]("server.cors.allowed_origins", []string{"*"}, "Origins allowed to call the API from the browser")

	AdminToken = config.GenSecretFlag("admin.api_token", "Bearer token required by the /admin endpoints. Admin API is disabled while empty")
)

// DB
var (
	MigrateOnStart = config.GenFlag("behavior.db.run_migrations", true, "Run PostgreSQL migrations on platform start")
)

var OtelEnabled = config.GenFlag("integrations.otel.enabled", false, "Enable OpenTelemetry collectors")

var AlertsWebhook = config.GenFlag[string]("admin.alerts_webhook", "", "Discord webhook URL for payment alerts that need manual reconciliation")
