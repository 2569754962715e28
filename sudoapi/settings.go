package sudoapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/sudoapi/flags"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// GatewaySettings returns the stored settings for gateway, or nil if none were saved yet.
// Reads go through a short-lived cache that admin writes invalidate.
func (s *BaseAPI) GatewaySettings(ctx context.Context, gateway catedral.GatewayName) (*catedral.GatewaySettings, error) {
	if !gateway.Valid() {
		return nil, catedral.NotFoundf("Unknown gateway")
	}
	settings, err := s.settingsCache.Get(ctx, gateway)
	if err != nil {
		return nil, WrapError(err, "Couldn't read gateway settings")
	}
	return settings, nil
}

// SettingsView is what the admin API shows: secrets are masked.
type SettingsView struct {
	Gateway catedral.GatewayName `json:"gateway"`

	TestPublicKey string `json:"test_public_key"`
	TestSecretKey string `json:"test_secret_key"`
	LivePublicKey string `json:"live_public_key"`
	LiveSecretKey string `json:"live_secret_key"`

	ActiveEnvironment catedral.Environment `json:"active_environment"`
	UpdatedAt         *time.Time           `json:"updated_at"`
}

func (s *BaseAPI) GatewaySettingsView(ctx context.Context, gateway catedral.GatewayName) (*SettingsView, error) {
	settings, err := s.GatewaySettings(ctx, gateway)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return &SettingsView{Gateway: gateway, ActiveEnvironment: catedral.EnvironmentTest}, nil
	}
	return &SettingsView{
		Gateway:           settings.Gateway,
		TestPublicKey:     settings.TestPublicKey,
		TestSecretKey:     settings.TestSecretKey.Masked(),
		LivePublicKey:     settings.LivePublicKey,
		LiveSecretKey:     settings.LiveSecretKey.Masked(),
		ActiveEnvironment: settings.ActiveEnvironment,
		UpdatedAt:         &settings.UpdatedAt,
	}, nil
}

func (s *BaseAPI) UpdateGatewaySettings(ctx context.Context, gateway catedral.GatewayName, upd catedral.GatewaySettingsUpdate) error {
	if !gateway.Valid() {
		return catedral.NotFoundf("Unknown gateway")
	}
	if upd.ActiveEnvironment != nil {
		if err := validation.Validate(*upd.ActiveEnvironment, validation.Required, validation.In(catedral.EnvironmentTest, catedral.EnvironmentLive)); err != nil {
			return catedral.Validationf("error.invalid_input", "Invalid environment: %v", err)
		}
	}
	if err := s.db.UpdateGatewaySettings(ctx, gateway, upd); err != nil {
		return WrapError(err, "Couldn't update gateway settings")
	}
	s.settingsCache.Delete(gateway)
	slog.InfoContext(ctx, "Gateway settings updated", slog.String("gateway", string(gateway)))
	return nil
}

// ActiveGateway is the gateway new donations are created against.
func (s *BaseAPI) ActiveGateway() (catedral.Gateway, error) {
	return s.gateway(catedral.GatewayName(flags.ActiveGateway.Value()))
}

func (s *BaseAPI) gateway(name catedral.GatewayName) (catedral.Gateway, error) {
	gw, ok := s.gateways[name]
	if !ok {
		return nil, catedral.Configurationf("Payment gateway %q is not available", name)
	}
	return gw, nil
}

// credentials picks the credential pair for gateway. hint is an optional environment name or
// public key; without one the stored active environment decides.
func (s *BaseAPI) credentials(ctx context.Context, gateway catedral.GatewayName, hint string) (catedral.Credentials, error) {
	settings, err := s.GatewaySettings(ctx, gateway)
	if err != nil {
		return catedral.Credentials{}, err
	}
	if settings == nil {
		return catedral.Credentials{}, catedral.Configurationf("No settings stored for gateway %s", gateway)
	}
	return settings.Credentials(settings.ResolveEnvironment(hint)), nil
}

// secretCredentials is credentials, additionally requiring a secret key.
func (s *BaseAPI) secretCredentials(ctx context.Context, gateway catedral.GatewayName, hint string) (catedral.Credentials, error) {
	creds, err := s.credentials(ctx, gateway, hint)
	if err != nil {
		return creds, err
	}
	if creds.SecretKey == "" {
		return creds, catedral.Configurationf("Gateway %s has no %s secret key", gateway, creds.Environment)
	}
	return creds, nil
}

func gatewayTimeout() time.Duration {
	return time.Duration(min(max(flags.GatewayTimeoutSeconds.Value(), 25), 30)) * time.Second
}
