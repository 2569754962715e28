package sudoapi_test

import (
	"context"
	"errors"
	"testing"

	"github.com/catedral-dev/catedral"
)

func TestGatewaySettingsView(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	view, err := h.base.GatewaySettingsView(context.Background(), catedral.GatewayMercadoPago)
	if err != nil {
		t.Fatal(err)
	}
	if view.TestSecretKey != "*******cret" || view.LiveSecretKey != "**********cret" {
		t.Fatalf("Secrets not masked: %+v", view)
	}
	if view.TestPublicKey != "TEST-public" {
		t.Fatalf("Unexpected public key %q", view.TestPublicKey)
	}

	if _, err := h.base.GatewaySettingsView(context.Background(), "paypal"); !errors.Is(err, catedral.ErrNotFound) {
		t.Fatalf("Expected not found, got %v", err)
	}
}

func TestUpdateGatewaySettings(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	// Warm the cache.
	if _, err := h.base.GatewaySettings(ctx, catedral.GatewayMercadoPago); err != nil {
		t.Fatal(err)
	}
	if _, err := h.base.GatewaySettings(ctx, catedral.GatewayMercadoPago); err != nil {
		t.Fatal(err)
	}
	if h.store.SettingsReads != 1 {
		t.Fatalf("Expected a cached read, store was hit %d times", h.store.SettingsReads)
	}

	live := catedral.EnvironmentLive
	if err := h.base.UpdateGatewaySettings(ctx, catedral.GatewayMercadoPago, catedral.GatewaySettingsUpdate{ActiveEnvironment: &live}); err != nil {
		t.Fatal(err)
	}
	settings, err := h.base.GatewaySettings(ctx, catedral.GatewayMercadoPago)
	if err != nil {
		t.Fatal(err)
	}
	if settings.ActiveEnvironment != catedral.EnvironmentLive {
		t.Fatal("Update not visible after invalidation")
	}

	bad := catedral.Environment("staging")
	err = h.base.UpdateGatewaySettings(ctx, catedral.GatewayMercadoPago, catedral.GatewaySettingsUpdate{ActiveEnvironment: &bad})
	if !errors.Is(err, catedral.ErrValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestChargeMissingSecret(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	id := h.create(t, 50)
	h.store.SetSettings(&catedral.GatewaySettings{
		Gateway:           catedral.GatewayMercadoPago,
		TestPublicKey:     "TEST-public",
		ActiveEnvironment: catedral.EnvironmentTest,
	})
	empty := catedral.Secret("")
	// Invalidate through the API so the new row is read.
	if err := h.base.UpdateGatewaySettings(context.Background(), catedral.GatewayMercadoPago, catedral.GatewaySettingsUpdate{TestSecretKey: &empty}); err != nil {
		t.Fatal(err)
	}

	_, err := h.base.Charge(context.Background(), chargeRequest(id, 50))
	if !errors.Is(err, catedral.ErrConfiguration) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
	if h.mp.Calls() != 0 {
		t.Fatal("Gateway called without credentials")
	}
	if msg := catedral.ErrorMessage("en", err); msg != catedral.GetText("en", "error.configuration") {
		t.Fatalf("Configuration details leaked: %q", msg)
	}
}
