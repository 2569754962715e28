package catedral_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/catedral-dev/catedral"
)

func TestErrorKinds(t *testing.T) {
	cases := map[string]struct {
		err      error
		sentinel error
		code     int
	}{
		"validation":  {catedral.Validationf("error.missing_required", "Missing donorName"), catedral.ErrValidation, http.StatusBadRequest},
		"config":      {catedral.Configurationf("No public key"), catedral.ErrConfiguration, http.StatusInternalServerError},
		"rejected":    {catedral.GatewayRejected("Saldo insuficiente", "cc_rejected_insufficient_amount"), catedral.ErrGatewayRejected, http.StatusBadRequest},
		"timeout":     {catedral.GatewayTimeout(context.DeadlineExceeded), catedral.ErrGatewayTimeout, http.StatusGatewayTimeout},
		"unavailable": {catedral.GatewayUnavailable(errors.New("connection refused")), catedral.ErrGatewayUnavailable, http.StatusServiceUnavailable},
		"persistence": {catedral.Persistence(errors.New("conn closed"), "Could not save donation"), catedral.ErrPersistence, http.StatusInternalServerError},
		"not found":   {catedral.NotFoundf("Donation not found"), catedral.ErrNotFound, http.StatusNotFound},
		"unconfirmed": {catedral.GatewayUnconfirmed(errors.New("bad json")), catedral.ErrGatewayUnconfirmed, http.StatusBadGateway},
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", v.err)
			if !errors.Is(wrapped, v.sentinel) {
				t.Fatalf("%v should match its kind sentinel", v.err)
			}
			if catedral.ErrorCode(wrapped) != v.code {
				t.Fatalf("Expected code %d, got %d", v.code, catedral.ErrorCode(wrapped))
			}
		})
	}

	if errors.Is(catedral.GatewayTimeout(nil), catedral.ErrPersistence) {
		t.Fatal("Timeout must not be confused with persistence failure")
	}
	if errors.Is(catedral.GatewayUnconfirmed(nil), catedral.ErrGatewayUnavailable) {
		t.Fatal("Unreadable provider answer must not look retry-safe")
	}
}

func TestWrapError(t *testing.T) {
	if catedral.WrapError(nil, "x") != nil {
		t.Fatal("Wrapping nil should give nil")
	}
	orig := catedral.NotFoundf("Donation not found")
	if catedral.WrapError(orig, "other") != orig {
		t.Fatal("Status errors should pass through unchanged")
	}
	cause := errors.New("boom")
	wrapped := catedral.WrapError(cause, "Something failed")
	if catedral.ErrorCode(wrapped) != 500 || !errors.Is(wrapped, cause) {
		t.Fatalf("Unexpected wrap: %#v", wrapped)
	}
}

func TestErrorDetail(t *testing.T) {
	err := fmt.Errorf("charge: %w", catedral.GatewayRejected("", "cc_rejected_other_reason"))
	if catedral.ErrorDetail(err) != "cc_rejected_other_reason" {
		t.Fatalf("Detail lost: %q", catedral.ErrorDetail(err))
	}
	if catedral.ErrorDetail(errors.New("plain")) != "" {
		t.Fatal("Plain errors have no detail")
	}
}
