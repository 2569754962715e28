package catedral_test

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/catedral-dev/catedral"
)

func TestEnvironmentFromKey(t *testing.T) {
	cases := map[string]struct {
		env catedral.Environment
		ok  bool
	}{
		"TEST-1234-abcd":    {catedral.EnvironmentTest, true},
		"APP_USR-1234-abcd": {catedral.EnvironmentLive, true},
		"pk_test_51H":       {catedral.EnvironmentTest, true},
		"pk_live_51H":       {catedral.EnvironmentLive, true},
		"":                  {"", false},
		"whatever":          {"", false},
	}
	for key, v := range cases {
		env, ok := catedral.EnvironmentFromKey(key)
		if env != v.env || ok != v.ok {
			t.Fatalf("EnvironmentFromKey(%q) = %q, %t; expected %q, %t", key, env, ok, v.env, v.ok)
		}
	}
}

func TestResolveEnvironment(t *testing.T) {
	settings := &catedral.GatewaySettings{
		Gateway:           catedral.GatewayMercadoPago,
		TestPublicKey:     "TEST-pub",
		TestSecretKey:     "TEST-secret",
		LivePublicKey:     "APP_USR-pub",
		LiveSecretKey:     "APP_USR-secret",
		ActiveEnvironment: catedral.EnvironmentLive,
	}

	if env := settings.ResolveEnvironment(""); env != catedral.EnvironmentLive {
		t.Fatalf("Expected stored environment, got %q", env)
	}
	if env := settings.ResolveEnvironment("TEST-pub"); env != catedral.EnvironmentTest {
		t.Fatalf("Key prefix should force test, got %q", env)
	}
	if env := settings.ResolveEnvironment("test"); env != catedral.EnvironmentTest {
		t.Fatalf("Explicit hint should force test, got %q", env)
	}

	creds := settings.Credentials(settings.ResolveEnvironment("TEST-pub"))
	if creds.PublicKey != "TEST-pub" || creds.SecretKey != "TEST-secret" {
		t.Fatalf("Wrong credentials selected: %#v", creds)
	}

	settings.ActiveEnvironment = ""
	if env := settings.ResolveEnvironment("unknown"); env != catedral.EnvironmentTest {
		t.Fatalf("Unset environment should default to test, got %q", env)
	}
}

func TestSecretNeverLogged(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("creds", slog.Any("secret", catedral.Secret("APP_USR-very-secret")))
	if strings.Contains(buf.String(), "very-secret") {
		t.Fatalf("Secret leaked into log line: %s", buf.String())
	}

	if m := catedral.Secret("APP_USR-1234").Masked(); m != "********1234" {
		t.Fatalf("Unexpected mask %q", m)
	}
	if m := catedral.Secret("abc").Masked(); m != "***" {
		t.Fatalf("Unexpected mask %q", m)
	}
	if s := fmt.Sprint(catedral.Secret("").LogValue()); s != "" {
		t.Fatalf("Empty secret should log empty, got %q", s)
	}
}
