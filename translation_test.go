package catedral_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/catedral-dev/catedral"
)

func TestErrorMessage(t *testing.T) {
	cases := map[string]struct {
		lang string
		err  error
		want string
	}{
		"known decline detail": {"pt-BR", catedral.GatewayRejected("Insufficient amount", "cc_rejected_insufficient_amount"), "Saldo insuficiente."},
		"english detail":       {"en", catedral.GatewayRejected("Insufficient amount", "cc_rejected_insufficient_amount"), "Insufficient funds."},
		"unknown detail":       {"pt-BR", catedral.GatewayRejected("Invalid payer email", "bad_payer"), "Invalid payer email"},
		"validation":           {"pt-BR", catedral.ErrMissingRequired, "Dados obrigatórios ausentes."},
		"missing language":     {"ro", catedral.ErrMissingRequired, "Dados obrigatórios ausentes."},
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			if got := catedral.ErrorMessage(v.lang, v.err); got != v.want {
				t.Fatalf("Expected %q, got %q", v.want, got)
			}
		})
	}
}

func TestErrorMessageHidesInternals(t *testing.T) {
	err := catedral.Persistence(errors.New("pq: relation donations does not exist"), "Could not update donation 1234")
	msg := catedral.ErrorMessage("en", err)
	if strings.Contains(msg, "pq:") || strings.Contains(msg, "relation") {
		t.Fatalf("Internal error leaked: %q", msg)
	}

	msg = catedral.ErrorMessage("en", errors.New("dial tcp 10.0.0.3:5432: refused"))
	if strings.Contains(msg, "10.0.0.3") {
		t.Fatalf("Internal error leaked: %q", msg)
	}
}

func TestReceiptTemplate(t *testing.T) {
	if !catedral.TranslationKeyExists("receipt.subject") || !catedral.TranslationKeyExists("receipt.body") {
		t.Fatal("Receipt templates missing from catalog")
	}
	subj := catedral.GetText("pt-BR", "receipt.subject", "Reforma da Catedral")
	if !strings.Contains(subj, "Reforma da Catedral") {
		t.Fatalf("Unexpected subject %q", subj)
	}
}
