package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"testing"

	"github.com/catedral-dev/catedral"
)

type notificationTest struct {
	Query     string
	Body      string
	PaymentID string
	Topic     string
	Relevant  bool
	Error     bool
}

var notificationExamples = map[string]notificationTest{
	"webhook body":           {Body: `{"id":12345,"type":"payment","action":"payment.updated","data":{"id":"987"}}`, PaymentID: "987", Topic: "payment", Relevant: true},
	"webhook numeric data":   {Body: `{"type":"payment","action":"payment.created","data":{"id":987}}`, PaymentID: "987", Topic: "payment", Relevant: true},
	"webhook query":          {Query: "type=payment&data.id=555", PaymentID: "555", Topic: "payment", Relevant: true},
	"query with empty body":  {Query: "type=payment&data.id=555", Body: "not json", PaymentID: "555", Topic: "payment", Relevant: true},
	"legacy ipn":             {Query: "topic=payment&id=777", PaymentID: "777", Topic: "payment", Relevant: true},
	"ipn resource body":      {Body: `{"resource":"https://api.mercadolibre.com/collections/notifications/321","topic":"payment"}`, PaymentID: "321", Topic: "payment", Relevant: true},
	"merchant order":         {Query: "topic=merchant_order&id=42", Topic: "merchant_order", PaymentID: "42", Relevant: false},
	"plan update":            {Body: `{"id":1,"type":"subscription_preapproval","action":"updated","data":{"id":"abc"}}`, Topic: "subscription_preapproval", PaymentID: "abc", Relevant: false},
	"body beats empty query": {Query: "foo=bar", Body: `{"type":"payment","data":{"id":"9"}}`, PaymentID: "9", Topic: "payment", Relevant: true},
	"garbage":                {Body: "???", Error: true},
	"empty":                  {Error: true},
}

func TestParseNotification(t *testing.T) {
	for name, v := range notificationExamples {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			q, err := url.ParseQuery(v.Query)
			if err != nil {
				t.Fatal(err)
			}
			n, err := ParseNotification(q, []byte(v.Body))
			if v.Error {
				if !errors.Is(err, catedral.ErrValidation) {
					t.Fatalf("Expected validation error, got %v (%#v)", err, n)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if n.PaymentID != v.PaymentID || n.Topic != v.Topic || n.Relevant != v.Relevant {
				t.Fatalf("Unexpected notification %#v", n)
			}
			if n.Gateway != catedral.GatewayMercadoPago || n.EventID == "" {
				t.Fatalf("Notification missing gateway or event id: %#v", n)
			}
		})
	}
}

func TestNotificationEventIDStable(t *testing.T) {
	body := []byte(`{"id":12345,"type":"payment","action":"payment.updated","data":{"id":"987"}}`)
	a, _ := ParseNotification(url.Values{}, body)
	b, _ := ParseNotification(url.Values{}, body)
	if a.EventID != "12345" || a.EventID != b.EventID {
		t.Fatalf("Event id should come from the notification id: %q %q", a.EventID, b.EventID)
	}
}

func sign(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "mp-secret"
	v1 := sign(secret, "id:abc123;request-id:req-1;ts:1704908010;")

	if !VerifySignature(secret, "ts=1704908010,v1="+v1, "req-1", "ABC123") {
		t.Fatal("Valid signature refused")
	}
	if VerifySignature(secret, "ts=1704908010,v1="+v1, "req-2", "ABC123") {
		t.Fatal("Signature accepted for another request id")
	}
	if VerifySignature("other", "ts=1704908010,v1="+v1, "req-1", "ABC123") {
		t.Fatal("Signature accepted with the wrong secret")
	}
	if VerifySignature(secret, "v1="+v1, "req-1", "ABC123") {
		t.Fatal("Signature without timestamp accepted")
	}
	if VerifySignature(secret, "ts=1704908010,v1=zz", "req-1", "ABC123") {
		t.Fatal("Non-hex signature accepted")
	}

	noReq := sign(secret, "id:77;ts:1;")
	if !VerifySignature(secret, "ts=1, v1="+noReq, "", "77") {
		t.Fatal("Missing request id should be left out of the manifest")
	}
}

func TestSignatureDataID(t *testing.T) {
	q, _ := url.ParseQuery("data.id=55&type=payment")
	if SignatureDataID(q, nil) != "55" {
		t.Fatal("Query data.id should be used")
	}
	if SignatureDataID(url.Values{}, []byte(`{"data":{"id":66}}`)) != "66" {
		t.Fatal("Body data.id should be used as fallback")
	}
}

func TestIsLegacyIPN(t *testing.T) {
	tests := map[string]bool{
		"topic=payment&id=123":             true,
		"topic=merchant_order&id=9":        true,
		"type=payment&data.id=123":         false,
		"topic=payment&id=123&data.id=123": false,
		"topic=payment":                    false,
		"id=123":                           false,
		"":                                 false,
	}
	for raw, want := range tests {
		q, err := url.ParseQuery(raw)
		if err != nil {
			t.Fatal(err)
		}
		if got := IsLegacyIPN(q); got != want {
			t.Errorf("%q: expected %t, got %t", raw, want, got)
		}
	}
}
