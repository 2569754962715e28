package mercadopago

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/catedral-dev/catedral"
	"github.com/gorilla/schema"
)

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// notificationShape is one of the payload layouts Mercado Pago may deliver.
type notificationShape interface {
	canonical() (catedral.Notification, bool)
}

// webhookBody is the JSON body of a Webhooks notification.
type webhookBody struct {
	ID     flexID `json:"id"`
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID flexID `json:"id"`
	} `json:"data"`
	Resource string `json:"resource"`
}

func (b *webhookBody) canonical() (catedral.Notification, bool) {
	topic := b.Type
	if topic == "" {
		topic = b.Topic
	}
	paymentID := string(b.Data.ID)
	if paymentID == "" && topic == "payment" && b.Resource != "" {
		// IPN bodies carry the payment as a resource URL or a bare id.
		paymentID = b.Resource[strings.LastIndex(b.Resource, "/")+1:]
	}
	if topic == "" && paymentID == "" {
		return catedral.Notification{}, false
	}
	eventID := string(b.ID)
	if eventID == "" {
		eventID = topic + ":" + paymentID + ":" + b.Action
	}
	return catedral.Notification{
		Gateway:   catedral.GatewayMercadoPago,
		EventID:   eventID,
		Topic:     topic,
		Action:    b.Action,
		PaymentID: paymentID,
		Relevant:  topic == "payment" && paymentID != "",
	}, true
}

// webhookQuery is the query string of a Webhooks notification (?type=payment&data.id=1).
type webhookQuery struct {
	Type string `schema:"type"`
	Data struct {
		ID string `schema:"id"`
	} `schema:"data"`
}

func (q *webhookQuery) canonical() (catedral.Notification, bool) {
	if q.Type == "" || q.Data.ID == "" {
		return catedral.Notification{}, false
	}
	return catedral.Notification{
		Gateway:   catedral.GatewayMercadoPago,
		EventID:   q.Type + ":" + q.Data.ID,
		Topic:     q.Type,
		PaymentID: q.Data.ID,
		Relevant:  q.Type == "payment",
	}, true
}

// ipnQuery is the legacy IPN query string (?topic=payment&id=1).
type ipnQuery struct {
	Topic string `schema:"topic"`
	ID    string `schema:"id"`
}

func (q *ipnQuery) canonical() (catedral.Notification, bool) {
	if q.Topic == "" {
		return catedral.Notification{}, false
	}
	return catedral.Notification{
		Gateway:   catedral.GatewayMercadoPago,
		EventID:   "ipn:" + q.Topic + ":" + q.ID,
		Topic:     q.Topic,
		PaymentID: q.ID,
		Relevant:  q.Topic == "payment" && q.ID != "",
	}, true
}

// IsLegacyIPN reports whether query has the IPN layout (?topic=payment&id=1) and none of the
// Webhooks fields. Mercado Pago never signs IPN deliveries.
func IsLegacyIPN(query url.Values) bool {
	return query.Get("topic") != "" && query.Get("id") != "" && query.Get("type") == "" && query.Get("data.id") == ""
}

// ParseNotification turns any supported notification layout into the canonical form.
// A body that is not JSON is tolerated as long as the query string identifies the event.
func ParseNotification(query url.Values, body []byte) (catedral.Notification, error) {
	var shapes []notificationShape

	if len(bytes.TrimSpace(body)) > 0 {
		var b webhookBody
		if err := json.Unmarshal(body, &b); err == nil {
			shapes = append(shapes, &b)
		}
	}

	var wq webhookQuery
	if err := decoder.Decode(&wq, query); err == nil {
		shapes = append(shapes, &wq)
	}
	var iq ipnQuery
	if err := decoder.Decode(&iq, query); err == nil {
		shapes = append(shapes, &iq)
	}

	var fallback *catedral.Notification
	for _, shape := range shapes {
		n, ok := shape.canonical()
		if !ok {
			continue
		}
		if n.Relevant {
			return n, nil
		}
		if fallback == nil {
			fallback = &n
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return catedral.Notification{}, catedral.Validationf("error.invalid_input", "Unrecognized Mercado Pago notification")
}

// VerifySignature checks the x-signature header (ts=...,v1=...) against the manifest
// id:<data.id>;request-id:<x-request-id>;ts:<ts>; signed with HMAC-SHA256.
// Parts whose value is missing are left out of the manifest.
func VerifySignature(secret, signature, requestID, dataID string) bool {
	var ts, v1 string
	for part := range strings.SplitSeq(signature, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = val
		case "v1":
			v1 = val
		}
	}
	if ts == "" || v1 == "" {
		return false
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		return false
	}

	expected, err := hex.DecodeString(v1)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signatureManifest(dataID, requestID, ts)))
	return hmac.Equal(mac.Sum(nil), expected)
}

func signatureManifest(dataID, requestID, ts string) string {
	var sb strings.Builder
	if dataID != "" {
		// alphanumeric ids are signed in lowercase
		sb.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		sb.WriteString("request-id:" + requestID + ";")
	}
	sb.WriteString("ts:" + ts + ";")
	return sb.String()
}

// SignatureDataID is the data.id that Mercado Pago signs: the query parameter when present,
// otherwise the id in the body.
func SignatureDataID(query url.Values, body []byte) string {
	if id := query.Get("data.id"); id != "" {
		return id
	}
	var b webhookBody
	if err := json.Unmarshal(body, &b); err == nil {
		return string(b.Data.ID)
	}
	return ""
}
