package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/catedral-dev/catedral"
	"github.com/gorilla/schema"
	"golang.org/x/text/language"
)

var decoder *schema.Decoder

func init() {
	decoder = schema.NewDecoder()
	decoder.SetAliasTag("json")
	decoder.IgnoreUnknownKeys(true)
}

var serverLangs = []language.Tag{
	language.BrazilianPortuguese,
	language.English,
}
var langMatcher = language.NewMatcher(serverLangs)

// requestLanguage picks the translation for the donor from Accept-Language.
func requestLanguage(r *http.Request) string {
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if len(tags) == 0 {
		return catedral.DefaultLanguage()
	}
	tag, _, _ := langMatcher.Match(tags...)
	if base, _ := tag.Base(); base.String() == "en" {
		return "en"
	}
	return "pt-BR"
}

func returnData(w http.ResponseWriter, statusCode int, retData any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(retData); err != nil {
		slog.Warn("Couldn't send return data", slog.Any("err", err))
	}
}

type errorBody struct {
	Error        string `json:"error"`
	Kind         string `json:"kind,omitempty"`
	StatusDetail string `json:"status_detail,omitempty"`
	DonationID   string `json:"donationId,omitempty"`
}

func errorData(w http.ResponseWriter, r *http.Request, err error) {
	donationErrorData(w, r, err, "")
}

// donationErrorData also reports the donation id, which is what the donor needs to quote
// when a payment went through but could not be recorded.
func donationErrorData(w http.ResponseWriter, r *http.Request, err error, donationID string) {
	code := catedral.ErrorCode(err)
	if code >= 500 {
		slog.WarnContext(r.Context(), "Request failed", slog.String("path", r.URL.Path), slog.String("donation_id", donationID), slog.Any("err", err))
	}
	body := errorBody{
		Error:        catedral.ErrorMessage(requestLanguage(r), err),
		StatusDetail: catedral.ErrorDetail(err),
	}
	kind := catedral.ErrorKindOf(err)
	if kind != catedral.KindUnknown {
		body.Kind = kind.String()
	}
	if kind == catedral.KindPersistence || kind == catedral.KindGatewayUnconfirmed {
		body.DonationID = donationID
	}
	returnData(w, code, body)
}

const maxBodySize = 1 << 20

func parseJSONBody[T any](r *http.Request, output *T) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(output); err != nil {
		return catedral.Validationf("error.invalid_input", "Invalid JSON input.")
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r.Body, maxBodySize)); err != nil {
		return nil, catedral.Validationf("error.invalid_input", "Couldn't read body")
	}
	return buf.Bytes(), nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
