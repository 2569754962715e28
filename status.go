package catedral

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorKind classifies a status error for the HTTP layer and for callers deciding whether a retry is safe.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindConfiguration
	KindGatewayRejected
	KindGatewayTimeout
	KindGatewayUnavailable
	KindPersistence
	KindNotFound
	KindGatewayUnconfirmed
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindGatewayRejected:
		return "gateway_rejected"
	case KindGatewayTimeout:
		return "gateway_timeout"
	case KindGatewayUnavailable:
		return "gateway_unavailable"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	case KindGatewayUnconfirmed:
		return "gateway_unconfirmed"
	default:
		return "unknown"
	}
}

// Kind sentinels. Match them with errors.Is.
var (
	ErrValidation         = kindSentinel(http.StatusBadRequest, KindValidation)
	ErrConfiguration      = kindSentinel(http.StatusInternalServerError, KindConfiguration)
	ErrGatewayRejected    = kindSentinel(http.StatusBadRequest, KindGatewayRejected)
	ErrGatewayTimeout     = kindSentinel(http.StatusGatewayTimeout, KindGatewayTimeout)
	ErrGatewayUnavailable = kindSentinel(http.StatusServiceUnavailable, KindGatewayUnavailable)
	ErrPersistence        = kindSentinel(http.StatusInternalServerError, KindPersistence)
	ErrNotFound           = kindSentinel(http.StatusNotFound, KindNotFound)

	ErrGatewayUnconfirmed = kindSentinel(http.StatusBadGateway, KindGatewayUnconfirmed)
)

var (
	ErrMissingRequired = Validationf("error.missing_required", "Missing required fields")
	ErrUnauthorized    = Statusf(http.StatusUnauthorized, "Unauthorized")
	ErrFeatureDisabled = Statusf(http.StatusBadRequest, "Feature disabled by administrator")
)

var _ error = &statusError{}

type statusError struct {
	Code int
	Kind ErrorKind
	Text string

	// Key is the translation key for the user-facing message, if any.
	Key string
	// Detail is a machine-readable provider code (e.g. cc_rejected_insufficient_amount).
	Detail string

	WrappedError error

	sentinel bool
}

func kindSentinel(code int, kind ErrorKind) error {
	return &statusError{Code: code, Kind: kind, Text: kind.String(), sentinel: true}
}

func (s *statusError) LogValue() slog.Value {
	if s == nil {
		return slog.Value{}
	}
	attrs := []slog.Attr{slog.String("text", s.Text), slog.String("kind", s.Kind.String())}
	if s.Detail != "" {
		attrs = append(attrs, slog.String("detail", s.Detail))
	}
	if s.WrappedError != nil {
		attrs = append(attrs, slog.String("cause", s.WrappedError.Error()))
	}
	return slog.GroupValue(attrs...)
}

func (s *statusError) Error() string {
	return s.Text
}

func (s *statusError) Unwrap() error {
	return s.WrappedError
}

func (s *statusError) Is(target error) bool {
	err, ok := target.(*statusError)
	if !ok {
		return false
	}
	if err.sentinel {
		return err.Kind == s.Kind
	}
	return err.Text == s.Text
}

func Statusf(status int, format string, args ...any) error {
	return &statusError{Code: status, Kind: kindFromCode(status), Text: fmt.Sprintf(format, args...)}
}

// Validationf builds a user-correctable error. key is the translation key shown to the donor.
func Validationf(key string, format string, args ...any) error {
	return &statusError{Code: http.StatusBadRequest, Kind: KindValidation, Key: key, Text: fmt.Sprintf(format, args...)}
}

func Configurationf(format string, args ...any) error {
	return &statusError{Code: http.StatusInternalServerError, Kind: KindConfiguration, Key: "error.configuration", Text: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &statusError{Code: http.StatusNotFound, Kind: KindNotFound, Key: "error.not_found", Text: fmt.Sprintf(format, args...)}
}

// GatewayRejected carries the provider's human-readable reason and its status-detail code.
func GatewayRejected(reason, detail string) error {
	if reason == "" {
		reason = "Payment rejected by provider"
	}
	return &statusError{Code: http.StatusBadRequest, Kind: KindGatewayRejected, Key: "payment.rejected", Text: reason, Detail: detail}
}

func GatewayTimeout(err error) error {
	return &statusError{Code: http.StatusGatewayTimeout, Kind: KindGatewayTimeout, Key: "payment.timeout", Text: "Payment provider timed out", WrappedError: err}
}

func GatewayUnavailable(err error) error {
	return &statusError{Code: http.StatusServiceUnavailable, Kind: KindGatewayUnavailable, Key: "payment.unavailable", Text: "Payment provider unavailable", WrappedError: err}
}

// GatewayUnconfirmed is a provider reply that reported success but could not be read. The
// provider may have captured the payment, so a retry is not safe.
func GatewayUnconfirmed(err error) error {
	return &statusError{Code: http.StatusBadGateway, Kind: KindGatewayUnconfirmed, Key: "payment.unconfirmed", Text: "Payment provider answer could not be read", WrappedError: err}
}

// Persistence marks a failed database write. After a successful charge it means the money
// may have moved without the local record reflecting it.
func Persistence(err error, text string) error {
	return &statusError{Code: http.StatusInternalServerError, Kind: KindPersistence, Key: "error.persistence", Text: text, WrappedError: err}
}

func WrapError(err error, text string) error {
	if err == nil {
		return nil
	}
	var err2 *statusError
	if errors.As(err, &err2) && !err2.sentinel {
		return err
	}
	return &statusError{Code: http.StatusInternalServerError, Kind: KindUnknown, Text: text, WrappedError: err}
}

func ErrorCode(err error) int {
	if err == nil {
		return 200
	}
	var err2 *statusError
	if errors.As(err, &err2) {
		return err2.Code
	}
	return 500
}

func ErrorKindOf(err error) ErrorKind {
	var err2 *statusError
	if errors.As(err, &err2) {
		return err2.Kind
	}
	return KindUnknown
}

func ErrorDetail(err error) string {
	var err2 *statusError
	if errors.As(err, &err2) {
		return err2.Detail
	}
	return ""
}

func errorKey(err error) string {
	var err2 *statusError
	if errors.As(err, &err2) {
		return err2.Key
	}
	return ""
}

func kindFromCode(code int) ErrorKind {
	switch code {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusGatewayTimeout:
		return KindGatewayTimeout
	case http.StatusServiceUnavailable:
		return KindGatewayUnavailable
	default:
		return KindUnknown
	}
}
