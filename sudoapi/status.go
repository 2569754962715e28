package sudoapi

import (
	"github.com/catedral-dev/catedral"
)

var (
	ErrMissingRequired = catedral.ErrMissingRequired
	ErrUnauthorized    = catedral.ErrUnauthorized
	ErrNotFound        = catedral.ErrNotFound
)

// Reimplement the most used constructors here for faster reference

func Statusf(status int, format string, args ...any) error {
	return catedral.Statusf(status, format, args...)
}

func WrapError(err error, text string) error {
	return catedral.WrapError(err, text)
}
