package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/sudoapi/flags"
)

// MustBeAdmin requires the admin bearer token. The admin API is closed while no token is configured.
func (s *API) MustBeAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := flags.AdminToken.Value()
		given, ok := strings.CutPrefix(getAuthHeader(r), "Bearer ")
		if token == "" || !ok || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			errorData(w, r, catedral.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getAuthHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Authorization"))
}
