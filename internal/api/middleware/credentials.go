package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

// ScopeResolver decides which credential scopes a request needs.
type ScopeResolver interface {
	ScopesFor(r *http.Request) []string
}

// CredentialsMiddleware ensures the credentials for every matched scope
// are fresh before the request reaches its handler. Failures are logged
// and the request proceeds anyway: the downstream reader surfaces its
// own auth error, which is more useful to the caller than a gate here.
func CredentialsMiddleware(resolver ScopeResolver, getter core.TokenGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, scope := range resolver.ScopesFor(r) {
				if _, err := getter.Get(r.Context(), scope); err != nil {
					log.Ctx(r.Context()).Error().
						Err(err).
						Str("scope", scope).
						Msg("credential.refresh_failed")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
