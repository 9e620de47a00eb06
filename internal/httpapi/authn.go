package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bredsky212/Logiq212/internal/servicetoken"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
}

// withAuth requires a valid service token on every non-public path. It is a
// no-op when no signer is configured.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logiq"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := a.tokens.Parse(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logiq", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(servicetoken.ContextWithClaims(r.Context(), claims)))
	})
}

// requireScope writes 403 and returns false when the caller's token lacks scope.
func (a *API) requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if a.tokens == nil {
		return true
	}
	claims, ok := servicetoken.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing credentials")
		return false
	}
	if !claims.Has(scope) {
		writeError(w, r, http.StatusForbidden, servicetoken.ErrMissingScope.Error()+": "+scope)
		return false
	}
	return true
}

func scopeFor(method string) string {
	if method == http.MethodGet {
		return servicetoken.ScopeRead
	}
	return servicetoken.ScopeWrite
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
