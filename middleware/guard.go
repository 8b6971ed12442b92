package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sentimenta/dashclient/jwt"
)

// QueryTokenParam is the query parameter read by [Guard].
const QueryTokenParam = "token"

// Verifier validates an access token.
type Verifier interface {
	ParseAccess(token string) (*jwt.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims injected by a guard.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return c, ok
}

// Guard accepts the token from the Authorization header or the token query
// parameter.
func Guard(v Verifier) func(http.Handler) http.Handler {
	return guard(v, true)
}

// RequireBearer accepts the token from the Authorization header only.
func RequireBearer(v Verifier) func(http.Handler) http.Handler {
	return guard(v, false)
}

func guard(v Verifier, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok && allowQuery {
				token = r.URL.Query().Get(QueryTokenParam)
				ok = token != ""
			}
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := v.ParseAccess(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
