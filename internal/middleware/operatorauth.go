package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/TriggerGate/internal/config"
)

type operatorCtxKey struct{}

// OperatorAuth returns middleware guarding the approvals and audit API.
// Callers present a bearer token; it is checked against the configured
// bcrypt hashes and the matching operator identity lands in the
// context. With no operators configured the API is unreachable, never
// open.
func OperatorAuth(cfg config.Operators) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if authHeader == "" || token == authHeader {
				unauthorized(w)
				return
			}

			identity, ok := matchOperator(cfg.Tokens, token)
			if !ok {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), operatorCtxKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// matchOperator compares the presented token against every configured
// hash. All hashes are checked even after a match so response timing
// does not reveal which identity (if any) matched.
func matchOperator(tokens map[string]string, token string) (string, bool) {
	var identity string
	var found bool
	for id, hash := range tokens {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
			identity = id
			found = true
		}
	}
	return identity, found
}

// OperatorFromContext returns the authenticated operator identity, or
// an empty string outside the guarded routes.
func OperatorFromContext(ctx context.Context) string {
	id, _ := ctx.Value(operatorCtxKey{}).(string)
	return id
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"authorization required"}`))
}
