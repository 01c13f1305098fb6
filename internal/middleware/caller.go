package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"chat_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

// CallerIDKey is the context key holding the derived caller identity.
const CallerIDKey ContextKey = "callerID"

// CallerID derives a stable caller identity for rate limiting and audit
// logs: the SHA-256 of the bearer token when one is presented, otherwise the
// remote address. Raw tokens are never propagated.
func CallerID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerID := ""

		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token != "" {
				callerID = utils.HashToken(token)
			}
		}
		if callerID == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			callerID = "ip:" + host
		}

		ctx := context.WithValue(r.Context(), CallerIDKey, callerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCallerID retrieves the caller identity from the request context.
func GetCallerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(CallerIDKey).(string)
	return id, ok
}
