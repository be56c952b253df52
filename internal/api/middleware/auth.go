package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pushgate/pushgate/internal/api/models"
)

// callerKey is the context key for the authenticated caller name.
type callerKey struct{}

// Auth creates authentication middleware that validates static bearer
// tokens. The API is consumed by trusted internal services, each carrying
// its own token; tokens map to caller names for logging.
func Auth(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			token := authHeader[len(bearerPrefix):]
			if token == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			caller := ""
			for name, expected := range tokens {
				if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1 {
					caller = name
					break
				}
			}
			if caller == "" {
				writeUnauthorized(w, r, "invalid bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), callerKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// Implemented directly here to avoid an import cycle with the response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetCaller retrieves the authenticated caller name from the context.
// Returns an empty string if not authenticated.
func GetCaller(ctx context.Context) string {
	if caller, ok := ctx.Value(callerKey{}).(string); ok {
		return caller
	}
	return ""
}
