package middleware

import (
	"context"
	"errors"
	"net/http"

	"eventgraph/pkg/auth"

	"go.uber.org/zap"
)

// contextKey for storing the verified claim
type contextKey string

const identityContextKey contextKey = "identity"

// GetIdentity extracts the verified claim from the request context.
func GetIdentity(ctx context.Context) (*auth.Claims, error) {
	claims, ok := ctx.Value(identityContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return nil, errors.New("identity not found in context")
	}
	return claims, nil
}

// SetIdentity adds a verified claim to the context. Exposed for handler tests.
func SetIdentity(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, identityContextKey, claims)
}

// Authenticate verifies the bearer claim on every request and stores the
// resolved identity in the context. Requests without a valid claim are
// rejected with 401.
func Authenticate(tokens *auth.TokenService, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			claims, err := tokens.Validate(header)
			if err != nil {
				logger.Debug("Claim validation failed",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				unauthorized(w, "invalid or expired claim")
				return
			}

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":true,"message":"` + message + `","code":401}`))
}
