package middleware

import (
	"context"
	"net/http"
	"strings"

	"pureskin-gateway/internal/domain"

	"go.uber.org/zap"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityVerifier resolves a bearer token to a verified user or fails.
// Implemented by service.UserService.
type IdentityVerifier interface {
	Verify(ctx context.Context, tokenString string) (*domain.User, error)
}

// AuthMiddleware blocks the request until the bearer credential resolves to
// a live user. Missing or malformed headers and failed verification both
// answer 401; no downstream handler runs without a verified identity.
func AuthMiddleware(verifier IdentityVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				logger.Debug("Missing or malformed authorization header")
				RespondWithError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}

			user, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				logger.Debug("Credential verification failed", zap.Error(err))
				RespondWithError(w, http.StatusUnauthorized, "invalid or expired credential")
				return
			}

			logger.Debug("User authenticated", zap.String("user_id", user.ID.String()))

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user)))
		})
	}
}

// OptionalAuthMiddleware attaches a verified identity when a valid bearer
// token is present and continues anonymously otherwise. Used by public
// analysis routes that enrich results for known users but never require one.
func OptionalAuthMiddleware(verifier IdentityVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			user, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				// Best-effort identity: a stale token downgrades the request
				// to anonymous instead of failing it.
				logger.Debug("Optional credential ignored", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// WithIdentity returns a context carrying a verified user.
func WithIdentity(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, identityKey, user)
}

// GetIdentity extracts the verified user from the request context.
func GetIdentity(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(identityKey).(*domain.User)
	return user, ok
}
