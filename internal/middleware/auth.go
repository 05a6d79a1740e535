package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"lifesignal-backend/internal/checkin"
)

type contextKey string

const userIDKey contextKey = "user_id"

// TokenVerifier turns a bearer token into a user ID
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// AuthMiddleware creates a middleware for bearer token authentication
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			userID, err := verifier.VerifyToken(r.Context(), parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

// Authenticator resolves the acting user from the request context
type Authenticator struct{}

// CurrentUserID returns the authenticated user ID
func (Authenticator) CurrentUserID(ctx context.Context) (string, error) {
	if userID := GetUserID(ctx); userID != "" {
		return userID, nil
	}
	return "", checkin.ErrNotAuthenticated
}

// StaticAuthenticator always resolves to the same user. Long-lived
// connections authenticate once and use it afterwards.
type StaticAuthenticator string

// CurrentUserID returns the fixed user ID
func (a StaticAuthenticator) CurrentUserID(context.Context) (string, error) {
	if a == "" {
		return "", checkin.ErrNotAuthenticated
	}
	return string(a), nil
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write([]byte(`{"error":"` + message + `","retryable":false}`))
}

// ValidateWebSocketToken validates a token from the WebSocket query parameter
func ValidateWebSocketToken(ctx context.Context, token string, verifier TokenVerifier) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token required")
	}
	return verifier.VerifyToken(ctx, token)
}
