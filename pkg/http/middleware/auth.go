package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jgirmay/presencehub/pkg/auth"
	"github.com/jgirmay/presencehub/pkg/http/dto"
)

// contextKey is a type for context keys
type contextKey string

// UserIDKey is the key for user ID in context
const UserIDKey contextKey = "user_id"

// RequireUser resolves the caller through authn and stores the user ID in
// the request context. Returns 401 JSON when resolution fails.
func RequireUser(authn auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authn.Authenticate(r)
			if err != nil {
				code := "INVALID_TOKEN"
				if errors.Is(err, auth.ErrMissingToken) {
					code = "MISSING_TOKEN"
				}
				Unauthorized(w, code)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFromContext retrieves the user ID from context (returns "" if not set)
func UserIDFromContext(ctx context.Context) string {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

// Unauthorized writes a 401 error response
func Unauthorized(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(&dto.ErrorResponse{
		Error:     code,
		Code:      code,
		Message:   "authentication required",
		Timestamp: time.Now(),
	})
}
