package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
)

// Identity headers are set by the authenticating gateway in front of the service
const (
	HeaderUserID = "X-User-ID"
	HeaderAdmin  = "X-Admin"
)

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID stores the caller's user id in ctx
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the caller's user id, or "" when absent
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// RequireUser rejects requests without a user id header
func RequireUser(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				WriteError(w, log, http.StatusUnauthorized, "missing "+HeaderUserID+" header")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// RequireAdmin rejects requests the gateway did not mark as administrative
func RequireAdmin(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if admin, _ := strconv.ParseBool(r.Header.Get(HeaderAdmin)); !admin {
				WriteError(w, log, http.StatusForbidden, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IDParam parses a positive int64 URL parameter
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("invalid %s %q", name, raw)
	}
	return id, nil
}
