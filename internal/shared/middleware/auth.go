package middleware

import (
	"context"
	"net/http"
	"strings"

	"burndown/internal/shared/auth"
	"burndown/internal/shared/telemetry"
)

type ContextKey string

const HouseholdIDKey ContextKey = "household_id"

// Auth validates the bearer token (or access_token cookie) and puts the
// household id on the request context.
func Auth(jwt *auth.JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string

			if cookie, err := r.Cookie("access_token"); err == nil {
				token = cookie.Value
			} else {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					http.Error(w, "Authentication required", http.StatusUnauthorized)
					return
				}
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
					return
				}
				token = parts[1]
			}

			claims, err := jwt.Validate(token)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			recordRequest(r, claims.HouseholdID)
			ctx := context.WithValue(r.Context(), HouseholdIDKey, claims.HouseholdID)
			ctx = telemetry.WithHousehold(ctx, claims.HouseholdID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HouseholdID returns the authenticated household, if any.
func HouseholdID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(HouseholdIDKey).(string)
	return id, ok && id != ""
}
