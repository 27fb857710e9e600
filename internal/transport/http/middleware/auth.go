package middleware

import (
	"context"
	"net/http"
	"strings"

	"slackmemory/internal/platform/adminauth"
	"slackmemory/internal/transport/http/api"
)

const adminKey ctxKey = "admin"

// AdminAuth guards the admin/compliance surface: a valid HS256 bearer
// token with the admin role is required, everything else is rejected.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "bearer token required", GetRequestID(r.Context()))
				return
			}

			claims, err := adminauth.ParseToken(secret, parts[1])
			if err != nil {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "invalid token", GetRequestID(r.Context()))
				return
			}
			if claims.Role != adminauth.RoleAdmin {
				api.Fail(w, http.StatusForbidden, "forbidden", "admin role required", GetRequestID(r.Context()))
				return
			}

			ctx := context.WithValue(r.Context(), adminKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdmin returns the authenticated admin subject, if any.
func GetAdmin(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(adminKey).(string)
	return subject, ok && subject != ""
}
