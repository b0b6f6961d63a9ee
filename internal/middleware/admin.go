package middleware

import (
	"context"
	"net/http"

	"agentledger/internal/auth"
)

type AdminStore interface {
	IsAdmin(ctx context.Context, adminID string) (bool, bool, error)
	HasRole(ctx context.Context, adminID, role string) (bool, error)
}

// RequireAdmin checks the admin token against the admins table. Super admins
// pass every role check; an empty role only requires admin membership.
func RequireAdmin(adminStore AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			adminID, ok := UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if RoleFromContext(r.Context()) != auth.RoleAdmin {
				http.Error(w, "admin privileges required", http.StatusForbidden)
				return
			}
			isAdmin, isSuper, err := adminStore.IsAdmin(r.Context(), adminID)
			if err != nil {
				http.Error(w, "unable to verify admin", http.StatusInternalServerError)
				return
			}
			if !isAdmin {
				http.Error(w, "admin privileges required", http.StatusForbidden)
				return
			}
			if isSuper || role == "" {
				next.ServeHTTP(w, r)
				return
			}
			hasRole, err := adminStore.HasRole(r.Context(), adminID, role)
			if err != nil {
				http.Error(w, "unable to verify role", http.StatusInternalServerError)
				return
			}
			if !hasRole {
				http.Error(w, "missing required role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
