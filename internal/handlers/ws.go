package handlers

import (
	"net/http"
	"strings"

	"agentledger/internal/auth"
	"agentledger/internal/websocket"
)

// WSBalances streams balance updates for the authenticated agent. Browsers
// cannot set headers on upgrade requests, so the token may come as a query
// parameter.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if claims.Role != auth.RoleAgent {
		respondError(w, http.StatusForbidden, "agent token required")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
