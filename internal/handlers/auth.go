package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"agentledger/internal/services"
)

type loginRequest struct {
	Phone    string `json:"phone"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	session, err := h.svc.Auth.LoginAgent(r.Context(), req.Phone, req.Password)
	if err != nil {
		h.respondLoginError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	session, err := h.svc.Auth.LoginAdmin(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondLoginError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *Handler) respondLoginError(w http.ResponseWriter, r *http.Request, err error) {
	if errorIsCredentials(err) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	respondServiceError(w, r, err)
}

func errorIsCredentials(err error) bool {
	return errors.Is(err, services.ErrInvalidCredentials)
}
