package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"agentledger/internal/logging"
	"agentledger/internal/money"
	"agentledger/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:          http.StatusBadRequest,
	services.KindInsufficientBalance: http.StatusUnprocessableEntity,
	services.KindNotFound:            http.StatusNotFound,
	services.KindState:               http.StatusConflict,
	services.KindConcurrency:         http.StatusConflict,
	services.KindExternal:            http.StatusBadGateway,
	services.KindPersistence:         http.StatusInternalServerError,
}

// respondServiceError maps a service error to its status and a stable code.
// Persistence errors are logged and reported without their details.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.Classify(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := map[string]any{"error": string(kind)}
	switch kind {
	case services.KindPersistence:
		logging.L(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		body["message"] = "internal error"
	case services.KindInsufficientBalance:
		body["message"] = err.Error()
		var insufficient *services.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			body["required"] = insufficient.Required
			body["available"] = insufficient.Available
		}
	default:
		body["message"] = err.Error()
	}
	respondJSON(w, status, body)
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// pagination reads limit and page query parameters, capping limit at 200.
func pagination(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	limit = parseInt(query.Get("limit"), 50)
	if limit > 200 {
		limit = 200
	}
	page := parseInt(query.Get("page"), 1)
	return limit, (page - 1) * limit
}

func formatted(amount int64) string {
	return money.FormatRupiah(amount)
}
