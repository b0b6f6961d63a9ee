package handlers

import (
	"encoding/json"
	"net/http"

	"agentledger/internal/services"
)

type paymentRequest struct {
	CustomerID string      `json:"customer_id"`
	Amount     amountField `json:"amount"`
	Method     string      `json:"method"`
}

func (h *Handler) AllocatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	result, err := h.svc.Payments.Allocate(r.Context(), services.PaymentRequest{
		AgentID:    agentID(r),
		CustomerID: req.CustomerID,
		Amount:     amount,
		Method:     req.Method,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
