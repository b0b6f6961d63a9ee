package handlers

import (
	"encoding/json"
	"net/http"

	"agentledger/internal/services"
)

type sellRequest struct {
	PackageID  string `json:"package_id"`
	BuyerName  string `json:"buyer_name"`
	BuyerPhone string `json:"buyer_phone"`
}

func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.svc.Vouchers.ListPackages(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, packages)
}

// SellVoucher answers 201 once the debit commits, whether or not the
// credential reached the hotspot device.
func (h *Handler) SellVoucher(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PackageID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.svc.Vouchers.Sell(r.Context(), services.SaleRequest{
		AgentID:    agentID(r),
		PackageID:  req.PackageID,
		BuyerName:  req.BuyerName,
		BuyerPhone: req.BuyerPhone,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}
