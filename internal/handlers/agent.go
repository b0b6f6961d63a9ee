package handlers

import (
	"encoding/json"
	"net/http"

	"agentledger/internal/middleware"
)

func agentID(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	agent, err := h.svc.Agents.Get(r.Context(), agentID(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

type profileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	agent, err := h.svc.Agents.UpdateProfile(r.Context(), agentID(r), req.Name, req.Phone)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.Ledger.GetBalance(r.Context(), agentID(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"balance":   balance,
		"formatted": formatted(balance),
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	entries, err := h.svc.Ledger.History(r.Context(), agentID(r), r.URL.Query().Get("kind"), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	sales, err := h.svc.Vouchers.ListSales(r.Context(), agentID(r), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

func (h *Handler) ListMyBalanceRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	requests, err := h.svc.Requests.ListByAgent(r.Context(), agentID(r), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

type balanceRequestPayload struct {
	Amount amountField `json:"amount"`
}

func (h *Handler) CreateBalanceRequest(w http.ResponseWriter, r *http.Request) {
	var req balanceRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	created, err := h.svc.Requests.Create(r.Context(), agentID(r), amount)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) SalesReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseDate(query.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to, err := parseDate(query.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	report, err := h.svc.Reports.AgentSales(r.Context(), agentID(r), from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
