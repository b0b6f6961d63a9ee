package handlers

import (
	"encoding/json"
	"net/http"

	"agentledger/internal/middleware"
	"agentledger/internal/services"

	"github.com/go-chi/chi/v5"
)

func adminID(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

func (h *Handler) AdminListAgents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	agents, err := h.svc.Agents.List(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, agents)
}

type registerAgentRequest struct {
	Handle         string `json:"handle"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Password       string `json:"password"`
	CommissionRate string `json:"commission_rate"`
}

func (h *Handler) AdminRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	agent, err := h.svc.Agents.Register(r.Context(), adminID(r), services.RegisterAgentInput{
		Handle:         req.Handle,
		Name:           req.Name,
		Phone:          req.Phone,
		Password:       req.Password,
		CommissionRate: req.CommissionRate,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, agent)
}

func (h *Handler) AdminGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.svc.Agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	balance, err := h.svc.Ledger.GetBalance(r.Context(), agent.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"agent":     agent,
		"balance":   balance,
		"formatted": formatted(balance),
	})
}

func (h *Handler) AdminAgentTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	entries, err := h.svc.Ledger.History(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("kind"), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) AdminSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	agent, err := h.svc.Agents.SetStatus(r.Context(), adminID(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

type commissionRequest struct {
	CommissionRate string `json:"commission_rate"`
}

func (h *Handler) AdminSetCommission(w http.ResponseWriter, r *http.Request) {
	var req commissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CommissionRate == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	agent, err := h.svc.Agents.SetCommissionRate(r.Context(), adminID(r), chi.URLParam(r, "id"), req.CommissionRate)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

type adjustRequest struct {
	Amount amountField `json:"amount"`
	Kind   string      `json:"kind"`
	Note   string      `json:"note"`
}

func (h *Handler) AdminAdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	entry, err := h.svc.Agents.AdminAdjust(r.Context(), adminID(r), services.AdminAdjustInput{
		AgentID: chi.URLParam(r, "id"),
		Amount:  amount,
		Kind:    req.Kind,
		Note:    req.Note,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) AdminListBalanceRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "pending"
	}
	requests, err := h.svc.Requests.List(r.Context(), status, limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// decodeNotes tolerates an empty body; notes are optional.
func decodeNotes(r *http.Request) (string, bool) {
	if r.ContentLength == 0 {
		return "", true
	}
	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", false
	}
	return req.Notes, true
}

func (h *Handler) AdminApproveBalanceRequest(w http.ResponseWriter, r *http.Request) {
	notes, ok := decodeNotes(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	request, err := h.svc.Requests.Approve(r.Context(), chi.URLParam(r, "id"), adminID(r), notes)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, request)
}

func (h *Handler) AdminRejectBalanceRequest(w http.ResponseWriter, r *http.Request) {
	notes, ok := decodeNotes(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	request, err := h.svc.Requests.Reject(r.Context(), chi.URLParam(r, "id"), adminID(r), notes)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, request)
}

func (h *Handler) AdminListFailedProvisioning(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	jobs, err := h.svc.Provisioning.ListFailed(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

func (h *Handler) AdminRetryProvisioning(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.svc.Provisioning.Retry(r.Context(), chi.URLParam(r, "saleID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.svc.Ledger.Reconcile(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"consistent": len(drifts) == 0,
		"drifts":     drifts,
	})
}

func (h *Handler) AdminOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.Reports.Overview(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	entries, err := h.svc.Reports.Audit(r.Context(), r.URL.Query().Get("entity_type"), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// requireSuper mirrors the RequireAdmin lookup but insists on a super admin.
func (h *Handler) requireSuper(w http.ResponseWriter, r *http.Request) bool {
	_, isSuper, err := h.admin.IsAdmin(r.Context(), adminID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return false
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return false
	}
	return true
}

type createAdminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	if !h.requireSuper(w, r) {
		return
	}
	var req createAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	admin, err := h.svc.Admins.CreateAdmin(r.Context(), adminID(r), req.Username, req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":       admin.ID,
		"username": admin.Username,
		"is_super": admin.IsSuper,
	})
}

type grantRoleRequest struct {
	AdminID string `json:"admin_id"`
	Role    string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	if !h.requireSuper(w, r) {
		return
	}
	var req grantRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdminID == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.svc.Admins.GrantRole(r.Context(), adminID(r), req.AdminID, req.Role); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}
