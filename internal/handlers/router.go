package handlers

import (
	"log/slog"
	"net/http"

	"agentledger/internal/config"
	"agentledger/internal/metrics"
	"agentledger/internal/middleware"
	"agentledger/internal/services"
	"agentledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg    config.Config
	admin  AdminStore
	svc    Services
	hub    *websocket.Hub
	logger *slog.Logger
}

func New(cfg config.Config, admin AdminStore, svc Services, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		admin:  admin,
		svc:    svc,
		hub:    hub,
		logger: logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(h.logger))
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(metrics.Middleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/admin/login", h.AdminLogin)
	})
	router.Get("/ws/balances", h.WSBalances)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireAgent)
		r.Get("/me", h.Me)
		r.Put("/me/profile", h.UpdateProfile)
		r.Get("/me/balance", h.GetBalance)
		r.Get("/me/transactions", h.ListTransactions)
		r.Get("/me/sales", h.ListSales)
		r.Get("/me/balance-requests", h.ListMyBalanceRequests)
		r.Get("/me/reports/sales", h.SalesReport)
		r.Get("/packages", h.ListPackages)
		r.Post("/vouchers/sell", h.SellVoucher)
		r.Post("/payments", h.AllocatePayment)
		r.Post("/balance-requests", h.CreateBalanceRequest)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, services.RoleManageAgents)).Get("/agents", h.AdminListAgents)
		r.With(middleware.RequireAdmin(h.admin, services.RoleManageAgents)).Post("/agents", h.AdminRegisterAgent)
		r.With(middleware.RequireAdmin(h.admin, services.RoleManageAgents)).Get("/agents/{id}", h.AdminGetAgent)
		r.With(middleware.RequireAdmin(h.admin, services.RoleManageAgents)).Get("/agents/{id}/transactions", h.AdminAgentTransactions)
		r.With(middleware.RequireAdmin(h.admin, services.RoleManageAgents)).Put("/agents/{id}/status", h.AdminSetStatus)
		r.With(middleware.RequireAdmin(h.admin, services.RoleManageAgents)).Put("/agents/{id}/commission", h.AdminSetCommission)
		r.With(middleware.RequireAdmin(h.admin, services.RoleManageAgents)).Post("/agents/{id}/adjust", h.AdminAdjustBalance)
		r.With(middleware.RequireAdmin(h.admin, services.RoleApproveRequests)).Get("/balance-requests", h.AdminListBalanceRequests)
		r.With(middleware.RequireAdmin(h.admin, services.RoleApproveRequests)).Post("/balance-requests/{id}/approve", h.AdminApproveBalanceRequest)
		r.With(middleware.RequireAdmin(h.admin, services.RoleApproveRequests)).Post("/balance-requests/{id}/reject", h.AdminRejectBalanceRequest)
		r.With(middleware.RequireAdmin(h.admin, services.RoleManageProvisioning)).Get("/provisioning/failed", h.AdminListFailedProvisioning)
		r.With(middleware.RequireAdmin(h.admin, services.RoleManageProvisioning)).Post("/provisioning/{saleID}/retry", h.AdminRetryProvisioning)
		r.With(middleware.RequireAdmin(h.admin, services.RoleViewReports)).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.admin, services.RoleViewReports)).Get("/overview", h.AdminOverview)
		r.With(middleware.RequireAdmin(h.admin, services.RoleViewReports)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/admins", h.CreateAdmin)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", metrics.Handler())
	return router
}
