package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentledger/internal/circuitbreaker"
	"agentledger/internal/config"
	"agentledger/internal/db"
	"agentledger/internal/handlers"
	"agentledger/internal/hotspot"
	"agentledger/internal/logging"
	"agentledger/internal/metrics"
	"agentledger/internal/notify"
	"agentledger/internal/services"
	"agentledger/internal/store"
	"agentledger/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agents := store.NewAgentStore(database)
	balances := store.NewBalanceStore(database)
	entries := store.NewEntryStore(database)
	packages := store.NewPackageStore(database)
	sales := store.NewVoucherStore(database)
	jobs := store.NewProvisioningStore(database)
	requests := store.NewBalanceRequestStore(database)
	invoices := store.NewInvoiceStore(database)
	admins := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	reports := store.NewReportStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	var provisioner hotspot.Provisioner = hotspot.Disabled{}
	if cfg.HotspotURL != "" {
		breaker := circuitbreaker.New(cfg.HotspotBreakerThreshold, cfg.HotspotBreakerOpen)
		client := hotspot.NewClient(cfg.HotspotURL, cfg.HotspotUsername, cfg.HotspotPassword, cfg.HotspotTimeout)
		provisioner = hotspot.NewGuarded(client, breaker, "hotspot")
	} else {
		logger.Warn("HOTSPOT_URL not set; sales will be recorded without provisioning")
	}

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.NotifyURL != "" {
		dispatcher = notify.NewHTTPDispatcher(cfg.NotifyURL, cfg.NotifyToken, cfg.NotifyTimeout)
	}
	notifier := notify.NewAsync(dispatcher, cfg.NotifyTimeout, logger)

	ledger := services.NewBalanceService(txRunner, balances, entries, hub, logger)
	provisioning := services.NewProvisioningService(txRunner, jobs, sales, provisioner, notifier, services.ProvisioningConfig{
		Timeout:      cfg.HotspotTimeout,
		MaxAttempts:  cfg.ProvisionMaxAttempts,
		StaleAfter:   cfg.ProvisionRetryInterval,
		AdminContact: cfg.AdminContact,
	}, logger)
	adminService := services.NewAdminService(txRunner, admins, audit, logger)

	if cfg.BootstrapAdminUsername != "" && cfg.BootstrapAdminPassword != "" {
		created, err := adminService.Bootstrap(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword)
		if err != nil {
			logger.Error("failed to bootstrap admin", "error", err)
			os.Exit(1)
		}
		if created {
			logger.Info("bootstrapped super admin", "username", cfg.BootstrapAdminUsername)
		}
	}

	svc := handlers.Services{
		Auth:         services.NewAuthService(agents, admins, cfg.JWTSecret, cfg.TokenTTL),
		Ledger:       ledger,
		Vouchers:     services.NewVoucherService(txRunner, ledger, agents, packages, sales, jobs, provisioning, notifier, cfg.CommentMaxLength, logger),
		Payments:     services.NewPaymentService(txRunner, ledger, balances, agents, invoices, notifier, logger),
		Requests:     services.NewBalanceRequestService(txRunner, ledger, agents, requests, audit, notifier, cfg.AdminContact, logger),
		Provisioning: provisioning,
		Agents:       services.NewAgentService(txRunner, agents, balances, ledger, audit, notifier, logger),
		Admins:       adminService,
		Reports: services.NewReportService(reports, services.StoreOverview{
			Agents:   agents,
			Balances: balances,
			Requests: requests,
			Jobs:     jobs,
		}, audit),
	}

	reconciler := services.NewReconciler(provisioning, cfg.ProvisionRetryInterval, logger)
	go reconciler.Start(ctx)
	defer reconciler.Stop()
	go metrics.StartDBStatsCollector(ctx, database.DB, 15*time.Second)

	handler := handlers.New(cfg, admins, svc, hub, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("agent ledger API listening", "addr", server.Addr, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
