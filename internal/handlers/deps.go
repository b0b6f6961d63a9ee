package handlers

import (
	"context"
	"time"

	"agentledger/internal/models"
	"agentledger/internal/services"
	"agentledger/internal/store"
)

type AdminStore interface {
	IsAdmin(ctx context.Context, adminID string) (bool, bool, error)
	HasRole(ctx context.Context, adminID, role string) (bool, error)
}

type AuthService interface {
	LoginAgent(ctx context.Context, phone, password string) (services.Session, error)
	LoginAdmin(ctx context.Context, username, password string) (services.Session, error)
}

type LedgerService interface {
	GetBalance(ctx context.Context, agentID string) (int64, error)
	History(ctx context.Context, agentID, kind string, limit, offset int) ([]models.TransactionEntry, error)
	Reconcile(ctx context.Context) ([]store.BalanceDrift, error)
}

type VoucherService interface {
	Sell(ctx context.Context, req services.SaleRequest) (services.SaleResult, error)
	ListSales(ctx context.Context, agentID string, limit, offset int) ([]models.VoucherSale, error)
	ListPackages(ctx context.Context) ([]models.PricedPackage, error)
}

type PaymentService interface {
	Allocate(ctx context.Context, req services.PaymentRequest) (services.AllocationResult, error)
}

type BalanceRequestService interface {
	Create(ctx context.Context, agentID string, amount int64) (models.BalanceRequest, error)
	Approve(ctx context.Context, requestID, adminID, notes string) (models.BalanceRequest, error)
	Reject(ctx context.Context, requestID, adminID, reason string) (models.BalanceRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.BalanceRequest, error)
	ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]models.BalanceRequest, error)
}

type ProvisioningService interface {
	Retry(ctx context.Context, saleID string) (services.ProvisionOutcome, error)
	ListFailed(ctx context.Context, limit, offset int) ([]models.ProvisioningJob, error)
}

type AgentService interface {
	Register(ctx context.Context, adminID string, input services.RegisterAgentInput) (models.Agent, error)
	Get(ctx context.Context, agentID string) (models.Agent, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.Agent, error)
	UpdateProfile(ctx context.Context, agentID, name, phone string) (models.Agent, error)
	SetStatus(ctx context.Context, adminID, agentID, status string) (models.Agent, error)
	SetCommissionRate(ctx context.Context, adminID, agentID, rate string) (models.Agent, error)
	AdminAdjust(ctx context.Context, adminID string, input services.AdminAdjustInput) (models.TransactionEntry, error)
}

type AdminService interface {
	CreateAdmin(ctx context.Context, actorID, username, password string) (store.Admin, error)
	GrantRole(ctx context.Context, actorID, adminID, role string) error
}

type ReportService interface {
	AgentSales(ctx context.Context, agentID string, from, to time.Time) (services.SalesReport, error)
	Overview(ctx context.Context) (services.Overview, error)
	Audit(ctx context.Context, entityType string, limit, offset int) ([]store.AuditEntry, error)
}

// Services groups everything the HTTP layer calls into.
type Services struct {
	Auth         AuthService
	Ledger       LedgerService
	Vouchers     VoucherService
	Payments     PaymentService
	Requests     BalanceRequestService
	Provisioning ProvisioningService
	Agents       AgentService
	Admins       AdminService
	Reports      ReportService
}
