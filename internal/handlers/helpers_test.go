package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agentledger/internal/auth"
	"agentledger/internal/config"
	"agentledger/internal/models"
	"agentledger/internal/services"
	"agentledger/internal/store"
	"agentledger/internal/websocket"
)

type stubAdminStore struct {
	isAdminFn func(ctx context.Context, adminID string) (bool, bool, error)
	hasRoleFn func(ctx context.Context, adminID, role string) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, adminID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, adminID)
}

func (s stubAdminStore) HasRole(ctx context.Context, adminID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, adminID, role)
}

type stubAuthService struct {
	loginAgentFn func(ctx context.Context, phone, password string) (services.Session, error)
	loginAdminFn func(ctx context.Context, username, password string) (services.Session, error)
}

func (s stubAuthService) LoginAgent(ctx context.Context, phone, password string) (services.Session, error) {
	if s.loginAgentFn == nil {
		return services.Session{}, services.ErrInvalidCredentials
	}
	return s.loginAgentFn(ctx, phone, password)
}

func (s stubAuthService) LoginAdmin(ctx context.Context, username, password string) (services.Session, error) {
	if s.loginAdminFn == nil {
		return services.Session{}, services.ErrInvalidCredentials
	}
	return s.loginAdminFn(ctx, username, password)
}

type stubLedgerService struct {
	getBalanceFn func(ctx context.Context, agentID string) (int64, error)
	historyFn    func(ctx context.Context, agentID, kind string, limit, offset int) ([]models.TransactionEntry, error)
	reconcileFn  func(ctx context.Context) ([]store.BalanceDrift, error)
}

func (s stubLedgerService) GetBalance(ctx context.Context, agentID string) (int64, error) {
	if s.getBalanceFn == nil {
		return 0, nil
	}
	return s.getBalanceFn(ctx, agentID)
}

func (s stubLedgerService) History(ctx context.Context, agentID, kind string, limit, offset int) ([]models.TransactionEntry, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, agentID, kind, limit, offset)
}

func (s stubLedgerService) Reconcile(ctx context.Context) ([]store.BalanceDrift, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx)
}

type stubVoucherService struct {
	sellFn func(ctx context.Context, req services.SaleRequest) (services.SaleResult, error)
}

func (s stubVoucherService) Sell(ctx context.Context, req services.SaleRequest) (services.SaleResult, error) {
	if s.sellFn == nil {
		return services.SaleResult{}, nil
	}
	return s.sellFn(ctx, req)
}

func (s stubVoucherService) ListSales(context.Context, string, int, int) ([]models.VoucherSale, error) {
	return nil, nil
}

func (s stubVoucherService) ListPackages(context.Context) ([]models.PricedPackage, error) {
	return nil, nil
}

type stubPaymentService struct {
	allocateFn func(ctx context.Context, req services.PaymentRequest) (services.AllocationResult, error)
}

func (s stubPaymentService) Allocate(ctx context.Context, req services.PaymentRequest) (services.AllocationResult, error) {
	if s.allocateFn == nil {
		return services.AllocationResult{}, nil
	}
	return s.allocateFn(ctx, req)
}

type stubRequestService struct {
	createFn  func(ctx context.Context, agentID string, amount int64) (models.BalanceRequest, error)
	approveFn func(ctx context.Context, requestID, adminID, notes string) (models.BalanceRequest, error)
	listFn    func(ctx context.Context, status string, limit, offset int) ([]models.BalanceRequest, error)
}

func (s stubRequestService) Create(ctx context.Context, agentID string, amount int64) (models.BalanceRequest, error) {
	if s.createFn == nil {
		return models.BalanceRequest{}, nil
	}
	return s.createFn(ctx, agentID, amount)
}

func (s stubRequestService) Approve(ctx context.Context, requestID, adminID, notes string) (models.BalanceRequest, error) {
	if s.approveFn == nil {
		return models.BalanceRequest{}, nil
	}
	return s.approveFn(ctx, requestID, adminID, notes)
}

func (s stubRequestService) Reject(context.Context, string, string, string) (models.BalanceRequest, error) {
	return models.BalanceRequest{}, nil
}

func (s stubRequestService) List(ctx context.Context, status string, limit, offset int) ([]models.BalanceRequest, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, status, limit, offset)
}

func (s stubRequestService) ListByAgent(context.Context, string, int, int) ([]models.BalanceRequest, error) {
	return nil, nil
}

type stubProvisioningService struct {
	retryFn func(ctx context.Context, saleID string) (services.ProvisionOutcome, error)
}

func (s stubProvisioningService) Retry(ctx context.Context, saleID string) (services.ProvisionOutcome, error) {
	if s.retryFn == nil {
		return services.ProvisionOutcome{}, nil
	}
	return s.retryFn(ctx, saleID)
}

func (s stubProvisioningService) ListFailed(context.Context, int, int) ([]models.ProvisioningJob, error) {
	return nil, nil
}

type stubAgentService struct {
	registerFn func(ctx context.Context, adminID string, input services.RegisterAgentInput) (models.Agent, error)
	getFn      func(ctx context.Context, agentID string) (models.Agent, error)
	adjustFn   func(ctx context.Context, adminID string, input services.AdminAdjustInput) (models.TransactionEntry, error)
}

func (s stubAgentService) Register(ctx context.Context, adminID string, input services.RegisterAgentInput) (models.Agent, error) {
	if s.registerFn == nil {
		return models.Agent{}, nil
	}
	return s.registerFn(ctx, adminID, input)
}

func (s stubAgentService) Get(ctx context.Context, agentID string) (models.Agent, error) {
	if s.getFn == nil {
		return models.Agent{ID: agentID}, nil
	}
	return s.getFn(ctx, agentID)
}

func (s stubAgentService) List(context.Context, string, int, int) ([]models.Agent, error) {
	return nil, nil
}

func (s stubAgentService) UpdateProfile(_ context.Context, agentID, name, phone string) (models.Agent, error) {
	return models.Agent{ID: agentID, Name: name, Phone: phone}, nil
}

func (s stubAgentService) SetStatus(_ context.Context, _, agentID, status string) (models.Agent, error) {
	return models.Agent{ID: agentID, Status: status}, nil
}

func (s stubAgentService) SetCommissionRate(_ context.Context, _, agentID, _ string) (models.Agent, error) {
	return models.Agent{ID: agentID}, nil
}

func (s stubAgentService) AdminAdjust(ctx context.Context, adminID string, input services.AdminAdjustInput) (models.TransactionEntry, error) {
	if s.adjustFn == nil {
		return models.TransactionEntry{}, nil
	}
	return s.adjustFn(ctx, adminID, input)
}

type stubAdminService struct {
	createFn func(ctx context.Context, actorID, username, password string) (store.Admin, error)
	grantFn  func(ctx context.Context, actorID, adminID, role string) error
}

func (s stubAdminService) CreateAdmin(ctx context.Context, actorID, username, password string) (store.Admin, error) {
	if s.createFn == nil {
		return store.Admin{}, nil
	}
	return s.createFn(ctx, actorID, username, password)
}

func (s stubAdminService) GrantRole(ctx context.Context, actorID, adminID, role string) error {
	if s.grantFn == nil {
		return nil
	}
	return s.grantFn(ctx, actorID, adminID, role)
}

type stubReportService struct {
	salesFn func(ctx context.Context, agentID string, from, to time.Time) (services.SalesReport, error)
}

func (s stubReportService) AgentSales(ctx context.Context, agentID string, from, to time.Time) (services.SalesReport, error) {
	if s.salesFn == nil {
		return services.SalesReport{}, nil
	}
	return s.salesFn(ctx, agentID, from, to)
}

func (s stubReportService) Overview(context.Context) (services.Overview, error) {
	return services.Overview{}, nil
}

func (s stubReportService) Audit(context.Context, string, int, int) ([]store.AuditEntry, error) {
	return nil, nil
}

const testSecret = "secret"

// defaultServices fills every slot so route tests never hit a nil interface.
func defaultServices() Services {
	return Services{
		Auth:         stubAuthService{},
		Ledger:       stubLedgerService{},
		Vouchers:     stubVoucherService{},
		Payments:     stubPaymentService{},
		Requests:     stubRequestService{},
		Provisioning: stubProvisioningService{},
		Agents:       stubAgentService{},
		Admins:       stubAdminService{},
		Reports:      stubReportService{},
	}
}

func newTestHandler(admin AdminStore, svc Services) *Handler {
	cfg := config.Config{JWTSecret: testSecret, AllowedOrigins: "*"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, admin, svc, websocket.NewHub(), logger)
}

func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, role, time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

// serveWithAuth sends the request through the full router with a bearer
// token for the given identity.
func serveWithAuth(t *testing.T, h *Handler, req *http.Request, userID, role string) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID, role))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func superAdminStore() stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, bool, error) { return true, true, nil },
	}
}
