package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"agentledger/internal/hotspot"
	"agentledger/internal/models"
	"agentledger/internal/store"
	"agentledger/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memLedger keeps balances and entries in memory. Its mutex only protects
// the maps; the read-check-write sequence is left to the service.
type memLedger struct {
	mu        sync.Mutex
	balances  map[string]int64
	entries   []models.TransactionEntry
	seq       int64
	readDelay time.Duration
	insertErr error
}

func newMemLedger(balances map[string]int64) *memLedger {
	if balances == nil {
		balances = map[string]int64{}
	}
	return &memLedger{balances: balances}
}

func (m *memLedger) Get(_ context.Context, agentID string) (models.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	amount, ok := m.balances[agentID]
	if !ok {
		return models.Balance{}, store.ErrNotFound
	}
	return models.Balance{AgentID: agentID, Amount: amount}, nil
}

func (m *memLedger) GetForUpdate(ctx context.Context, _ store.Getter, agentID string) (models.Balance, error) {
	balance, err := m.Get(ctx, agentID)
	if m.readDelay > 0 {
		time.Sleep(m.readDelay)
	}
	return balance, err
}

func (m *memLedger) Update(_ context.Context, _ store.Execer, agentID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[agentID]; !ok {
		return store.ErrNotFound
	}
	m.balances[agentID] = amount
	return nil
}

func (m *memLedger) Reconcile(context.Context) ([]store.BalanceDrift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := map[string]int64{}
	for _, e := range m.entries {
		sums[e.AgentID] += e.Amount
	}
	var drifts []store.BalanceDrift
	for agentID, amount := range m.balances {
		if sums[agentID] != amount {
			drifts = append(drifts, store.BalanceDrift{AgentID: agentID, StoredBalance: amount, CalculatedBalance: sums[agentID], Difference: amount - sums[agentID]})
		}
	}
	return drifts, nil
}

func (m *memLedger) Create(_ context.Context, _ store.Execer, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[agentID] = 0
	return nil
}

func (m *memLedger) Insert(_ context.Context, _ store.Getter, entry *models.TransactionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.seq++
	entry.Seq = m.seq
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memLedger) ListByAgent(_ context.Context, agentID, kind string, limit, offset int) ([]models.TransactionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransactionEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.AgentID == agentID && (kind == "" || e.Kind == kind) {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLedger) balance(agentID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[agentID]
}

func (m *memLedger) entriesFor(agentID string) []models.TransactionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransactionEntry
	for _, e := range m.entries {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out
}

type stubAgentStore struct {
	mu     sync.Mutex
	agents map[string]models.Agent

	createErr error
	updated   map[string]string
}

func newStubAgentStore(agents ...models.Agent) *stubAgentStore {
	s := &stubAgentStore{agents: map[string]models.Agent{}, updated: map[string]string{}}
	for _, a := range agents {
		s.agents[a.ID] = a
	}
	return s
}

func (s *stubAgentStore) GetByID(_ context.Context, agentID string) (models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return models.Agent{}, store.ErrNotFound
	}
	return agent, nil
}

func (s *stubAgentStore) GetForShare(ctx context.Context, _ store.Getter, agentID string) (models.Agent, error) {
	return s.GetByID(ctx, agentID)
}

func (s *stubAgentStore) GetByPhone(_ context.Context, phone string) (models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.Phone == phone {
			return a, nil
		}
	}
	return models.Agent{}, store.ErrNotFound
}

func (s *stubAgentStore) Create(_ context.Context, _ store.Execer, agent models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.agents[agent.ID] = agent
	return nil
}

func (s *stubAgentStore) List(_ context.Context, status string, _, _ int) ([]models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Agent
	for _, a := range s.agents {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (s *stubAgentStore) UpdateProfile(_ context.Context, _ store.Execer, agentID, name, phone string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return 0, nil
	}
	agent.Name, agent.Phone = name, phone
	s.agents[agentID] = agent
	return 1, nil
}

func (s *stubAgentStore) UpdateStatus(_ context.Context, _ store.Execer, agentID, status string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return 0, nil
	}
	agent.Status = status
	s.agents[agentID] = agent
	return 1, nil
}

func (s *stubAgentStore) UpdateCommissionRate(_ context.Context, _ store.Execer, agentID string, rate decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return 0, nil
	}
	agent.CommissionRate = rate
	s.agents[agentID] = agent
	return 1, nil
}

type stubPackageStore struct {
	packages map[string]models.PricedPackage
}

func (s stubPackageStore) GetActive(_ context.Context, packageID string) (models.PricedPackage, error) {
	pkg, ok := s.packages[packageID]
	if !ok || !pkg.IsActive {
		return models.PricedPackage{}, store.ErrNotFound
	}
	return pkg, nil
}

func (s stubPackageStore) ListActive(context.Context) ([]models.PricedPackage, error) {
	var out []models.PricedPackage
	for _, pkg := range s.packages {
		if pkg.IsActive {
			out = append(out, pkg)
		}
	}
	return out, nil
}

type memSales struct {
	mu        sync.Mutex
	sales     map[string]models.VoucherSale
	createErr func(sale models.VoucherSale) error
}

func newMemSales() *memSales {
	return &memSales{sales: map[string]models.VoucherSale{}}
}

func (m *memSales) Create(_ context.Context, _ store.Execer, sale models.VoucherSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		if err := m.createErr(sale); err != nil {
			return err
		}
	}
	m.sales[sale.ID] = sale
	return nil
}

func (m *memSales) RecordProvisioning(_ context.Context, _ store.Execer, saleID string, provisioned bool, provisionError *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[saleID]
	if !ok {
		return store.ErrNotFound
	}
	sale.Provisioned = provisioned
	sale.ProvisionError = provisionError
	m.sales[saleID] = sale
	return nil
}

func (m *memSales) ListByAgent(_ context.Context, agentID string, _, _ int) ([]models.VoucherSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.VoucherSale
	for _, s := range m.sales {
		if s.AgentID == agentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSales) all() []models.VoucherSale {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.VoucherSale, 0, len(m.sales))
	for _, s := range m.sales {
		out = append(out, s)
	}
	return out
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]models.ProvisioningJob
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]models.ProvisioningJob{}}
}

func (m *memJobs) Create(_ context.Context, _ store.Execer, job models.ProvisioningJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobs) GetBySale(_ context.Context, saleID string) (models.ProvisioningJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.SaleID == saleID {
			return job, nil
		}
	}
	return models.ProvisioningJob{}, store.ErrNotFound
}

func (m *memJobs) RecordAttempt(_ context.Context, _ store.Execer, jobID, status string, lastError *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.Attempts++
	job.LastError = lastError
	job.UpdatedAt = time.Now()
	m.jobs[jobID] = job
	return nil
}

func (m *memJobs) ListRetryable(_ context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]models.ProvisioningJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProvisioningJob
	for _, job := range m.jobs {
		if job.Attempts >= maxAttempts {
			continue
		}
		if job.Status == models.JobStatusFailed || (job.Status == models.JobStatusPending && job.UpdatedAt.Before(staleBefore)) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobs) ListFailed(_ context.Context, _, _ int) ([]models.ProvisioningJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProvisioningJob
	for _, job := range m.jobs {
		if job.Status == models.JobStatusFailed {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *memJobs) bySale(saleID string) models.ProvisioningJob {
	job, _ := m.GetBySale(context.Background(), saleID)
	return job
}

type stubProvisioner struct {
	mu    sync.Mutex
	err   error
	users []hotspot.User
}

func (s *stubProvisioner) CreateUser(_ context.Context, user hotspot.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user)
	return s.err
}

func (s *stubProvisioner) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubProvisioner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type sentNotification struct {
	Target  string
	Event   string
	Payload map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, target, eventType string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{Target: target, Event: eventType, Payload: payload})
	return r.err
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Event)
	}
	return out
}

type stubInvoiceStore struct {
	mu       sync.Mutex
	invoices []models.Invoice
}

func (s *stubInvoiceStore) ListUnpaidForUpdate(_ context.Context, _ store.Selecter, customerID string) ([]models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Invoice
	for _, inv := range s.invoices {
		if inv.CustomerID == customerID && inv.Status == models.InvoiceStatusUnpaid {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (s *stubInvoiceStore) MarkPaid(_ context.Context, _ store.Execer, invoiceID, method, agentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inv := range s.invoices {
		if inv.ID == invoiceID && inv.Status == models.InvoiceStatusUnpaid {
			now := time.Now()
			s.invoices[i].Status = models.InvoiceStatusPaid
			s.invoices[i].PaidAt = &now
			s.invoices[i].PaymentMethod = &method
			s.invoices[i].PaidByAgentID = &agentID
			return 1, nil
		}
	}
	return 0, nil
}

func (s *stubInvoiceStore) status(invoiceID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.ID == invoiceID {
			return inv.Status
		}
	}
	return ""
}

type memRequests struct {
	mu       sync.Mutex
	requests map[string]models.BalanceRequest
}

func newMemRequests() *memRequests {
	return &memRequests{requests: map[string]models.BalanceRequest{}}
}

func (m *memRequests) Create(_ context.Context, req *models.BalanceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.RequestedAt = time.Now()
	m.requests[req.ID] = *req
	return nil
}

func (m *memRequests) GetByID(_ context.Context, requestID string) (models.BalanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return models.BalanceRequest{}, store.ErrNotFound
	}
	return req, nil
}

func (m *memRequests) GetForUpdate(ctx context.Context, _ store.Getter, requestID string) (models.BalanceRequest, error) {
	return m.GetByID(ctx, requestID)
}

func (m *memRequests) Process(_ context.Context, _ store.Execer, requestID, status string, notes *string, adminID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok || req.Status != models.RequestStatusPending {
		return 0, nil
	}
	now := time.Now()
	req.Status = status
	req.AdminNotes = notes
	req.ProcessedBy = &adminID
	req.ProcessedAt = &now
	m.requests[requestID] = req
	return 1, nil
}

func (m *memRequests) List(_ context.Context, status string, _, _ int) ([]models.BalanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BalanceRequest
	for _, req := range m.requests {
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *memRequests) ListByAgent(_ context.Context, agentID string, _, _ int) ([]models.BalanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BalanceRequest
	for _, req := range m.requests {
		if req.AgentID == agentID {
			out = append(out, req)
		}
	}
	return out, nil
}

type stubAuditStore struct {
	mu      sync.Mutex
	actions []string
	err     error
}

func (s *stubAuditStore) Log(_ context.Context, _ store.Execer, _, action, _, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.actions = append(s.actions, action)
	return nil
}

type stubHub struct {
	mu    sync.Mutex
	calls []websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, update)
}

func (s *stubHub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func activeAgent(id string) models.Agent {
	return models.Agent{
		ID:             id,
		Handle:         "agent_" + id,
		Name:           "Budi Santoso",
		Phone:          "6281234567890",
		Status:         models.AgentStatusActive,
		CommissionRate: decimal.NewFromInt(10),
	}
}

// ledgerTxRunner undoes memLedger writes when the unit of work fails.
// Callers must hold the agent lock, as the services do.
type ledgerTxRunner struct {
	ledger *memLedger
}

func (r ledgerTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.ledger.mu.Lock()
	balances := make(map[string]int64, len(r.ledger.balances))
	for k, v := range r.ledger.balances {
		balances[k] = v
	}
	entries := len(r.ledger.entries)
	r.ledger.mu.Unlock()

	if err := fn(nil); err != nil {
		r.ledger.mu.Lock()
		r.ledger.balances = balances
		r.ledger.entries = r.ledger.entries[:entries]
		r.ledger.mu.Unlock()
		return err
	}
	return nil
}
