package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agentledger/internal/db"
	"agentledger/internal/metrics"
	"agentledger/internal/models"
	"agentledger/internal/money"
	"agentledger/internal/notify"
	"agentledger/internal/store"

	"github.com/jmoiron/sqlx"
)

type InvoiceStore interface {
	ListUnpaidForUpdate(ctx context.Context, tx store.Selecter, customerID string) ([]models.Invoice, error)
	MarkPaid(ctx context.Context, tx store.Execer, invoiceID, method, agentID string) (int64, error)
}

type BalanceLocker interface {
	GetForUpdate(ctx context.Context, tx store.Getter, agentID string) (models.Balance, error)
}

type PayingAgentStore interface {
	AgentReader
	GetForShare(ctx context.Context, tx store.Getter, agentID string) (models.Agent, error)
}

type PaymentService struct {
	txRunner db.TxRunner
	balances *BalanceService
	locker   BalanceLocker
	agents   PayingAgentStore
	invoices InvoiceStore
	notifier notify.Dispatcher
	logger   *slog.Logger
}

func NewPaymentService(txRunner db.TxRunner, balances *BalanceService, locker BalanceLocker, agents PayingAgentStore, invoices InvoiceStore, notifier notify.Dispatcher, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		txRunner: txRunner,
		balances: balances,
		locker:   locker,
		agents:   agents,
		invoices: invoices,
		notifier: notifier,
		logger:   logger,
	}
}

type PaymentRequest struct {
	AgentID    string
	CustomerID string
	Amount     int64
	Method     string
}

type PaidInvoice struct {
	InvoiceID  string    `json:"invoice_id"`
	Amount     int64     `json:"amount"`
	DueDate    time.Time `json:"due_date"`
	Commission int64     `json:"commission"`
}

type AllocationResult struct {
	PaidInvoices    []PaidInvoice `json:"paid_invoices"`
	TotalPaid       int64         `json:"total_paid"`
	TotalCommission int64         `json:"total_commission"`
	Unallocated     int64         `json:"unallocated"`
	Balance         int64         `json:"balance"`
}

// AllocateInvoices walks invoices in order and takes the longest prefix that
// remaining fully covers. It stops at the first invoice it cannot pay.
func AllocateInvoices(remaining int64, invoices []models.Invoice) (allocated []models.Invoice, left int64) {
	for _, inv := range invoices {
		if remaining < inv.Amount {
			break
		}
		remaining -= inv.Amount
		allocated = append(allocated, inv)
	}
	return allocated, remaining
}

// Allocate pays a customer's oldest unpaid invoices out of the agent's float
// and credits the agent's commission. Money left over after the last payable
// invoice is reported as Unallocated and not credited anywhere.
func (s *PaymentService) Allocate(ctx context.Context, req PaymentRequest) (AllocationResult, error) {
	if req.AgentID == "" || strings.TrimSpace(req.CustomerID) == "" {
		return AllocationResult{}, ErrInvalidInput
	}
	if req.Amount <= 0 {
		return AllocationResult{}, ErrInvalidAmount
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = "cash"
	}
	agent, err := s.agents.GetByID(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AllocationResult{}, ErrAgentNotFound
		}
		return AllocationResult{}, err
	}
	if agent.Status != models.AgentStatusActive {
		return AllocationResult{}, ErrAgentInactive
	}

	unlock := s.balances.LockAgent(req.AgentID)
	started := time.Now()
	var (
		result  AllocationResult
		entries []models.TransactionEntry
	)
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = AllocationResult{}
		entries = entries[:0]

		locked, err := s.agents.GetForShare(ctx, tx, req.AgentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrAgentNotFound
			}
			return err
		}
		if locked.Status != models.AgentStatusActive {
			return ErrAgentInactive
		}
		agent = locked

		balance, err := s.locker.GetForUpdate(ctx, tx, req.AgentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrBalanceNotFound
			}
			return err
		}
		if balance.Amount < req.Amount {
			return &InsufficientBalanceError{Required: req.Amount, Available: balance.Amount}
		}
		unpaid, err := s.invoices.ListUnpaidForUpdate(ctx, tx, req.CustomerID)
		if err != nil {
			return err
		}
		allocated, left := AllocateInvoices(req.Amount, unpaid)
		if len(allocated) == 0 {
			return ErrNothingToAllocate
		}
		for _, inv := range allocated {
			changed, err := s.invoices.MarkPaid(ctx, tx, inv.ID, method, req.AgentID)
			if err != nil {
				return err
			}
			if changed != 1 {
				return fmt.Errorf("invoice %s changed while locked", inv.ID)
			}
			commission := money.Percent(inv.Amount, agent.CommissionRate)
			result.PaidInvoices = append(result.PaidInvoices, PaidInvoice{
				InvoiceID:  inv.ID,
				Amount:     inv.Amount,
				DueDate:    inv.DueDate,
				Commission: commission,
			})
			result.TotalPaid += inv.Amount
			result.TotalCommission += commission
		}
		result.Unallocated = left

		ref := req.CustomerID
		debit, err := s.balances.ApplyTx(ctx, tx, AdjustmentInput{
			AgentID:     req.AgentID,
			Amount:      -result.TotalPaid,
			Kind:        models.KindMonthlyPayment,
			Description: fmt.Sprintf("Payment of %d invoice(s) for customer %s via %s", len(result.PaidInvoices), req.CustomerID, method),
			ReferenceID: &ref,
		})
		if err != nil {
			return err
		}
		entries = append(entries, debit)
		result.Balance = debit.BalanceAfter

		if result.TotalCommission > 0 {
			credit, err := s.balances.ApplyTx(ctx, tx, AdjustmentInput{
				AgentID:     req.AgentID,
				Amount:      result.TotalCommission,
				Kind:        models.KindCommission,
				Description: fmt.Sprintf("Commission for customer %s payment", req.CustomerID),
				ReferenceID: &ref,
			})
			if err != nil {
				return err
			}
			entries = append(entries, credit)
			result.Balance = credit.BalanceAfter
		}
		return nil
	})
	unlock()
	metrics.ObserveAdjustment(models.KindMonthlyPayment, adjustmentResult(err), started)
	if err != nil {
		metrics.PaymentAllocationsTotal.WithLabelValues(allocationResult(err)).Inc()
		s.balances.logFailure(ctx, "allocate_payment", req.AgentID, err)
		return AllocationResult{}, err
	}
	metrics.PaymentAllocationsTotal.WithLabelValues("ok").Inc()
	for _, entry := range entries {
		s.balances.Broadcast(entry)
	}
	if result.Unallocated > 0 {
		s.logger.WarnContext(ctx, "payment overpaid", "agent_id", req.AgentID, "customer_id", req.CustomerID, "unallocated", result.Unallocated)
	}

	_ = s.notifier.Notify(ctx, agent.Phone, notify.EventPaymentReceived, map[string]any{
		"customer_id": req.CustomerID,
		"invoices":    len(result.PaidInvoices),
		"total_paid":  money.FormatRupiah(result.TotalPaid),
		"commission":  money.FormatRupiah(result.TotalCommission),
		"unallocated": money.FormatRupiah(result.Unallocated),
		"balance":     money.FormatRupiah(result.Balance),
	})
	return result, nil
}

func allocationResult(err error) string {
	switch {
	case errors.Is(err, ErrNothingToAllocate):
		return "nothing_to_allocate"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient"
	default:
		return "error"
	}
}
