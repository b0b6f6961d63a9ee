package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"agentledger/internal/db"
	"agentledger/internal/metrics"
	"agentledger/internal/models"
	"agentledger/internal/money"
	"agentledger/internal/notify"
	"agentledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type BalanceRequestStore interface {
	Create(ctx context.Context, req *models.BalanceRequest) error
	GetByID(ctx context.Context, requestID string) (models.BalanceRequest, error)
	GetForUpdate(ctx context.Context, tx store.Getter, requestID string) (models.BalanceRequest, error)
	Process(ctx context.Context, tx store.Execer, requestID, status string, notes *string, adminID string) (int64, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.BalanceRequest, error)
	ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]models.BalanceRequest, error)
}

// BalanceRequestService moves top-up requests from pending to approved or
// rejected exactly once. Approval credits the agent in the same unit of work.
type BalanceRequestService struct {
	txRunner     db.TxRunner
	balances     *BalanceService
	agents       AgentReader
	requests     BalanceRequestStore
	audit        AuditLogger
	notifier     notify.Dispatcher
	adminContact string
	logger       *slog.Logger
}

func NewBalanceRequestService(txRunner db.TxRunner, balances *BalanceService, agents AgentReader, requests BalanceRequestStore, audit AuditLogger, notifier notify.Dispatcher, adminContact string, logger *slog.Logger) *BalanceRequestService {
	return &BalanceRequestService{
		txRunner:     txRunner,
		balances:     balances,
		agents:       agents,
		requests:     requests,
		audit:        audit,
		notifier:     notifier,
		adminContact: adminContact,
		logger:       logger,
	}
}

func (s *BalanceRequestService) Create(ctx context.Context, agentID string, amount int64) (models.BalanceRequest, error) {
	if agentID == "" {
		return models.BalanceRequest{}, ErrInvalidInput
	}
	if amount <= 0 {
		return models.BalanceRequest{}, ErrInvalidAmount
	}
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.BalanceRequest{}, ErrAgentNotFound
		}
		return models.BalanceRequest{}, err
	}
	if agent.Status != models.AgentStatusActive {
		return models.BalanceRequest{}, ErrAgentInactive
	}
	req := models.BalanceRequest{
		ID:      uuid.NewString(),
		AgentID: agentID,
		Amount:  amount,
		Status:  models.RequestStatusPending,
	}
	if err := s.requests.Create(ctx, &req); err != nil {
		return models.BalanceRequest{}, fmt.Errorf("create balance request: %w", err)
	}
	metrics.BalanceRequestsTotal.WithLabelValues("created").Inc()

	_ = s.notifier.Notify(ctx, s.adminContact, notify.EventBalanceRequestCreated, map[string]any{
		"request_id": req.ID,
		"agent":      agent.Name,
		"phone":      agent.Phone,
		"amount":     money.FormatRupiah(amount),
	})
	return req, nil
}

// Approve credits the requested amount as a deposit and marks the request
// approved. If the credit fails the request stays pending.
func (s *BalanceRequestService) Approve(ctx context.Context, requestID, adminID, notes string) (models.BalanceRequest, error) {
	req, err := s.get(ctx, requestID)
	if err != nil {
		return models.BalanceRequest{}, err
	}
	if req.Status != models.RequestStatusPending {
		return models.BalanceRequest{}, ErrAlreadyProcessed
	}

	unlock := s.balances.LockAgent(req.AgentID)
	var entry models.TransactionEntry
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.requests.GetForUpdate(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if locked.Status != models.RequestStatusPending {
			return ErrAlreadyProcessed
		}
		ref := locked.ID
		entry, err = s.balances.ApplyTx(ctx, tx, AdjustmentInput{
			AgentID:     locked.AgentID,
			Amount:      locked.Amount,
			Kind:        models.KindDeposit,
			Description: "Balance request approved",
			ReferenceID: &ref,
		})
		if err != nil {
			return err
		}
		if err := s.transition(ctx, tx, locked.ID, models.RequestStatusApproved, notes, adminID); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, adminID, "balance_request.approve", "balance_request", locked.ID,
			auditData(map[string]any{"agent_id": locked.AgentID, "amount": locked.Amount, "entry_id": entry.ID}))
	})
	unlock()
	if err != nil {
		s.balances.logFailure(ctx, "approve_balance_request", req.AgentID, err)
		return models.BalanceRequest{}, err
	}
	metrics.BalanceRequestsTotal.WithLabelValues("approved").Inc()
	s.balances.Broadcast(entry)

	req.Status = models.RequestStatusApproved
	req.AdminNotes = optionalString(notes)
	req.ProcessedBy = &adminID
	s.notifyAgent(ctx, req, notify.EventBalanceRequestApproved, map[string]any{
		"request_id": req.ID,
		"amount":     money.FormatRupiah(req.Amount),
		"balance":    money.FormatRupiah(entry.BalanceAfter),
		"notes":      notes,
	})
	return req, nil
}

// Reject closes a pending request without touching the ledger.
func (s *BalanceRequestService) Reject(ctx context.Context, requestID, adminID, reason string) (models.BalanceRequest, error) {
	req, err := s.get(ctx, requestID)
	if err != nil {
		return models.BalanceRequest{}, err
	}
	if req.Status != models.RequestStatusPending {
		return models.BalanceRequest{}, ErrAlreadyProcessed
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.transition(ctx, tx, requestID, models.RequestStatusRejected, reason, adminID); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, adminID, "balance_request.reject", "balance_request", requestID,
			auditData(map[string]any{"agent_id": req.AgentID, "amount": req.Amount, "reason": reason}))
	})
	if err != nil {
		s.balances.logFailure(ctx, "reject_balance_request", req.AgentID, err)
		return models.BalanceRequest{}, err
	}
	metrics.BalanceRequestsTotal.WithLabelValues("rejected").Inc()

	req.Status = models.RequestStatusRejected
	req.AdminNotes = optionalString(reason)
	req.ProcessedBy = &adminID
	s.notifyAgent(ctx, req, notify.EventBalanceRequestRejected, map[string]any{
		"request_id": req.ID,
		"amount":     money.FormatRupiah(req.Amount),
		"reason":     reason,
	})
	return req, nil
}

func (s *BalanceRequestService) List(ctx context.Context, status string, limit, offset int) ([]models.BalanceRequest, error) {
	switch status {
	case "", models.RequestStatusPending, models.RequestStatusApproved, models.RequestStatusRejected:
	default:
		return nil, ErrInvalidInput
	}
	return s.requests.List(ctx, status, limit, offset)
}

func (s *BalanceRequestService) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]models.BalanceRequest, error) {
	return s.requests.ListByAgent(ctx, agentID, limit, offset)
}

func (s *BalanceRequestService) get(ctx context.Context, requestID string) (models.BalanceRequest, error) {
	if strings.TrimSpace(requestID) == "" {
		return models.BalanceRequest{}, ErrInvalidInput
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.BalanceRequest{}, ErrRequestNotFound
		}
		return models.BalanceRequest{}, err
	}
	return req, nil
}

// transition relies on the store's pending guard; losing a race to another
// admin surfaces as ErrAlreadyProcessed.
func (s *BalanceRequestService) transition(ctx context.Context, tx store.Execer, requestID, status, notes, adminID string) error {
	changed, err := s.requests.Process(ctx, tx, requestID, status, optionalString(notes), adminID)
	if err != nil {
		return err
	}
	if changed == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func (s *BalanceRequestService) notifyAgent(ctx context.Context, req models.BalanceRequest, event string, payload map[string]any) {
	agent, err := s.agents.GetByID(ctx, req.AgentID)
	if err != nil {
		s.logger.WarnContext(ctx, "notification skipped", "event", event, "agent_id", req.AgentID, "error", err)
		return
	}
	_ = s.notifier.Notify(ctx, agent.Phone, event, payload)
}
