package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"agentledger/internal/auth"
	"agentledger/internal/db"
	"agentledger/internal/models"
	"agentledger/internal/money"
	"agentledger/internal/notify"
	"agentledger/internal/store"
	"agentledger/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type AgentStore interface {
	AgentReader
	Create(ctx context.Context, tx store.Execer, agent models.Agent) error
	GetByPhone(ctx context.Context, phone string) (models.Agent, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.Agent, error)
	UpdateProfile(ctx context.Context, tx store.Execer, agentID, name, phone string) (int64, error)
	UpdateStatus(ctx context.Context, tx store.Execer, agentID, status string) (int64, error)
	UpdateCommissionRate(ctx context.Context, tx store.Execer, agentID string, rate decimal.Decimal) (int64, error)
}

type BalanceCreator interface {
	Create(ctx context.Context, tx store.Execer, agentID string) error
}

type AgentService struct {
	txRunner db.TxRunner
	agents   AgentStore
	balances BalanceCreator
	ledger   *BalanceService
	audit    AuditLogger
	notifier notify.Dispatcher
	logger   *slog.Logger
}

func NewAgentService(txRunner db.TxRunner, agents AgentStore, balances BalanceCreator, ledger *BalanceService, audit AuditLogger, notifier notify.Dispatcher, logger *slog.Logger) *AgentService {
	return &AgentService{
		txRunner: txRunner,
		agents:   agents,
		balances: balances,
		ledger:   ledger,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
	}
}

type RegisterAgentInput struct {
	Handle         string
	Name           string
	Phone          string
	Password       string
	CommissionRate string
}

// Register creates an active agent together with its zero balance row.
func (s *AgentService) Register(ctx context.Context, adminID string, input RegisterAgentInput) (models.Agent, error) {
	handle := strings.TrimSpace(input.Handle)
	name := strings.TrimSpace(input.Name)
	phone := validator.NormalizePhone(input.Phone)
	if err := validator.ValidateHandle(handle); err != nil {
		return models.Agent{}, err
	}
	if err := validator.ValidateName(name); err != nil {
		return models.Agent{}, err
	}
	if err := validator.ValidatePhone(phone); err != nil {
		return models.Agent{}, err
	}
	if err := validator.ValidatePassword(input.Password); err != nil {
		return models.Agent{}, err
	}
	rate := decimal.Zero
	if strings.TrimSpace(input.CommissionRate) != "" {
		parsed, err := money.ParseRate(input.CommissionRate)
		if err != nil {
			return models.Agent{}, err
		}
		rate = parsed
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return models.Agent{}, fmt.Errorf("hash password: %w", err)
	}

	agent := models.Agent{
		ID:             uuid.NewString(),
		Handle:         handle,
		Name:           name,
		Phone:          phone,
		PasswordHash:   hash,
		Status:         models.AgentStatusActive,
		CommissionRate: rate,
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.agents.Create(ctx, tx, agent); err != nil {
			return err
		}
		if err := s.balances.Create(ctx, tx, agent.ID); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, adminID, "agent.register", "agent", agent.ID,
			auditData(map[string]any{"handle": handle, "phone": phone, "commission_rate": rate.String()}))
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return models.Agent{}, ErrDuplicateAgent
		}
		return models.Agent{}, err
	}
	s.logger.InfoContext(ctx, "agent registered", "agent_id", agent.ID, "handle", handle)
	return agent, nil
}

func (s *AgentService) Get(ctx context.Context, agentID string) (models.Agent, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Agent{}, ErrAgentNotFound
		}
		return models.Agent{}, err
	}
	return agent, nil
}

func (s *AgentService) List(ctx context.Context, status string, limit, offset int) ([]models.Agent, error) {
	if status != "" && !models.ValidAgentStatus(status) {
		return nil, ErrInvalidInput
	}
	return s.agents.List(ctx, status, limit, offset)
}

func (s *AgentService) UpdateProfile(ctx context.Context, agentID, name, phone string) (models.Agent, error) {
	name = strings.TrimSpace(name)
	phone = validator.NormalizePhone(phone)
	if err := validator.ValidateName(name); err != nil {
		return models.Agent{}, err
	}
	if err := validator.ValidatePhone(phone); err != nil {
		return models.Agent{}, err
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed, err := s.agents.UpdateProfile(ctx, tx, agentID, name, phone)
		if err != nil {
			return err
		}
		if changed == 0 {
			return ErrAgentNotFound
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return models.Agent{}, ErrDuplicateAgent
		}
		return models.Agent{}, err
	}
	return s.Get(ctx, agentID)
}

// SetStatus deactivates or suspends an agent. Agents are never deleted.
func (s *AgentService) SetStatus(ctx context.Context, adminID, agentID, status string) (models.Agent, error) {
	if !models.ValidAgentStatus(status) {
		return models.Agent{}, ErrInvalidInput
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed, err := s.agents.UpdateStatus(ctx, tx, agentID, status)
		if err != nil {
			return err
		}
		if changed == 0 {
			return ErrAgentNotFound
		}
		return s.audit.Log(ctx, tx, adminID, "agent.status", "agent", agentID,
			auditData(map[string]any{"status": status}))
	})
	if err != nil {
		return models.Agent{}, err
	}
	return s.Get(ctx, agentID)
}

func (s *AgentService) SetCommissionRate(ctx context.Context, adminID, agentID, rawRate string) (models.Agent, error) {
	rate, err := money.ParseRate(rawRate)
	if err != nil {
		return models.Agent{}, err
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed, err := s.agents.UpdateCommissionRate(ctx, tx, agentID, rate)
		if err != nil {
			return err
		}
		if changed == 0 {
			return ErrAgentNotFound
		}
		return s.audit.Log(ctx, tx, adminID, "agent.commission_rate", "agent", agentID,
			auditData(map[string]any{"commission_rate": rate.String()}))
	})
	if err != nil {
		return models.Agent{}, err
	}
	return s.Get(ctx, agentID)
}

type AdminAdjustInput struct {
	AgentID string
	Amount  int64
	Kind    string
	Note    string
}

// AdminAdjust lets an administrator deposit or withdraw float by hand. The
// entry and its audit row commit together.
func (s *AgentService) AdminAdjust(ctx context.Context, adminID string, input AdminAdjustInput) (models.TransactionEntry, error) {
	if input.Amount <= 0 {
		return models.TransactionEntry{}, ErrInvalidAmount
	}
	amount := input.Amount
	switch input.Kind {
	case models.KindDeposit:
	case models.KindWithdrawal:
		amount = -amount
	default:
		return models.TransactionEntry{}, ErrInvalidKind
	}
	agent, err := s.Get(ctx, input.AgentID)
	if err != nil {
		return models.TransactionEntry{}, err
	}
	description := strings.TrimSpace(input.Note)
	if description == "" {
		description = "Manual " + input.Kind
	}
	adjustment := AdjustmentInput{
		AgentID:     agent.ID,
		Amount:      amount,
		Kind:        input.Kind,
		Description: description,
		ReferenceID: &adminID,
	}

	unlock := s.ledger.LockAgent(agent.ID)
	var entry models.TransactionEntry
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		entry, err = s.ledger.ApplyTx(ctx, tx, adjustment)
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, adminID, "balance.adjust", "agent", agent.ID,
			auditData(map[string]any{"kind": input.Kind, "amount": amount, "entry_id": entry.ID, "note": input.Note}))
	})
	unlock()
	if err != nil {
		s.ledger.logFailure(ctx, "admin_adjust", agent.ID, err)
		return models.TransactionEntry{}, err
	}
	s.ledger.Broadcast(entry)

	_ = s.notifier.Notify(ctx, agent.Phone, notify.EventBalanceAdjusted, map[string]any{
		"kind":    input.Kind,
		"amount":  money.FormatRupiah(input.Amount),
		"balance": money.FormatRupiah(entry.BalanceAfter),
		"note":    input.Note,
	})
	return entry, nil
}
