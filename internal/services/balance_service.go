package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agentledger/internal/db"
	"agentledger/internal/metrics"
	"agentledger/internal/models"
	"agentledger/internal/money"
	"agentledger/internal/store"
	"agentledger/internal/syncutil"
	"agentledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type BalanceStore interface {
	Get(ctx context.Context, agentID string) (models.Balance, error)
	GetForUpdate(ctx context.Context, tx store.Getter, agentID string) (models.Balance, error)
	Update(ctx context.Context, tx store.Execer, agentID string, amount int64) error
	Reconcile(ctx context.Context) ([]store.BalanceDrift, error)
}

type EntryStore interface {
	Insert(ctx context.Context, tx store.Getter, entry *models.TransactionEntry) error
	ListByAgent(ctx context.Context, agentID, kind string, limit, offset int) ([]models.TransactionEntry, error)
}

type BalanceHub interface {
	BroadcastBalance(agentID string, update websocket.BalanceUpdate)
}

// BalanceService is the only writer of agent balances. Every change runs
// under the agent's in-process lock and the balance row lock, and appends
// exactly one entry.
type BalanceService struct {
	txRunner     db.TxRunner
	balanceStore BalanceStore
	entryStore   EntryStore
	hub          BalanceHub
	locks        *syncutil.ShardedMutex
	logger       *slog.Logger
}

func NewBalanceService(txRunner db.TxRunner, balanceStore BalanceStore, entryStore EntryStore, hub BalanceHub, logger *slog.Logger) *BalanceService {
	return &BalanceService{
		txRunner:     txRunner,
		balanceStore: balanceStore,
		entryStore:   entryStore,
		hub:          hub,
		locks:        &syncutil.ShardedMutex{},
		logger:       logger,
	}
}

type AdjustmentInput struct {
	AgentID     string
	Amount      int64
	Kind        string
	Description string
	ReferenceID *string
}

func (s *BalanceService) GetBalance(ctx context.Context, agentID string) (int64, error) {
	balance, err := s.balanceStore.Get(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrBalanceNotFound
		}
		return 0, err
	}
	return balance.Amount, nil
}

// AdjustBalance applies one signed movement in its own unit of work.
func (s *BalanceService) AdjustBalance(ctx context.Context, input AdjustmentInput) (models.TransactionEntry, error) {
	if err := validateAdjustment(input); err != nil {
		return models.TransactionEntry{}, err
	}
	unlock := s.LockAgent(input.AgentID)
	defer unlock()

	started := time.Now()
	var entry models.TransactionEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		entry, err = s.ApplyTx(ctx, tx, input)
		return err
	})
	metrics.ObserveAdjustment(input.Kind, adjustmentResult(err), started)
	if err != nil {
		s.logFailure(ctx, "adjust_balance", input.AgentID, err)
		return models.TransactionEntry{}, err
	}
	s.Broadcast(entry)
	return entry, nil
}

// ApplyTx performs the locked read, check, update and append against a
// transaction owned by the caller. Callers must hold LockAgent for the agent
// and call Broadcast only after their transaction commits.
func (s *BalanceService) ApplyTx(ctx context.Context, tx store.Tx, input AdjustmentInput) (models.TransactionEntry, error) {
	if err := validateAdjustment(input); err != nil {
		return models.TransactionEntry{}, err
	}
	balance, err := s.balanceStore.GetForUpdate(ctx, tx, input.AgentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.TransactionEntry{}, ErrBalanceNotFound
		}
		return models.TransactionEntry{}, err
	}
	next := balance.Amount + input.Amount
	if input.Amount < 0 && next < 0 {
		return models.TransactionEntry{}, &InsufficientBalanceError{Required: -input.Amount, Available: balance.Amount}
	}
	if err := s.balanceStore.Update(ctx, tx, input.AgentID, next); err != nil {
		return models.TransactionEntry{}, err
	}
	entry := models.TransactionEntry{
		ID:            uuid.NewString(),
		AgentID:       input.AgentID,
		Amount:        input.Amount,
		BalanceBefore: balance.Amount,
		BalanceAfter:  next,
		Kind:          input.Kind,
		Description:   input.Description,
		ReferenceID:   input.ReferenceID,
		Status:        models.EntryStatusCompleted,
	}
	if err := s.entryStore.Insert(ctx, tx, &entry); err != nil {
		return models.TransactionEntry{}, err
	}
	return entry, nil
}

// LockAgent serializes balance-changing work for one agent within this process.
func (s *BalanceService) LockAgent(agentID string) func() {
	return s.locks.Lock(agentID)
}

func (s *BalanceService) Broadcast(entry models.TransactionEntry) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastBalance(entry.AgentID, websocket.BalanceUpdate{
		AgentID:   entry.AgentID,
		Balance:   entry.BalanceAfter,
		Formatted: money.FormatRupiah(entry.BalanceAfter),
		Kind:      entry.Kind,
		EntryID:   entry.ID,
	})
}

func (s *BalanceService) History(ctx context.Context, agentID, kind string, limit, offset int) ([]models.TransactionEntry, error) {
	if kind != "" && !models.ValidEntryKind(kind) {
		return nil, ErrInvalidKind
	}
	return s.entryStore.ListByAgent(ctx, agentID, kind, limit, offset)
}

// Reconcile lists agents whose stored balance disagrees with their entry log.
func (s *BalanceService) Reconcile(ctx context.Context) ([]store.BalanceDrift, error) {
	drifts, err := s.balanceStore.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		s.logger.Error("balance drift", "agent_id", d.AgentID, "stored", d.StoredBalance, "calculated", d.CalculatedBalance)
	}
	return drifts, nil
}

func (s *BalanceService) logFailure(ctx context.Context, op, agentID string, err error) {
	switch Classify(err) {
	case KindPersistence, KindConcurrency:
		s.logger.ErrorContext(ctx, "ledger operation failed", "op", op, "agent_id", agentID, "error", err)
	default:
		s.logger.DebugContext(ctx, "ledger operation rejected", "op", op, "agent_id", agentID, "error", err)
	}
}

func validateAdjustment(input AdjustmentInput) error {
	if input.AgentID == "" {
		return ErrInvalidInput
	}
	if input.Amount == 0 {
		return ErrInvalidAmount
	}
	if !models.ValidEntryKind(input.Kind) {
		return ErrInvalidKind
	}
	return nil
}

func adjustmentResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient"
	default:
		return "error"
	}
}
