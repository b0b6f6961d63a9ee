package store

import (
	"context"

	"agentledger/internal/models"
)

type BalanceStore struct {
	db DB
}

// BalanceDrift compares the stored balance with the sum of completed entries.
type BalanceDrift struct {
	AgentID           string `db:"agent_id" json:"agent_id"`
	Handle            string `db:"handle" json:"handle"`
	StoredBalance     int64  `db:"stored_balance" json:"stored_balance"`
	CalculatedBalance int64  `db:"calculated_balance" json:"calculated_balance"`
	Difference        int64  `db:"difference" json:"difference"`
}

func NewBalanceStore(db DB) *BalanceStore {
	return &BalanceStore{db: db}
}

func (s *BalanceStore) Create(ctx context.Context, tx Execer, agentID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agent_balances (agent_id, amount)
		VALUES ($1, 0)
	`, agentID)
	return err
}

func (s *BalanceStore) Get(ctx context.Context, agentID string) (models.Balance, error) {
	var row models.Balance
	err := s.db.GetContext(ctx, &row, `
		SELECT agent_id, amount, updated_at
		FROM agent_balances
		WHERE agent_id = $1
	`, agentID)
	if err != nil {
		return models.Balance{}, mapNoRows(err)
	}
	return row, nil
}

// GetForUpdate locks the balance row until the surrounding transaction ends.
func (s *BalanceStore) GetForUpdate(ctx context.Context, tx Getter, agentID string) (models.Balance, error) {
	var row models.Balance
	err := tx.GetContext(ctx, &row, `
		SELECT agent_id, amount, updated_at
		FROM agent_balances
		WHERE agent_id = $1
		FOR UPDATE
	`, agentID)
	if err != nil {
		return models.Balance{}, mapNoRows(err)
	}
	return row, nil
}

func (s *BalanceStore) Update(ctx context.Context, tx Execer, agentID string, amount int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE agent_balances
		SET amount = $1, updated_at = NOW()
		WHERE agent_id = $2
	`, amount, agentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Reconcile lists agents whose stored balance differs from their entry sum.
func (s *BalanceStore) Reconcile(ctx context.Context) ([]BalanceDrift, error) {
	rows := []BalanceDrift{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT b.agent_id,
		       a.handle,
		       b.amount AS stored_balance,
		       COALESCE(SUM(e.amount), 0) AS calculated_balance,
		       (b.amount - COALESCE(SUM(e.amount), 0)) AS difference
		FROM agent_balances b
		JOIN agents a ON a.id = b.agent_id
		LEFT JOIN transaction_entries e ON e.agent_id = b.agent_id AND e.status = 'completed'
		GROUP BY b.agent_id, a.handle, b.amount
		HAVING b.amount <> COALESCE(SUM(e.amount), 0)
		ORDER BY a.handle
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BalanceStore) Total(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(amount), 0) FROM agent_balances`)
	return total, err
}
