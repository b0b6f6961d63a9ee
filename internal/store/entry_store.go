package store

import (
	"context"

	"agentledger/internal/models"
)

type EntryStore struct {
	db DB
}

func NewEntryStore(db DB) *EntryStore {
	return &EntryStore{db: db}
}

// Insert writes the entry and fills in the sequence number and timestamp
// assigned by the database.
func (s *EntryStore) Insert(ctx context.Context, tx Getter, entry *models.TransactionEntry) error {
	return tx.GetContext(ctx, entry, `
		INSERT INTO transaction_entries (id, agent_id, amount, balance_before, balance_after, kind, description, reference_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, seq, agent_id, amount, balance_before, balance_after, kind, description, reference_id, status, created_at
	`, entry.ID, entry.AgentID, entry.Amount, entry.BalanceBefore, entry.BalanceAfter,
		entry.Kind, entry.Description, entry.ReferenceID, entry.Status)
}

// ListByAgent returns entries newest first.
func (s *EntryStore) ListByAgent(ctx context.Context, agentID, kind string, limit, offset int) ([]models.TransactionEntry, error) {
	rows := []models.TransactionEntry{}
	query := `
		SELECT id, seq, agent_id, amount, balance_before, balance_after, kind, description, reference_id, status, created_at
		FROM transaction_entries
		WHERE agent_id = $1
	`
	args := []any{agentID}
	param := 2
	if kind != "" {
		query += " AND kind = $2"
		args = append(args, kind)
		param = 3
	}
	query += " ORDER BY seq DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
