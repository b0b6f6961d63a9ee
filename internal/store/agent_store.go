package store

import (
	"context"

	"agentledger/internal/models"

	"github.com/shopspring/decimal"
)

type AgentStore struct {
	db DB
}

func NewAgentStore(db DB) *AgentStore {
	return &AgentStore{db: db}
}

const agentColumns = `id, handle, name, phone, password_hash, status, commission_rate, created_at, updated_at`

func (s *AgentStore) Create(ctx context.Context, tx Execer, agent models.Agent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agents (id, handle, name, phone, password_hash, status, commission_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, agent.ID, agent.Handle, agent.Name, agent.Phone, agent.PasswordHash, agent.Status, agent.CommissionRate)
	return err
}

func (s *AgentStore) GetByID(ctx context.Context, agentID string) (models.Agent, error) {
	var row models.Agent
	err := s.db.GetContext(ctx, &row, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, agentID)
	if err != nil {
		return models.Agent{}, mapNoRows(err)
	}
	return row, nil
}

// GetForShare reads the agent inside tx and holds a share lock on the row
// until tx ends, so status and commission rate cannot change under it.
func (s *AgentStore) GetForShare(ctx context.Context, tx Getter, agentID string) (models.Agent, error) {
	var row models.Agent
	err := tx.GetContext(ctx, &row, `SELECT `+agentColumns+` FROM agents WHERE id = $1 FOR SHARE`, agentID)
	if err != nil {
		return models.Agent{}, mapNoRows(err)
	}
	return row, nil
}

func (s *AgentStore) GetByPhone(ctx context.Context, phone string) (models.Agent, error) {
	var row models.Agent
	err := s.db.GetContext(ctx, &row, `SELECT `+agentColumns+` FROM agents WHERE phone = $1`, phone)
	if err != nil {
		return models.Agent{}, mapNoRows(err)
	}
	return row, nil
}

func (s *AgentStore) List(ctx context.Context, status string, limit, offset int) ([]models.Agent, error) {
	rows := []models.Agent{}
	query := `SELECT ` + agentColumns + ` FROM agents`
	args := []any{}
	param := 1
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
		param = 2
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AgentStore) UpdateProfile(ctx context.Context, tx Execer, agentID, name, phone string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET name = $1, phone = $2, updated_at = NOW()
		WHERE id = $3
	`, name, phone, agentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *AgentStore) UpdateStatus(ctx context.Context, tx Execer, agentID, status string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, agentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *AgentStore) UpdateCommissionRate(ctx context.Context, tx Execer, agentID string, rate decimal.Decimal) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET commission_rate = $1, updated_at = NOW()
		WHERE id = $2
	`, rate, agentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int64  `db:"count" json:"count"`
}

func (s *AgentStore) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	rows := []StatusCount{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(1) AS count
		FROM agents
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
