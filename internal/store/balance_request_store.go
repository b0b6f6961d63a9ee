package store

import (
	"context"

	"agentledger/internal/models"
)

type BalanceRequestStore struct {
	db DB
}

func NewBalanceRequestStore(db DB) *BalanceRequestStore {
	return &BalanceRequestStore{db: db}
}

const requestColumns = `id, agent_id, amount, status, admin_notes, requested_at, processed_at, processed_by`

func (s *BalanceRequestStore) Create(ctx context.Context, req *models.BalanceRequest) error {
	return s.db.GetContext(ctx, req, `
		INSERT INTO balance_requests (id, agent_id, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+requestColumns,
		req.ID, req.AgentID, req.Amount, req.Status)
}

func (s *BalanceRequestStore) GetByID(ctx context.Context, requestID string) (models.BalanceRequest, error) {
	var row models.BalanceRequest
	err := s.db.GetContext(ctx, &row, `SELECT `+requestColumns+` FROM balance_requests WHERE id = $1`, requestID)
	if err != nil {
		return models.BalanceRequest{}, mapNoRows(err)
	}
	return row, nil
}

func (s *BalanceRequestStore) GetForUpdate(ctx context.Context, tx Getter, requestID string) (models.BalanceRequest, error) {
	var row models.BalanceRequest
	err := tx.GetContext(ctx, &row, `
		SELECT `+requestColumns+`
		FROM balance_requests
		WHERE id = $1
		FOR UPDATE
	`, requestID)
	if err != nil {
		return models.BalanceRequest{}, mapNoRows(err)
	}
	return row, nil
}

// Process moves a pending request to status. Zero rows affected means the
// request was already processed.
func (s *BalanceRequestStore) Process(ctx context.Context, tx Execer, requestID, status string, notes *string, adminID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE balance_requests
		SET status = $1, admin_notes = $2, processed_by = $3, processed_at = NOW()
		WHERE id = $4 AND status = 'pending'
	`, status, notes, adminID, requestID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *BalanceRequestStore) List(ctx context.Context, status string, limit, offset int) ([]models.BalanceRequest, error) {
	rows := []models.BalanceRequest{}
	query := `SELECT ` + requestColumns + ` FROM balance_requests`
	args := []any{}
	param := 1
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
		param = 2
	}
	query += " ORDER BY requested_at LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BalanceRequestStore) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]models.BalanceRequest, error) {
	rows := []models.BalanceRequest{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+requestColumns+`
		FROM balance_requests
		WHERE agent_id = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3
	`, agentID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BalanceRequestStore) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM balance_requests WHERE status = 'pending'`)
	return count, err
}
