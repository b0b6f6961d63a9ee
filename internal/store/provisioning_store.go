package store

import (
	"context"
	"time"

	"agentledger/internal/models"
)

type ProvisioningStore struct {
	db DB
}

func NewProvisioningStore(db DB) *ProvisioningStore {
	return &ProvisioningStore{db: db}
}

const jobColumns = `id, sale_id, username, password, profile, comment, status, attempts, last_error, created_at, updated_at`

func (s *ProvisioningStore) Create(ctx context.Context, tx Execer, job models.ProvisioningJob) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO provisioning_jobs (id, sale_id, username, password, profile, comment, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, job.SaleID, job.Username, job.Password, job.Profile, job.Comment, job.Status)
	return err
}

func (s *ProvisioningStore) GetBySale(ctx context.Context, saleID string) (models.ProvisioningJob, error) {
	var row models.ProvisioningJob
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM provisioning_jobs WHERE sale_id = $1`, saleID)
	if err != nil {
		return models.ProvisioningJob{}, mapNoRows(err)
	}
	return row, nil
}

// RecordAttempt stores the outcome of one provisioning call and bumps the attempt counter.
func (s *ProvisioningStore) RecordAttempt(ctx context.Context, tx Execer, jobID, status string, lastError *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE provisioning_jobs
		SET status = $1, last_error = $2, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $3
	`, status, lastError, jobID)
	return err
}

// ListRetryable returns failed jobs, and pending jobs untouched since before
// staleBefore, that still have attempts left.
func (s *ProvisioningStore) ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]models.ProvisioningJob, error) {
	rows := []models.ProvisioningJob{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+jobColumns+`
		FROM provisioning_jobs
		WHERE attempts < $1
		  AND (status = 'failed' OR (status = 'pending' AND updated_at < $2))
		ORDER BY updated_at
		LIMIT $3
	`, maxAttempts, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ProvisioningStore) ListFailed(ctx context.Context, limit, offset int) ([]models.ProvisioningJob, error) {
	rows := []models.ProvisioningJob{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+jobColumns+`
		FROM provisioning_jobs
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ProvisioningStore) CountFailed(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM provisioning_jobs WHERE status = 'failed'`)
	return count, err
}
