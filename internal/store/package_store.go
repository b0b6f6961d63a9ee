package store

import (
	"context"

	"agentledger/internal/models"
)

type PackageStore struct {
	db DB
}

func NewPackageStore(db DB) *PackageStore {
	return &PackageStore{db: db}
}

const packageColumns = `id, name, customer_price, agent_price, commission, duration_hours, digit_type,
	code_length, account_type, provisioning_profile, is_active`

func (s *PackageStore) GetActive(ctx context.Context, packageID string) (models.PricedPackage, error) {
	var row models.PricedPackage
	err := s.db.GetContext(ctx, &row, `
		SELECT `+packageColumns+`
		FROM priced_packages
		WHERE id = $1 AND is_active = TRUE
	`, packageID)
	if err != nil {
		return models.PricedPackage{}, mapNoRows(err)
	}
	return row, nil
}

func (s *PackageStore) ListActive(ctx context.Context) ([]models.PricedPackage, error) {
	rows := []models.PricedPackage{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+packageColumns+`
		FROM priced_packages
		WHERE is_active = TRUE
		ORDER BY customer_price, name
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
