package store

import (
	"context"

	"agentledger/internal/models"
)

type VoucherStore struct {
	db DB
}

func NewVoucherStore(db DB) *VoucherStore {
	return &VoucherStore{db: db}
}

const saleColumns = `id, agent_id, code, package_id, package_name, buyer_name, buyer_phone, customer_price,
	agent_price, commission, status, provisioned, provision_error, entry_id, sold_at, used_at`

// Create fails with a unique violation on voucher_sales_code_key when the code is taken.
func (s *VoucherStore) Create(ctx context.Context, tx Execer, sale models.VoucherSale) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO voucher_sales (id, agent_id, code, package_id, package_name, buyer_name, buyer_phone,
		                           customer_price, agent_price, commission, status, provisioned, entry_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, sale.ID, sale.AgentID, sale.Code, sale.PackageID, sale.PackageName, sale.BuyerName, sale.BuyerPhone,
		sale.CustomerPrice, sale.AgentPrice, sale.Commission, sale.Status, sale.Provisioned, sale.EntryID)
	return err
}

func (s *VoucherStore) RecordProvisioning(ctx context.Context, tx Execer, saleID string, provisioned bool, provisionError *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE voucher_sales
		SET provisioned = $1, provision_error = $2
		WHERE id = $3
	`, provisioned, provisionError, saleID)
	return err
}

func (s *VoucherStore) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]models.VoucherSale, error) {
	rows := []models.VoucherSale{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+saleColumns+`
		FROM voucher_sales
		WHERE agent_id = $1
		ORDER BY sold_at DESC
		LIMIT $2 OFFSET $3
	`, agentID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
