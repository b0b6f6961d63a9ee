package store

import (
	"context"

	"agentledger/internal/models"
)

type InvoiceStore struct {
	db DB
}

func NewInvoiceStore(db DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// ListUnpaidForUpdate locks the customer's unpaid invoices, oldest due date first.
// Rows are locked in the same order they are paid so concurrent payments for
// one customer cannot deadlock on each other.
func (s *InvoiceStore) ListUnpaidForUpdate(ctx context.Context, tx Selecter, customerID string) ([]models.Invoice, error) {
	rows := []models.Invoice{}
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, customer_id, amount, due_date, status, paid_at, payment_method, paid_by_agent_id
		FROM invoices
		WHERE customer_id = $1 AND status = 'unpaid'
		ORDER BY due_date, id
		FOR UPDATE
	`, customerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPaid only moves unpaid invoices; it reports how many rows changed.
func (s *InvoiceStore) MarkPaid(ctx context.Context, tx Execer, invoiceID, method, agentID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE invoices
		SET status = 'paid', paid_at = NOW(), payment_method = $1, paid_by_agent_id = $2
		WHERE id = $3 AND status = 'unpaid'
	`, method, agentID, invoiceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
