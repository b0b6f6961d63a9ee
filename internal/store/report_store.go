package store

import (
	"context"
	"time"
)

type ReportStore struct {
	db DB
}

func NewReportStore(db DB) *ReportStore {
	return &ReportStore{db: db}
}

type SalesSummary struct {
	SalesCount         int64 `db:"sales_count" json:"sales_count"`
	CustomerTotal      int64 `db:"customer_total" json:"customer_total"`
	AgentTotal         int64 `db:"agent_total" json:"agent_total"`
	CommissionTotal    int64 `db:"commission_total" json:"commission_total"`
	ProvisioningFailed int64 `db:"provisioning_failed" json:"provisioning_failed"`
}

type DailySales struct {
	Day        time.Time `db:"day" json:"day"`
	SalesCount int64     `db:"sales_count" json:"sales_count"`
	AgentTotal int64     `db:"agent_total" json:"agent_total"`
}

type PackageSales struct {
	PackageID   string `db:"package_id" json:"package_id"`
	PackageName string `db:"package_name" json:"package_name"`
	SalesCount  int64  `db:"sales_count" json:"sales_count"`
	AgentTotal  int64  `db:"agent_total" json:"agent_total"`
}

// SalesSummary aggregates an agent's sales in [from, to).
func (s *ReportStore) SalesSummary(ctx context.Context, agentID string, from, to time.Time) (SalesSummary, error) {
	var row SalesSummary
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(1) AS sales_count,
		       COALESCE(SUM(customer_price), 0) AS customer_total,
		       COALESCE(SUM(agent_price), 0) AS agent_total,
		       COALESCE(SUM(commission), 0) AS commission_total,
		       COUNT(1) FILTER (WHERE NOT provisioned) AS provisioning_failed
		FROM voucher_sales
		WHERE agent_id = $1 AND sold_at >= $2 AND sold_at < $3
	`, agentID, from, to)
	return row, err
}

func (s *ReportStore) DailySales(ctx context.Context, agentID string, from, to time.Time) ([]DailySales, error) {
	rows := []DailySales{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT date_trunc('day', sold_at) AS day,
		       COUNT(1) AS sales_count,
		       COALESCE(SUM(agent_price), 0) AS agent_total
		FROM voucher_sales
		WHERE agent_id = $1 AND sold_at >= $2 AND sold_at < $3
		GROUP BY 1
		ORDER BY 1
	`, agentID, from, to)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ReportStore) TopPackages(ctx context.Context, agentID string, from, to time.Time, limit int) ([]PackageSales, error) {
	rows := []PackageSales{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT package_id, package_name,
		       COUNT(1) AS sales_count,
		       COALESCE(SUM(agent_price), 0) AS agent_total
		FROM voucher_sales
		WHERE agent_id = $1 AND sold_at >= $2 AND sold_at < $3
		GROUP BY package_id, package_name
		ORDER BY sales_count DESC, package_name
		LIMIT $4
	`, agentID, from, to, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
