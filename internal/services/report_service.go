package services

import (
	"context"
	"time"

	"agentledger/internal/store"
)

type ReportStore interface {
	SalesSummary(ctx context.Context, agentID string, from, to time.Time) (store.SalesSummary, error)
	DailySales(ctx context.Context, agentID string, from, to time.Time) ([]store.DailySales, error)
	TopPackages(ctx context.Context, agentID string, from, to time.Time, limit int) ([]store.PackageSales, error)
}

type OverviewSource interface {
	CountByStatus(ctx context.Context) ([]store.StatusCount, error)
	TotalFloat(ctx context.Context) (int64, error)
	CountPending(ctx context.Context) (int64, error)
	CountFailed(ctx context.Context) (int64, error)
}

type AuditReader interface {
	List(ctx context.Context, entityType string, limit, offset int) ([]store.AuditEntry, error)
}

type ReportService struct {
	reports  ReportStore
	overview OverviewSource
	audit    AuditReader
	now      func() time.Time
}

func NewReportService(reports ReportStore, overview OverviewSource, audit AuditReader) *ReportService {
	return &ReportService{reports: reports, overview: overview, audit: audit, now: time.Now}
}

type SalesReport struct {
	From        time.Time            `json:"from"`
	To          time.Time            `json:"to"`
	Summary     store.SalesSummary   `json:"summary"`
	Daily       []store.DailySales   `json:"daily"`
	TopPackages []store.PackageSales `json:"top_packages"`
}

// AgentSales reports the agent's sales in [from, to). A zero range means
// the last 30 days.
func (s *ReportService) AgentSales(ctx context.Context, agentID string, from, to time.Time) (SalesReport, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !from.Before(to) {
		return SalesReport{}, ErrInvalidInput
	}
	summary, err := s.reports.SalesSummary(ctx, agentID, from, to)
	if err != nil {
		return SalesReport{}, err
	}
	daily, err := s.reports.DailySales(ctx, agentID, from, to)
	if err != nil {
		return SalesReport{}, err
	}
	top, err := s.reports.TopPackages(ctx, agentID, from, to, 5)
	if err != nil {
		return SalesReport{}, err
	}
	return SalesReport{From: from, To: to, Summary: summary, Daily: daily, TopPackages: top}, nil
}

type Overview struct {
	AgentsByStatus  []store.StatusCount `json:"agents_by_status"`
	TotalFloat      int64               `json:"total_float"`
	PendingRequests int64               `json:"pending_requests"`
	FailedJobs      int64               `json:"failed_provisioning_jobs"`
}

func (s *ReportService) Overview(ctx context.Context) (Overview, error) {
	var (
		out Overview
		err error
	)
	if out.AgentsByStatus, err = s.overview.CountByStatus(ctx); err != nil {
		return Overview{}, err
	}
	if out.TotalFloat, err = s.overview.TotalFloat(ctx); err != nil {
		return Overview{}, err
	}
	if out.PendingRequests, err = s.overview.CountPending(ctx); err != nil {
		return Overview{}, err
	}
	if out.FailedJobs, err = s.overview.CountFailed(ctx); err != nil {
		return Overview{}, err
	}
	return out, nil
}

func (s *ReportService) Audit(ctx context.Context, entityType string, limit, offset int) ([]store.AuditEntry, error) {
	return s.audit.List(ctx, entityType, limit, offset)
}

// StoreOverview combines the per-table counters the admin overview needs.
type StoreOverview struct {
	Agents   *store.AgentStore
	Balances *store.BalanceStore
	Requests *store.BalanceRequestStore
	Jobs     *store.ProvisioningStore
}

func (o StoreOverview) CountByStatus(ctx context.Context) ([]store.StatusCount, error) {
	return o.Agents.CountByStatus(ctx)
}

func (o StoreOverview) TotalFloat(ctx context.Context) (int64, error) {
	return o.Balances.Total(ctx)
}

func (o StoreOverview) CountPending(ctx context.Context) (int64, error) {
	return o.Requests.CountPending(ctx)
}

func (o StoreOverview) CountFailed(ctx context.Context) (int64, error) {
	return o.Jobs.CountFailed(ctx)
}
