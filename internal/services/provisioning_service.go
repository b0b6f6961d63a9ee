package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"agentledger/internal/db"
	"agentledger/internal/hotspot"
	"agentledger/internal/metrics"
	"agentledger/internal/models"
	"agentledger/internal/notify"
	"agentledger/internal/store"

	"github.com/jmoiron/sqlx"
)

type ProvisioningJobStore interface {
	Create(ctx context.Context, tx store.Execer, job models.ProvisioningJob) error
	GetBySale(ctx context.Context, saleID string) (models.ProvisioningJob, error)
	RecordAttempt(ctx context.Context, tx store.Execer, jobID, status string, lastError *string) error
	ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]models.ProvisioningJob, error)
	ListFailed(ctx context.Context, limit, offset int) ([]models.ProvisioningJob, error)
}

type SaleOutcomeStore interface {
	RecordProvisioning(ctx context.Context, tx store.Execer, saleID string, provisioned bool, provisionError *string) error
}

type ProvisioningConfig struct {
	Timeout      time.Duration
	MaxAttempts  int
	StaleAfter   time.Duration
	AdminContact string
}

// ProvisioningService pushes credentials recorded in provisioning_jobs to the
// hotspot device. It never touches balances or entries.
type ProvisioningService struct {
	txRunner    db.TxRunner
	jobs        ProvisioningJobStore
	sales       SaleOutcomeStore
	provisioner hotspot.Provisioner
	notifier    notify.Dispatcher
	cfg         ProvisioningConfig
	logger      *slog.Logger
	now         func() time.Time
}

func NewProvisioningService(txRunner db.TxRunner, jobs ProvisioningJobStore, sales SaleOutcomeStore, provisioner hotspot.Provisioner, notifier notify.Dispatcher, cfg ProvisioningConfig, logger *slog.Logger) *ProvisioningService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * cfg.Timeout
	}
	return &ProvisioningService{
		txRunner:    txRunner,
		jobs:        jobs,
		sales:       sales,
		provisioner: provisioner,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

type ProvisionOutcome struct {
	Provisioned bool   `json:"provisioned"`
	Error       string `json:"error,omitempty"`
}

// Attempt calls the device once with a bounded timeout and records the result
// on both the job and the sale.
func (s *ProvisioningService) Attempt(ctx context.Context, job models.ProvisioningJob) ProvisionOutcome {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	err := s.provisioner.CreateUser(callCtx, hotspot.User{
		Username: job.Username,
		Password: job.Password,
		Profile:  job.Profile,
		Comment:  job.Comment,
	})
	cancel()
	if errors.Is(err, hotspot.ErrUserExists) && job.Attempts > 0 {
		// An earlier attempt reached the device before its response was lost.
		err = nil
	}

	outcome := ProvisionOutcome{Provisioned: err == nil}
	status := models.JobStatusDone
	var lastError *string
	if err != nil {
		outcome.Error = err.Error()
		status = models.JobStatusFailed
		lastError = &outcome.Error
		s.logger.WarnContext(ctx, "provisioning failed", "sale_id", job.SaleID, "username", job.Username, "attempt", job.Attempts+1, "error", err)
	}
	metrics.ProvisioningJobsTotal.WithLabelValues(status).Inc()

	recordCtx := context.WithoutCancel(ctx)
	recordErr := s.txRunner.WithTx(recordCtx, func(tx *sqlx.Tx) error {
		if err := s.jobs.RecordAttempt(recordCtx, tx, job.ID, status, lastError); err != nil {
			return err
		}
		return s.sales.RecordProvisioning(recordCtx, tx, job.SaleID, outcome.Provisioned, lastError)
	})
	if recordErr != nil {
		s.logger.ErrorContext(ctx, "recording provisioning outcome failed", "sale_id", job.SaleID, "status", status, "error", recordErr)
	}

	if err != nil && job.Attempts+1 >= s.cfg.MaxAttempts {
		_ = s.notifier.Notify(ctx, s.cfg.AdminContact, notify.EventProvisioningFailed, map[string]any{
			"sale_id":  job.SaleID,
			"username": job.Username,
			"attempts": job.Attempts + 1,
			"error":    outcome.Error,
		})
	}
	return outcome
}

// Retry re-sends a sale's credential on administrator request.
func (s *ProvisioningService) Retry(ctx context.Context, saleID string) (ProvisionOutcome, error) {
	job, err := s.jobs.GetBySale(ctx, saleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ProvisionOutcome{}, ErrSaleNotFound
		}
		return ProvisionOutcome{}, err
	}
	if job.Status == models.JobStatusDone {
		return ProvisionOutcome{}, ErrAlreadyProvisioned
	}
	return s.Attempt(ctx, job), nil
}

type RunSummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunFailed retries failed jobs, and pending jobs abandoned by a crashed
// request, that still have attempts left.
func (s *ProvisioningService) RunFailed(ctx context.Context, limit int) (RunSummary, error) {
	jobs, err := s.jobs.ListRetryable(ctx, s.cfg.MaxAttempts, s.now().Add(-s.cfg.StaleAfter), limit)
	if err != nil {
		return RunSummary{}, err
	}
	var summary RunSummary
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		summary.Attempted++
		if s.Attempt(ctx, job).Provisioned {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *ProvisioningService) ListFailed(ctx context.Context, limit, offset int) ([]models.ProvisioningJob, error) {
	return s.jobs.ListFailed(ctx, limit, offset)
}

// Reconciler runs RunFailed on a fixed interval.
type Reconciler struct {
	service  *ProvisioningService
	interval time.Duration
	batch    int
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

func NewReconciler(service *ProvisioningService, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		service:  service,
		interval: interval,
		batch:    50,
		logger:   logger,
		stop:     make(chan struct{}, 1),
	}
}

func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// Start blocks until ctx is done or Stop is called. Call in a goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.safeRun(ctx)
		}
	}
}

func (r *Reconciler) Stop() {
	select {
	case r.stop <- struct{}{}:
	default:
	}
}

func (r *Reconciler) safeRun(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in provisioning reconciler", "panic", fmt.Sprint(rec))
		}
	}()

	summary, err := r.service.RunFailed(ctx, r.batch)
	if err != nil {
		r.logger.Warn("provisioning reconciliation failed", "error", err)
		return
	}
	if summary.Attempted > 0 {
		r.logger.Info("provisioning reconciliation", "attempted", summary.Attempted, "succeeded", summary.Succeeded, "failed", summary.Failed)
	}
}
