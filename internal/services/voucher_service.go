package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"agentledger/internal/db"
	"agentledger/internal/metrics"
	"agentledger/internal/models"
	"agentledger/internal/money"
	"agentledger/internal/notify"
	"agentledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	saleCodeConstraint = "voucher_sales_code_key"
	maxCodeAttempts    = 3
)

type AgentReader interface {
	GetByID(ctx context.Context, agentID string) (models.Agent, error)
}

type PackageStore interface {
	GetActive(ctx context.Context, packageID string) (models.PricedPackage, error)
	ListActive(ctx context.Context) ([]models.PricedPackage, error)
}

type VoucherStore interface {
	Create(ctx context.Context, tx store.Execer, sale models.VoucherSale) error
	ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]models.VoucherSale, error)
}

type VoucherService struct {
	txRunner         db.TxRunner
	balances         *BalanceService
	agents           AgentReader
	packages         PackageStore
	sales            VoucherStore
	jobs             ProvisioningJobStore
	provisioning     *ProvisioningService
	notifier         notify.Dispatcher
	commentMaxLength int
	logger           *slog.Logger
}

func NewVoucherService(txRunner db.TxRunner, balances *BalanceService, agents AgentReader, packages PackageStore, sales VoucherStore, jobs ProvisioningJobStore, provisioning *ProvisioningService, notifier notify.Dispatcher, commentMaxLength int, logger *slog.Logger) *VoucherService {
	if commentMaxLength <= 0 {
		commentMaxLength = 150
	}
	return &VoucherService{
		txRunner:         txRunner,
		balances:         balances,
		agents:           agents,
		packages:         packages,
		sales:            sales,
		jobs:             jobs,
		provisioning:     provisioning,
		notifier:         notifier,
		commentMaxLength: commentMaxLength,
		logger:           logger,
	}
}

type SaleRequest struct {
	AgentID    string
	PackageID  string
	BuyerName  string
	BuyerPhone string
}

// SaleResult is returned for every committed sale. Provisioned=false with
// Error set means the debit stands and the credential awaits reconciliation.
type SaleResult struct {
	Success     bool               `json:"success"`
	Provisioned bool               `json:"provisioned"`
	Error       string             `json:"error,omitempty"`
	Sale        models.VoucherSale `json:"sale"`
	Username    string             `json:"username"`
	Password    string             `json:"password"`
	Balance     int64              `json:"balance"`
}

// Sell debits the agent for a package, records the sale with its
// provisioning job, and then provisions the credential outside the
// transaction. Any error returned means nothing was charged.
func (s *VoucherService) Sell(ctx context.Context, req SaleRequest) (SaleResult, error) {
	if req.AgentID == "" || strings.TrimSpace(req.PackageID) == "" {
		return SaleResult{}, ErrInvalidInput
	}
	agent, err := s.agents.GetByID(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SaleResult{}, ErrAgentNotFound
		}
		return SaleResult{}, err
	}
	if agent.Status != models.AgentStatusActive {
		return SaleResult{}, ErrAgentInactive
	}
	pkg, err := s.packages.GetActive(ctx, req.PackageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SaleResult{}, ErrPackageNotFound
		}
		return SaleResult{}, err
	}
	if pkg.AgentPrice <= 0 {
		return SaleResult{}, ErrInvalidAmount
	}
	available, err := s.balances.GetBalance(ctx, req.AgentID)
	if err != nil {
		return SaleResult{}, err
	}
	if available < pkg.AgentPrice {
		return SaleResult{}, &InsufficientBalanceError{Required: pkg.AgentPrice, Available: available}
	}

	phone := req.BuyerPhone
	if strings.TrimSpace(phone) == "" {
		phone = agent.Phone
	}
	comment := BuildComment(agent.Name, phone, pkg.Name, s.commentMaxLength)

	unlock := s.balances.LockAgent(req.AgentID)
	started := time.Now()
	var (
		entry              models.TransactionEntry
		sale               models.VoucherSale
		job                models.ProvisioningJob
		username, password string
	)
	for attempt := 1; ; attempt++ {
		code, err := GenerateCode(pkg.DigitType, pkg.CodeLength)
		if err != nil {
			unlock()
			return SaleResult{}, err
		}
		username, password = Credentials(pkg.AccountType, code)
		err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			entry, err = s.balances.ApplyTx(ctx, tx, AdjustmentInput{
				AgentID:     req.AgentID,
				Amount:      -pkg.AgentPrice,
				Kind:        models.KindVoucherSale,
				Description: fmt.Sprintf("Voucher %s (%s)", pkg.Name, code),
				ReferenceID: &code,
			})
			if err != nil {
				return err
			}
			sale = models.VoucherSale{
				ID:            uuid.NewString(),
				AgentID:       req.AgentID,
				Code:          code,
				PackageID:     pkg.ID,
				PackageName:   pkg.Name,
				BuyerName:     optionalString(req.BuyerName),
				BuyerPhone:    optionalString(req.BuyerPhone),
				CustomerPrice: pkg.CustomerPrice,
				AgentPrice:    pkg.AgentPrice,
				Commission:    pkg.CustomerPrice - pkg.AgentPrice,
				Status:        models.SaleStatusActive,
				EntryID:       entry.ID,
			}
			if err := s.sales.Create(ctx, tx, sale); err != nil {
				return err
			}
			job = models.ProvisioningJob{
				ID:       uuid.NewString(),
				SaleID:   sale.ID,
				Username: username,
				Password: password,
				Profile:  pkg.ProvisioningProfile,
				Comment:  comment,
				Status:   models.JobStatusPending,
			}
			return s.jobs.Create(ctx, tx, job)
		})
		if err == nil {
			break
		}
		if db.IsUniqueViolation(err, saleCodeConstraint) && attempt < maxCodeAttempts {
			continue
		}
		unlock()
		metrics.ObserveAdjustment(models.KindVoucherSale, adjustmentResult(err), started)
		if db.IsUniqueViolation(err, saleCodeConstraint) {
			err = ErrCodeSpaceExhausted
		}
		s.balances.logFailure(ctx, "sell_voucher", req.AgentID, err)
		return SaleResult{}, err
	}
	unlock()
	metrics.ObserveAdjustment(models.KindVoucherSale, "ok", started)
	s.balances.Broadcast(entry)

	outcome := s.provisioning.Attempt(ctx, job)
	sale.Provisioned = outcome.Provisioned
	if !outcome.Provisioned {
		sale.ProvisionError = &outcome.Error
	}
	metrics.VoucherSalesTotal.WithLabelValues(strconv.FormatBool(outcome.Provisioned)).Inc()

	_ = s.notifier.Notify(ctx, agent.Phone, notify.EventVoucherSold, map[string]any{
		"agent":       agent.Name,
		"package":     pkg.Name,
		"username":    username,
		"password":    password,
		"agent_price": money.FormatRupiah(pkg.AgentPrice),
		"balance":     money.FormatRupiah(entry.BalanceAfter),
		"provisioned": outcome.Provisioned,
	})

	return SaleResult{
		Success:     true,
		Provisioned: outcome.Provisioned,
		Error:       outcome.Error,
		Sale:        sale,
		Username:    username,
		Password:    password,
		Balance:     entry.BalanceAfter,
	}, nil
}

func (s *VoucherService) ListSales(ctx context.Context, agentID string, limit, offset int) ([]models.VoucherSale, error) {
	return s.sales.ListByAgent(ctx, agentID, limit, offset)
}

func (s *VoucherService) ListPackages(ctx context.Context) ([]models.PricedPackage, error) {
	return s.packages.ListActive(ctx)
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
