package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AgentStatusActive    = "active"
	AgentStatusInactive  = "inactive"
	AgentStatusSuspended = "suspended"
)

const (
	KindDeposit        = "deposit"
	KindWithdrawal     = "withdrawal"
	KindVoucherSale    = "voucher_sale"
	KindMonthlyPayment = "monthly_payment"
	KindCommission     = "commission"
	KindBalanceRequest = "balance_request"
)

const (
	EntryStatusPending   = "pending"
	EntryStatusCompleted = "completed"
	EntryStatusFailed    = "failed"
	EntryStatusCancelled = "cancelled"
)

const (
	SaleStatusActive    = "active"
	SaleStatusUsed      = "used"
	SaleStatusExpired   = "expired"
	SaleStatusCancelled = "cancelled"
)

const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

const (
	InvoiceStatusUnpaid = "unpaid"
	InvoiceStatusPaid   = "paid"
)

const (
	JobStatusPending = "pending"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

const (
	AccountTypeMember  = "member"
	AccountTypeVoucher = "voucher"
)

func ValidAgentStatus(status string) bool {
	switch status {
	case AgentStatusActive, AgentStatusInactive, AgentStatusSuspended:
		return true
	}
	return false
}

func ValidEntryKind(kind string) bool {
	switch kind {
	case KindDeposit, KindWithdrawal, KindVoucherSale, KindMonthlyPayment, KindCommission, KindBalanceRequest:
		return true
	}
	return false
}

type Agent struct {
	ID             string          `db:"id" json:"id"`
	Handle         string          `db:"handle" json:"handle"`
	Name           string          `db:"name" json:"name"`
	Phone          string          `db:"phone" json:"phone"`
	PasswordHash   string          `db:"password_hash" json:"-"`
	Status         string          `db:"status" json:"status"`
	CommissionRate decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

type Balance struct {
	AgentID   string    `db:"agent_id" json:"agent_id"`
	Amount    int64     `db:"amount" json:"amount"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TransactionEntry is one immutable movement of an agent balance.
type TransactionEntry struct {
	ID            string    `db:"id" json:"id"`
	Seq           int64     `db:"seq" json:"seq"`
	AgentID       string    `db:"agent_id" json:"agent_id"`
	Amount        int64     `db:"amount" json:"amount"`
	BalanceBefore int64     `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64     `db:"balance_after" json:"balance_after"`
	Kind          string    `db:"kind" json:"kind"`
	Description   string    `db:"description" json:"description"`
	ReferenceID   *string   `db:"reference_id" json:"reference_id,omitempty"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type VoucherSale struct {
	ID             string     `db:"id" json:"id"`
	AgentID        string     `db:"agent_id" json:"agent_id"`
	Code           string     `db:"code" json:"code"`
	PackageID      string     `db:"package_id" json:"package_id"`
	PackageName    string     `db:"package_name" json:"package_name"`
	BuyerName      *string    `db:"buyer_name" json:"buyer_name,omitempty"`
	BuyerPhone     *string    `db:"buyer_phone" json:"buyer_phone,omitempty"`
	CustomerPrice  int64      `db:"customer_price" json:"customer_price"`
	AgentPrice     int64      `db:"agent_price" json:"agent_price"`
	Commission     int64      `db:"commission" json:"commission"`
	Status         string     `db:"status" json:"status"`
	Provisioned    bool       `db:"provisioned" json:"provisioned"`
	ProvisionError *string    `db:"provision_error" json:"provision_error,omitempty"`
	EntryID        string     `db:"entry_id" json:"entry_id"`
	SoldAt         time.Time  `db:"sold_at" json:"sold_at"`
	UsedAt         *time.Time `db:"used_at" json:"used_at,omitempty"`
}

type BalanceRequest struct {
	ID          string     `db:"id" json:"id"`
	AgentID     string     `db:"agent_id" json:"agent_id"`
	Amount      int64      `db:"amount" json:"amount"`
	Status      string     `db:"status" json:"status"`
	AdminNotes  *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	RequestedAt time.Time  `db:"requested_at" json:"requested_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	ProcessedBy *string    `db:"processed_by" json:"processed_by,omitempty"`
}

// Invoice is owned by billing; this service only moves it from unpaid to paid.
type Invoice struct {
	ID            string     `db:"id" json:"id"`
	CustomerID    string     `db:"customer_id" json:"customer_id"`
	Amount        int64      `db:"amount" json:"amount"`
	DueDate       time.Time  `db:"due_date" json:"due_date"`
	Status        string     `db:"status" json:"status"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	PaymentMethod *string    `db:"payment_method" json:"payment_method,omitempty"`
	PaidByAgentID *string    `db:"paid_by_agent_id" json:"paid_by_agent_id,omitempty"`
}

type PricedPackage struct {
	ID                  string `db:"id" json:"id"`
	Name                string `db:"name" json:"name"`
	CustomerPrice       int64  `db:"customer_price" json:"customer_price"`
	AgentPrice          int64  `db:"agent_price" json:"agent_price"`
	Commission          int64  `db:"commission" json:"commission"`
	DurationHours       int    `db:"duration_hours" json:"duration_hours"`
	DigitType           string `db:"digit_type" json:"digit_type"`
	CodeLength          int    `db:"code_length" json:"code_length"`
	AccountType         string `db:"account_type" json:"account_type"`
	ProvisioningProfile string `db:"provisioning_profile" json:"provisioning_profile"`
	IsActive            bool   `db:"is_active" json:"is_active"`
}

// ProvisioningJob is the durable record of one credential to create on the hotspot device.
type ProvisioningJob struct {
	ID        string    `db:"id" json:"id"`
	SaleID    string    `db:"sale_id" json:"sale_id"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"`
	Profile   string    `db:"profile" json:"profile"`
	Comment   string    `db:"comment" json:"comment"`
	Status    string    `db:"status" json:"status"`
	Attempts  int       `db:"attempts" json:"attempts"`
	LastError *string   `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
