package services

import (
	"context"
	"errors"
	"fmt"

	"agentledger/internal/db"
	"agentledger/internal/hotspot"
	"agentledger/internal/money"
	"agentledger/internal/validator"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidKind        = errors.New("invalid entry kind")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAgentInactive      = errors.New("agent is not active")
	ErrDuplicateAgent     = errors.New("agent handle or phone already registered")

	ErrAgentNotFound     = errors.New("agent not found")
	ErrBalanceNotFound   = errors.New("balance not found")
	ErrPackageNotFound   = errors.New("package not found")
	ErrRequestNotFound   = errors.New("balance request not found")
	ErrSaleNotFound      = errors.New("voucher sale not found")
	ErrNothingToAllocate = errors.New("payment does not fully cover any unpaid invoice")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyProcessed    = errors.New("balance request already processed")
	ErrAlreadyProvisioned  = errors.New("sale already provisioned")
	ErrCodeSpaceExhausted  = errors.New("could not generate a unique access code")
)

// InsufficientBalanceError carries the amounts a caller needs to explain a rejected debit.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s",
		money.FormatRupiah(e.Required), money.FormatRupiah(e.Available))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindNotFound            ErrorKind = "not_found"
	KindState               ErrorKind = "state"
	KindConcurrency         ErrorKind = "concurrency"
	KindExternal            ErrorKind = "external"
	KindPersistence         ErrorKind = "persistence"
)

// Classify maps any error returned by this package to the kind callers act on.
// Unknown errors are treated as persistence failures.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAgentInactive),
		errors.Is(err, ErrNothingToAllocate),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrInvalidRate),
		errors.Is(err, validator.ErrInvalidHandle),
		errors.Is(err, validator.ErrInvalidPhone),
		errors.Is(err, validator.ErrInvalidPassword),
		errors.Is(err, validator.ErrInvalidName):
		return KindValidation
	case errors.Is(err, ErrAgentNotFound),
		errors.Is(err, ErrBalanceNotFound),
		errors.Is(err, ErrPackageNotFound),
		errors.Is(err, ErrRequestNotFound),
		errors.Is(err, ErrSaleNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyProcessed),
		errors.Is(err, ErrAlreadyProvisioned),
		errors.Is(err, ErrDuplicateAgent),
		errors.Is(err, ErrDuplicateAdmin):
		return KindState
	case errors.Is(err, db.ErrRetryLimit),
		errors.Is(err, ErrCodeSpaceExhausted),
		db.IsRetryable(err):
		return KindConcurrency
	case errors.Is(err, hotspot.ErrUnavailable),
		errors.Is(err, hotspot.ErrUserExists),
		errors.Is(err, context.DeadlineExceeded):
		return KindExternal
	default:
		return KindPersistence
	}
}
