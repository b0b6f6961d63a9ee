package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"agentledger/internal/db"
	"agentledger/internal/hotspot"
	"agentledger/internal/validator"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{&InsufficientBalanceError{Required: 2, Available: 1}, KindInsufficientBalance},
		{fmt.Errorf("sell: %w", ErrInsufficientBalance), KindInsufficientBalance},
		{ErrInvalidAmount, KindValidation},
		{ErrNothingToAllocate, KindValidation},
		{validator.ErrInvalidPhone, KindValidation},
		{ErrAgentNotFound, KindNotFound},
		{ErrRequestNotFound, KindNotFound},
		{ErrAlreadyProcessed, KindState},
		{ErrDuplicateAgent, KindState},
		{fmt.Errorf("%w: serialization", db.ErrRetryLimit), KindConcurrency},
		{&pq.Error{Code: "40001"}, KindConcurrency},
		{ErrCodeSpaceExhausted, KindConcurrency},
		{hotspot.ErrUnavailable, KindExternal},
		{context.DeadlineExceeded, KindExternal},
		{errors.New("connection reset"), KindPersistence},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "Classify(%v)", tt.err)
	}
}

func TestInsufficientBalanceErrorMessage(t *testing.T) {
	err := &InsufficientBalanceError{Required: 20000, Available: 10000}
	assert.Equal(t, "insufficient balance: required Rp 20.000, available Rp 10.000", err.Error())
}
