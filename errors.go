package tierpay

import (
	"errors"
	"fmt"

	"github.com/xraph/tierpay/auth"
	"github.com/xraph/tierpay/erc20"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/royalty"
	"github.com/xraph/tierpay/store"
	"github.com/xraph/tierpay/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = store.ErrNotFound
	ErrInvalidInput  = errors.New("tierpay: invalid input")
	ErrUnauthorized  = errors.New("tierpay: unauthorized")
	ErrNotConfigured = errors.New("tierpay: not configured")
	ErrReentrantCall = errors.New("tierpay: reentrant call")

	// Amount errors
	ErrInvalidAmount = types.ErrInvalidAmount
	ErrOverflow      = types.ErrOverflow

	// Billing errors
	ErrInvalidUsage          = errors.New("tierpay: usage units must be positive")
	ErrInsufficientDeposit   = errors.New("tierpay: insufficient deposit")
	ErrDepositLocked         = errors.New("tierpay: deposit is still locked")
	ErrNoBalance             = errors.New("tierpay: nothing to withdraw")
	ErrProviderNotRegistered = errors.New("tierpay: provider not registered")
	ErrTiersNotAscending     = provider.ErrTiersNotAscending
	ErrTierLengthMismatch    = provider.ErrTierLengthMismatch

	// Royalty errors
	ErrInvalidRoyaltyOwner        = errors.New("tierpay: invalid royalty owner")
	ErrSplitsMustSumToDenominator = royalty.ErrSplitsMustSumToDenominator
	ErrOracleUnavailable          = royalty.ErrOracleUnavailable
	ErrInsufficientAllowance      = errors.New("tierpay: insufficient allowance")
	ErrInsufficientBalance        = errors.New("tierpay: insufficient balance")
	ErrSettlementFailed           = errors.New("tierpay: royalty settlement failed")

	// Store errors
	ErrStoreClosed     = store.ErrClosed
	ErrRollbackFailed  = errors.New("tierpay: rollback failed")
	ErrMigrationFailed = errors.New("tierpay: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tierpay: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tierpay: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tierpay: %d errors occurred", len(e.Errors))
}

// Unwrap exposes every collected error to errors.Is.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthError returns true if the caller lacked the right to perform the call.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, auth.ErrNotAdmin)
}

// IsBalanceError returns true if the error is about missing funds.
func IsBalanceError(err error) bool {
	return errors.Is(err, ErrInsufficientDeposit) ||
		errors.Is(err, ErrInsufficientAllowance) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNoBalance) ||
		errors.Is(err, erc20.ErrInsufficientBalance) ||
		errors.Is(err, erc20.ErrInsufficientAllowance)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDepositLocked) ||
		errors.Is(err, ErrOracleUnavailable) ||
		errors.Is(err, ErrSettlementFailed)
}
