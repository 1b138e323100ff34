package service

import (
	"errors"
	"fmt"

	"bingopos/backend/internal/domain"
)

var (
	ErrInvalidOrder            = errors.New("invalid order")
	ErrInvalidSale             = errors.New("invalid sale")
	ErrInvalidReturn           = errors.New("invalid return")
	ErrInvalidArticle          = errors.New("invalid article")
	ErrInvalidCashier          = errors.New("invalid cashier")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrOrderNotFound           = errors.New("remote order not found")
	ErrOrderAlreadyProcessed   = errors.New("remote order already processed")
	ErrOrderNotEditable        = errors.New("remote order can no longer be edited")
	ErrOrderRejected           = errors.New("remote order rejected by security check")
	ErrCodeGenerationExhausted = errors.New("could not generate a unique reference code")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrForbidden               = errors.New("forbidden")
	ErrNotFound                = errors.New("not found")
	ErrStorageFailure          = errors.New("storage failure")
	ErrInconsistentState       = errors.New("inconsistent state")
	ErrAssistantUnavailable    = errors.New("assistant unavailable")
)

// InconsistentStateError reports a remote order whose sale was written but
// whose status could not be moved to completed.
type InconsistentStateError struct {
	OrderID   string
	OrderCode string
	SaleID    string
	Err       error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf(
		"payment for remote order %s was recorded as sale %s but the order could not be marked completed; needs manual follow-up: %v",
		e.OrderCode, e.SaleID, e.Err,
	)
}

func (e *InconsistentStateError) Is(target error) bool {
	return target == ErrInconsistentState
}

func (e *InconsistentStateError) Unwrap() error {
	return e.Err
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

func invalid(category error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", category, fmt.Sprintf(format, args...))
}

func require(actor domain.Actor, permission string) error {
	if actor.ID == "" {
		return ErrUnauthorized
	}
	if permission != "" && !actor.Can(permission) {
		return fmt.Errorf("%w: missing permission %s", ErrForbidden, permission)
	}
	return nil
}
