package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed or empty requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientStock marks ledger operations that would drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a state transition that the current status does not permit.
	ErrConflict = errors.New("conflict")
	// ErrPersistence indicates the backing store failed mid-operation.
	ErrPersistence = errors.New("persistence failure")
)

// InsufficientStockError carries the ledger coordinates of a rejected decrement.
type InsufficientStockError struct {
	ProductID int64
	BranchID  int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: product %d at branch %d (requested %d, available %d)",
		e.ProductID, e.BranchID, e.Requested, e.Available)
}

// Is lets errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Invalid wraps a message as ErrInvalidInput.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

// Conflict wraps a message as ErrConflict.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// NotFound wraps a message as ErrNotFound.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Persistence classifies store failures. Taxonomy errors and context errors pass through untouched.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// IsDomain reports whether err already belongs to the engine's error taxonomy.
func IsDomain(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrPersistence)
}

// UserSafeMessage returns a message that can be shown to API callers.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsDomain(err) && !errors.Is(err, ErrPersistence) {
		return err.Error()
	}
	return "the store is temporarily unavailable, please retry"
}
