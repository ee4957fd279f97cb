package services

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogRepositoryMissing signals that the pricing service was constructed without a catalog repository.
	ErrCatalogRepositoryMissing = errors.New("pricing: catalog repository is required")
	// ErrModifierRepositoryMissing signals that the pricing service was constructed without a modifier repository.
	ErrModifierRepositoryMissing = errors.New("pricing: price modifier repository is required")
	// ErrPriceListItemNotFound is returned when no catalog entry exists for the requested item.
	ErrPriceListItemNotFound = errors.New("pricing: price list item not found")
	// ErrModifierNotFound is returned when a requested modifier code does not exist.
	ErrModifierNotFound = errors.New("pricing: price modifier not found")
)

// ValidationError reports invalid calculation input. It is raised before any
// computation runs, never mid-pipeline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return fmt.Sprintf("pricing: validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("pricing: validation failed for %s: %s", e.Field, e.Reason)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FormulaSyntaxError reports an invalid formula expression. It surfaces at
// modifier-load time so a broken formula never reaches a live calculation.
type FormulaSyntaxError struct {
	Formula  string
	Position int
	Message  string
}

func (e *FormulaSyntaxError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("pricing: formula syntax error at offset %d: %s", e.Position, e.Message)
}

// FormulaEvaluationError reports a runtime failure while evaluating a
// well-formed formula. It aborts the whole item's calculation.
type FormulaEvaluationError struct {
	ModifierCode string
	Formula      string
	Err          error
}

func (e *FormulaEvaluationError) Error() string {
	if e == nil {
		return ""
	}
	if e.ModifierCode == "" {
		return fmt.Sprintf("pricing: formula evaluation failed: %v", e.Err)
	}
	return fmt.Sprintf("pricing: formula evaluation failed for modifier %s: %v", e.ModifierCode, e.Err)
}

func (e *FormulaEvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
