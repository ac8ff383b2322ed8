/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Validation and duplicate-conflict outcomes are recoverable and
  reported as structured results; storage errors abort the enclosing
  transaction and surface to the caller.

ERROR CATEGORIES:
  1. Validation errors  - bad patch field, missing mandatory fields
  2. Duplicate conflict - the (po, sku, uid) uniqueness invariant
  3. Storage errors     - persistence failures, wrapped by the store

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidField is returned when a patch names a field outside the
	// editable set. No mutation occurs.
	ErrInvalidField = errors.New("invalid field")

	// ErrMissingKeyFields is returned when a create/upsert is missing any
	// of po_number, sku_code or uid.
	ErrMissingKeyFields = errors.New("po_number, sku_code and uid are required")

	// ErrDuplicateUnit signals that a mutation would violate the
	// (po_number, sku_code, uid) uniqueness invariant. The engine resolves
	// it via the merge/reject policy; it never surfaces as a hard failure
	// on the upsert path.
	ErrDuplicateUnit = errors.New("duplicate unit")

	// ErrNotFound is returned when a lookup names a record that does not
	// exist.
	ErrNotFound = errors.New("record not found")

	// ErrStorage wraps persistence failures.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidFieldError reports an unrecognized patch field name.
type InvalidFieldError struct {
	Field string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid field: %s", e.Field)
}

func (e *InvalidFieldError) Unwrap() error { return ErrInvalidField }

// MissingFieldsError reports which mandatory fields were blank.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing mandatory fields: %s", strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error { return ErrMissingKeyFields }

// DuplicateUnitError identifies the pre-existing record that owns a
// contested natural key.
type DuplicateUnitError struct {
	ExistingID string
	PONumber   string
	SKUCode    string
	UID        string
}

func (e *DuplicateUnitError) Error() string {
	return fmt.Sprintf("unit (%s, %s, %s) already belongs to record %s",
		e.PONumber, e.SKUCode, e.UID, e.ExistingID)
}

func (e *DuplicateUnitError) Unwrap() error { return ErrDuplicateUnit }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrMissingKeyFields) ||
		errors.Is(err, ErrDuplicateUnit)
}

// IsNotFound returns true if the error is a missing-record lookup.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
