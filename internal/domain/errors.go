package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrFrozen          = errors.New("frozen entities cannot be modified")
	ErrDraftSetExists  = errors.New("part already has a draft batch set")
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
)

// ValidationError reports a caller-correctable input problem. Entity names the
// offending record (for example "material 3") and Field the attribute.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("%s: %s %s", e.Entity, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s %s", e.Field, e.Message)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s", e.Entity, e.Message)
	default:
		return e.Message
	}
}

// NewValidationError builds a ValidationError.
func NewValidationError(entity, field, message string) *ValidationError {
	return &ValidationError{Entity: entity, Field: field, Message: message}
}

// GeometryError is raised for physically impossible stock definitions.
type GeometryError struct {
	Stock  StockType
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("invalid %s geometry: %s", e.Stock, e.Reason)
}

// ConflictError is an optimistic lock failure: the caller observed Expected
// but the stored row is at Actual.
type ConflictError struct {
	Entity   string
	ID       int64
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	if e.Actual < 0 {
		return fmt.Sprintf("%s %d: version %d is stale", e.Entity, e.ID, e.Expected)
	}
	return fmt.Sprintf("%s %d: version %d is stale (current %d)", e.Entity, e.ID, e.Expected, e.Actual)
}

// IsValidation reports whether err is a ValidationError or GeometryError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ge *GeometryError
	return errors.As(err, &ve) || errors.As(err, &ge)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// EntityRef formats a record reference used in error messages.
func EntityRef(kind string, id int64) string {
	return fmt.Sprintf("%s %d", kind, id)
}
