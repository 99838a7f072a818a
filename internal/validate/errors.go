package validate

import (
	"errors"
	"fmt"

	"github.com/roach88/causetdb/internal/causet"
)

// Code classifies validation failures.
type Code string

const (
	CodeAttributeNotFound   Code = "attribute_not_found"
	CodeValueTypeMismatch   Code = "value_type_mismatch"
	CodeCardinalityConflict Code = "cardinality_conflict"
	CodeUniqueConflict      Code = "unique_conflict"
	CodeSchemaAlteration    Code = "schema_alteration"
)

// ValidationError rejects an operation against the schema. The transaction
// aborts with nothing written.
type ValidationError struct {
	Code      Code
	Entity    causet.Entid
	Attribute string
	Message   string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Attribute != "" && e.Entity != 0:
		return fmt.Sprintf("validation error [%s] on entity %d attribute %s: %s", e.Code, e.Entity, e.Attribute, e.Message)
	case e.Attribute != "":
		return fmt.Sprintf("validation error [%s] on attribute %s: %s", e.Code, e.Attribute, e.Message)
	case e.Entity != 0:
		return fmt.Sprintf("validation error [%s] on entity %d: %s", e.Code, e.Entity, e.Message)
	}
	return fmt.Sprintf("validation error [%s]: %s", e.Code, e.Message)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CodeOf returns the validation code carried by err, or "".
func CodeOf(err error) Code {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// Errorf builds a ValidationError with a formatted message.
func Errorf(code Code, e causet.Entid, attr string, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Entity: e, Attribute: attr, Message: fmt.Sprintf(format, args...)}
}
