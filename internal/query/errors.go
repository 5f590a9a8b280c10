package query

import (
	"errors"
	"fmt"
)

// ValidationCode categorizes construction errors.
type ValidationCode string

const (
	// CodeRequired indicates a required field is empty.
	CodeRequired ValidationCode = "REQUIRED"

	// CodeInvalidOperator indicates an enum value outside the declared set.
	CodeInvalidOperator ValidationCode = "INVALID_OPERATOR"

	// CodeValueMismatch indicates a condition value does not fit its operator.
	CodeValueMismatch ValidationCode = "VALUE_MISMATCH"

	// CodeOutOfRange indicates a numeric field outside its allowed range.
	CodeOutOfRange ValidationCode = "OUT_OF_RANGE"

	// CodeConflict indicates two fields that cannot be set together.
	CodeConflict ValidationCode = "CONFLICT"
)

// ValidationError reports one invalid field of a query tree.
//
// Path locates the field from the root of the value being validated, for
// example "criteria.filters[1].conditions[0].values".
type ValidationError struct {
	Path    string
	Code    ValidationCode
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidationError returns true if err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationErrors returns every *ValidationError contained in err,
// including those joined by Validate.
func ValidationErrors(err error) []*ValidationError {
	if err == nil {
		return nil
	}
	var out []*ValidationError
	var walk func(error)
	walk = func(e error) {
		if ve, ok := e.(*ValidationError); ok {
			out = append(out, ve)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			if inner := u.Unwrap(); inner != nil {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}
