package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dvsdk/internal/query"
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// fromValidation converts a construction error from the query package into a
// CompileError anchored at pos. field prefixes the validation path.
func fromValidation(err error, field string, pos token.Pos) error {
	verrs := query.ValidationErrors(err)
	if len(verrs) == 0 {
		return &CompileError{Field: field, Message: err.Error(), Pos: pos}
	}
	first := verrs[0]
	path := field
	if first.Path != "" {
		if path != "" {
			path += "."
		}
		path += first.Path
	}
	return &CompileError{
		Field:   path,
		Message: fmt.Sprintf("%s (%s)", first.Message, first.Code),
		Pos:     pos,
	}
}
