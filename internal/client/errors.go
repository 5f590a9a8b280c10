package client

import (
	"errors"
	"fmt"

	"github.com/roach88/dvsdk/internal/entity"
	"github.com/roach88/dvsdk/internal/messages"
	"github.com/roach88/dvsdk/internal/metadata"
	"github.com/roach88/dvsdk/internal/query"
)

// ErrorCode categorizes client errors.
type ErrorCode string

const (
	// ErrCodeTransport indicates the request never got a response.
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// ErrCodeAPI indicates the Web API answered with a non-2xx status.
	ErrCodeAPI ErrorCode = "API"

	// ErrCodeInvalidRequest indicates the request could not be built.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeInvalidResponse indicates a 2xx response could not be parsed.
	ErrCodeInvalidResponse ErrorCode = "INVALID_RESPONSE"

	// ErrCodeMetadata indicates entity metadata could not be loaded or lacks
	// what the operation needs.
	ErrCodeMetadata ErrorCode = "METADATA"

	// ErrCodePageLimitExceeded indicates RetrieveAll hit its page limit.
	ErrCodePageLimitExceeded ErrorCode = "PAGE_LIMIT_EXCEEDED"
)

// Error is returned by every Client operation.
//
// Err is the underlying cause and stays reachable through errors.Is and
// errors.As, so a *messages.APIError can be inspected directly.
type Error struct {
	// Op names the operation, e.g. "create" or "retrieve_multiple".
	Op string

	// Code identifies the error category.
	Code ErrorCode

	// Entity is the logical name the operation targeted, when known.
	Entity string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Entity, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// wrap classifies err and attaches the operation. A nil err stays nil and
// an existing *Error is returned unchanged.
func wrap(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Op: op, Code: classify(err), Entity: entity, Err: err}
}

func classify(err error) ErrorCode {
	var apiErr *messages.APIError
	switch {
	case errors.As(err, &apiErr):
		return ErrCodeAPI
	case errors.Is(err, metadata.ErrNotFound), errors.Is(err, metadata.ErrAmbiguousRelationship):
		return ErrCodeMetadata
	case errors.Is(err, messages.ErrInvalidRequest), errors.Is(err, entity.ErrInvalidRecord), query.IsValidationError(err):
		return ErrCodeInvalidRequest
	case errors.Is(err, messages.ErrInvalidResponse):
		return ErrCodeInvalidResponse
	default:
		return ErrCodeTransport
	}
}

// Code returns the ErrorCode of err, or "" when err is not a client error.
func Code(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsPageLimitError reports whether err stopped RetrieveAll at its page limit.
func IsPageLimitError(err error) bool {
	return Code(err) == ErrCodePageLimitExceeded
}
