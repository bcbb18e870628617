// Package errors provides coded domain errors shared across services.
//
// Services return these so transports can translate outcomes without
// inspecting error strings, and so audit entries can record a stable
// error kind. Stores and infrastructure return plain errors; services
// wrap them with the appropriate code at the boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error kind. The provisioning taxonomy is a closed
// set; transports and audit records branch on these, never on message
// text.
type Code string

const (
	// Static validation failures detected before any mutation.
	CodeSpecNotFound           Code = "spec_not_found"
	CodeSpecInvalid            Code = "spec_invalid"
	CodeCyclicRelationship     Code = "cyclic_relationship"
	CodeUnknownMaskingStrategy Code = "unknown_masking_strategy"

	// Runtime failures.
	CodeNoParentRecords   Code = "no_parent_records"
	CodePolicyDenied      Code = "policy_denied"
	CodeStorageFailure    Code = "storage_failure"
	CodeAuditWriteFailure Code = "audit_write_failure"

	// Generic codes for transport and infrastructure concerns.
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal"
)

// DomainError carries a code alongside a human-readable message and an
// optional wrapped cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// New creates a DomainError with no underlying cause.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Newf creates a DomainError with a formatted message.
func Newf(code Code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, walking the unwrap chain. Errors
// without a DomainError in the chain report CodeInternal.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ToHTTPStatus maps codes to HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeSpecNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeSpecInvalid, CodeCyclicRelationship, CodeUnknownMaskingStrategy, CodeBadRequest, CodeNoParentRecords:
		return http.StatusBadRequest
	case CodePolicyDenied, CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeStorageFailure, CodeAuditWriteFailure, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
