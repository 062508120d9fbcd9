// Package domainerrors defines the error codes services return to transport
// layers. Stores report infrastructure facts through pkg/platform/sentinel;
// services translate those into coded errors from this package.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error independently of the transport.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeDomainRejected     Code = "domain_rejected"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// FieldError is a single field/message pair reported by validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the coded error carried from services to handlers.
//
// Field names the offending attribute of a conflict, Fields carries
// validation violations and AllowedDomains is populated when an email domain
// is rejected.
type Error struct {
	Code           Code
	Message        string
	Err            error
	Field          string
	Fields         []FieldError
	AllowedDomains []string
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Conflict reports a uniqueness collision on field.
func Conflict(field, msg string) error {
	return &Error{Code: CodeConflict, Message: msg, Field: field}
}

// Validation reports a set of field violations.
func Validation(msg string, fields []FieldError) error {
	return &Error{Code: CodeValidation, Message: msg, Fields: fields}
}

// DomainRejected reports an email address outside the allowed domains.
func DomainRejected(msg string, allowed []string) error {
	domains := make([]string, len(allowed))
	copy(domains, allowed)
	return &Error{Code: CodeDomainRejected, Message: msg, AllowedDomains: domains}
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is reports whether the outermost *Error in the chain carries code.
func Is(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// ToHTTPStatus maps a code onto the response status clients observe.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeBadRequest, CodeValidation, CodeDomainRejected, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
