// Package apperr defines the service error taxonomy. Every failure that
// crosses a component boundary carries a class (which decides the HTTP
// status) and a stable machine-readable code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Class int

const (
	Auth Class = iota + 1
	Validation
	Conflict
	NotFound
	External
)

const (
	CodeMissingToken      = "missing_token"
	CodeInvalidToken      = "invalid_token"
	CodeSessionExpired    = "session_expired"
	CodeNoActiveChallenge = "no_active_challenge"
	CodeInvalidSignature  = "invalid_signature"

	CodeMalformedInput     = "malformed_input"
	CodeWalletMismatch     = "wallet_mismatch"
	CodeNoLinkedSymbiote   = "no_linked_symbiote"
	CodeOnChainFailure     = "on_chain_failure"
	CodeSignerMismatch     = "signer_mismatch"
	CodeNotASwap           = "not_a_swap"
	CodeBelowMinimumVolume = "below_minimum_volume"

	CodeAlreadyProcessed = "already_processed"

	CodeUnknownTransaction = "unknown_transaction"
	CodeUnknownSymbiote    = "unknown_symbiote"

	CodeLedgerUnreachable    = "ledger_unreachable"
	CodeInferenceUnreachable = "inference_unreachable"
	CodeSwapBuilderFailure   = "swap_builder_failure"
)

type Error struct {
	Class   Class
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error class to an HTTP status code.
func (e *Error) Status() int {
	switch e.Class {
	case Auth:
		return http.StatusUnauthorized
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case External:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func New(class Class, code, message string) *Error {
	return &Error{Class: class, Code: code, Message: message}
}

func Authf(code, format string, args ...any) *Error {
	return &Error{Class: Auth, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validationf(code, format string, args ...any) *Error {
	return &Error{Class: Validation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(code, format string, args ...any) *Error {
	return &Error{Class: Conflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(code, format string, args ...any) *Error {
	return &Error{Class: NotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Externalf wraps a collaborator failure, keeping the cause reachable
// through errors.Unwrap.
func Externalf(code string, err error, format string, args ...any) *Error {
	return &Error{Class: External, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the stable code of err, or "" when err does not carry one.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ClassOf returns the class of err, or 0 when err does not carry one.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return 0
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
