package lifecycle

import (
	"errors"
	"fmt"
)

// Code is the machine-readable reason carried by every engine error. The
// payment rejection codes are also stored on the order as failure_reason.
type Code string

const (
	CodeInvalidArgument    Code = "invalid_argument"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeExpired            Code = "order_expired"
	CodeSignatureInvalid   Code = "signature_invalid"
	CodePaymentNotCaptured Code = "payment_not_captured"
	CodeAmountMismatch     Code = "amount_mismatch"
	CodeCurrencyMismatch   Code = "currency_mismatch"
	CodeInternal           Code = "internal"
)

// Error is returned by every Engine operation that fails.
type Error struct {
	Code    Code
	Msg     string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf classifies err. Anything that is not an *Error is internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func internal(msg string, err error) *Error {
	return &Error{Code: CodeInternal, Msg: msg, Err: err}
}

// InvalidArgument builds a validation error with per-field details.
func InvalidArgument(msg string, details ...string) *Error {
	return &Error{Code: CodeInvalidArgument, Msg: msg, Details: details}
}
