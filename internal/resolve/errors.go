package resolve

import (
	"errors"
	"fmt"
)

// ErrorCode classifies resolution failures.
type ErrorCode string

const (
	CodeUnknownInternalTempID ErrorCode = "unknown_internal_tempid"
	CodeTempIDConflict        ErrorCode = "tempid_conflict"
	CodeLookupRefNotFound     ErrorCode = "lookup_ref_not_found"
	CodeInvalidLookupRef      ErrorCode = "invalid_lookup_ref"
	CodeUnknownIdent          ErrorCode = "unknown_ident"
	CodeUnknownTxFunction     ErrorCode = "unknown_tx_function"
	CodeAllocation            ErrorCode = "allocation_failed"
)

// Error is a failure to turn a tempid, ident, lookup ref or tx function
// into an entid. The transaction aborts; nothing reaches storage.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolution error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("resolution error [%s]: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsError reports whether err is a resolution error.
func IsError(err error) bool {
	var re *Error
	return errors.As(err, &re)
}

// CodeOf returns the resolution code carried by err, or "".
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
