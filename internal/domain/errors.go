package domain

import (
	"errors"
	"fmt"
)

// Code is a wallet error category.
type Code string

const (
	CodeInvalidAddress          Code = "INVALID_ADDRESS"
	CodeInvalidAmount           Code = "INVALID_AMOUNT"
	CodeInvalidSecretFormat     Code = "INVALID_SECRET_FORMAT"
	CodeNoTokenAccount          Code = "NO_TOKEN_ACCOUNT"
	CodeZeroBalance             Code = "ZERO_BALANCE"
	CodeInsufficientBalance     Code = "INSUFFICIENT_BALANCE"
	CodeBalanceCheckUnavailable Code = "BALANCE_CHECK_UNAVAILABLE"
	CodeLedgerUnavailable       Code = "LEDGER_UNAVAILABLE"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeTransactionExpired      Code = "TRANSACTION_EXPIRED"
	CodeBroadcastFailed         Code = "BROADCAST_FAILED"
	CodeConfirmationUnknown     Code = "CONFIRMATION_UNKNOWN"
)

// Error is a categorized wallet error. Message is safe to show to an end user.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// NewError creates an Error.
func NewError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Errorf creates an Error with a formatted message and no cause.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidAddress          = &Error{Code: CodeInvalidAddress}
	ErrInvalidAmount           = &Error{Code: CodeInvalidAmount}
	ErrInvalidSecretFormat     = &Error{Code: CodeInvalidSecretFormat}
	ErrNoTokenAccount          = &Error{Code: CodeNoTokenAccount}
	ErrZeroBalance             = &Error{Code: CodeZeroBalance}
	ErrInsufficientBalance     = &Error{Code: CodeInsufficientBalance}
	ErrBalanceCheckUnavailable = &Error{Code: CodeBalanceCheckUnavailable}
	ErrLedgerUnavailable       = &Error{Code: CodeLedgerUnavailable}
	ErrRateLimited             = &Error{Code: CodeRateLimited}
	ErrTransactionExpired      = &Error{Code: CodeTransactionExpired}
	ErrBroadcastFailed         = &Error{Code: CodeBroadcastFailed}
	ErrConfirmationUnknown     = &Error{Code: CodeConfirmationUnknown}
)

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the display message of the first *Error in err's chain,
// falling back to err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
