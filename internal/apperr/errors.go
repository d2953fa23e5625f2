// Package apperr defines the error kinds surfaced to users of the swap client.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Test with errors.Is.
var (
	ErrProviderUnavailable      = errors.New("wallet provider unavailable")
	ErrUserRejected             = errors.New("rejected by user")
	ErrNetworkSwitchFailed      = errors.New("network switch failed")
	ErrTokenNotFound            = errors.New("token not found")
	ErrQuoteUnavailable         = errors.New("quote unavailable")
	ErrApprovalFailed           = errors.New("approval failed")
	ErrSwapReverted             = errors.New("swap reverted")
	ErrInvalidSwapConfiguration = errors.New("invalid swap configuration")
	ErrNotConnected             = errors.New("wallet not connected")
	ErrSwapInProgress           = errors.New("swap already in progress")
)

var kinds = []error{
	ErrProviderUnavailable,
	ErrUserRejected,
	ErrNetworkSwitchFailed,
	ErrTokenNotFound,
	ErrQuoteUnavailable,
	ErrApprovalFailed,
	ErrSwapReverted,
	ErrInvalidSwapConfiguration,
	ErrNotConnected,
	ErrSwapInProgress,
}

// Error carries a kind, the operation that failed and an optional cause
type Error struct {
	Kind error
	Op   string
	Err  error
}

// New wraps cause with a kind. cause may be nil.
func New(kind error, op string, cause error) error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Newf is New with a formatted cause
func Newf(kind error, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the first taxonomy kind found in err's chain, or nil
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
