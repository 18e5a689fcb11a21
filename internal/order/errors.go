package order

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can decide who sees them
type Kind string

const (
	KindInvalidTransition     Kind = "InvalidTransition"
	KindStaleWrite            Kind = "StaleWrite"
	KindPartialReconciliation Kind = "PartialReconciliation"
	KindNetworkFailure        Kind = "NetworkFailure"
	KindChannelDisconnect     Kind = "ChannelDisconnect"
	KindConflict              Kind = "Conflict"
	KindMalformed             Kind = "Malformed"
	KindNotFound              Kind = "NotFound"
)

// Error is the error type returned by every component of the sync core
type Error struct {
	Kind    Kind
	Op      string
	OrderID string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.OrderID != "" {
		msg += fmt.Sprintf(" (order %s)", e.OrderID)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the actor should be offered a retry
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindPartialReconciliation, KindNetworkFailure, KindChannelDisconnect:
		return true
	}
	return false
}

// Visible reports whether the error should be shown to the actor.
// Stale writes are internal merge anomalies.
func (e *Error) Visible() bool {
	return e.Kind != KindStaleWrite
}

// Errorf builds an *Error with a formatted message
func Errorf(kind Kind, op, orderID, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		OrderID: orderID,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a kind to an underlying error
func Wrap(kind Kind, op, orderID string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		OrderID: orderID,
		Err:     err,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
