package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals that an order, invoice, client or product does not exist.
	ErrNotFound = errors.New("not found")
	// ErrState signals an operation that is illegal in the entity's current state.
	ErrState = errors.New("invalid state")
	// ErrDatabase signals a persistence failure. The cause is wrapped alongside it.
	ErrDatabase = errors.New("database failure")
)

// StateReason is a machine readable code attached to state errors.
type StateReason string

const (
	StateReasonUnavailable         StateReason = "unavailable"
	StateReasonInsufficientStock   StateReason = "insufficient-stock"
	StateReasonUnknownVariant      StateReason = "unknown-variant"
	StateReasonOverpayment         StateReason = "overpayment"
	StateReasonInvalidTransition   StateReason = "invalid-transition"
	StateReasonFeeNotPending       StateReason = "delivery-fee-not-pending"
	StateReasonInvalidDeliveryFee  StateReason = "invalid-delivery-fee"
	StateReasonNotDeletable        StateReason = "not-deletable"
	StateReasonInvoiceClosed       StateReason = "invoice-closed"
	StateReasonOrderClosed         StateReason = "order-closed"
	StateReasonInvoiceNotEditable  StateReason = "invoice-not-editable"
	StateReasonTotalNotYetResolved StateReason = "total-not-resolved"
)

// StateError reports a rejected operation. It matches ErrState with errors.Is.
type StateError struct {
	Reason  StateReason
	Message string
}

// NewStateError builds a StateError with a formatted message.
func NewStateError(reason StateReason, format string, args ...any) *StateError {
	return &StateError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *StateError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", ErrState, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrState, e.Reason, e.Message)
}

// Is lets errors.Is(err, ErrState) succeed for any StateError.
func (e *StateError) Is(target error) bool {
	return target == ErrState
}

// StateReasonOf extracts the reason from a StateError anywhere in the chain.
func StateReasonOf(err error) (StateReason, bool) {
	var stateErr *StateError
	if errors.As(err, &stateErr) {
		return stateErr.Reason, true
	}
	return "", false
}

// DatabaseError wraps a persistence failure so it matches ErrDatabase and still unwraps to the cause.
func DatabaseError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDatabase, op, cause)
}
