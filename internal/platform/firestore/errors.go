package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind uint8

const (
	kindOther errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// kindOf sorts gRPC statuses into the categories services act on. Aborted is a transaction that
// lost every retry to contention; precondition failures are writes rejected by an Exists or
// LastUpdateTime check.
func kindOf(code codes.Code) errorKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return kindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return kindUnavailable
	default:
		return kindOther
	}
}

// Error implements repositories.RepositoryError for Firestore backed repositories.
type Error struct {
	op   string
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// NewNotFound reports a document the repository looked for and did not find.
func NewNotFound(op, id string) *Error {
	return &Error{op: op, kind: kindNotFound, err: fmt.Errorf("%s not found", id)}
}

// NewVersionConflict reports an optimistic write against a document that moved on.
func NewVersionConflict(op, id string, stored, expected int64) *Error {
	return &Error{op: op, kind: kindConflict, err: fmt.Errorf("%s is at version %d, expected %d", id, stored, expected)}
}

// NewStockConflict reports an adjustment that would drive a product's stock below zero.
func NewStockConflict(op, productID string, stock, delta int) *Error {
	return &Error{op: op, kind: kindConflict, err: fmt.Errorf("product %s stock %d cannot absorb %d", productID, stock, delta)}
}

// NewDuplicateNumber reports an order or invoice number already claimed by another document.
func NewDuplicateNumber(op, number, ownerID string) *Error {
	return &Error{op: op, kind: kindConflict, err: fmt.Errorf("number %s already belongs to %s", number, ownerID)}
}

// IsNotFound reports whether err is a not-found repository error or carries a NotFound status.
func IsNotFound(err error) bool {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr.kind == kindNotFound
	}
	return err != nil && status.Code(err) == codes.NotFound
}

// WrapError annotates err with repository semantics under op. Cancellation and deadline errors
// are returned as the context sentinels so request handling can tell them apart from storage faults.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if repoErr.op == "" {
			repoErr.op = op
		}
		return repoErr
	}
	return &Error{op: op, kind: kindOf(code), err: err}
}
