package memory

import "fmt"

// Error implements repositories.RepositoryError for the in-memory store.
type Error struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("memory.%s: %s", e.op, e.msg)
}

// IsNotFound reports whether the document was missing.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports whether a precondition failed.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable is always false for the in-memory store.
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, id string) *Error {
	return &Error{op: op, msg: fmt.Sprintf("%s not found", id), notFound: true}
}

func conflict(op, format string, args ...any) *Error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), conflict: true}
}
