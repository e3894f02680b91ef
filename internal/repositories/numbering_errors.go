package repositories

import "fmt"

// MaxSequencePerWindow is the highest value a numbering window hands out. Order and invoice
// numbers render the sequence as four digits.
const MaxSequencePerWindow int64 = 9999

// NumberingErrorCode classifies why a numbering window could not hand out a value.
type NumberingErrorCode string

const (
	// NumberingInvalidWindow means the window key or step was malformed.
	NumberingInvalidWindow NumberingErrorCode = "numbering_invalid_window"
	// NumberingWindowExhausted means the window already handed out its last value.
	NumberingWindowExhausted NumberingErrorCode = "numbering_window_exhausted"
)

// NumberingError reports a failed draw from the window keyed Window, e.g. "invoices:202410".
type NumberingError struct {
	Window string
	Code   NumberingErrorCode
	Detail string
}

func (e *NumberingError) Error() string {
	if e.Code == NumberingWindowExhausted {
		return fmt.Sprintf("numbering window %q exhausted: %s", e.Window, e.Detail)
	}
	return fmt.Sprintf("numbering window %q invalid: %s", e.Window, e.Detail)
}

// InvalidWindow reports a malformed window key or step.
func InvalidWindow(window, detail string) *NumberingError {
	return &NumberingError{Window: window, Code: NumberingInvalidWindow, Detail: detail}
}

// WindowExhausted reports a window that reached limit.
func WindowExhausted(window string, limit int64) *NumberingError {
	return &NumberingError{Window: window, Code: NumberingWindowExhausted, Detail: fmt.Sprintf("limit %d reached", limit)}
}
