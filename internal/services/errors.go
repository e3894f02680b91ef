package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// mapRepositoryError translates store failures into the domain taxonomy. subject names the
// entity for messages, e.g. "order ord_123".
func mapRepositoryError(op string, subject string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, subject)
	}
	// conflicts (stale version, duplicate id or number) stay persistence failures; the cause
	// is kept so callers can still tell them apart
	return domain.DatabaseError(op, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err stems from a rejected conditional write.
func IsConflict(err error) bool {
	return isRepoConflict(err)
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}
