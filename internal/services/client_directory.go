package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

// NamedClientSource labels a source so resolved snapshots record where they came from.
type NamedClientSource struct {
	Name   string
	Source ClientSource
}

// ClientDirectory resolves client snapshots across several backing collections and returns the
// first match in registration order.
type ClientDirectory struct {
	sources []NamedClientSource
}

// NewClientDirectory constructs a directory over the provided sources. Nil sources are skipped.
func NewClientDirectory(sources ...NamedClientSource) (*ClientDirectory, error) {
	filtered := make([]NamedClientSource, 0, len(sources))
	for _, src := range sources {
		if src.Source == nil {
			continue
		}
		filtered = append(filtered, src)
	}
	if len(filtered) == 0 {
		return nil, errors.New("client directory: at least one source is required")
	}
	return &ClientDirectory{sources: filtered}, nil
}

// Resolve returns the first snapshot found for clientID. A source that does not know the id is
// skipped; any other source failure aborts the lookup.
func (d *ClientDirectory) Resolve(ctx context.Context, clientID string) (domain.ClientSnapshot, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return domain.ClientSnapshot{}, validationError("client id is required")
	}

	for _, src := range d.sources {
		snapshot, err := src.Source.FindClient(ctx, clientID)
		if err == nil {
			if snapshot.ID == "" {
				snapshot.ID = clientID
			}
			if snapshot.Source == "" {
				snapshot.Source = src.Name
			}
			return snapshot, nil
		}
		if isRepoNotFound(err) || errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.ClientSnapshot{}, err
		}
		return domain.ClientSnapshot{}, domain.DatabaseError("clients."+src.Name, err)
	}
	return domain.ClientSnapshot{}, fmt.Errorf("%w: client %s", domain.ErrNotFound, clientID)
}

// ClientRepositorySource adapts a repository lookup function to ClientSource.
type ClientRepositorySource func(ctx context.Context, clientID string) (domain.ClientSnapshot, error)

func (f ClientRepositorySource) FindClient(ctx context.Context, clientID string) (domain.ClientSnapshot, error) {
	return f(ctx, clientID)
}
