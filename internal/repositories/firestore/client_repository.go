package firestore

import (
	"context"
	"errors"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const clientsCollection = "clients"

// ClientRepository resolves records from the standalone clients collection.
type ClientRepository struct {
	base *pfirestore.BaseRepository[clientDocument]
}

var _ repositories.ClientRepository = (*ClientRepository)(nil)

// NewClientRepository constructs a Firestore-backed client repository.
func NewClientRepository(provider *pfirestore.Provider) (*ClientRepository, error) {
	if provider == nil {
		return nil, errors.New("client repository requires firestore provider")
	}
	return &ClientRepository{base: pfirestore.NewBaseRepository[clientDocument](provider, clientsCollection, nil, nil)}, nil
}

func (r *ClientRepository) FindByID(ctx context.Context, clientID string) (domain.ClientSnapshot, error) {
	doc, err := r.base.Get(ctx, clientID)
	if err != nil {
		return domain.ClientSnapshot{}, pfirestore.WrapError("clients.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}
