package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories/memory"
)

func TestClientDirectoryReturnsFirstMatch(t *testing.T) {
	store := seededStore()
	accountsCalled := false
	accounts := ClientRepositorySource(func(_ context.Context, id string) (domain.ClientSnapshot, error) {
		accountsCalled = true
		if id == "uid_bob" {
			return domain.ClientSnapshot{Name: "Bob", Email: "bob@example.com"}, nil
		}
		return domain.ClientSnapshot{}, domain.ErrNotFound
	})

	dir, err := NewClientDirectory(
		NamedClientSource{Name: "clients", Source: ClientRepositorySource(store.Clients().FindByID)},
		NamedClientSource{Name: "accounts", Source: accounts},
	)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	ctx := context.Background()

	client, err := dir.Resolve(ctx, "cli_ada")
	if err != nil {
		t.Fatalf("resolve client: %v", err)
	}
	if client.Name != "Ada Market" || client.Source != "clients" || accountsCalled {
		t.Fatalf("expected the client collection to answer first, got %+v", client)
	}

	user, err := dir.Resolve(ctx, "uid_bob")
	if err != nil {
		t.Fatalf("resolve account: %v", err)
	}
	if user.ID != "uid_bob" || user.Source != "accounts" {
		t.Fatalf("expected fallback to accounts, got %+v", user)
	}

	if _, err := dir.Resolve(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := dir.Resolve(ctx, " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientDirectoryStopsOnSourceFailure(t *testing.T) {
	broken := ClientRepositorySource(func(context.Context, string) (domain.ClientSnapshot, error) {
		return domain.ClientSnapshot{}, errors.New("permission denied")
	})
	dir, _ := NewClientDirectory(
		NamedClientSource{Name: "clients", Source: broken},
		NamedClientSource{Name: "memory", Source: ClientRepositorySource(memory.NewStore().Clients().FindByID)},
	)
	if _, err := dir.Resolve(context.Background(), "cli_ada"); !errors.Is(err, domain.ErrDatabase) {
		t.Fatalf("expected database error, got %v", err)
	}
}

func TestNewClientDirectoryRequiresSource(t *testing.T) {
	if _, err := NewClientDirectory(NamedClientSource{Name: "nil"}); err == nil {
		t.Fatalf("expected error without sources")
	}
}
