package auth

import (
	"context"
	"errors"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

type stubUsers struct {
	record *firebaseauth.UserRecord
	err    error
}

func (s stubUsers) GetUser(context.Context, string) (*firebaseauth.UserRecord, error) {
	return s.record, s.err
}

func TestUserClientSourceMapsRecord(t *testing.T) {
	source := NewUserClientSource(stubUsers{record: &firebaseauth.UserRecord{UserInfo: &firebaseauth.UserInfo{
		UID:         "uid-1",
		Email:       "buyer@example.com",
		PhoneNumber: "+15550100",
	}}})

	snapshot, err := source.FindClient(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("FindClient: %v", err)
	}
	if snapshot.ID != "uid-1" || snapshot.Name != "buyer@example.com" || snapshot.Phone != "+15550100" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestUserClientSourceWrapsFailures(t *testing.T) {
	source := NewUserClientSource(stubUsers{err: errors.New("unavailable")})
	_, err := source.FindClient(context.Background(), "uid-1")
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected non not-found error, got %v", err)
	}

	source = NewUserClientSource(stubUsers{})
	if _, err := source.FindClient(context.Background(), "uid-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for empty record, got %v", err)
	}
}
