package auth

import (
	"context"
	"fmt"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/services"
)

// UserGetter loads Firebase user records.
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
}

// UserClientSource resolves clients from the Firebase Auth user directory, keyed by UID.
type UserClientSource struct {
	users UserGetter
}

var _ services.ClientSource = (*UserClientSource)(nil)

// NewUserClientSource wraps a user getter.
func NewUserClientSource(users UserGetter) *UserClientSource {
	return &UserClientSource{users: users}
}

// FindClient maps the user record to a client snapshot. Users without a display name fall back
// to their email address.
func (s *UserClientSource) FindClient(ctx context.Context, clientID string) (domain.ClientSnapshot, error) {
	record, err := s.users.GetUser(ctx, clientID)
	if err != nil {
		if firebaseauth.IsUserNotFound(err) {
			return domain.ClientSnapshot{}, fmt.Errorf("%w: firebase user %s", domain.ErrNotFound, clientID)
		}
		return domain.ClientSnapshot{}, fmt.Errorf("firebase get user: %w", err)
	}
	if record == nil || record.UserInfo == nil {
		return domain.ClientSnapshot{}, fmt.Errorf("%w: firebase user %s", domain.ErrNotFound, clientID)
	}

	name := strings.TrimSpace(record.DisplayName)
	if name == "" {
		name = strings.TrimSpace(record.Email)
	}
	return domain.ClientSnapshot{
		ID:    record.UID,
		Name:  name,
		Email: record.Email,
		Phone: record.PhoneNumber,
	}, nil
}
