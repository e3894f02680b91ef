// Package auth integrates Firebase Authentication: ID token verification for request actors and
// the Firebase user directory as a client source.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/hanko-field/orderdesk/internal/platform/config"
)

const defaultCallTimeout = 5 * time.Second

// Firebase wraps the Admin SDK auth client and bounds each call with a timeout.
type Firebase struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises Firebase instances.
type FirebaseOption func(*Firebase)

// WithFirebaseTimeout overrides the timeout used for Admin SDK calls.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(f *Firebase) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFirebase initialises the Admin SDK for the configured project.
func NewFirebase(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*Firebase, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	f := &Firebase{client: authClient, timeout: defaultCallTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// VerifyIDToken forwards verification to the Admin SDK using a bounded context.
func (f *Firebase) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if f == nil || f.client == nil {
		return nil, errors.New("firebase auth not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.client.VerifyIDToken(ctx, idToken)
}

// GetUser loads a Firebase user record for the given UID.
func (f *Firebase) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	if f == nil || f.client == nil {
		return nil, errors.New("firebase auth not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.client.GetUser(ctx, uid)
}
