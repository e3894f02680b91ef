package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

// FirestoreStore shares claims across instances. expires_at is meant to back a Firestore TTL policy.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a store on the shared provider. An empty collection uses
// idempotency_keys.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}, nil
}

func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	ref, err := s.doc(ctx, key)
	if err != nil {
		return Claim{}, err
	}

	var claim Claim
	err = s.provider.RunTransaction(ctx, pfirestore.TxIdempotency, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing keyDocument
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			decision, decided, err := decide(existing.entry(), fingerprint, now)
			if decided || err != nil {
				claim = decision
				return err
			}
		case status.Code(err) != codes.NotFound:
			return err
		}
		entry := freshEntry(key, fingerprint, now, ttl)
		claim = Claim{State: ClaimAcquired, Entry: entry}
		return tx.Set(ref, newKeyDocument(entry))
	})
	if err != nil {
		if errors.Is(err, ErrKeyReused) {
			return Claim{}, ErrKeyReused
		}
		return Claim{}, pfirestore.WrapError("idempotency.claim", err)
	}
	return claim, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, entry Entry) error {
	ref, err := s.doc(ctx, entry.Key)
	if err != nil {
		return err
	}
	entry.Completed = true
	err = s.provider.RunTransaction(ctx, pfirestore.TxIdempotency, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err == nil {
			var existing keyDocument
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			if existing.Fingerprint != entry.Fingerprint {
				return ErrKeyReused
			}
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		return tx.Set(ref, newKeyDocument(entry))
	})
	if err != nil {
		if errors.Is(err, ErrKeyReused) {
			return ErrKeyReused
		}
		return pfirestore.WrapError("idempotency.complete", err)
	}
	return nil
}

func (s *FirestoreStore) Abandon(ctx context.Context, key string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.abandon", err)
	}
	return nil
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

type keyDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	ClaimedAt   time.Time           `firestore:"claimed_at"`
	ExpiresAt   time.Time           `firestore:"expires_at"`
}

func newKeyDocument(entry Entry) keyDocument {
	return keyDocument{
		Key:         entry.Key,
		Fingerprint: entry.Fingerprint,
		Completed:   entry.Completed,
		Status:      entry.Status,
		Header:      entry.Header,
		Body:        entry.Body,
		ClaimedAt:   entry.ClaimedAt,
		ExpiresAt:   entry.ExpiresAt,
	}
}

func (d keyDocument) entry() Entry {
	return Entry{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		Completed:   d.Completed,
		Status:      d.Status,
		Header:      d.Header,
		Body:        d.Body,
		ClaimedAt:   d.ClaimedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}
