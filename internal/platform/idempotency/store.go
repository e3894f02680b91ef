package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a completed response is replayed.
const DefaultTTL = 24 * time.Hour

// ClaimState is the outcome of claiming a key.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the key and must complete or abandon it.
	ClaimAcquired ClaimState = iota
	// ClaimReplay means a completed response exists for the key.
	ClaimReplay
	// ClaimInFlight means another request holds the key.
	ClaimInFlight
)

// Claim carries the stored entry when the state is ClaimReplay.
type Claim struct {
	State ClaimState
	Entry Entry
}

// Entry is the persisted state of one key.
type Entry struct {
	Key         string
	Fingerprint string
	Completed   bool
	Status      int
	Header      map[string][]string
	Body        []byte
	ClaimedAt   time.Time
	ExpiresAt   time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store persists claims and completed responses.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, entry Entry) error
	Abandon(ctx context.Context, key string) error
}

// ErrKeyReused is returned when a key is presented with a different request.
var ErrKeyReused = errors.New("idempotency: key already used for a different request")

func documentID(key string) string {
	return digest([]byte(strings.TrimSpace(key)))
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func storableHeader(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "transfer-encoding", "x-request-id":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func freshEntry(key, fingerprint string, now time.Time, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Entry{Key: key, Fingerprint: fingerprint, ClaimedAt: now, ExpiresAt: now.Add(ttl)}
}

// decide applies the shared claim rules to an existing entry.
func decide(existing Entry, fingerprint string, now time.Time) (Claim, bool, error) {
	if existing.expired(now) {
		return Claim{}, false, nil
	}
	if existing.Fingerprint != fingerprint {
		return Claim{}, true, ErrKeyReused
	}
	if existing.Completed {
		return Claim{State: ClaimReplay, Entry: existing}, true, nil
	}
	return Claim{State: ClaimInFlight, Entry: existing}, true, nil
}
