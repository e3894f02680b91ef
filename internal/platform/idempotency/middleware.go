package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/orderdesk/internal/platform/httpx"
	"github.com/hanko-field/orderdesk/internal/platform/requestctx"
)

const (
	// HeaderName carries the client-chosen key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader marks a response served from the store.
	ReplayHeader = "Idempotent-Replayed"

	maxKeyLength = 255
)

type guardConfig struct {
	ttl      time.Duration
	required bool
	clock    func() time.Time
}

// Option customises Guard.
type Option func(*guardConfig)

// WithTTL sets how long completed responses are replayed.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *guardConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithRequired rejects POST requests that carry no key.
func WithRequired(required bool) Option {
	return func(cfg *guardConfig) { cfg.required = required }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(cfg *guardConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Guard makes POST requests carrying an Idempotency-Key safe to retry. The first request for a
// key runs the handler and stores its response; repeats with the same body replay it. Keys are
// scoped to the request actor. Server errors are not stored so the client can retry them.
func Guard(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := guardConfig{ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			switch {
			case key == "" && cfg.required:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing "+HeaderName+" header", http.StatusBadRequest))
				return
			case key == "":
				next.ServeHTTP(w, r)
				return
			case len(key) > maxKeyLength:
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", HeaderName+" is too long", http.StatusBadRequest))
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			actor := requestctx.Actor(ctx)
			scoped := scopeKey(key, actor)
			fingerprint := fingerprintOf(r, body, actor)

			claim, err := store.Claim(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			if err != nil {
				writeStoreError(ctx, w, err)
				return
			}
			switch claim.State {
			case ClaimReplay:
				replay(w, claim.Entry)
				return
			case ClaimInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this key is still processing", http.StatusConflict).
					WithRetryAfter(time.Second))
				return
			}

			rec := &bufferedResponse{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.statusCode() >= http.StatusInternalServerError {
				if err := store.Abandon(ctx, scoped); err != nil {
					requestctx.Logger(ctx).Warn("idempotency: abandon failed", zap.Error(err))
				}
			} else {
				entry := claim.Entry
				entry.Status = rec.statusCode()
				entry.Header = storableHeader(rec.header)
				entry.Body = rec.body.Bytes()
				if err := store.Complete(ctx, entry); err != nil {
					requestctx.Logger(ctx).Error("idempotency: storing response failed", zap.Error(err))
					if abandonErr := store.Abandon(ctx, scoped); abandonErr != nil {
						requestctx.Logger(ctx).Warn("idempotency: abandon failed", zap.Error(abandonErr))
					}
				}
			}
			rec.flushTo(w)
		})
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20+1))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func fingerprintOf(r *http.Request, body []byte, actor string) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('|')
	b.WriteString(r.URL.Path)
	b.WriteByte('|')
	b.WriteString(r.URL.RawQuery)
	b.WriteByte('|')
	b.WriteString(actor)
	b.WriteByte('|')
	b.WriteString(digest(body))
	return digest([]byte(b.String()))
}

func scopeKey(key, actor string) string {
	if actor == "" {
		actor = "anonymous"
	}
	return actor + "|" + key
}

func writeStoreError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, ErrKeyReused) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", err.Error(), http.StatusUnprocessableEntity))
		return
	}
	requestctx.Logger(ctx).Error("idempotency: claim failed", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to verify idempotency key", http.StatusServiceUnavailable))
}

func replay(w http.ResponseWriter, entry Entry) {
	for name, values := range entry.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayHeader, "true")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(entry.Body)
}

type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) flushTo(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	w.WriteHeader(b.statusCode())
	_, _ = w.Write(b.body.Bytes())
}
