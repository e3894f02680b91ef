package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

const (
	defaultNotifyMaxAttempts = 3
	defaultNotifyBackoff     = 2 * time.Second
	defaultNotifyTimeout     = 30 * time.Second
)

// ErrNotifierUnavailable is returned when no transport or renderer has been configured.
var ErrNotifierUnavailable = errors.New("notifier: not configured")

// NotifierDeps bundles the transport, renderer and retry policy.
type NotifierDeps struct {
	Transport   MailTransport
	Renderer    InvoiceRenderer
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// Notifier sends email with a bounded retry on transient transport errors and renders invoice
// documents.
type Notifier struct {
	transport   MailTransport
	renderer    InvoiceRenderer
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	sleep       func(context.Context, time.Duration) error
	logger      func(context.Context, string, map[string]any)
}

// NewNotifier applies defaults of 3 attempts, a fixed 2s backoff and a 30s overall timeout.
func NewNotifier(deps NotifierDeps) *Notifier {
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultNotifyMaxAttempts
	}
	backoff := deps.Backoff
	if backoff <= 0 {
		backoff = defaultNotifyBackoff
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = gax.Sleep
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Notifier{
		transport:   deps.Transport,
		renderer:    deps.Renderer,
		maxAttempts: attempts,
		backoff:     backoff,
		timeout:     timeout,
		sleep:       sleep,
		logger:      logger,
	}
}

// SendEmail delivers msg, retrying transient failures with a fixed pause until the attempt cap
// or the timeout is reached.
func (n *Notifier) SendEmail(ctx context.Context, msg Message) error {
	if n == nil || n.transport == nil {
		return ErrNotifierUnavailable
	}
	msg.To = compactRecipients(msg.To)
	if len(msg.To) == 0 {
		return validationError("email recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return validationError("email subject is required")
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		lastErr = n.transport.Send(ctx, msg)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == n.maxAttempts {
			break
		}
		n.logger(ctx, "notification.send.retry", map[string]any{
			"attempt": attempt,
			"subject": msg.Subject,
			"error":   lastErr.Error(),
		})
		if err := n.sleep(ctx, n.backoff); err != nil {
			return fmt.Errorf("notifier: %w (last error: %v)", err, lastErr)
		}
	}
	return fmt.Errorf("notifier: send %q: %w", msg.Subject, lastErr)
}

// RenderInvoicePDF renders the invoice document.
func (n *Notifier) RenderInvoicePDF(ctx context.Context, invoice domain.Invoice) ([]byte, error) {
	if n == nil || n.renderer == nil {
		return nil, ErrNotifierUnavailable
	}
	return n.renderer.Render(ctx, invoice)
}

// IsTransient reports whether err is worth retrying: transport errors that declare themselves
// transient and network timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var transient interface{ Transient() bool }
	if errors.As(err, &transient) {
		return transient.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func compactRecipients(to []string) []string {
	out := make([]string, 0, len(to))
	seen := make(map[string]struct{}, len(to))
	for _, addr := range to {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}
