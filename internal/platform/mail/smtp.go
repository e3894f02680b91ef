// Package mail delivers notification email over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/hanko-field/orderdesk/internal/services"
)

const defaultSendTimeout = 30 * time.Second

// Config describes the SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPTransport sends services.Message values through an SMTP relay using STARTTLS when offered.
type SMTPTransport struct {
	client *gomail.Client
	from   string
	now    func() time.Time
}

var _ services.MailTransport = (*SMTPTransport)(nil)

// NewSMTPTransport validates cfg and constructs a transport.
func NewSMTPTransport(cfg Config) (*SMTPTransport, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, errors.New("mail: from address is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: configure client: %w", err)
	}
	return &SMTPTransport{client: client, from: from, now: time.Now}, nil
}

// Send builds the MIME message and delivers it within ctx.
func (t *SMTPTransport) Send(ctx context.Context, msg services.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return errors.New("mail: at least one recipient is required")
	}

	m, err := t.compose(msg)
	if err != nil {
		return err
	}
	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return classify(err)
	}
	return nil
}

func (t *SMTPTransport) compose(msg services.Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(t.from); err != nil {
		return nil, fmt.Errorf("mail: from: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("mail: recipients: %w", err)
	}
	m.Subject(headerSafe(msg.Subject))
	m.SetDateWithValue(t.now().UTC())
	m.SetMessageID()

	m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		err := m.AttachReader(att.Filename, bytes.NewReader(att.Data),
			gomail.WithFileContentType(gomail.ContentType(contentType)))
		if err != nil {
			return nil, fmt.Errorf("mail: attach %s: %w", att.Filename, err)
		}
	}
	return m, nil
}

func headerSafe(value string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(value)
}

// SendError wraps a relay failure. Temporary SMTP replies and network errors are transient.
type SendError struct {
	Temporary bool
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("mail: smtp: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Transient reports whether retrying may succeed.
func (e *SendError) Transient() bool { return e.Temporary }

func classify(err error) error {
	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) {
		return &SendError{Temporary: sendErr.IsTemp(), Err: err}
	}
	var netErr net.Error
	return &SendError{Temporary: errors.As(err, &netErr), Err: err}
}
