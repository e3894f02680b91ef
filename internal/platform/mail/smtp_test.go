package mail

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/hanko-field/orderdesk/internal/services"
)

// relay is a minimal SMTP server that records the DATA payload and answers RCPT with rcptReply.
type relay struct {
	listener  net.Listener
	rcptReply string

	mu    sync.Mutex
	rcpts []string
	data  string
}

func startRelay(t *testing.T, rcptReply string) *relay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &relay{listener: ln, rcptReply: rcptReply}
	t.Cleanup(func() { _ = ln.Close() })
	go r.serve()
	return r
}

func (r *relay) port() int {
	return r.listener.Addr().(*net.TCPAddr).Port
}

func (r *relay) serve() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		go r.handle(conn)
	}
}

func (r *relay) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	reply("220 relay.test ESMTP")
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250-relay.test")
			reply("250 8BITMIME")
		case strings.HasPrefix(cmd, "RCPT TO"):
			r.mu.Lock()
			r.rcpts = append(r.rcpts, strings.TrimSpace(line[len("RCPT TO:"):]))
			r.mu.Unlock()
			reply(r.rcptReply)
		case cmd == "DATA":
			reply("354 end with <CRLF>.<CRLF>")
			var body strings.Builder
			for {
				dataLine, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if dataLine == ".\r\n" {
					break
				}
				body.WriteString(dataLine)
			}
			r.mu.Lock()
			r.data = body.String()
			r.mu.Unlock()
			reply("250 2.0.0 queued")
		case cmd == "QUIT":
			reply("221 2.0.0 bye")
			return
		default:
			reply("250 2.0.0 ok")
		}
	}
}

func (r *relay) received() (string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data, append([]string(nil), r.rcpts...)
}

func newRelayTransport(t *testing.T, r *relay) *SMTPTransport {
	t.Helper()
	transport, err := NewSMTPTransport(Config{
		Host:    "127.0.0.1",
		Port:    r.port(),
		From:    "orders@example.com",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	transport.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return transport
}

func TestSMTPTransportDeliversMultipartMessage(t *testing.T) {
	r := startRelay(t, "250 2.1.5 ok")
	transport := newRelayTransport(t, r)

	err := transport.Send(context.Background(), services.Message{
		To:       []string{"buyer@example.com"},
		Subject:  "Invoice INV-25-03-0001",
		TextBody: "Thanks",
		HTMLBody: "<p>Thanks</p>",
		Attachments: []services.Attachment{{
			Filename:    "INV-25-03-0001.pdf",
			ContentType: "application/pdf",
			Data:        []byte("%PDF-1.4"),
		}},
	})
	require.NoError(t, err)

	data, rcpts := r.received()
	assert.Equal(t, []string{"<buyer@example.com>"}, rcpts)
	assert.Contains(t, data, "Subject: Invoice INV-25-03-0001")
	assert.Contains(t, data, "multipart/alternative")
	assert.Contains(t, data, "text/html")
	assert.Contains(t, data, "application/pdf")
	assert.Contains(t, data, "INV-25-03-0001.pdf")
}

func TestSMTPTransportStripsHeaderInjection(t *testing.T) {
	r := startRelay(t, "250 2.1.5 ok")
	transport := newRelayTransport(t, r)

	require.NoError(t, transport.Send(context.Background(), services.Message{
		To:      []string{"buyer@example.com"},
		Subject: "hi\r\nBcc: evil@example.com",
	}))
	data, rcpts := r.received()
	assert.NotContains(t, data, "\r\nBcc:")
	assert.Len(t, rcpts, 1)
}

func TestSMTPTransportClassifiesRelayReplies(t *testing.T) {
	cases := []struct {
		name      string
		reply     string
		transient bool
	}{
		{"mailbox busy", "450 4.2.1 mailbox busy", true},
		{"no such user", "550 5.1.1 no such user", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := newRelayTransport(t, startRelay(t, tc.reply))
			err := transport.Send(context.Background(), services.Message{To: []string{"a@example.com"}, TextBody: "x"})
			require.Error(t, err)
			var sendErr *SendError
			require.ErrorAs(t, err, &sendErr)
			assert.Equal(t, tc.transient, services.IsTransient(err))
		})
	}
}

func TestSMTPTransportTreatsUnreachableRelayAsTransient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	transport, err := NewSMTPTransport(Config{Host: "127.0.0.1", Port: port, From: "orders@example.com", Timeout: time.Second})
	require.NoError(t, err)

	err = transport.Send(context.Background(), services.Message{To: []string{"a@example.com"}})
	require.Error(t, err)
	assert.True(t, services.IsTransient(err))
}

func TestClassifyWrapsErrors(t *testing.T) {
	permanent := classify(&gomail.SendError{Reason: gomail.ErrSMTPRcptTo})
	assert.False(t, services.IsTransient(permanent))

	network := classify(&net.OpError{Op: "dial", Err: errors.New("refused")})
	assert.True(t, services.IsTransient(network))

	other := classify(errors.New("tls handshake"))
	assert.False(t, services.IsTransient(other))
}

func TestSMTPTransportValidation(t *testing.T) {
	_, err := NewSMTPTransport(Config{From: "a@example.com"})
	assert.Error(t, err)
	_, err = NewSMTPTransport(Config{Host: "smtp.example.com"})
	assert.Error(t, err)

	transport, err := NewSMTPTransport(Config{Host: "smtp.example.com", Username: "u", Password: "p", From: "orders@example.com"})
	require.NoError(t, err)
	assert.Error(t, transport.Send(context.Background(), services.Message{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, transport.Send(ctx, services.Message{To: []string{"a@example.com"}}), context.Canceled)
}
