package mail

import (
	"context"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
)

func TestSMTPMailerSendMail(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m := NewSMTPMailer(config.SMTP{Host: "smtp.example.com", Port: "587", Sender: "billing@example.com"},
		func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			return nil
		})

	require.NoError(t, m.SendMail(context.Background(), "jane@example.com", "Welcome", "<p>Hi</p>"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "billing@example.com", gotFrom)
	assert.Equal(t, []string{"jane@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Welcome\r\n")
	assert.Contains(t, string(gotMsg), "<p>Hi</p>")
}

func TestSMTPMailerRejectsHeaderInjection(t *testing.T) {
	m := NewSMTPMailer(config.SMTP{Host: "smtp.example.com", Port: "25"}, func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	})
	assert.Error(t, m.SendMail(context.Background(), "jane@example.com\r\nBcc: x@y.z", "Hi", "body"))
}

func TestSMTPMailerNotConfigured(t *testing.T) {
	m := NewSMTPMailer(config.SMTP{}, nil)
	assert.False(t, m.IsConfigured())
	assert.Error(t, m.SendMail(context.Background(), "jane@example.com", "Hi", "body"))
}

// listen starts a local server and returns a mailer pointed at it.
func listen(t *testing.T, serve func(net.Conn)) *SMTPMailer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return NewSMTPMailer(config.SMTP{Host: host, Port: port, Sender: "billing@example.com"}, nil)
}

func TestSMTPMailerDeliversOverSMTP(t *testing.T) {
	received := make(chan string, 1)
	m := listen(t, func(conn net.Conn) {
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 mail.test ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"):
				_ = tp.PrintfLine("250 mail.test")
			case line == "DATA":
				_ = tp.PrintfLine("354 go ahead")
				body, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				received <- string(body)
				_ = tp.PrintfLine("250 queued")
			case line == "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("250 ok")
			}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.SendMail(ctx, "jane@example.com", "Welcome", "<p>Hi</p>"))

	select {
	case body := <-received:
		assert.Contains(t, body, "Subject: Welcome")
		assert.Contains(t, body, "<p>Hi</p>")
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}
}

func TestSMTPMailerGivesUpOnSilentServer(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := listen(t, func(conn net.Conn) {
		// accept and never send a greeting
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.SendMail(ctx, "jane@example.com", "Welcome", "<p>Hi</p>")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSMTPMailerStopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := listen(t, func(conn net.Conn) {
		<-release
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	err := m.SendMail(ctx, "jane@example.com", "Welcome", "<p>Hi</p>")
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 3*time.Second)
}
