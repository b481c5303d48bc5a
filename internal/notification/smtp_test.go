package notification

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"
)

type relayedMail struct {
	from string
	to   []string
	data string
}

// startRelay serves one SMTP session per connection. rcptReply overrides the
// RCPT answer when non-empty.
func startRelay(t *testing.T, rcptReply string) (SMTPConfig, <-chan relayedMail) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	mails := make(chan relayedMail, 1)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSMTP(conn, rcptReply, mails)
		}
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return SMTPConfig{Host: host, Port: p, From: "bot@calmly.app"}, mails
}

func serveSMTP(conn net.Conn, rcptReply string, mails chan<- relayedMail) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	var mail relayedMail

	_ = tp.PrintfLine("220 relay.test ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO":
			_ = tp.PrintfLine("250 relay.test")
		case "MAIL":
			mail.from = strings.TrimSuffix(strings.TrimPrefix(line[len("MAIL FROM:"):], "<"), ">")
			_ = tp.PrintfLine("250 ok")
		case "RCPT":
			if rcptReply != "" {
				_ = tp.PrintfLine("%s", rcptReply)
				continue
			}
			mail.to = append(mail.to, strings.TrimSuffix(strings.TrimPrefix(line[len("RCPT TO:"):], "<"), ">"))
			_ = tp.PrintfLine("250 ok")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			mail.data = string(data)
			_ = tp.PrintfLine("250 queued")
			mails <- mail
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("250 ok")
		}
	}
}

func TestSMTPNotifierSend(t *testing.T) {
	cfg, mails := startRelay(t, "")
	n := NewSMTPNotifier(cfg)
	n.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }

	err := n.Send(context.Background(), Message{Kind: KindOTP, Destination: "a@b.com", Subject: "Your code", Body: "Your code is 012345"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	got := <-mails
	if got.from != "bot@calmly.app" || len(got.to) != 1 || got.to[0] != "a@b.com" {
		t.Fatalf("unexpected envelope: %s %v", got.from, got.to)
	}
	// ReadDotBytes converts CRLF to LF.
	for _, want := range []string{"To: a@b.com\n", "Subject: Your code\n", "\n\nYour code is 012345\n"} {
		if !strings.Contains(got.data, want) {
			t.Fatalf("message missing %q:\n%s", want, got.data)
		}
	}
}

func TestSMTPNotifierErrors(t *testing.T) {
	cfg, _ := startRelay(t, "550 no such user")
	n := NewSMTPNotifier(cfg)

	if err := n.Send(context.Background(), Message{Destination: "a@b.com"}); err == nil {
		t.Fatal("expected relay refusal")
	}
	if err := n.Send(context.Background(), Message{Destination: "a@b.com\r\nBcc: x@y.z"}); err == nil {
		t.Fatal("expected header injection to be rejected")
	}

	closed := NewSMTPNotifier(SMTPConfig{Host: "127.0.0.1", Port: 1})
	if err := closed.Send(context.Background(), Message{Destination: "a@b.com"}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestSMTPNotifierCancelsStalledRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	closedByClient := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Never greet; wait until the client hangs up.
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
		close(closedByClient)
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	n := NewSMTPNotifier(SMTPConfig{Host: host, Port: p})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := n.Send(ctx, Message{Destination: "a@b.com"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("send outlived its context: %s", elapsed)
	}

	select {
	case <-closedByClient:
	case <-time.After(2 * time.Second):
		t.Fatal("relay connection was left open after cancellation")
	}
}
