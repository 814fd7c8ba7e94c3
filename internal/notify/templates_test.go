package notify

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRenderTokenBody(t *testing.T) {
	body, err := renderTokenBody("Alice", "123456", 10*time.Minute)
	if err != nil {
		t.Fatalf("renderTokenBody failed: %v", err)
	}
	if !strings.Contains(body, "123456") {
		t.Fatal("expected the code in the body")
	}
	if !strings.Contains(body, "Alice") {
		t.Fatal("expected the display name in the body")
	}
	if !strings.Contains(body, "10 minutes") {
		t.Fatal("expected the expiry in the body")
	}
}

func TestRenderAlertBody(t *testing.T) {
	when := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)
	body, err := renderAlertBody("Alice", "Login with MFA Success", when)
	if err != nil {
		t.Fatalf("renderAlertBody failed: %v", err)
	}
	if !strings.Contains(body, "Login with MFA Success") {
		t.Fatal("expected the action in the body")
	}
	if !strings.Contains(body, "2026-08-30 14:05 UTC") {
		t.Fatal("expected the timestamp in the body")
	}
}

func TestTemplatesEscapeUserInput(t *testing.T) {
	body, err := renderTokenBody("<script>alert(1)</script>", "123456", time.Minute)
	if err != nil {
		t.Fatalf("renderTokenBody failed: %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Fatal("display name must be HTML-escaped")
	}
}

type captureSender struct {
	to      chan string
	subject chan string
	body    chan string
}

func newCaptureSender() *captureSender {
	return &captureSender{
		to:      make(chan string, 1),
		subject: make(chan string, 1),
		body:    make(chan string, 1),
	}
}

func (s *captureSender) Send(to, subject, body string) error {
	s.to <- to
	s.subject <- subject
	s.body <- body
	return nil
}

func TestMailerDispatchesAsync(t *testing.T) {
	sender := newCaptureSender()
	m := NewMailer(sender, 10*time.Minute, nil)

	m.SendToken(context.Background(), "alice@example.com", "654321", "Alice")

	select {
	case to := <-sender.to:
		if to != "alice@example.com" {
			t.Fatalf("unexpected recipient %q", to)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("token mail was never dispatched")
	}
	if subject := <-sender.subject; subject != tokenSubject {
		t.Fatalf("unexpected subject %q", subject)
	}
	if body := <-sender.body; !strings.Contains(body, "654321") {
		t.Fatal("expected the code in the dispatched body")
	}
}
