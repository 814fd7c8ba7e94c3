package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sender is the blocking mail transport the Mailer dispatches to.
type Sender interface {
	Send(to, subject, body string) error
}

// Mailer implements the engine's Notifier contract. Every send runs on its
// own goroutine with a bounded timeout; failures are logged and dropped.
type Mailer struct {
	sender   Sender
	tokenTTL time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewMailer wraps sender. tokenTTL is rendered into the code email so the
// text matches the store's actual expiry.
func NewMailer(sender Sender, tokenTTL time.Duration, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{
		sender:   sender,
		tokenTTL: tokenTTL,
		timeout:  15 * time.Second,
		log:      log,
	}
}

// SendToken delivers a one-time login code.
func (m *Mailer) SendToken(ctx context.Context, address, code, displayName string) {
	body, err := renderTokenBody(displayName, code, m.tokenTTL)
	if err != nil {
		m.log.Error("render token mail", zap.Error(err))
		return
	}
	m.dispatch(address, tokenSubject, body, "token")
}

// SendSecurityAlert notifies the user about a sensitive account event.
func (m *Mailer) SendSecurityAlert(ctx context.Context, address, action, displayName string) {
	body, err := renderAlertBody(displayName, action, time.Now())
	if err != nil {
		m.log.Error("render alert mail", zap.Error(err))
		return
	}
	m.dispatch(address, alertSubject, body, "alert")
}

func (m *Mailer) dispatch(to, subject, body, kind string) {
	go func() {
		done := make(chan error, 1)
		go func() { done <- m.sender.Send(to, subject, body) }()

		select {
		case err := <-done:
			if err != nil {
				m.log.Warn("mail delivery failed", zap.String("kind", kind), zap.Error(err))
			}
		case <-time.After(m.timeout):
			m.log.Warn("mail delivery timed out", zap.String("kind", kind))
		}
	}()
}
