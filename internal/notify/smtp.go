// Package notify delivers one-time login codes and security alerts by
// email. Delivery is asynchronous and best effort; the login flow never
// waits on, or fails because of, the mail server.
package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
)

// SMTPConfig configures the outbound mail connection. Implicit TLS is
// assumed (port 465 style); the dialer does not attempt STARTTLS.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	// From defaults to Username when empty.
	From string
}

// SMTPSender sends a single HTML message per connection.
type SMTPSender struct {
	config SMTPConfig
}

// NewSMTPSender returns a sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{config: cfg}
}

// Send delivers an HTML body to a single recipient.
func (s *SMTPSender) Send(to, subject, body string) error {
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", s.config.From) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body,
	)

	addr := s.config.Host + ":" + s.config.Port
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.Host})
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return err
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(s.config.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
