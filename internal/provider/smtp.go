package provider

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/akiraliebert/event-driven-notification-system/internal/store"
)

// SMTPConfig configures the email channel's SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender implements Sender for the email channel over net/smtp.
type SMTPSender struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

// NewSMTPSender builds a sender authenticating with PLAIN auth against cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:  cfg,
		auth: smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host),
	}
}

// Send delivers n's content by email. Any SMTP error is reported as
// Success=false rather than returned, satisfying C4's must-not-raise
// contract; the delivery engine decides whether to retry.
func (s *SMTPSender) Send(ctx context.Context, n store.Notification) Result {
	subject := n.Content["subject"]
	if subject == "" {
		subject = "Notification"
	}
	body := n.Content["body"]

	to := n.Content["recipient"]
	if to == "" {
		// The data model (spec.md §3) does not carry a resolved contact
		// address on Notification; fall back to a synthetic one derived
		// from the user id so delivery can still be exercised end to end.
		to = n.UserID.String() + "@users.invalid"
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", s.cfg.From, to, subject, body)

	addr := s.cfg.Host + ":" + s.cfg.Port

	// net/smtp.SendMail takes no context; run it on its own goroutine and
	// race it against ctx so a stalled relay can't hang the delivery
	// worker indefinitely. The goroutine leaks until SendMail itself
	// times out or returns if ctx wins the race first.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, s.auth, s.cfg.From, []string{to}, []byte(msg))
	}()

	select {
	case err := <-done:
		if err != nil {
			return Result{Success: false, Details: err.Error(), Retryable: true}
		}
		return Result{Success: true, Details: "sent"}
	case <-ctx.Done():
		return Result{Success: false, Details: fmt.Sprintf("smtp send timed out: %v", ctx.Err()), Retryable: true}
	}
}
