// Package notify sends the assistant's outbound email: branch handoff
// notices, appointment self-management links and suggestion digests.
package notify

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/rtvpioli/assistant-engine/internal/config"
	"github.com/rtvpioli/assistant-engine/internal/observability"
)

// Mailer delivers one plain-text message.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *observability.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *observability.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// Send delivers the message. The context deadline does not interrupt an
// in-flight SMTP exchange; net/smtp has no cancellation hook.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	msg := buildMessage(m.cfg.From, to, subject, body)

	if err := smtp.SendMail(addr, auth, m.cfg.From, to, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}

	m.logger.Debug().Strs("to", to).Str("subject", subject).Msg("Email sent")
	return nil
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
