package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

// defaultDialTimeout bounds connection establishment when the context
// carries no deadline.
const defaultDialTimeout = 10 * time.Second

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// SMTPNotifier delivers messages over SMTP.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPNotifier creates an SMTP-backed Notifier.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:    cfg,
		logger: logger.With("component", "notify.smtp"),
	}
}

// Send delivers a plain-text message. A malformed recipient address or
// an SMTP 5xx reply is permanent; connection errors, deadline expiry,
// and SMTP 4xx replies are transient.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	recipient, err := mail.ParseAddress(to)
	if err != nil {
		return NewPermanentError("invalid recipient address", err)
	}

	sender := n.cfg.From
	if addr, err := mail.ParseAddress(n.cfg.From); err == nil {
		sender = addr.Address
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultDialTimeout)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return fmt.Errorf("dial smtp server: %w", err)
	}

	// Bound the whole exchange by the context deadline.
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return classifySMTPError("handshake", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return classifySMTPError("starttls", err)
		}
	}

	if n.cfg.User != "" {
		auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Pass, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return classifySMTPError("auth", err)
		}
	}

	if err := client.Mail(sender); err != nil {
		return classifySMTPError("mail from", err)
	}
	if err := client.Rcpt(recipient.Address); err != nil {
		return classifySMTPError("rcpt to", err)
	}

	wc, err := client.Data()
	if err != nil {
		return classifySMTPError("data", err)
	}

	msg := buildMessage(n.cfg.From, recipient.Address, subject, body)
	if _, err := wc.Write([]byte(msg)); err != nil {
		wc.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return classifySMTPError("close data", err)
	}

	if err := client.Quit(); err != nil {
		// Message already accepted; a failed QUIT is not a delivery failure.
		n.logger.Debug("smtp quit failed", "error", err)
	}

	n.logger.Info("message delivered",
		slog.String("to", recipient.Address),
		slog.String("subject", subject),
	)
	return nil
}

// classifySMTPError maps SMTP reply codes to the retry taxonomy:
// 5xx replies are permanent, everything else (4xx, connection drops,
// timeouts) is transient.
func classifySMTPError(phase string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 500 {
		return NewPermanentError(phase, err)
	}
	return fmt.Errorf("%s: %w", phase, err)
}

// buildMessage assembles a minimal RFC 5322 plain-text message.
func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
