package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/logx"
)

// LogNotifier stands in for a mail relay in development. It records that a
// reset was requested and drops the message; the link is never logged.
type LogNotifier struct{}

// SendPasswordReset logs that a reset for msg could not be delivered.
func (LogNotifier) SendPasswordReset(_ context.Context, msg ResetMessage) error {
	logx.Warnf("password reset for %s requested but no mail relay is configured (SMTP_ADDR); link not delivered", msg.Kind)
	return nil
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier mails reset links through an SMTP relay.
type SMTPNotifier struct {
	Addr    string // host:port
	From    string
	BaseURL string
	Auth    smtp.Auth

	send sendMailFunc
}

// NewSMTPNotifier returns a notifier for the relay at addr. PLAIN auth is used
// when username is set.
func NewSMTPNotifier(addr, from, username, password, baseURL string) (*SMTPNotifier, error) {
	if addr == "" {
		return nil, errors.New("smtp: relay address is required")
	}
	if from == "" || strings.ContainsAny(from, "\r\n") {
		return nil, errors.New("smtp: a valid sender address is required")
	}
	n := &SMTPNotifier{Addr: addr, From: from, BaseURL: baseURL, send: smtp.SendMail}
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i != -1 {
			host = addr[:i]
		}
		n.Auth = smtp.PlainAuth("", username, password, host)
	}
	return n, nil
}

// SendPasswordReset mails the reset link to msg.Email.
func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Email == "" {
		return errors.New("smtp: reset recipient has no email address")
	}
	if strings.ContainsAny(msg.Email, "\r\n") {
		return errors.New("smtp: malformed recipient address")
	}
	body := n.compose(msg)
	if err := n.send(n.Addr, n.Auth, n.From, []string{msg.Email}, body); err != nil {
		return fmt.Errorf("smtp: send password reset: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) resetLink(token string) string {
	return strings.TrimRight(n.BaseURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

func (n *SMTPNotifier) compose(msg ResetMessage) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Email)
	b.WriteString("Subject: Reset your password\r\n")
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")

	greeting := "Hello,"
	if name := strings.TrimSpace(msg.Name); name != "" {
		greeting = "Hello " + name + ","
	}
	b.WriteString(greeting + "\r\n\r\n")
	b.WriteString("A password reset was requested for your account. Use the link below to choose a new password:\r\n\r\n")
	b.WriteString(n.resetLink(msg.Token) + "\r\n\r\n")
	fmt.Fprintf(&b, "The link expires at %s UTC and works once.\r\n", msg.ExpiresAt.UTC().Format("2006-01-02 15:04"))
	b.WriteString("If you did not ask for this, you can ignore this message.\r\n")
	return b.Bytes()
}
