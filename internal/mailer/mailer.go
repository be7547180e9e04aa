// Package mailer sends transactional email over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// sendTimeout bounds a delivery when the caller's context has no deadline.
const sendTimeout = 30 * time.Second

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// Configured reports whether enough settings are present to send mail.
func (c Config) Configured() bool {
	return c.Host != "" && c.Port != "" && c.From != ""
}

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer delivers messages. When SMTP is not configured it logs the message
// instead, which keeps signup usable in local development.
type Mailer struct {
	cfg  Config
	send sendFunc
}

// New returns a Mailer for cfg.
func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg, send: sendMail}
}

// Send delivers a plain-text message to a single recipient.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if !m.cfg.Configured() {
		log.Printf("[mailer] SMTP not configured; message to %s: %s\n%s", to, subject, body)
		return nil
	}

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	msg := buildMessage(m.cfg.From, to, subject, body)
	addr := m.cfg.Host + ":" + m.cfg.Port
	if err := m.send(ctx, addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

// SendVerificationCode emails a signup or resend OTP.
func (m *Mailer) SendVerificationCode(ctx context.Context, to, name, code string) error {
	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + name
	}
	body := fmt.Sprintf("%s,\r\n\r\nYour verification code is %s. It expires in 10 minutes.\r\n", greeting, code)
	return m.Send(ctx, to, "Verify your email", body)
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// sendMail is smtp.SendMail with the connection bound to ctx: the dial uses
// ctx and the whole exchange shares its deadline.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sendTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
