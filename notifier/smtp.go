package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/goliatone/go-accounts"
)

// SendMailFunc matches smtp.SendMail
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig holds the SMTP server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier sends notifications as plain text mail. Port 465 uses
// implicit TLS, other ports negotiate STARTTLS.
type SMTPNotifier struct {
	cfg      SMTPConfig
	sendMail SendMailFunc
}

var _ accounts.Notifier = (*SMTPNotifier)(nil)

type SMTPOption func(*SMTPNotifier)

// WithSendMail replaces the function that talks to the server
func WithSendMail(fn SendMailFunc) SMTPOption {
	return func(n *SMTPNotifier) {
		if fn != nil {
			n.sendMail = fn
		}
	}
}

func NewSMTPNotifier(cfg SMTPConfig, opts ...SMTPOption) *SMTPNotifier {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}

	n := &SMTPNotifier{cfg: cfg}
	if cfg.Port == 465 {
		n.sendMail = n.sendImplicitTLS
	} else {
		n.sendMail = smtp.SendMail
	}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

func (n *SMTPNotifier) Send(ctx context.Context, to, templateID string, variables map[string]any) error {
	if err := ctx.Err(); err != nil {
		return accounts.NewDeliveryError(err, to)
	}

	msg := NewMessage(to, templateID, variables)
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := n.sendMail(addr, auth, n.cfg.From, []string{to}, n.compose(msg)); err != nil {
		return accounts.NewDeliveryError(err, to)
	}
	return nil
}

func (n *SMTPNotifier) compose(msg Message) []byte {
	return []byte(
		fmt.Sprintf("From: %s\r\n", n.cfg.From) +
			fmt.Sprintf("To: %s\r\n", msg.To) +
			fmt.Sprintf("Subject: %s\r\n", msg.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
			"\r\n" +
			msg.PlainText(),
	)
}

func (n *SMTPNotifier) sendImplicitTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: n.cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Quit()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
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
