package smtp

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"github.com/matrimony-api/internal/config"
)

// Mailer is the plain-text fallback used when no templated email provider is
// configured. Templates are rendered as their id plus one line per variable.
type Mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg config.Email) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.From,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		send:     smtp.SendMail,
	}
}

func (m *Mailer) SendTemplate(_ context.Context, to, templateID string, vars map[string]string) error {
	return m.sendEmail(to, "Notification: "+templateID, Render(vars))
}

// Render lists the template variables in key order.
func Render(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, vars[k])
	}
	return b.String()
}

func (m *Mailer) sendEmail(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return m.send(addr, auth, m.from, []string{to}, []byte(msg))
}
