package identity

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sdalgetty/funnel-app-sub003/internal/obs"
)

// Mailer delivers invitation links. Dispatch is fire-and-forget from the
// caller's perspective: a failed send never rolls back the created share,
// since the link can be resent or read directly from the invitation.
type Mailer interface {
	SendInvitation(ctx context.Context, to, ownerName, link string) error
}

// SMTPMailer sends invitations through a plain SMTP relay.
type SMTPMailer struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

var _ Mailer = (*SMTPMailer)(nil)

func (m *SMTPMailer) SendInvitation(ctx context.Context, to, ownerName, link string) error {
	host := m.Addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	subject := fmt.Sprintf("%s invited you to view their dashboard", ownerName)
	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n"+
			"%s has shared their analytics dashboard with you (view only).\r\n\r\n"+
			"Accept the invitation: %s\r\n",
		m.From, to, subject, ownerName, link)
	return smtp.SendMail(m.Addr, auth, m.From, []string{to}, []byte(body))
}

// LogMailer writes the invitation link to the structured log instead of
// sending email. Used in development and tests.
type LogMailer struct{}

var _ Mailer = (*LogMailer)(nil)

func (LogMailer) SendInvitation(ctx context.Context, to, ownerName, link string) error {
	obs.Emit("mail", map[string]any{
		"event": "invitation.link",
		"to":    to,
		"owner": ownerName,
		"link":  link,
	})
	return nil
}
