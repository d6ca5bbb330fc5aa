package email

import (
	"errors"
	"fmt"
	"html"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrNoRecipient = errors.New("recipient required")

type Sender interface {
	Send(to, subject, html string) error
}

// StdoutSender logs messages instead of delivering them
type StdoutSender struct {
	Log zerolog.Logger
}

func (s StdoutSender) Send(to, subject, html string) error {
	s.Log.Info().Str("to", to).Str("subject", subject).Msg(html)
	return nil
}

// SMTPSender delivers through a plain SMTP relay (MailHog locally)
type SMTPSender struct {
	Addr string
	From string
	Auth smtp.Auth

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(addr, from string) *SMTPSender {
	if addr == "" {
		addr = "localhost:1025"
	}
	if from == "" {
		from = "no-reply@communitysite.local"
	}
	return &SMTPSender{Addr: addr, From: from, send: smtp.SendMail}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}
	if strings.ContainsAny(to+subject, "\r\n") {
		return fmt.Errorf("header injection in recipient or subject")
	}
	send := s.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(s.Addr, s.Auth, s.From, []string{to}, s.message(to, subject, body)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPSender) message(to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.From + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// Contact is a message left through the public contact form
type Contact struct {
	Name    string `validate:"required,max=200"`
	Email   string `validate:"required,email"`
	Subject string `validate:"max=200"`
	Message string `validate:"required,max=5000"`
}

// ContactBody renders c as the HTML body forwarded to the organization inbox
func ContactBody(c Contact) (subject, body string) {
	subject = "Website enquiry from " + c.Name
	if c.Subject != "" {
		subject = "Website enquiry: " + c.Subject
	}
	subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)
	body = "<p><strong>From:</strong> " + html.EscapeString(c.Name) +
		" &lt;" + html.EscapeString(c.Email) + "&gt;</p>" +
		"<p>" + strings.ReplaceAll(html.EscapeString(c.Message), "\n", "<br>") + "</p>"
	return subject, body
}

// MagicLinkBody is the sign-in email sent to admins
func MagicLinkBody(link string) string {
	return "<p>Click the link below to sign in to the site admin:</p><p><a href=\"" +
		html.EscapeString(link) + "\">Sign in</a></p><p>The link expires in two hours.</p>"
}
