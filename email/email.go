package email

import (
	"context"
	"net"
	"net/smtp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/internal/config"
	"github.com/jordan-wright/email"
)

var _ catedral.Mailer = &emailer{}

type emailer struct {
	host string
	auth smtp.Auth
	from string
}

func (e *emailer) SendEmail(ctx context.Context, msg *catedral.MailerMessage) error {
	_, span := otel.Tracer("email").Start(ctx, "SendEmail", trace.WithAttributes(attribute.String("subject", msg.Subject)))
	defer span.End()

	em := newMessage(e.from, msg)
	return em.Send(e.host, e.auth)
}

func newMessage(from string, msg *catedral.MailerMessage) *email.Email {
	em := email.NewEmail()

	em.From = from
	em.To = []string{msg.To}
	if msg.ReplyTo != "" {
		em.ReplyTo = []string{msg.ReplyTo}
	}

	em.Subject = msg.Subject
	em.Text = []byte(msg.PlainContent)
	if msg.HTMLContent != "" {
		em.HTML = []byte(msg.HTMLContent)
	}
	return em
}

func NewMailer() (catedral.Mailer, error) {
	host, _, err := net.SplitHostPort(config.Email.Host)
	if err != nil {
		return nil, err
	}
	from := config.Email.From
	if from == "" {
		from = config.Email.Username
	}
	return &emailer{config.Email.Host, smtp.PlainAuth("", config.Email.Username, config.Email.Password, host), from}, nil
}
