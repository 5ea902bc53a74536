package tracker

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

// Mailer delivers alert mail over SMTP. Delivery is best-effort: the
// caller logs failures and moves on, history is already saved by the
// time mail goes out.
type Mailer struct {
	config SmtpConfig
	to     string
}

func NewMailer(config SmtpConfig, to string) Mailer {
	return Mailer{config: config, to: to}
}

func (m Mailer) Send(ctx context.Context, subject, htmlBody string) error {
	ctx, span := tracer.Start(ctx, "Send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Ticketwatch <%s>", m.config.EmailAddress)
	mail.To = []string{m.to}
	mail.Subject = subject
	mail.HTML = []byte(htmlBody)

	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
