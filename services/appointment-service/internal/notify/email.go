package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer transports a rendered email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type MailerFunc func(ctx context.Context, to, subject, body string) error

func (f MailerFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// ContactDirectory resolves a user id to an email address.
type ContactDirectory interface {
	ContactEmail(ctx context.Context, userID string) (string, error)
}

// EmailSender is the email channel: it resolves the recipient, renders and mails.
type EmailSender struct {
	contacts ContactDirectory
	mailer   Mailer
}

func NewEmailSender(contacts ContactDirectory, mailer Mailer) *EmailSender {
	return &EmailSender{contacts: contacts, mailer: mailer}
}

func (s *EmailSender) Send(ctx context.Context, d model.Delivery) error {
	to, err := s.contacts.ContactEmail(ctx, d.RecipientID)
	if errors.Is(err, model.ErrNotFound) || (err == nil && strings.TrimSpace(to) == "") {
		return fmt.Errorf("%w: no email address for %s", ErrUndeliverable, d.RecipientID)
	}
	if err != nil {
		return err
	}
	subject, body := Render(d.Kind, d.Payload)
	return s.mailer.Send(ctx, to, subject, body)
}

// SMTPMailer sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPMailer struct {
	addr string
	from string
}

func NewSMTPMailer(host string, port string, from string) *SMTPMailer {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@docbook.local"
	}
	return &SMTPMailer{
		addr: host + ":" + port,
		from: from,
	}
}

func (s *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	msg := buildMessage(s.from, to, subject, body)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

// SendGridMailer sends email through the SendGrid v3 API.
type SendGridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridMailer returns nil when no API key is configured.
func NewSendGridMailer(cfg SendGridConfig, logger *slog.Logger) *SendGridMailer {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.FromName == "" {
		cfg.FromName = "DocBook"
	}
	return &SendGridMailer{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	message := mail.NewSingleEmail(mail.NewEmail(s.fromName, s.fromEmail), subject, mail.NewEmail("", to), body, body)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Warn("sendgrid returned error status", "status", response.StatusCode, "to", to)
		if response.StatusCode < 500 && response.StatusCode != 429 {
			return fmt.Errorf("%w: sendgrid returned status %d", ErrUndeliverable, response.StatusCode)
		}
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}
	return nil
}

// Render produces the plain-text subject and body for a notification kind.
func Render(kind model.NotificationKind, payload map[string]any) (string, string) {
	start := str(payload, "start_time")
	switch kind {
	case model.KindPaymentPending:
		return "Payment required for your appointment",
			fmt.Sprintf("Your appointment on %s is awaiting payment of %s %s.", start, str(payload, "amount"), str(payload, "currency"))
	case model.KindAppointmentConfirmed:
		return "Appointment confirmed",
			fmt.Sprintf("Payment received. The appointment on %s with patient %s is confirmed.", start, str(payload, "patient_id"))
	case model.KindAppointmentCompleted:
		body := fmt.Sprintf("Your appointment on %s has been completed.", start)
		if rx := str(payload, "prescription_text"); rx != "" {
			body += "\n\nPrescription:\n" + rx
		}
		return "Appointment completed", body
	case model.KindAppointmentCancelled:
		body := fmt.Sprintf("The appointment on %s was cancelled by %s.", start, str(payload, "cancelled_by_role"))
		if reason := str(payload, "reason"); reason != "" {
			body += " Reason: " + reason
		}
		return "Appointment cancelled", body
	case model.KindNoShowRecorded:
		return "Missed appointment",
			fmt.Sprintf("You were marked as not attending the appointment on %s.", start)
	default:
		return "Appointment update", fmt.Sprintf("There is an update to your appointment on %s.", start)
	}
}

func str(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
