package services

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/mail"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/config"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
	"github.com/rscoe-coding-club/codigo-registration-backend/pkg/metrics"
)

// Notifier sends a registration confirmation to one recipient
type Notifier interface {
	Send(ctx context.Context, recipient string, fields models.ConfirmationFields) error
}

type confirmationEnvelope struct {
	Recipient string `json:"email" validate:"required"`
	models.ConfirmationFields
}

type confirmationView struct {
	models.ConfirmationFields
	Year int
}

// NotificationSender renders the confirmation template and hands it to a Mailer
type NotificationSender struct {
	mailer   Mailer
	cfg      config.MailConfig
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

// NewNotificationSender creates a new notification sender
func NewNotificationSender(mailer Mailer, cfg config.MailConfig, logger *logrus.Logger) *NotificationSender {
	return &NotificationSender{
		mailer:   mailer,
		cfg:      cfg,
		validate: newValidator(),
		metrics:  metrics.NewMetrics(),
		logger:   logger,
		now:      time.Now,
	}
}

// Send validates the template fields and credentials, then dispatches the email.
// Neither a missing field nor missing credentials reach the network.
func (s *NotificationSender) Send(ctx context.Context, recipient string, fields models.ConfirmationFields) error {
	env := confirmationEnvelope{
		Recipient: strings.TrimSpace(recipient),
		ConfirmationFields: models.ConfirmationFields{
			Name:      strings.TrimSpace(fields.Name),
			EventName: strings.TrimSpace(fields.EventName),
			TeamName:  strings.TrimSpace(fields.TeamName),
			TeamID:    strings.TrimSpace(fields.TeamID),
		},
	}

	if err := s.validate.Struct(env); err != nil {
		return models.NewMissingTemplateFieldError(missingFields(err))
	}

	if s.cfg.User == "" || s.cfg.Password == "" {
		return models.NewConfigurationError("Email configuration missing")
	}

	msg, err := s.render(env)
	if err != nil {
		return models.NewInternalError("Failed to render confirmation email", err)
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.RecordNotification(false)
		s.logger.WithError(err).WithField("email", env.Recipient).Error("Email send error")
		return models.NewNotificationError(err)
	}

	s.metrics.RecordNotification(true)
	s.logger.WithFields(logrus.Fields{
		"email":   env.Recipient,
		"team_id": env.TeamID,
	}).Info("Confirmation email sent")

	return nil
}

func (s *NotificationSender) render(env confirmationEnvelope) (*Message, error) {
	view := confirmationView{ConfirmationFields: env.ConfirmationFields, Year: s.now().Year()}

	var html bytes.Buffer
	if err := confirmationHTML.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}

	var text bytes.Buffer
	if err := confirmationText.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}

	from := mail.Address{Name: s.cfg.FromName, Address: s.cfg.User}

	return &Message{
		From:     from.String(),
		To:       env.Recipient,
		Subject:  "Registration Confirmed: " + env.EventName,
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

var confirmationText = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(`Registration Confirmed!

Hello {{.Name}},

We are pleased to confirm your registration. You have successfully secured your spot for the upcoming event.

Event Name: {{.EventName}}
Team Name:  {{.TeamName}}
Team ID:    {{.TeamID}}

Please make sure to arrive at the venue 15 minutes prior to the scheduled time. Bring your college ID and any required equipment mentioned in the event guidelines.

Best regards,
Coding Club RSCOE Team

(c) {{.Year}} Coding Club RSCOE. All rights reserved.
`))

var confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
  <style>
    body { background-color: #f4f4f7; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; font-size: 16px; line-height: 1.6; margin: 0; padding: 0; }
    table { border-collapse: separate; width: 100%; }
    .container { margin: 0 auto !important; max-width: 600px; padding: 24px; width: 600px; }
    .email-card { background-color: #ffffff; border-radius: 8px; border: 1px solid #eaeaec; overflow: hidden; }
    .header { background: linear-gradient(135deg, #312e81 0%, #4338ca 100%); padding: 32px 0; text-align: center; }
    .header-title { color: #fbbf24; font-family: "Times New Roman", serif; font-size: 28px; margin: 0; font-weight: bold; letter-spacing: 2px; text-transform: uppercase; }
    .content { padding: 32px; }
    .greeting { font-size: 20px; color: #1f2937; margin-bottom: 16px; }
    .text-body { color: #4b5563; margin-bottom: 24px; }
    .info-box { background-color: #f3f4f6; border-left: 4px solid #4f46e5; padding: 20px; border-radius: 4px; margin: 24px 0; }
    .info-label { font-size: 12px; text-transform: uppercase; color: #6b7280; margin-bottom: 4px; letter-spacing: 0.5px; }
    .info-value { font-size: 18px; color: #111827; font-weight: 600; margin: 0; }
    .footer { background-color: #f9fafb; padding: 24px; text-align: center; border-top: 1px solid #e5e7eb; }
    .footer-text { color: #9ca3af; font-size: 12px; margin: 0; }
    @media only screen and (max-width: 620px) {
      .container { padding: 0 !important; width: 100% !important; }
      .content { padding: 20px !important; }
      .email-card { border-radius: 0 !important; }
    }
  </style>
</head>
<body>
  <table role="presentation" border="0" cellpadding="0" cellspacing="0" class="body">
    <tr>
      <td>&nbsp;</td>
      <td class="container">
        <div class="email-card">
          <div class="header">
            <h1 class="header-title">{{.EventName}}</h1>
          </div>
          <div class="content">
            <h2 class="greeting">Registration Confirmed!</h2>
            <p class="text-body">Hello <strong>{{.Name}}</strong>,</p>
            <p class="text-body">We are pleased to confirm your registration. You have successfully secured your spot for the upcoming event.</p>
            <div class="info-box">
              <div class="info-label">Event Name</div>
              <p class="info-value">{{.EventName}}</p>
              <div style="margin-top: 16px;">
                <div class="info-label">Team Name</div>
                <p class="info-value">{{.TeamName}}</p>
              </div>
              <div style="margin-top: 16px;">
                <div class="info-label">Team ID</div>
                <p class="info-value" style="color: #4f46e5; letter-spacing: 1px;">{{.TeamID}}</p>
              </div>
            </div>
            <p class="text-body">Please make sure to arrive at the venue 15 minutes prior to the scheduled time. Bring your college ID and any required equipment mentioned in the event guidelines.</p>
            <p class="text-body" style="margin-top: 32px;">Best regards,<br><strong>Coding Club RSCOE Team</strong></p>
          </div>
          <div class="footer">
            <p class="footer-text">&copy; {{.Year}} Coding Club RSCOE. All rights reserved.<br>JSPM's RSCOE, Pune, Maharashtra</p>
          </div>
        </div>
      </td>
      <td>&nbsp;</td>
    </tr>
  </table>
</body>
</html>
`))
