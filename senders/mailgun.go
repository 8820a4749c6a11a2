package senders

import (
	"context"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/regwatch/regwatch/lib/models"
)

type mailgunSender struct {
	base
}

func (e *mailgunSender) SendChangeAlert(ctx context.Context, target *models.Target, analysis *models.ChangeAnalysis) (string, error) {
	format := changeAlertFormat{target, analysis}
	return e.send(ctx, format.Subject(), format.Body(), e.cfg.MailRecipients())
}

func (e *mailgunSender) send(ctx context.Context, subject, body string, recipients []string) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, subject, "", recipients...)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(body)

	timeout := time.Duration(e.cfg.Mailgun.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	return id, err
}
