package senders

import (
	"context"
	"net/http"

	"github.com/regwatch/regwatch/config"
	"github.com/regwatch/regwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sender delivers a meaningful-change alert. The returned string is a
// transport-specific delivery id.
type Sender interface {
	SendChangeAlert(ctx context.Context, target *models.Target, analysis *models.ChangeAnalysis) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	registry := Registry{}

	if cfg.Mailgun.Domain != "" && len(cfg.MailRecipients()) > 0 {
		registry["email"] = &mailgunSender{base}
	}
	if cfg.Webhook.URL != "" {
		registry["webhook"] = &webhookSender{base}
	}

	if len(registry) == 0 {
		log.Sugar().Info("No senders configured; meaningful changes will only be recorded")
	}
	return registry
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
