package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/wellness-booking/internal/config"
	"github.com/wolfman30/wellness-booking/internal/notify"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// BuildEmailSender picks the credit notification transport from EMAIL_PROVIDER.
// Misconfigured providers fall back to the stub sender, which only logs.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty; using stub sender")
	case "ses":
		if awsCfg != nil {
			return notify.NewSESSender(NewSESClient(*awsCfg), notify.SESConfig{
				FromEmail: cfg.EmailFromEmail,
				FromName:  cfg.EmailFromName,
			}, logger)
		}
		logger.Warn("EMAIL_PROVIDER=ses but AWS is not configured; using stub sender")
	}
	return notify.NewStubEmailSender(logger)
}
