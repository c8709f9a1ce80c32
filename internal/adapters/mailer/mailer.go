// Package mailer delivers operator incident alerts. Funds arriving on an
// unknown address, exhausted liquidity or capacity, and failed payouts all
// need a human within hours, not at the next log review.
package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/keyvault-service/keyvault_service/internal/infrastructure/config"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
	"github.com/keyvault-service/keyvault_service/pkg/retry"
)

// OperatorAlerter notifies the bot operator about incidents that need
// manual attention.
type OperatorAlerter interface {
	Alert(ctx context.Context, subject, body string) error
}

type sendgridAlerter struct {
	client *sendgrid.Client
	from   *mail.Email
	to     *mail.Email
	policy retry.Policy
	logger *logger.Logger
}

// NewOperatorAlerter builds a sendgrid-backed alerter, or a logging no-op
// when email is disabled in config.
func NewOperatorAlerter(cfg config.EmailConfig, logger *logger.Logger) OperatorAlerter {
	if !cfg.Enabled {
		logger.Warn("operator email alerts disabled; incidents will only be logged")
		return &nopAlerter{logger: logger}
	}

	return &sendgridAlerter{
		client: sendgrid.NewSendClient(cfg.SendGridKey),
		from:   mail.NewEmail("keyvault bot", cfg.FromAddress),
		to:     mail.NewEmail("operator", cfg.OperatorAddress),
		policy: retry.DefaultPolicy(),
		logger: logger,
	}
}

// Alert sends the incident email, retrying transient failures. Alerting is a
// side channel: errors are returned for logging but must never fail the
// settlement that triggered them.
func (a *sendgridAlerter) Alert(ctx context.Context, subject, body string) error {
	message := mail.NewSingleEmail(a.from, subject, a.to, body, body)

	err := retry.Do(ctx, a.policy, a.logger.Zap(), func() error {
		resp, err := a.client.SendWithContext(ctx, message)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("send operator alert: %w", err)
	}

	a.logger.Info("operator alert sent", "subject", subject)
	return nil
}

type nopAlerter struct {
	logger *logger.Logger
}

func (a *nopAlerter) Alert(_ context.Context, subject, body string) error {
	a.logger.Warn("operator alert (email disabled)", "subject", subject, "body", body)
	return nil
}
