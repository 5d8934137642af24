package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/mail"
	"helpdesk-mail-go/internal/models"
	"helpdesk-mail-go/internal/reconcile"
)

// RegisterBot validates and stores a new bot mailbox after checking that
// both its IMAP and SMTP credentials work, then imports its recent history.
// When the import fails the bot stays registered and the error is returned
// with the stored bot, so the import can be retried with InitializeBot.
func (s *Service) RegisterBot(ctx context.Context, p models.EmailBotParams) (*models.EmailBot, reconcile.Report, error) {
	bot, err := models.NewEmailBot(p)
	if err != nil {
		return nil, reconcile.Report{}, err
	}

	existing, err := s.repo.FindBotsByEmails(ctx, []string{bot.Email})
	if err != nil {
		return nil, reconcile.Report{}, err
	}
	if len(existing) > 0 {
		return nil, reconcile.Report{}, apperr.Duplicate("bot %s is already registered", bot.Email)
	}

	creds := mail.CredentialsFor(bot)
	if err := s.mailbox.TestConnection(ctx, creds); err != nil {
		return nil, reconcile.Report{}, dependency("IMAP connection test", err)
	}
	if err := s.sender.TestConnection(ctx, creds); err != nil {
		return nil, reconcile.Report{}, dependency("SMTP connection test", err)
	}

	if err := s.repo.CreateBot(ctx, bot); err != nil {
		return nil, reconcile.Report{}, err
	}
	log := logrus.WithFields(logrus.Fields{"bot_id": bot.ID, "bot_email": bot.Email, "company_id": bot.CompanyID})
	log.Info("Bot registered")

	report, err := s.bootstrap(ctx, bot)
	if err != nil {
		log.Errorf("Initial import failed: %v", err)
		return bot, report, fmt.Errorf("bot %s registered but initial import failed: %w", bot.Email, err)
	}
	return bot, report, nil
}
