package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/mail"
	"helpdesk-mail-go/internal/models"
	"helpdesk-mail-go/internal/reconcile"
	"helpdesk-mail-go/internal/repository"
)

// ReconcileNewMail polls the discovery mailbox and files the new mail of
// every registered bot it mentions. The returned error covers fetching and
// grouping only; a failing bot is logged and recorded, and the other bots
// are still processed.
func (s *Service) ReconcileNewMail(ctx context.Context) error {
	start := time.Now()
	s.metrics.PollCount.Inc()
	defer func() {
		s.metrics.PollDuration.Observe(time.Since(start).Seconds())
		s.setState(StateIdle)
	}()

	s.setState(StateFetching)
	summaries, err := s.discovery.FetchUnread(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch new mail: %w", err)
	}
	s.metrics.FetchedMessages.Add(float64(len(summaries)))
	logrus.Infof("Fetched %d new messages from %s", len(summaries), s.discovery.Address())

	s.setState(StateGrouping)
	groups := make(map[string][]mail.RawMessage)
	for _, m := range s.normalizeAll(summaries, s.discovery.Address()) {
		groups[m.BotEmail] = append(groups[m.BotEmail], m)
	}
	addresses := make([]string, 0, len(groups))
	for addr := range groups {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	bots, err := s.repo.FindBotsByEmails(ctx, addresses)
	if err != nil {
		return fmt.Errorf("failed to group mail by bot: %w", err)
	}
	known := make(map[string]bool, len(bots))
	for _, bot := range bots {
		known[bot.Email] = true
	}
	for _, addr := range addresses {
		if !known[addr] {
			logrus.WithField("bot_email", addr).Warnf("No bot registered for address, dropping %d messages", len(groups[addr]))
			s.metrics.DroppedMessages.Add(float64(len(groups[addr])))
		}
	}

	s.setState(StateProcessing)
	for i := range bots {
		bot := &bots[i]
		if _, err := s.processBot(ctx, bot, groups[bot.Email]); err != nil {
			logrus.WithFields(logrus.Fields{"bot_id": bot.ID, "bot_email": bot.Email}).
				Errorf("Failed to reconcile bot mail: %v", err)
		}
	}
	return nil
}

// processBot merges discovered mail with the bot's own unread mail and files
// the batch in one transaction.
func (s *Service) processBot(ctx context.Context, bot *models.EmailBot, discovered []mail.RawMessage) (reconcile.Report, error) {
	started := s.now().UTC()
	own, err := s.mailbox.FetchUnread(ctx, mail.CredentialsFor(bot))
	if err != nil {
		err = dependency("fetch bot mailbox", err)
		s.record(ctx, bot, models.ReconcileModePoll, started, reconcile.Report{Received: len(discovered)}, err)
		return reconcile.Report{}, err
	}
	s.metrics.FetchedMessages.Add(float64(len(own)))

	batch := mail.Dedupe(discovered, s.normalizeAll(own, bot.Email))
	report, err := s.resolve(ctx, bot, batch)
	s.record(ctx, bot, models.ReconcileModePoll, started, report, err)
	return report, err
}

// InitializeBot imports a bot's recent history: its unread mail plus the
// newest messages across inbox and sent folder, capped at the configured
// bootstrap count.
func (s *Service) InitializeBot(ctx context.Context, companyID, botID uint) (reconcile.Report, error) {
	bot, err := s.repo.FindBot(ctx, botID)
	if err != nil {
		return reconcile.Report{}, err
	}
	if bot == nil || bot.CompanyID != companyID {
		return reconcile.Report{}, apperr.NotFound("bot %d", botID)
	}
	return s.bootstrap(ctx, bot)
}

func (s *Service) bootstrap(ctx context.Context, bot *models.EmailBot) (reconcile.Report, error) {
	started := s.now().UTC()
	creds := mail.CredentialsFor(bot)

	report, err := func() (reconcile.Report, error) {
		unread, err := s.mailbox.FetchUnread(ctx, creds)
		if err != nil {
			return reconcile.Report{}, dependency("fetch unread mail", err)
		}
		recent, err := s.mailbox.FetchRecent(ctx, creds, s.cfg.BootstrapCount)
		if err != nil {
			return reconcile.Report{}, dependency("fetch recent mail", err)
		}
		s.metrics.FetchedMessages.Add(float64(len(unread) + len(recent)))

		batch := mail.Dedupe(s.normalizeAll(unread, bot.Email), s.normalizeAll(recent, bot.Email))
		return s.resolve(ctx, bot, batch)
	}()

	s.record(ctx, bot, models.ReconcileModeBootstrap, started, report, err)
	return report, err
}

// resolve runs the resolver for bot inside a transaction. Any error rolls
// the whole batch back.
func (s *Service) resolve(ctx context.Context, bot *models.EmailBot, batch []mail.RawMessage) (reconcile.Report, error) {
	chains := botChains{mailbox: s.mailbox, creds: mail.CredentialsFor(bot)}

	var report reconcile.Report
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		report, err = s.resolver.Run(ctx, tx, chains, bot, batch)
		return err
	})
	return report, err
}

// record writes the outcome of one bot batch to the run log and metrics.
// It runs outside the batch transaction so failures are kept.
func (s *Service) record(ctx context.Context, bot *models.EmailBot, mode string, started time.Time, report reconcile.Report, runErr error) {
	entry := &models.ReconcileLog{
		EmailBotID: bot.ID,
		Mode:       mode,
		Status:     models.ReconcileStatusSuccess,
		Received:   report.Received,
		StartedAt:  started,
		FinishedAt: s.now().UTC(),
	}
	log := logrus.WithFields(logrus.Fields{"bot_id": bot.ID, "bot_email": bot.Email, "mode": mode})

	if runErr != nil {
		entry.Status = models.ReconcileStatusFailure
		entry.ErrorKind = apperr.Kind(runErr)
		entry.ErrorMsg = runErr.Error()
		s.metrics.BotFailures.WithLabelValues(entry.ErrorKind).Inc()
	} else {
		entry.ConversationsCreated = report.ConversationsCreated
		entry.MessagesStored = report.MessagesStored
		entry.Duplicates = report.Duplicates
		entry.Skipped = report.Skipped
		s.metrics.StoredMessages.Add(float64(report.MessagesStored))
		s.metrics.DuplicateMessages.Add(float64(report.Duplicates))
		s.metrics.ConversationsCreated.Add(float64(report.ConversationsCreated))
		s.metrics.ValidationFailures.Add(float64(report.Skipped))
		s.metrics.DeferredReplies.Add(float64(report.Deferred))
		log.WithFields(logrus.Fields{
			"received":      report.Received,
			"stored":        report.MessagesStored,
			"conversations": report.ConversationsCreated,
			"duplicates":    report.Duplicates,
			"unresolved":    report.Unresolved,
		}).Info("Bot mail reconciled")
	}

	// Written even when ctx is already cancelled.
	if err := s.repo.CreateReconcileLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Errorf("Failed to write reconcile log: %v", err)
	}
}

// normalizeAll validates summaries against botEmail, dropping invalid ones.
func (s *Service) normalizeAll(summaries []mail.Summary, botEmail string) []mail.RawMessage {
	now := s.now().UTC()
	out := make([]mail.RawMessage, 0, len(summaries))
	for _, sum := range summaries {
		m, err := mail.Normalize(sum, botEmail, now)
		if err != nil {
			s.metrics.ValidationFailures.Inc()
			logrus.WithField("message_id", sum.MessageID).Warnf("Skipping invalid message: %v", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// dependency marks a transport failure as a dependency error unless the
// transport already did.
func dependency(what string, err error) error {
	if errors.Is(err, apperr.ErrDependency) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return apperr.Dependency(what, err)
}
