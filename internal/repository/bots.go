package repository

import (
	"context"
	"fmt"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/models"
)

// FindBotsByEmails resolves mailbox addresses to registered bots.
func (r *Repository) FindBotsByEmails(ctx context.Context, emails []string) ([]models.EmailBot, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	canonical := make([]string, 0, len(emails))
	for _, e := range emails {
		canonical = append(canonical, models.CanonicalAddress(e))
	}

	var bots []models.EmailBot
	if err := r.db.WithContext(ctx).Where("email IN ?", canonical).Order("id ASC").Find(&bots).Error; err != nil {
		return nil, fmt.Errorf("failed to find bots by email: %w", err)
	}
	return bots, nil
}

// FindBot returns the bot with this id, or nil.
func (r *Repository) FindBot(ctx context.Context, id uint) (*models.EmailBot, error) {
	var bot models.EmailBot
	err := r.db.WithContext(ctx).First(&bot, id).Error
	if err == nil {
		return &bot, nil
	}
	if notFound(err) {
		return nil, nil
	}
	return nil, fmt.Errorf("database error finding bot %d: %w", id, err)
}

// CreateBot inserts a bot; a taken address is a duplicate.
func (r *Repository) CreateBot(ctx context.Context, bot *models.EmailBot) error {
	if err := r.create(ctx, bot); err != nil {
		if isDuplicateKey(err) {
			return apperr.Duplicate("bot %s is already registered", bot.Email)
		}
		return fmt.Errorf("failed to create bot %s: %w", bot.Email, err)
	}
	return nil
}
