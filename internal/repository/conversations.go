package repository

import (
	"context"
	"fmt"

	"helpdesk-mail-go/internal/models"
)

// FindConversation returns the conversation with this id, or nil.
func (r *Repository) FindConversation(ctx context.Context, id uint) (*models.EmailConversation, error) {
	var conv models.EmailConversation
	err := r.db.WithContext(ctx).First(&conv, id).Error
	if err == nil {
		return &conv, nil
	}
	if notFound(err) {
		return nil, nil
	}
	return nil, fmt.Errorf("database error finding conversation %d: %w", id, err)
}

// FindConversationByRoot returns the bot's conversation anchored at rootMessageID, or nil.
func (r *Repository) FindConversationByRoot(ctx context.Context, botID uint, rootMessageID string) (*models.EmailConversation, error) {
	var conv models.EmailConversation
	err := r.db.WithContext(ctx).
		Where("email_bot_id = ? AND root_message_id = ?", botID, rootMessageID).
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if notFound(err) {
		return nil, nil
	}
	return nil, fmt.Errorf("database error finding conversation for root %s: %w", rootMessageID, err)
}

// CreateConversation inserts conv. When the (bot, root) pair already
// exists the stored conversation is returned with created=false.
func (r *Repository) CreateConversation(ctx context.Context, conv *models.EmailConversation) (stored *models.EmailConversation, created bool, err error) {
	err = r.create(ctx, conv)
	if err == nil {
		return conv, true, nil
	}
	if !isDuplicateKey(err) {
		return nil, false, fmt.Errorf("failed to create conversation for root %s: %w", conv.RootMessageID, err)
	}

	existing, findErr := r.FindConversationByRoot(ctx, conv.EmailBotID, conv.RootMessageID)
	if findErr != nil {
		return nil, false, findErr
	}
	if existing == nil {
		return nil, false, fmt.Errorf("conversation for root %s reported duplicate but was not found: %w", conv.RootMessageID, err)
	}
	return existing, false, nil
}

// FindCompanyConversation loads a conversation with its bot and requester,
// scoped to the company. It returns nil when either does not match.
func (r *Repository) FindCompanyConversation(ctx context.Context, id, companyID uint) (*models.EmailConversation, error) {
	var conv models.EmailConversation
	err := r.db.WithContext(ctx).
		Preload("Bot").
		Preload("Requester").
		Where("id = ? AND company_id = ?", id, companyID).
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if notFound(err) {
		return nil, nil
	}
	return nil, fmt.Errorf("database error finding conversation %d: %w", id, err)
}

// ListConversations pages through a company's conversations, most recently
// updated first.
func (r *Repository) ListConversations(ctx context.Context, companyID uint, offset, limit int) ([]models.EmailConversation, int64, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&models.EmailConversation{}).Where("company_id = ?", companyID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	var convs []models.EmailConversation
	err := r.db.WithContext(ctx).
		Preload("Bot").
		Preload("Requester").
		Where("company_id = ?", companyID).
		Order("last_update_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&convs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, total, nil
}
