package repository

import (
	"context"
	"fmt"
	"time"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/models"
)

// MessageExists reports whether a message with this protocol id is stored.
func (r *Repository) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EmailMessage{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check message %s: %w", messageID, err)
	}
	return count > 0, nil
}

// FindMessage returns the stored message with this protocol id, or nil.
func (r *Repository) FindMessage(ctx context.Context, messageID string) (*models.EmailMessage, error) {
	var msg models.EmailMessage
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&msg).Error
	if err == nil {
		return &msg, nil
	}
	if notFound(err) {
		return nil, nil
	}
	return nil, fmt.Errorf("database error finding message %s: %w", messageID, err)
}

// InsertMessage stores msg and advances its conversation's last update.
// A missing conversation is a consistency error; a taken message id is a
// duplicate.
func (r *Repository) InsertMessage(ctx context.Context, msg *models.EmailMessage) error {
	conv, err := r.FindConversation(ctx, msg.EmailConversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return apperr.Consistency("conversation %d not found for message %s", msg.EmailConversationID, msg.MessageID)
	}

	if err := r.create(ctx, msg); err != nil {
		if isDuplicateKey(err) {
			return apperr.Duplicate("message %s already exists", msg.MessageID)
		}
		return fmt.Errorf("failed to insert message %s: %w", msg.MessageID, err)
	}

	if msg.Date.After(conv.LastUpdateAt) {
		return r.BumpConversationTimestamp(ctx, conv.ID, msg.Date)
	}
	return nil
}

// BumpConversationTimestamp moves last_update_at forward to ts. It never
// moves it backwards.
func (r *Repository) BumpConversationTimestamp(ctx context.Context, conversationID uint, ts time.Time) error {
	ts = ts.UTC()
	err := r.db.WithContext(ctx).Model(&models.EmailConversation{}).
		Where("id = ? AND last_update_at < ?", conversationID, ts).
		Update("last_update_at", ts).Error
	if err != nil {
		return fmt.Errorf("failed to bump conversation %d: %w", conversationID, err)
	}
	return nil
}

// ConversationMessages returns a conversation's messages, oldest first.
func (r *Repository) ConversationMessages(ctx context.Context, conversationID uint) ([]models.EmailMessage, error) {
	var msgs []models.EmailMessage
	err := r.db.WithContext(ctx).
		Where("email_conversation_id = ?", conversationID).
		Order("date ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages of conversation %d: %w", conversationID, err)
	}
	return msgs, nil
}

// LatestMessages returns the newest message of each given conversation.
func (r *Repository) LatestMessages(ctx context.Context, conversationIDs []uint) (map[uint]models.EmailMessage, error) {
	latest := make(map[uint]models.EmailMessage, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	newest := r.db.Model(&models.EmailMessage{}).
		Select("email_conversation_id, MAX(date) AS max_date").
		Where("email_conversation_id IN ?", conversationIDs).
		Group("email_conversation_id")

	var msgs []models.EmailMessage
	err := r.db.WithContext(ctx).
		Table("email_messages AS m").
		Select("m.*").
		Joins("JOIN (?) AS newest ON newest.email_conversation_id = m.email_conversation_id AND newest.max_date = m.date", newest).
		Order("m.id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest messages: %w", err)
	}

	for _, m := range msgs {
		latest[m.EmailConversationID] = m
	}
	return latest, nil
}
