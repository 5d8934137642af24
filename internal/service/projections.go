package service

import (
	"context"
	"time"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/models"
)

const previewLength = 200

// MessagePreview is the head of a conversation's newest message.
type MessagePreview struct {
	MessageID string             `json:"message_id"`
	Type      models.MessageType `json:"type"`
	Date      time.Time          `json:"date"`
	Preview   string             `json:"preview"`
}

// ConversationSummary is one row of a conversation listing.
type ConversationSummary struct {
	ID             uint            `json:"id"`
	Subject        string          `json:"subject"`
	BotEmail       string          `json:"bot_email"`
	RequesterEmail string          `json:"requester_email"`
	LastUpdateAt   time.Time       `json:"last_update_at"`
	CreatedAt      time.Time       `json:"created_at"`
	LatestMessage  *MessagePreview `json:"latest_message,omitempty"`
}

// ListConversations pages through a company's conversations, most recently
// updated first.
func (s *Service) ListConversations(ctx context.Context, companyID uint, offset, limit int) ([]ConversationSummary, int64, error) {
	convs, total, err := s.repo.ListConversations(ctx, companyID, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uint, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	latest, err := s.repo.LatestMessages(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		sum := ConversationSummary{
			ID:           c.ID,
			Subject:      c.Subject,
			LastUpdateAt: c.LastUpdateAt,
			CreatedAt:    c.CreatedAt,
		}
		if c.Bot != nil {
			sum.BotEmail = c.Bot.Email
		}
		if c.Requester != nil {
			sum.RequesterEmail = c.Requester.Email
		}
		if m, ok := latest[c.ID]; ok {
			sum.LatestMessage = &MessagePreview{
				MessageID: m.MessageID,
				Type:      m.Type,
				Date:      m.Date,
				Preview:   preview(m.Body),
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, total, nil
}

// GetConversation returns a company's conversation with all its messages,
// oldest first.
func (s *Service) GetConversation(ctx context.Context, conversationID, companyID uint) (*models.EmailConversation, error) {
	conv, err := s.repo.FindCompanyConversation(ctx, conversationID, companyID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation %d", conversationID)
	}

	msgs, err := s.repo.ConversationMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

// ListLogs pages through reconcile run logs, newest first.
func (s *Service) ListLogs(ctx context.Context, offset, limit int) ([]models.ReconcileLog, int64, error) {
	return s.repo.ListReconcileLogs(ctx, offset, limit)
}

// GetLog returns one reconcile run log.
func (s *Service) GetLog(ctx context.Context, id uint) (*models.ReconcileLog, error) {
	entry, err := s.repo.FindReconcileLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperr.NotFound("log %d", id)
	}
	return entry, nil
}

func preview(body string) string {
	r := []rune(body)
	if len(r) <= previewLength {
		return body
	}
	return string(r[:previewLength]) + "..."
}
