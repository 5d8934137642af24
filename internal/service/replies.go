package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/mail"
	"helpdesk-mail-go/internal/models"
	"helpdesk-mail-go/internal/repository"
	"helpdesk-mail-go/internal/sender"
)

// SendReply mails an agent's answer to the conversation's requester and
// stores it as an answer. Nothing is stored when delivery fails.
func (s *Service) SendReply(ctx context.Context, conversationID, companyID uint, body string, authorUserID uuid.UUID) (*models.EmailMessage, error) {
	if authorUserID == uuid.Nil {
		return nil, apperr.Validation("author user id is required")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("reply body is required")
	}
	if len([]rune(body)) > models.MaxBodyLength {
		return nil, apperr.Validation("reply body exceeds %d characters", models.MaxBodyLength)
	}

	var stored *models.EmailMessage
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		conv, err := tx.FindCompanyConversation(ctx, conversationID, companyID)
		if err != nil {
			return err
		}
		if conv == nil || conv.Bot == nil || conv.Requester == nil {
			return apperr.NotFound("conversation %d", conversationID)
		}

		now := s.now().UTC()
		author := authorUserID
		msg, err := models.NewEmailMessage(models.EmailMessageParams{
			ConversationID: conv.ID,
			RequesterID:    conv.EmailRequesterID,
			UserID:         &author,
			MessageID:      sender.NewMessageID(conv.Bot.Email),
			Body:           body,
			Date:           now,
			Type:           models.MessageTypeAnswer,
		}, now)
		if err != nil {
			return err
		}

		creds := mail.CredentialsFor(conv.Bot)
		_, err = s.sender.SendReply(ctx, creds, sender.ReplyParams{
			MessageID:  msg.MessageID,
			To:         conv.Requester.Email,
			Subject:    conv.Subject,
			Body:       body,
			InReplyTo:  conv.RootMessageID,
			References: []string{conv.RootMessageID},
			Date:       now,
		})
		if err != nil {
			return dependency("send reply", err)
		}

		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		stored = msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RepliesSent.Inc()
	logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"message_id":      stored.MessageID,
		"user_id":         authorUserID.String(),
	}).Info("Agent reply stored")
	return stored, nil
}
