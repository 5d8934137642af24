package models

import (
	"strings"
	"time"

	"helpdesk-mail-go/internal/apperr"
)

// EmailConversation is a thread anchored at its root message id. There is at
// most one conversation per (bot, root message id).
type EmailConversation struct {
	ID               uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CompanyID        uint      `json:"company_id" gorm:"not null;index"`
	EmailBotID       uint      `json:"bot_id" gorm:"not null;uniqueIndex:idx_conversation_bot_root,priority:1"`
	EmailRequesterID uint      `json:"requester_id" gorm:"not null;index"`
	RootMessageID    string    `json:"root_message_id" gorm:"type:varchar(512);not null;uniqueIndex:idx_conversation_bot_root,priority:2"`
	Subject          string    `json:"subject" gorm:"type:text;not null"`
	LastUpdateAt     time.Time `json:"last_update_at" gorm:"not null;index"`
	CreatedAt        time.Time `json:"created_at"`

	Bot       *EmailBot       `json:"bot,omitempty" gorm:"foreignKey:EmailBotID"`
	Requester *EmailRequester `json:"requester,omitempty" gorm:"foreignKey:EmailRequesterID"`
	Messages  []EmailMessage  `json:"messages,omitempty" gorm:"foreignKey:EmailConversationID"`
}

// TableName specifies the table name for EmailConversation
func (EmailConversation) TableName() string {
	return "email_conversations"
}

type EmailConversationParams struct {
	CompanyID     uint
	BotID         uint
	RequesterID   uint
	RootMessageID string
	Subject       string
	StartedAt     time.Time
}

// NewEmailConversation validates p and returns an unsaved conversation whose
// last update equals the root message date.
func NewEmailConversation(p EmailConversationParams) (*EmailConversation, error) {
	var problems []string
	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		subject = NoSubjectPlaceholder
	}

	if p.CompanyID == 0 {
		problems = append(problems, "company id is required")
	}
	if p.BotID == 0 {
		problems = append(problems, "bot id is required")
	}
	if p.RequesterID == 0 {
		problems = append(problems, "requester id is required")
	}
	if p.RootMessageID == "" || len(p.RootMessageID) > MaxMessageIDLength {
		problems = append(problems, "root message id is missing or too long")
	}
	if len(subject) > MaxSubjectLength {
		problems = append(problems, "subject is too long")
	}
	if p.StartedAt.IsZero() {
		problems = append(problems, "start date is required")
	}
	if len(problems) > 0 {
		return nil, apperr.Validation("%s", strings.Join(problems, "; "))
	}

	return &EmailConversation{
		CompanyID:        p.CompanyID,
		EmailBotID:       p.BotID,
		EmailRequesterID: p.RequesterID,
		RootMessageID:    p.RootMessageID,
		Subject:          subject,
		LastUpdateAt:     p.StartedAt.UTC(),
	}, nil
}
