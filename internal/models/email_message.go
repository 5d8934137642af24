package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"helpdesk-mail-go/internal/apperr"
)

// MessageType tells who wrote a message, or that it stands in for a lost one.
type MessageType string

const (
	MessageTypeQuestion MessageType = "question"
	MessageTypeAnswer   MessageType = "answer"
	MessageTypeDeleted  MessageType = "deleted"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeQuestion, MessageTypeAnswer, MessageTypeDeleted:
		return true
	}
	return false
}

// EmailMessage is an append-only row; MessageID is unique across the system.
type EmailMessage struct {
	ID                  uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	EmailConversationID uint        `json:"conversation_id" gorm:"not null;index"`
	EmailRequesterID    uint        `json:"requester_id" gorm:"not null;index"`
	UserID              *uuid.UUID  `json:"user_id,omitempty" gorm:"type:varchar(36)"`
	MessageID           string      `json:"message_id" gorm:"type:varchar(512);not null;uniqueIndex"`
	Subject             *string     `json:"subject,omitempty" gorm:"type:text"`
	Body                string      `json:"body" gorm:"type:text;not null"`
	Date                time.Time   `json:"date" gorm:"not null;index"`
	Type                MessageType `json:"type" gorm:"type:varchar(16);not null"`
	CreatedAt           time.Time   `json:"created_at"`
}

// TableName specifies the table name for EmailMessage
func (EmailMessage) TableName() string {
	return "email_messages"
}

type EmailMessageParams struct {
	ConversationID uint
	RequesterID    uint
	UserID         *uuid.UUID
	MessageID      string
	Subject        *string
	Body           string
	Date           time.Time
	Type           MessageType
}

// NewEmailMessage validates p in one pass against now and returns an unsaved
// message. All problems are reported together. The conversation reference is
// checked by the store at insert time.
func NewEmailMessage(p EmailMessageParams, now time.Time) (*EmailMessage, error) {
	var problems []string

	if p.RequesterID == 0 {
		problems = append(problems, "requester id is required")
	}
	if p.MessageID == "" || len(p.MessageID) > MaxMessageIDLength {
		problems = append(problems, "message id is missing or too long")
	}
	if p.Body == "" {
		problems = append(problems, "body is required")
	} else if len([]rune(p.Body)) > MaxBodyLength {
		problems = append(problems, "body is too long")
	}
	if p.Subject != nil {
		if *p.Subject == "" {
			problems = append(problems, "subject must not be empty when set")
		} else if len([]rune(*p.Subject)) > MaxSubjectLength {
			problems = append(problems, "subject is too long")
		}
	}
	if p.Date.IsZero() {
		problems = append(problems, "date is required")
	} else if p.Date.After(now) {
		problems = append(problems, "date is in the future")
	}

	switch p.Type {
	case MessageTypeQuestion, MessageTypeDeleted:
		if p.UserID != nil {
			problems = append(problems, string(p.Type)+" messages cannot carry a user id")
		}
	case MessageTypeAnswer:
		if p.UserID != nil && *p.UserID == uuid.Nil {
			problems = append(problems, "answer user id must not be empty")
		}
	default:
		problems = append(problems, "unknown message type")
	}

	if len(problems) > 0 {
		return nil, apperr.Validation("message %s: %s", p.MessageID, strings.Join(problems, "; "))
	}

	return &EmailMessage{
		EmailConversationID: p.ConversationID,
		EmailRequesterID:    p.RequesterID,
		UserID:              p.UserID,
		MessageID:           p.MessageID,
		Subject:             p.Subject,
		Body:                p.Body,
		Date:                p.Date.UTC(),
		Type:                p.Type,
	}, nil
}
