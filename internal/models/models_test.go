package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-mail-go/internal/apperr"
)

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress("support@acme.io"))
	assert.False(t, ValidAddress(""))
	assert.False(t, ValidAddress("not-an-address"))
	assert.False(t, ValidAddress("Support <support@acme.io>"))
	assert.False(t, ValidAddress(strings.Repeat("a", 320)+"@acme.io"))
	assert.Equal(t, "support@acme.io", CanonicalAddress("  Support@ACME.io "))
}

func TestNewEmailBot(t *testing.T) {
	bot, err := NewEmailBot(EmailBotParams{
		CompanyID: 3,
		Email:     "Help@Acme.io",
		Password:  "app-password",
		SMTPHost:  "smtp.acme.io",
		SMTPPort:  465,
		IMAPHost:  "imap.acme.io",
		IMAPPort:  993,
	})
	require.NoError(t, err)
	assert.Equal(t, "help@acme.io", bot.Email)
	assert.Equal(t, "acme.io", bot.Domain())

	_, err = NewEmailBot(EmailBotParams{Email: "nope", SMTPPort: 70000})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "company id is required")
	assert.Contains(t, err.Error(), "smtp port must be between 1 and 65535")
}

func TestNewEmailConversationDefaultsSubject(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	conv, err := NewEmailConversation(EmailConversationParams{
		CompanyID:     1,
		BotID:         2,
		RequesterID:   3,
		RootMessageID: "m1@acme.io",
		Subject:       "   ",
		StartedAt:     started,
	})
	require.NoError(t, err)
	assert.Equal(t, NoSubjectPlaceholder, conv.Subject)
	assert.Equal(t, started, conv.LastUpdateAt)
}

func TestNewEmailMessageUserMatchesType(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	base := EmailMessageParams{
		ConversationID: 1,
		RequesterID:    1,
		MessageID:      "m1@acme.io",
		Body:           "hello",
		Date:           now.Add(-time.Minute),
	}
	agent := uuid.New()
	empty := uuid.Nil

	tests := []struct {
		name    string
		typ     MessageType
		userID  *uuid.UUID
		wantErr bool
	}{
		{"question without user", MessageTypeQuestion, nil, false},
		{"question with user", MessageTypeQuestion, &agent, true},
		{"deleted with user", MessageTypeDeleted, &agent, true},
		{"answer without user", MessageTypeAnswer, nil, false},
		{"answer with user", MessageTypeAnswer, &agent, false},
		{"answer with empty user", MessageTypeAnswer, &empty, true},
		{"unknown type", MessageType("note"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			p.Type = tt.typ
			p.UserID = tt.userID
			msg, err := NewEmailMessage(p, now)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, msg.Type)
		})
	}
}

func TestNewEmailMessageRejectsBadFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	empty := ""

	_, err := NewEmailMessage(EmailMessageParams{
		ConversationID: 1,
		RequesterID:    1,
		MessageID:      "m2@acme.io",
		Subject:        &empty,
		Body:           strings.Repeat("x", MaxBodyLength+1),
		Date:           now.Add(time.Hour),
		Type:           MessageTypeQuestion,
	}, now)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject must not be empty")
	assert.Contains(t, err.Error(), "body is too long")
	assert.Contains(t, err.Error(), "date is in the future")
}
