package mail

import (
	"strings"
	"time"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/models"
)

const (
	MaxInboundBodyLength = 15000

	EmptyBodyPlaceholder = "(no content)"
	DeletedPlaceholder   = "Deleted Message"
)

// Normalize validates a transport summary and resolves who the requester is
// relative to botEmail. Mail sent by the bot becomes an answer addressed to
// the recipient; anything else is a question from the sender. When the bot
// appears in neither field the recipient is taken as the bot address.
func Normalize(s Summary, botEmail string, now time.Time) (RawMessage, error) {
	var problems []string

	id := CanonicalMessageID(s.MessageID)
	if id == "" {
		problems = append(problems, "message id is missing")
	} else if len(id) > models.MaxMessageIDLength {
		problems = append(problems, "message id is too long")
	}

	from := models.CanonicalAddress(s.From)
	to := models.CanonicalAddress(s.To)
	bot := models.CanonicalAddress(botEmail)
	if !models.ValidAddress(from) {
		problems = append(problems, "sender is not a valid address")
	}
	if !models.ValidAddress(to) {
		problems = append(problems, "recipient is not a valid address")
	}
	if !models.ValidAddress(bot) {
		problems = append(problems, "bot is not a valid address")
	}

	msg := RawMessage{MessageID: id, Type: models.MessageTypeQuestion}
	switch bot {
	case from:
		msg.Type = models.MessageTypeAnswer
		msg.RequesterEmail = to
		msg.BotEmail = bot
	case to:
		msg.RequesterEmail = from
		msg.BotEmail = bot
	default:
		msg.RequesterEmail = from
		msg.BotEmail = to
	}

	subject := strings.TrimSpace(s.Subject)
	if subject == "" {
		subject = models.NoSubjectPlaceholder
	}
	if len([]rune(subject)) > models.MaxSubjectLength {
		problems = append(problems, "subject is too long")
	}
	msg.Subject = subject

	body := s.Body
	if strings.TrimSpace(body) == "" {
		body = EmptyBodyPlaceholder
	}
	msg.Body = truncate(body, MaxInboundBodyLength)

	if s.Date.IsZero() {
		problems = append(problems, "date is missing")
	} else if s.Date.After(now) {
		problems = append(problems, "date is in the future")
	}
	msg.Date = s.Date.UTC()

	msg.ReplyToMessageID = CanonicalMessageID(s.InReplyTo)
	if msg.ReplyToMessageID != "" && msg.ReplyToMessageID == id {
		problems = append(problems, "message replies to itself")
	}

	if len(problems) > 0 {
		return RawMessage{}, apperr.Validation("message %q: %s", id, strings.Join(problems, "; "))
	}
	return msg, nil
}

// NewDeletedPlaceholder stands in for an ancestor the mailbox no longer has.
func NewDeletedPlaceholder(messageID, replyTo, requesterEmail, botEmail string, date time.Time) RawMessage {
	return RawMessage{
		MessageID:        messageID,
		RequesterEmail:   models.CanonicalAddress(requesterEmail),
		BotEmail:         models.CanonicalAddress(botEmail),
		Subject:          DeletedPlaceholder,
		Body:             DeletedPlaceholder,
		Date:             date.UTC(),
		ReplyToMessageID: replyTo,
		Type:             models.MessageTypeDeleted,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
