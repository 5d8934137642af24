package mail

import (
	"fmt"
	"strings"
	"time"

	"helpdesk-mail-go/internal/models"
)

// Summary is a mail item as the transport sees it, before validation.
type Summary struct {
	UID       uint32
	MessageID string
	From      string
	To        string
	Subject   string
	Body      string
	Date      time.Time
	InReplyTo string
}

// RawMessage is a validated, canonical mail item ready for threading.
type RawMessage struct {
	MessageID        string
	RequesterEmail   string
	BotEmail         string
	Subject          string
	Body             string
	Date             time.Time
	ReplyToMessageID string
	Type             models.MessageType
}

// IsRoot reports whether the message starts a thread.
func (m RawMessage) IsRoot() bool {
	return m.ReplyToMessageID == ""
}

// DanglingReply points at a reply whose ancestor is neither in the current
// batch nor in storage.
type DanglingReply struct {
	MessageID        string
	ReplyToMessageID string
	RequesterEmail   string
	Date             time.Time
}

// Credentials are what a transport needs to reach one mailbox.
type Credentials struct {
	Email    string
	Password string
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
}

// IMAPAddr returns host:port for the IMAP server.
func (c Credentials) IMAPAddr() string {
	return fmt.Sprintf("%s:%d", c.IMAPHost, c.IMAPPort)
}

// SMTPAddr returns host:port for the SMTP server.
func (c Credentials) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
}

// CredentialsFor extracts transport credentials from a bot row.
func CredentialsFor(bot *models.EmailBot) Credentials {
	return Credentials{
		Email:    bot.Email,
		Password: bot.Password,
		IMAPHost: bot.IMAPHost,
		IMAPPort: bot.IMAPPort,
		SMTPHost: bot.SMTPHost,
		SMTPPort: bot.SMTPPort,
	}
}

// CanonicalMessageID strips whitespace and angle brackets from a Message-ID
// or In-Reply-To value. Only the first id of a list is kept.
func CanonicalMessageID(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(fields[0], "<"), ">")
}

// Dedupe concatenates lists keeping the first occurrence of each message id.
func Dedupe(lists ...[]RawMessage) []RawMessage {
	seen := make(map[string]bool)
	var out []RawMessage
	for _, list := range lists {
		for _, m := range list {
			if seen[m.MessageID] {
				continue
			}
			seen[m.MessageID] = true
			out = append(out, m)
		}
	}
	return out
}
