package models

import (
	"strings"
	"time"

	"helpdesk-mail-go/internal/apperr"
)

// EmailBot is a company mailbox with the SMTP and IMAP credentials used to
// receive customer mail and send agent replies.
type EmailBot struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CompanyID uint      `json:"company_id" gorm:"not null;index"`
	Email     string    `json:"email" gorm:"type:varchar(320);not null;uniqueIndex"`
	Password  string    `json:"-" gorm:"type:varchar(255);not null"`
	SMTPHost  string    `json:"smtp_host" gorm:"type:varchar(255);not null"`
	SMTPPort  int       `json:"smtp_port" gorm:"not null"`
	IMAPHost  string    `json:"imap_host" gorm:"type:varchar(255);not null"`
	IMAPPort  int       `json:"imap_port" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for EmailBot
func (EmailBot) TableName() string {
	return "email_bots"
}

// Domain returns the part of the bot address after '@'.
func (b EmailBot) Domain() string {
	if i := strings.LastIndex(b.Email, "@"); i >= 0 {
		return b.Email[i+1:]
	}
	return b.Email
}

// EmailBotParams carries everything needed to register a bot.
type EmailBotParams struct {
	CompanyID uint
	Email     string
	Password  string
	SMTPHost  string
	SMTPPort  int
	IMAPHost  string
	IMAPPort  int
}

// NewEmailBot validates p and returns an unsaved bot.
func NewEmailBot(p EmailBotParams) (*EmailBot, error) {
	var problems []string
	email := CanonicalAddress(p.Email)

	if p.CompanyID == 0 {
		problems = append(problems, "company id is required")
	}
	if !ValidAddress(email) {
		problems = append(problems, "bot email is not a valid address")
	}
	if p.Password == "" {
		problems = append(problems, "password is required")
	}
	if strings.TrimSpace(p.SMTPHost) == "" {
		problems = append(problems, "smtp host is required")
	}
	if strings.TrimSpace(p.IMAPHost) == "" {
		problems = append(problems, "imap host is required")
	}
	if !validPort(p.SMTPPort) {
		problems = append(problems, "smtp port must be between 1 and 65535")
	}
	if !validPort(p.IMAPPort) {
		problems = append(problems, "imap port must be between 1 and 65535")
	}
	if len(problems) > 0 {
		return nil, apperr.Validation("%s", strings.Join(problems, "; "))
	}

	return &EmailBot{
		CompanyID: p.CompanyID,
		Email:     email,
		Password:  p.Password,
		SMTPHost:  strings.TrimSpace(p.SMTPHost),
		SMTPPort:  p.SMTPPort,
		IMAPHost:  strings.TrimSpace(p.IMAPHost),
		IMAPPort:  p.IMAPPort,
	}, nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
