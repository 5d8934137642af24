package handlers

import (
	"time"

	"helpdesk-mail-go/internal/models"
	"helpdesk-mail-go/internal/reconcile"
)

// RegisterBotRequest represents the request structure for registering a bot mailbox
type RegisterBotRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	SMTPHost string `json:"smtp_host" binding:"required"`
	SMTPPort int    `json:"smtp_port" binding:"required"`
	IMAPHost string `json:"imap_host" binding:"required"`
	IMAPPort int    `json:"imap_port" binding:"required"`
}

// ReplyRequest represents the request structure for an agent reply
type ReplyRequest struct {
	Body         string `json:"body" binding:"required"`
	AuthorUserID string `json:"author_user_id" binding:"required"`
}

// ImportReport is the outcome of importing a bot's mail
type ImportReport struct {
	Received             int `json:"received"`
	ConversationsCreated int `json:"conversations_created"`
	RequestersCreated    int `json:"requesters_created"`
	MessagesStored       int `json:"messages_stored"`
	Duplicates           int `json:"duplicates"`
	Skipped              int `json:"skipped"`
	Unresolved           int `json:"unresolved"`
}

func importReport(r reconcile.Report) ImportReport {
	return ImportReport{
		Received:             r.Received,
		ConversationsCreated: r.ConversationsCreated,
		RequestersCreated:    r.RequestersCreated,
		MessagesStored:       r.MessagesStored,
		Duplicates:           r.Duplicates,
		Skipped:              r.Skipped,
		Unresolved:           r.Unresolved,
	}
}

// RegisterBotResponse carries the stored bot, and the import error when the
// initial import failed
type RegisterBotResponse struct {
	Bot    *models.EmailBot `json:"bot"`
	Import ImportReport     `json:"import"`
	Error  *ErrorResponse   `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Reconcile string            `json:"reconcile"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
