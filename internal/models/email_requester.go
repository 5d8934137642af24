package models

import (
	"time"

	"helpdesk-mail-go/internal/apperr"
)

// EmailRequester is an external correspondent. Rows are created on first
// contact and never updated.
type EmailRequester struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Email     string    `json:"email" gorm:"type:varchar(320);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for EmailRequester
func (EmailRequester) TableName() string {
	return "email_requesters"
}

// NewEmailRequester validates the address and returns an unsaved requester.
func NewEmailRequester(email string) (*EmailRequester, error) {
	email = CanonicalAddress(email)
	if !ValidAddress(email) {
		return nil, apperr.Validation("requester email %q is not a valid address", email)
	}
	return &EmailRequester{Email: email}, nil
}
