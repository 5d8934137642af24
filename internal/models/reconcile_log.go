package models

import "time"

const (
	ReconcileStatusSuccess = "success"
	ReconcileStatusFailure = "failure"

	// ReconcileModePoll is a scheduled or triggered poll of new mail.
	ReconcileModePoll = "poll"
	// ReconcileModeBootstrap is the initial import run for a new bot.
	ReconcileModeBootstrap = "bootstrap"
)

// ReconcileLog records the outcome of one bot's batch within a poll.
type ReconcileLog struct {
	ID                   uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	EmailBotID           uint      `json:"bot_id" gorm:"not null;index"`
	Mode                 string    `json:"mode" gorm:"type:varchar(20);not null"`
	Status               string    `json:"status" gorm:"type:varchar(20);not null"`
	Received             int       `json:"received"`
	ConversationsCreated int       `json:"conversations_created"`
	MessagesStored       int       `json:"messages_stored"`
	Duplicates           int       `json:"duplicates"`
	Skipped              int       `json:"skipped"`
	ErrorKind            string    `json:"error_kind,omitempty" gorm:"type:varchar(20)"`
	ErrorMsg             string    `json:"error_msg,omitempty" gorm:"type:text"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
	CreatedAt            time.Time `json:"created_at"`

	Bot *EmailBot `json:"bot,omitempty" gorm:"foreignKey:EmailBotID"`
}

// TableName specifies the table name for ReconcileLog
func (ReconcileLog) TableName() string {
	return "reconcile_logs"
}

// All returns every model managed by migrations, parents first.
func All() []interface{} {
	return []interface{}{
		&EmailBot{},
		&EmailRequester{},
		&EmailConversation{},
		&EmailMessage{},
		&ReconcileLog{},
	}
}
