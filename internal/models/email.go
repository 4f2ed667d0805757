package models

import (
	"time"

	"github.com/google/uuid"
)

// Email is a normalized inbox message owned by a single user.
// (user_id, message_id) is unique; see migrations/000001_init.up.sql.
type Email struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    string    `gorm:"column:user_id"`
	MessageID string    `gorm:"column:message_id"`
	FromEmail string    `gorm:"column:from_email"`
	Subject   string    `gorm:"column:subject"`
	Snippet   string    `gorm:"column:snippet"`
	Date      time.Time `gorm:"column:date"`
	Summary   *string   `gorm:"column:summary"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (Email) TableName() string {
	return "emails"
}

// NewEmail builds a row ready for insertion. CreatedAt is the ingestion time.
func NewEmail(userID, messageID, from, subject, snippet string, date time.Time) Email {
	return Email{
		ID:        uuid.New(),
		UserID:    userID,
		MessageID: messageID,
		FromEmail: from,
		Subject:   subject,
		Snippet:   snippet,
		Date:      date,
		CreatedAt: time.Now().UTC(),
	}
}

// DisplaySummary returns the stored summary, or the snippet while enrichment is pending.
func (e Email) DisplaySummary() string {
	if e.Summary != nil && *e.Summary != "" {
		return *e.Summary
	}
	return e.Snippet
}
