package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Keyword struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    string    `gorm:"column:user_id"`
	Keyword   string    `gorm:"column:keyword"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (Keyword) TableName() string {
	return "keywords"
}

// NormalizeKeyword lowercases and trims a keyword the way it is stored.
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

func NewKeyword(userID, keyword string) Keyword {
	return Keyword{
		ID:        uuid.New(),
		UserID:    userID,
		Keyword:   NormalizeKeyword(keyword),
		CreatedAt: time.Now().UTC(),
	}
}
