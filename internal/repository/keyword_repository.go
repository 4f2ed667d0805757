package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vipul43/mailpilot/internal/models"
	"gorm.io/gorm"
)

var ErrKeywordExists = errors.New("keyword already exists")

type KeywordRepository struct {
	db *gorm.DB
}

func NewKeywordRepository(db *gorm.DB) *KeywordRepository {
	return &KeywordRepository{db: db}
}

// List returns the user's keywords in insertion order
func (r *KeywordRepository) List(ctx context.Context, userID string) ([]string, error) {
	var keywords []string
	result := r.db.WithContext(ctx).Model(&models.Keyword{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("keyword", &keywords)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", result.Error)
	}
	return keywords, nil
}

// Create stores an already-normalized keyword
func (r *KeywordRepository) Create(ctx context.Context, keyword models.Keyword) error {
	if err := r.db.WithContext(ctx).Create(&keyword).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrKeywordExists
		}
		return fmt.Errorf("failed to create keyword: %w", err)
	}
	return nil
}

// Delete removes a keyword; deleting a missing keyword succeeds
func (r *KeywordRepository) Delete(ctx context.Context, userID, keyword string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND keyword = ?", userID, keyword).
		Delete(&models.Keyword{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete keyword: %w", result.Error)
	}
	return nil
}
