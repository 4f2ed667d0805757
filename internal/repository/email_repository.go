package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vipul43/mailpilot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEmailNotFound = errors.New("email not found")

// Email ordering columns accepted by List.
const (
	OrderByDate      = "date"
	OrderByCreatedAt = "created_at"
)

type EmailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) *EmailRepository {
	return &EmailRepository{db: db}
}

// ExistingMessageIDs returns every stored message id for the user
func (r *EmailRepository) ExistingMessageIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("user_id = ?", userID).
		Pluck("message_id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list message ids: %w", result.Error)
	}
	return ids, nil
}

// InsertBatch inserts rows, silently skipping (user_id, message_id) conflicts.
// Returns the number of rows actually written.
func (r *EmailRepository) InsertBatch(ctx context.Context, emails []models.Email) (int64, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(&emails)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to insert emails: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RecentMessageIDs returns the message ids of the user's newest rows by date
func (r *EmailRepository) RecentMessageIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("user_id = ?", userID).
		Order("date DESC").
		Order("created_at DESC").
		Limit(limit).
		Pluck("message_id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list recent message ids: %w", result.Error)
	}
	return ids, nil
}

// DeleteExcept removes all of the user's rows whose message id is not in keep
func (r *EmailRepository) DeleteExcept(ctx context.Context, userID string, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND message_id NOT IN ?", userID, keep).
		Delete(&models.Email{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to trim emails: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetByMessageID retrieves a single row
func (r *EmailRepository) GetByMessageID(ctx context.Context, userID, messageID string) (*models.Email, error) {
	var email models.Email
	result := r.db.WithContext(ctx).First(&email, "user_id = ? AND message_id = ?", userID, messageID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrEmailNotFound
		}
		return nil, fmt.Errorf("failed to get email: %w", result.Error)
	}
	return &email, nil
}

// UpdateSummary writes the summary by row id. A row removed in the meantime is not an error.
func (r *EmailRepository) UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error {
	result := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("id = ?", id).
		Update("summary", summary)
	if result.Error != nil {
		return fmt.Errorf("failed to update summary: %w", result.Error)
	}
	return nil
}

// List returns the user's rows ordered descending by orderBy. limit <= 0 means no limit.
func (r *EmailRepository) List(ctx context.Context, userID string, orderBy string, limit int) ([]models.Email, error) {
	if orderBy != OrderByDate && orderBy != OrderByCreatedAt {
		return nil, fmt.Errorf("unsupported order column %q", orderBy)
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: orderBy}, Desc: true})
	if limit > 0 {
		query = query.Limit(limit)
	}

	var emails []models.Email
	if err := query.Find(&emails).Error; err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// MissingSummaryIDs returns message ids still waiting for enrichment, oldest ingestion first
func (r *EmailRepository) MissingSummaryIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("user_id = ? AND summary IS NULL", userID).
		Order("created_at ASC").
		Limit(limit).
		Pluck("message_id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list unsummarized emails: %w", result.Error)
	}
	return ids, nil
}
