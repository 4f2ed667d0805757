package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/vipul43/mailpilot/internal/models"
	"github.com/vipul43/mailpilot/internal/repository"
)

var ErrEmptyKeyword = errors.New("keyword must not be empty")

// EmailQuery serves the read side of the store plus keyword management.
// Read failures degrade to empty results.
type EmailQuery struct {
	emails   EmailStore
	keywords KeywordStore
	log      *zap.Logger
}

func NewEmailQuery(emails EmailStore, keywords KeywordStore, log *zap.Logger) *EmailQuery {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailQuery{emails: emails, keywords: keywords, log: log.Named("query")}
}

// RecentEmails returns the user's newest emails by date, falling back to ingestion order
func (q *EmailQuery) RecentEmails(ctx context.Context, userID string, limit int) []models.Email {
	return q.listNewest(ctx, userID, limit)
}

// ImportantEmails returns, newest first, up to limit emails whose subject,
// snippet or sender contains one of the user's keywords.
func (q *EmailQuery) ImportantEmails(ctx context.Context, userID string, limit int) []models.Email {
	keywords := q.ListKeywords(ctx, userID)
	if len(keywords) == 0 {
		return []models.Email{}
	}

	var important []models.Email
	for _, email := range q.listNewest(ctx, userID, 0) {
		if MatchesAnyKeyword(email, keywords) {
			important = append(important, email)
			if len(important) == limit {
				break
			}
		}
	}
	if important == nil {
		return []models.Email{}
	}
	return important
}

// MatchesAnyKeyword reports whether any keyword is a substring of the
// lowercased subject, snippet or sender.
func MatchesAnyKeyword(email models.Email, keywords []string) bool {
	subject := strings.ToLower(email.Subject)
	snippet := strings.ToLower(email.Snippet)
	from := strings.ToLower(email.FromEmail)

	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(subject, kw) || strings.Contains(snippet, kw) || strings.Contains(from, kw) {
			return true
		}
	}
	return false
}

func (q *EmailQuery) listNewest(ctx context.Context, userID string, limit int) []models.Email {
	emails, err := q.emails.List(ctx, userID, repository.OrderByDate, limit)
	if err == nil {
		return emails
	}
	q.log.Warn("date ordering failed, trying created_at", zap.String("user_id", userID), zap.Error(err))

	emails, err = q.emails.List(ctx, userID, repository.OrderByCreatedAt, limit)
	if err != nil {
		q.log.Error("email query failed", zap.String("user_id", userID), zap.Error(err))
		return []models.Email{}
	}
	return emails
}

// ListKeywords returns the user's keywords, or none when the store is unavailable
func (q *EmailQuery) ListKeywords(ctx context.Context, userID string) []string {
	keywords, err := q.keywords.List(ctx, userID)
	if err != nil {
		q.log.Error("keyword query failed", zap.String("user_id", userID), zap.Error(err))
		return []string{}
	}
	if keywords == nil {
		return []string{}
	}
	return keywords
}

// AddKeyword stores the normalized keyword and returns it.
// Returns ErrEmptyKeyword or repository.ErrKeywordExists on rejection.
func (q *EmailQuery) AddKeyword(ctx context.Context, userID, keyword string) (string, error) {
	normalized := models.NormalizeKeyword(keyword)
	if normalized == "" {
		return "", ErrEmptyKeyword
	}
	if err := q.keywords.Create(ctx, models.NewKeyword(userID, normalized)); err != nil {
		return "", err
	}
	return normalized, nil
}

// RemoveKeyword deletes the normalized keyword; removing an absent keyword succeeds
func (q *EmailQuery) RemoveKeyword(ctx context.Context, userID, keyword string) (string, error) {
	normalized := models.NormalizeKeyword(keyword)
	if normalized == "" {
		return "", ErrEmptyKeyword
	}
	if err := q.keywords.Delete(ctx, userID, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
