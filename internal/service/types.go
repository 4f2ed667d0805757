package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vipul43/mailpilot/internal/models"
)

// MailSource lists and fetches message metadata from the user's mailbox
type MailSource interface {
	ListMessageIDs(ctx context.Context, accessToken string, query string, maxResults int) ([]string, error)
	// BatchGetMetadata may return fewer messages than requested; it fails only when nothing could be fetched.
	BatchGetMetadata(ctx context.Context, accessToken string, messageIDs []string) ([]RawMessage, error)
	GetMetadata(ctx context.Context, accessToken string, messageID string) (*RawMessage, error)
	// CountMessages returns the mail source's estimate of messages matching query
	CountMessages(ctx context.Context, accessToken string, query string) (int, error)
}

// EmailStore is the persistence surface the sync path and query layer need
type EmailStore interface {
	ExistingMessageIDs(ctx context.Context, userID string) ([]string, error)
	InsertBatch(ctx context.Context, emails []models.Email) (int64, error)
	RecentMessageIDs(ctx context.Context, userID string, limit int) ([]string, error)
	DeleteExcept(ctx context.Context, userID string, keep []string) (int64, error)
	GetByMessageID(ctx context.Context, userID, messageID string) (*models.Email, error)
	UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error
	List(ctx context.Context, userID string, orderBy string, limit int) ([]models.Email, error)
	MissingSummaryIDs(ctx context.Context, userID string, limit int) ([]string, error)
}

type KeywordStore interface {
	List(ctx context.Context, userID string) ([]string, error)
	Create(ctx context.Context, keyword models.Keyword) error
	Delete(ctx context.Context, userID, keyword string) error
}

// Summarizer produces a short abstractive summary. Any error means unavailable.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error)
}

// EnrichmentQueue accepts newly inserted message ids for background summarization.
// Enqueue never blocks; it reports whether the job was accepted.
type EnrichmentQueue interface {
	Enqueue(userID string, messageIDs []string) bool
}

// Header is a single message header as returned by the mail source
type Header struct {
	Name  string
	Value string
}

// RawMessage is the metadata view of one mailbox message
type RawMessage struct {
	ID           string
	Headers      []Header
	Snippet      string
	InternalDate int64 // milliseconds since epoch
}
