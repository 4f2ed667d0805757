package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vipul43/mailpilot/internal/metrics"
	"github.com/vipul43/mailpilot/internal/models"
)

// InboxQuery selects the messages considered for sync
const InboxQuery = "in:inbox"

var (
	ErrNoMessages       = errors.New("no messages found in inbox")
	ErrNothingRetrieved = errors.New("no message metadata could be retrieved")
)

type SyncOptions struct {
	MaxEmailsPerUser int
	TargetFetch      int
	BatchSize        int
	CallTimeout      time.Duration
}

// DefaultSyncOptions mirrors the production defaults
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		MaxEmailsPerUser: 500,
		TargetFetch:      10,
		BatchSize:        10,
		CallTimeout:      30 * time.Second,
	}
}

// SyncResult reports what one sync run did
type SyncResult struct {
	Seen      int // ids listed by the mail source
	Retrieved int // messages whose metadata was fetched
	Inserted  int // rows newly written
	Trimmed   int // rows evicted to stay within capacity
}

// EmailSyncer pulls recent inbox messages into the store without duplicates
// and keeps each user within MaxEmailsPerUser rows.
type EmailSyncer struct {
	source MailSource
	store  EmailStore
	queue  EnrichmentQueue
	opts   SyncOptions
	log    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEmailSyncer(source MailSource, store EmailStore, queue EnrichmentQueue, opts SyncOptions, log *zap.Logger) *EmailSyncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailSyncer{
		source: source,
		store:  store,
		queue:  queue,
		opts:   opts,
		log:    log.Named("sync"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Sync runs one list/fetch/dedupe/insert/trim pass for userID.
// Only ErrNoMessages, ErrNothingRetrieved and a failed listing are returned;
// partial failures after that are logged and skipped.
func (s *EmailSyncer) Sync(ctx context.Context, accessToken, userID string) (SyncResult, error) {
	start := time.Now()
	result, err := s.sync(ctx, accessToken, userID)

	outcome := "success"
	switch {
	case errors.Is(err, ErrNoMessages):
		outcome = "no_messages"
	case errors.Is(err, ErrNothingRetrieved):
		outcome = "nothing_retrieved"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordSync(outcome, time.Since(start))
	metrics.RecordSyncEmails("retrieved", result.Retrieved)
	metrics.RecordSyncEmails("inserted", result.Inserted)
	metrics.RecordSyncEmails("trimmed", result.Trimmed)

	return result, err
}

func (s *EmailSyncer) sync(ctx context.Context, accessToken, userID string) (SyncResult, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var result SyncResult

	listCtx, cancel := s.callContext(ctx)
	ids, err := s.source.ListMessageIDs(listCtx, accessToken, InboxQuery, s.opts.TargetFetch)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to list messages: %w", err)
	}
	result.Seen = len(ids)
	if len(ids) == 0 {
		return result, ErrNoMessages
	}

	messages := s.fetchMetadata(ctx, accessToken, ids)
	result.Retrieved = len(messages)
	if len(messages) == 0 {
		return result, ErrNothingRetrieved
	}

	storeCtx, cancel := s.callContext(ctx)
	existing, err := s.store.ExistingMessageIDs(storeCtx, userID)
	cancel()
	if err != nil {
		// the unique index still rejects duplicates
		s.log.Warn("could not load stored message ids, inserting all", zap.String("user_id", userID), zap.Error(err))
		existing = nil
	}
	stored := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		stored[id] = struct{}{}
	}

	var rows []models.Email
	for _, msg := range messages {
		normalized := Normalize(msg)
		if _, ok := stored[normalized.MessageID]; ok {
			continue
		}
		stored[normalized.MessageID] = struct{}{}
		rows = append(rows, normalized.Record(userID))
	}

	inserted, written := s.insert(ctx, rows)
	result.Inserted = inserted

	if len(written) > 0 && s.queue != nil {
		if !s.queue.Enqueue(userID, written) {
			s.log.Warn("enrichment queue full, summaries deferred to backfill",
				zap.String("user_id", userID), zap.Int("count", len(written)))
		}
	}

	result.Trimmed = s.Trim(ctx, userID)

	s.log.Info("sync complete",
		zap.String("user_id", userID),
		zap.Int("seen", result.Seen),
		zap.Int("retrieved", result.Retrieved),
		zap.Int("inserted", result.Inserted),
		zap.Int("trimmed", result.Trimmed))

	return result, nil
}

// fetchMetadata batch-fetches ids, then retries each missing id once on its own.
// A failed batch call means every id is fetched individually.
func (s *EmailSyncer) fetchMetadata(ctx context.Context, accessToken string, ids []string) []RawMessage {
	batchCtx, cancel := s.callContext(ctx)
	messages, err := s.source.BatchGetMetadata(batchCtx, accessToken, ids)
	cancel()
	if err != nil {
		s.log.Warn("batch metadata fetch failed, falling back to single fetches", zap.Error(err))
		messages = nil
	}

	got := make(map[string]struct{}, len(messages))
	for _, m := range messages {
		got[m.ID] = struct{}{}
	}

	for _, id := range ids {
		if _, ok := got[id]; ok {
			continue
		}
		if ctx.Err() != nil {
			s.log.Warn("sync cancelled during metadata fetch", zap.Error(ctx.Err()))
			break
		}

		callCtx, cancel := s.callContext(ctx)
		msg, err := s.source.GetMetadata(callCtx, accessToken, id)
		cancel()
		if err != nil || msg == nil {
			s.log.Warn("skipping message", zap.String("message_id", id), zap.Error(err))
			continue
		}
		got[id] = struct{}{}
		messages = append(messages, *msg)
	}

	return messages
}

// insert writes rows in BatchSize chunks. A failed chunk is retried row by row.
// It returns the affected-row count and the message ids this call actually
// wrote; rows skipped by the unique constraint are not among them.
func (s *EmailSyncer) insert(ctx context.Context, rows []models.Email) (int, []string) {
	var inserted int
	var written []string

	for start := 0; start < len(rows); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		n, err := s.insertBatch(ctx, batch)
		if err == nil {
			inserted += int(n)
			if int(n) == len(batch) {
				for _, row := range batch {
					written = append(written, row.MessageID)
				}
			} else {
				written = append(written, s.ownedRows(ctx, batch)...)
			}
			continue
		}

		s.log.Warn("batch insert failed, retrying rows individually", zap.Int("size", len(batch)), zap.Error(err))
		for _, row := range batch {
			n, err := s.insertBatch(ctx, []models.Email{row})
			if err != nil {
				s.log.Warn("row insert failed", zap.String("message_id", row.MessageID), zap.Error(err))
				continue
			}
			inserted += int(n)
			if n > 0 {
				written = append(written, row.MessageID)
			}
		}
	}

	return inserted, written
}

func (s *EmailSyncer) insertBatch(ctx context.Context, batch []models.Email) (int64, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.store.InsertBatch(callCtx, batch)
}

// ownedRows returns the message ids of batch rows whose stored id is the one
// generated here. A conflicting row keeps the id it was first stored with.
func (s *EmailSyncer) ownedRows(ctx context.Context, batch []models.Email) []string {
	var owned []string
	for _, row := range batch {
		callCtx, cancel := s.callContext(ctx)
		stored, err := s.store.GetByMessageID(callCtx, row.UserID, row.MessageID)
		cancel()
		if err != nil {
			s.log.Warn("could not confirm inserted row", zap.String("message_id", row.MessageID), zap.Error(err))
			continue
		}
		if stored.ID == row.ID {
			owned = append(owned, row.MessageID)
		}
	}
	return owned
}

// Trim keeps the user's MaxEmailsPerUser most recent rows by date and deletes the rest.
// Failures are logged; it returns how many rows were removed.
func (s *EmailSyncer) Trim(ctx context.Context, userID string) int {
	callCtx, cancel := s.callContext(ctx)
	keep, err := s.store.RecentMessageIDs(callCtx, userID, s.opts.MaxEmailsPerUser)
	cancel()
	if err != nil {
		s.log.Warn("trim skipped", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	if len(keep) < s.opts.MaxEmailsPerUser {
		return 0
	}

	callCtx, cancel = s.callContext(ctx)
	defer cancel()
	deleted, err := s.store.DeleteExcept(callCtx, userID, keep)
	if err != nil {
		s.log.Warn("trim failed", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	return int(deleted)
}

func (s *EmailSyncer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.CallTimeout)
}

func (s *EmailSyncer) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}
