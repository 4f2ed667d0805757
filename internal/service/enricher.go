package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vipul43/mailpilot/internal/metrics"
	"github.com/vipul43/mailpilot/internal/repository"
)

const (
	SummaryInputLimit   = 1000
	SummaryMaxLength    = 80
	SummaryMinLength    = 15
	FallbackSnippetSize = 100
)

// EnrichmentJob asks for summaries of freshly inserted messages
type EnrichmentJob struct {
	UserID     string
	MessageIDs []string
}

// Enricher summarizes stored emails in the background with a fixed worker pool.
type Enricher struct {
	store       EmailStore
	summarizer  Summarizer
	callTimeout time.Duration
	log         *zap.Logger

	jobs        chan EnrichmentJob
	workerCount int
	wg          sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewEnricher(store EmailStore, summarizer Summarizer, workerCount, queueSize int, callTimeout time.Duration, log *zap.Logger) *Enricher {
	if workerCount <= 0 {
		workerCount = 3
	}
	if queueSize <= 0 {
		queueSize = 500
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Enricher{
		store:       store,
		summarizer:  summarizer,
		callTimeout: callTimeout,
		log:         log.Named("enricher"),
		jobs:        make(chan EnrichmentJob, queueSize),
		workerCount: workerCount,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (e *Enricher) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.stopped {
		return
	}
	for i := 0; i < e.workerCount; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.started = true
	e.log.Info("workers started", zap.Int("count", e.workerCount))
}

// Stop closes the queue and waits for queued jobs to drain
func (e *Enricher) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.jobs)
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Info("workers stopped")
}

// Enqueue hands ids to the pool without blocking. It returns false when the
// queue is full or the pool is stopped; the backfill picks those rows up later.
func (e *Enricher) Enqueue(userID string, messageIDs []string) bool {
	if len(messageIDs) == 0 {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}

	select {
	case e.jobs <- EnrichmentJob{UserID: userID, MessageIDs: append([]string(nil), messageIDs...)}:
		return true
	default:
		metrics.EnrichmentDropped.Inc()
		return false
	}
}

// Backfill re-enqueues up to limit rows whose summary is still missing
func (e *Enricher) Backfill(ctx context.Context, userID string, limit int) (int, error) {
	callCtx, cancel := e.callContext(ctx)
	ids, err := e.store.MissingSummaryIDs(callCtx, userID, limit)
	cancel()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if !e.Enqueue(userID, ids) {
		return 0, fmt.Errorf("enrichment queue unavailable")
	}
	return len(ids), nil
}

func (e *Enricher) worker(id int) {
	defer e.wg.Done()

	for job := range e.jobs {
		for _, messageID := range job.MessageIDs {
			if err := e.EnrichOne(context.Background(), job.UserID, messageID); err != nil {
				e.log.Warn("enrichment failed",
					zap.Int("worker", id),
					zap.String("message_id", messageID),
					zap.Error(err))
			}
		}
	}
}

// EnrichOne summarizes a single stored email and writes the summary back.
// A row that no longer exists is skipped silently.
func (e *Enricher) EnrichOne(ctx context.Context, userID, messageID string) error {
	loadCtx, cancel := e.callContext(ctx)
	email, err := e.store.GetByMessageID(loadCtx, userID, messageID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrEmailNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load email: %w", err)
	}

	summary, source := e.summarize(ctx, email.Subject, email.Snippet)

	writeCtx, cancel := e.callContext(ctx)
	defer cancel()
	if err := e.store.UpdateSummary(writeCtx, email.ID, summary); err != nil {
		return err
	}
	metrics.RecordSummary(source)
	return nil
}

func (e *Enricher) summarize(ctx context.Context, subject, snippet string) (string, string) {
	if e.summarizer == nil {
		return FallbackSummary(snippet), "fallback"
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	summary, err := e.summarizer.Summarize(callCtx, SummaryInput(subject, snippet), SummaryMaxLength, SummaryMinLength)
	if err != nil || summary == "" {
		e.log.Debug("summarizer unavailable, using snippet", zap.Error(err))
		return FallbackSummary(snippet), "fallback"
	}
	return summary, "summarizer"
}

// callContext bounds one store or summarizer call by callTimeout
func (e *Enricher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

// SummaryInput is the text handed to the summarizer, capped at SummaryInputLimit characters
func SummaryInput(subject, snippet string) string {
	return truncateRunes(fmt.Sprintf("Subject: %s\n\n%s", subject, snippet), SummaryInputLimit)
}

// FallbackSummary is the first FallbackSnippetSize characters of the snippet, with "..." when cut
func FallbackSummary(snippet string) string {
	cut := truncateRunes(snippet, FallbackSnippetSize)
	if cut != snippet {
		return cut + "..."
	}
	return snippet
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
