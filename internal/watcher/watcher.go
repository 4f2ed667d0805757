package watcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vipul43/mailpilot/internal/auth"
	"github.com/vipul43/mailpilot/internal/service"
)

// backfillLimit caps how many unsummarized rows are re-enqueued per tick
const backfillLimit = 100

type Backfiller interface {
	Backfill(ctx context.Context, userID string, limit int) (int, error)
}

// Watcher periodically syncs the session user's inbox and re-enqueues
// stored rows that never received a summary.
type Watcher struct {
	interval   time.Duration
	userID     string
	tokens     service.TokenProvider
	syncer     service.Syncer
	backfiller Backfiller
	log        *zap.Logger
}

func New(interval time.Duration, userID string, tokens service.TokenProvider, syncer service.Syncer, backfiller Backfiller, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		interval:   interval,
		userID:     userID,
		tokens:     tokens,
		syncer:     syncer,
		backfiller: backfiller,
		log:        log.Named("watcher"),
	}
}

// Start runs until ctx is cancelled. A non-positive interval only runs the
// startup backfill.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.Info("starting watcher", zap.Duration("interval", w.interval), zap.String("user_id", w.userID))

	// Rows left unsummarized by a previous run
	w.backfill(ctx)

	if w.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher shutting down")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	w.syncUser(ctx)
	w.backfill(ctx)
}

func (w *Watcher) syncUser(ctx context.Context) {
	token, err := w.tokens.AccessToken(ctx, w.userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			w.log.Debug("user not authenticated, skipping periodic sync", zap.String("user_id", w.userID))
			return
		}
		w.log.Warn("periodic sync skipped", zap.String("user_id", w.userID), zap.Error(err))
		return
	}

	result, err := w.syncer.Sync(ctx, token, w.userID)
	if err != nil {
		if errors.Is(err, service.ErrNoMessages) {
			return
		}
		w.log.Error("periodic sync failed", zap.String("user_id", w.userID), zap.Error(err))
		return
	}

	w.log.Info("periodic sync completed",
		zap.String("user_id", w.userID),
		zap.Int("seen", result.Seen),
		zap.Int("inserted", result.Inserted),
		zap.Int("trimmed", result.Trimmed))
}

func (w *Watcher) backfill(ctx context.Context) {
	n, err := w.backfiller.Backfill(ctx, w.userID, backfillLimit)
	if err != nil {
		w.log.Warn("summary backfill failed", zap.String("user_id", w.userID), zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Info("re-enqueued rows without summary", zap.String("user_id", w.userID), zap.Int("count", n))
	}
}
