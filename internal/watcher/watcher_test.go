package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vipul43/mailpilot/internal/auth"
	"github.com/vipul43/mailpilot/internal/service"
)

type mockTokens struct {
	err error
}

func (m *mockTokens) AccessToken(ctx context.Context, userID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "token", nil
}

type mockSyncer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockSyncer) Sync(ctx context.Context, accessToken, userID string) (service.SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return service.SyncResult{Seen: 1}, m.err
}

func (m *mockSyncer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockBackfiller struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockBackfiller) Backfill(ctx context.Context, userID string, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return 2, m.err
}

func (m *mockBackfiller) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestTick(t *testing.T) {
	tests := []struct {
		name          string
		tokenErr      error
		syncErr       error
		backfillErr   error
		expectedSyncs int
	}{
		{"authenticated", nil, nil, nil, 1},
		{"not authenticated", auth.ErrNotAuthenticated, nil, nil, 0},
		{"refresh failed", auth.ErrRefreshFailed, nil, nil, 0},
		{"sync error still backfills", nil, errors.New("gmail down"), nil, 1},
		{"backfill error", nil, nil, errors.New("db down"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &mockSyncer{err: tt.syncErr}
			backfiller := &mockBackfiller{err: tt.backfillErr}
			w := New(time.Minute, "demo_user", &mockTokens{err: tt.tokenErr}, syncer, backfiller, nil)

			w.tick(context.Background())

			if syncer.count() != tt.expectedSyncs {
				t.Errorf("expected %d syncs, got %d", tt.expectedSyncs, syncer.count())
			}
			if backfiller.count() != 1 {
				t.Errorf("expected one backfill, got %d", backfiller.count())
			}
		})
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	syncer := &mockSyncer{}
	backfiller := &mockBackfiller{}
	w := New(10*time.Millisecond, "demo_user", &mockTokens{}, syncer, backfiller, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for syncer.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	if syncer.count() == 0 {
		t.Error("expected at least one periodic sync")
	}
	if backfiller.count() < 1 {
		t.Error("expected startup backfill")
	}
}

func TestStart_DisabledInterval(t *testing.T) {
	syncer := &mockSyncer{}
	backfiller := &mockBackfiller{}
	w := New(0, "demo_user", &mockTokens{}, syncer, backfiller, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if syncer.count() != 0 {
		t.Errorf("expected no periodic syncs, got %d", syncer.count())
	}
	if backfiller.count() != 1 {
		t.Errorf("expected startup backfill only, got %d", backfiller.count())
	}
}
