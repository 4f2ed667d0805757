package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type mockSummarizer struct {
	summarizeFunc func(ctx context.Context, text string, maxLength, minLength int) (string, error)
}

func (m *mockSummarizer) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	if m.summarizeFunc != nil {
		return m.summarizeFunc(ctx, text, maxLength, minLength)
	}
	return "", errors.New("not configured")
}

func TestSummaryInput(t *testing.T) {
	got := SummaryInput("Invoice", "Please pay")
	if got != "Subject: Invoice\n\nPlease pay" {
		t.Errorf("unexpected input: %q", got)
	}

	long := SummaryInput("S", strings.Repeat("x", 2000))
	if len([]rune(long)) != SummaryInputLimit {
		t.Errorf("expected input capped at %d chars, got %d", SummaryInputLimit, len([]rune(long)))
	}
}

func TestFallbackSummary(t *testing.T) {
	tests := []struct {
		name     string
		snippet  string
		expected string
	}{
		{"short", "hello", "hello"},
		{"exactly limit", strings.Repeat("a", 100), strings.Repeat("a", 100)},
		{"over limit", strings.Repeat("a", 101), strings.Repeat("a", 100) + "..."},
		{"multibyte", strings.Repeat("é", 120), strings.Repeat("é", 100) + "..."},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallbackSummary(tt.snippet); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEnricher_EnrichOne_WritesSummary(t *testing.T) {
	store := newMemEmailStore(storedEmail(testUser, "m1", "Alice", "Invoice", "Please pay by Friday", baseTime))
	var gotText string
	var gotMax, gotMin int
	summarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, text string, maxLength, minLength int) (string, error) {
			gotText, gotMax, gotMin = text, maxLength, minLength
			return "Pay the invoice by Friday.", nil
		},
	}
	enricher := NewEnricher(store, summarizer, 1, 10, time.Second, nil)

	if err := enricher.EnrichOne(context.Background(), testUser, "m1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	row, _ := store.GetByMessageID(context.Background(), testUser, "m1")
	if row.Summary == nil || *row.Summary != "Pay the invoice by Friday." {
		t.Errorf("unexpected summary: %v", row.Summary)
	}
	if gotText != "Subject: Invoice\n\nPlease pay by Friday" || gotMax != 80 || gotMin != 15 {
		t.Errorf("unexpected summarizer call: %q %d %d", gotText, gotMax, gotMin)
	}
}

func TestEnricher_EnrichOne_FallbackOnFailure(t *testing.T) {
	snippet := strings.Repeat("word ", 30)
	store := newMemEmailStore(storedEmail(testUser, "m1", "Alice", "Hi", snippet, baseTime))
	summarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, text string, maxLength, minLength int) (string, error) {
			return "", errors.New("503 model loading")
		},
	}
	enricher := NewEnricher(store, summarizer, 1, 10, time.Second, nil)

	if err := enricher.EnrichOne(context.Background(), testUser, "m1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	row, _ := store.GetByMessageID(context.Background(), testUser, "m1")
	if row.Summary == nil || *row.Summary != snippet[:100]+"..." {
		t.Errorf("expected snippet fallback, got %v", row.Summary)
	}
}

func TestEnricher_EnrichOne_TimeoutUsesFallback(t *testing.T) {
	store := newMemEmailStore(storedEmail(testUser, "m1", "Alice", "Hi", "short snippet", baseTime))
	summarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, text string, maxLength, minLength int) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	enricher := NewEnricher(store, summarizer, 1, 10, 10*time.Millisecond, nil)

	if err := enricher.EnrichOne(context.Background(), testUser, "m1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	row, _ := store.GetByMessageID(context.Background(), testUser, "m1")
	if row.Summary == nil || *row.Summary != "short snippet" {
		t.Errorf("expected snippet fallback, got %v", row.Summary)
	}
}

func TestEnricher_EnrichOne_MissingRowSkipped(t *testing.T) {
	store := newMemEmailStore()
	called := false
	summarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, text string, maxLength, minLength int) (string, error) {
			called = true
			return "x", nil
		},
	}
	enricher := NewEnricher(store, summarizer, 1, 10, time.Second, nil)

	if err := enricher.EnrichOne(context.Background(), testUser, "gone"); err != nil {
		t.Fatalf("expected missing row to be skipped, got %v", err)
	}
	if called {
		t.Error("expected summarizer not to be called for a missing row")
	}
	if store.updates != 0 {
		t.Errorf("expected no updates, got %d", store.updates)
	}
}

func TestEnricher_WorkersDrainQueueOnStop(t *testing.T) {
	store := newMemEmailStore(
		storedEmail(testUser, "m1", "Alice", "One", "first", baseTime),
		storedEmail(testUser, "m2", "Bob", "Two", "second", baseTime),
	)
	summarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, text string, maxLength, minLength int) (string, error) {
			return "summary", nil
		},
	}
	enricher := NewEnricher(store, summarizer, 2, 10, time.Second, nil)
	enricher.Start()

	if !enricher.Enqueue(testUser, []string{"m1", "m2"}) {
		t.Fatal("expected job to be accepted")
	}
	enricher.Stop()

	missing, _ := store.MissingSummaryIDs(context.Background(), testUser, 10)
	if len(missing) != 0 {
		t.Errorf("expected all rows summarized after Stop, missing %v", missing)
	}
	if enricher.Enqueue(testUser, []string{"m1"}) {
		t.Error("expected Enqueue to refuse jobs after Stop")
	}
}

func TestEnricher_EnqueueDoesNotBlockWhenFull(t *testing.T) {
	enricher := NewEnricher(newMemEmailStore(), nil, 1, 1, time.Second, nil)

	if !enricher.Enqueue(testUser, []string{"m1"}) {
		t.Fatal("expected first job to fit in the queue")
	}

	done := make(chan bool, 1)
	go func() { done <- enricher.Enqueue(testUser, []string{"m2"}) }()

	select {
	case accepted := <-done:
		if accepted {
			t.Error("expected full queue to reject the job")
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestEnricher_Backfill(t *testing.T) {
	summary := "done"
	summarized := storedEmail(testUser, "m1", "Alice", "One", "first", baseTime)
	summarized.Summary = &summary
	store := newMemEmailStore(summarized, storedEmail(testUser, "m2", "Bob", "Two", "second", baseTime))
	enricher := NewEnricher(store, nil, 1, 10, time.Second, nil)

	n, err := enricher.Backfill(context.Background(), testUser, 50)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row re-enqueued, got %d", n)
	}

	enricher.Start()
	enricher.Stop()

	row, _ := store.GetByMessageID(context.Background(), testUser, "m2")
	if row.Summary == nil || *row.Summary != "second" {
		t.Errorf("expected fallback summary for backfilled row, got %v", row.Summary)
	}
}

func TestEnricher_EnrichOne_StoreCallsBoundedByTimeout(t *testing.T) {
	tests := []struct {
		name    string
		stalled string
	}{
		{"load", "GetByMessageID"},
		{"write back", "UpdateSummary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stallingEmailStore{
				memEmailStore: newMemEmailStore(storedEmail(testUser, "m1", "Alice", "Hi", "snippet", baseTime)),
				stalled:       map[string]bool{tt.stalled: true},
			}
			summarizer := &mockSummarizer{
				summarizeFunc: func(ctx context.Context, text string, maxLength, minLength int) (string, error) {
					return "summary", nil
				},
			}
			enricher := NewEnricher(store, summarizer, 1, 10, 50*time.Millisecond, nil)

			done := make(chan error, 1)
			go func() { done <- enricher.EnrichOne(context.Background(), testUser, "m1") }()

			select {
			case err := <-done:
				if !errors.Is(err, context.DeadlineExceeded) {
					t.Errorf("expected deadline exceeded, got %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("enrichment still blocked on a stalled store")
			}
		})
	}
}
