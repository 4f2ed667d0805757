package service

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) // a Friday
}

func email(from, subject, snippet string) NormalizedEmail {
	return NormalizedEmail{From: from, Subject: subject, Snippet: snippet}
}

func TestDigestComposer_Compose(t *testing.T) {
	tests := []struct {
		name     string
		today    []NormalizedEmail
		weekly   int
		keywords []string
		expected string
	}{
		{
			name:     "no emails today",
			weekly:   12,
			keywords: []string{"invoice"},
			expected: "You received 12 emails this week. No emails received today.",
		},
		{
			name: "only unmatched senders",
			today: []NormalizedEmail{
				email("Alice", "Hi", ""),
				email("Bob", "Yo", ""),
				email("Alice", "Again", ""),
			},
			weekly:   10,
			expected: "On Friday, March 01, you received 3 emails. Other emails came from Alice (2 emails), Bob. bringing your weekly total to 10 emails (7 from previous days).",
		},
		{
			name: "single keyword match",
			today: []NormalizedEmail{
				email("Billing <b@x.com>", "Your invoice", "amount due"),
				email("Bob", "Lunch", "today?"),
			},
			weekly:   2,
			keywords: []string{"invoice"},
			expected: "On Friday, March 01, you received 2 emails. Found 1 email matching 'invoice' from Billing: \"Your invoice\". Other emails came from Bob. bringing your weekly total to 2 emails.",
		},
		{
			name: "two matches from two senders",
			today: []NormalizedEmail{
				email("A", "Report one", ""),
				email("B", "Report two", ""),
			},
			weekly:   2,
			keywords: []string{"report"},
			expected: "On Friday, March 01, you received 2 emails. Found 2 emails matching 'report' from A and B, including \"Report one\", \"Report two\". bringing your weekly total to 2 emails.",
		},
		{
			name: "more than three matches",
			today: []NormalizedEmail{
				email("A", "r1 report", ""),
				email("B", "r2 report", ""),
				email("A", "r3 report", ""),
				email("C", "r4 report", ""),
				email("D", "r5 report", ""),
			},
			weekly:   5,
			keywords: []string{"report"},
			expected: "On Friday, March 01, you received 5 emails. Found 5 emails matching 'report' from A, B, and C, including \"r1 report\", \"r2 report\", \"r3 report\", and 2 more. bringing your weekly total to 5 emails.",
		},
		{
			name: "many other senders",
			today: []NormalizedEmail{
				email("S1", "a", ""), email("S2", "b", ""), email("S3", "c", ""),
				email("S4", "d", ""), email("S5", "e", ""), email("S6", "f", ""),
			},
			weekly:   6,
			expected: "On Friday, March 01, you received 6 emails. Other emails came from S1, S2, S3, S4 and 2 others. bringing your weekly total to 6 emails.",
		},
		{
			name: "others counted among the top six senders only",
			today: []NormalizedEmail{
				email("S1", "a", ""), email("S2", "b", ""), email("S3", "c", ""), email("S4", "d", ""),
				email("S5", "e", ""), email("S6", "f", ""), email("S7", "g", ""), email("S8", "h", ""),
			},
			weekly:   8,
			expected: "On Friday, March 01, you received 8 emails. Other emails came from S1, S2, S3, S4 and 2 others. bringing your weekly total to 8 emails.",
		},
		{
			name: "frequent senders sorted first",
			today: []NormalizedEmail{
				email("Once", "a", ""),
				email("Twice", "b", ""),
				email("Twice", "c", ""),
			},
			weekly:   3,
			expected: "On Friday, March 01, you received 3 emails. Other emails came from Twice (2 emails), Once. bringing your weekly total to 3 emails.",
		},
		{
			name:     "weekly count below today",
			today:    []NormalizedEmail{email("Alice", "Hi", "")},
			weekly:   0,
			expected: "On Friday, March 01, you received 1 emails. Other emails came from Alice. bringing your weekly total to 0 emails.",
		},
	}

	composer := NewDigestComposer(fixedClock)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := composer.Compose(tt.today, tt.weekly, tt.keywords)
			if got != tt.expected {
				t.Errorf("Expected:\n%s\n\nGot:\n%s", tt.expected, got)
			}
		})
	}
}

func TestDigestComposer_TokenMatching(t *testing.T) {
	composer := NewDigestComposer(fixedClock)
	today := []NormalizedEmail{email("PM", "Alpha launch moved", "")}

	got := composer.Compose(today, 1, []string{"project alpha"})

	if !strings.Contains(got, "Found 1 email matching 'project alpha' from PM: \"Alpha launch moved\"") {
		t.Errorf("expected token match, got %q", got)
	}
}

func TestDigestComposer_KeywordsOrderedByFirstMatch(t *testing.T) {
	composer := NewDigestComposer(fixedClock)
	today := []NormalizedEmail{
		email("Ops", "urgent outage", ""),
		email("Billing", "invoice and urgent", ""),
	}

	got := composer.Compose(today, 2, []string{"invoice", "urgent"})

	urgent := strings.Index(got, "'urgent'")
	invoice := strings.Index(got, "'invoice'")
	if urgent < 0 || invoice < 0 || urgent > invoice {
		t.Errorf("expected 'urgent' before 'invoice', got %q", got)
	}
	if !strings.Contains(got, "2 emails matching 'urgent'") {
		t.Errorf("expected an email matching two keywords to count for both, got %q", got)
	}
	if strings.Contains(got, "Other emails") {
		t.Errorf("expected no unmatched clause, got %q", got)
	}
}

func TestDigestComposer_SubjectTruncated(t *testing.T) {
	composer := NewDigestComposer(fixedClock)
	subject := "invoice " + strings.Repeat("x", 200)

	got := composer.Compose([]NormalizedEmail{email("A", subject, "")}, 1, []string{"invoice"})

	expected := fmt.Sprintf(": \"%s\"", subject[:100])
	if !strings.Contains(got, expected) {
		t.Errorf("expected subject truncated to 100 chars, got %q", got)
	}
}

func TestDigestComposer_SenderCleanedOnce(t *testing.T) {
	composer := NewDigestComposer(fixedClock)
	today := []NormalizedEmail{
		email("Alice <a@x.com>", "Hi", ""),
		email("Alice", "Hello", ""),
	}

	got := composer.Compose(today, 2, nil)

	if !strings.Contains(got, "Other emails came from Alice (2 emails)") {
		t.Errorf("expected raw and cleaned sender to be grouped, got %q", got)
	}
}
