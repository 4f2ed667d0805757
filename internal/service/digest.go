package service

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	digestDateLayout     = "Monday, January 02"
	digestSubjectLimit   = 100
	digestEmailsPerMatch = 4
	digestSendersShown   = 3
	digestSubjectsShown  = 3
	digestOtherSenders   = 4
	digestTopSenders     = 6
)

// DigestComposer renders the daily narrative shown on the dashboard
type DigestComposer struct {
	now func() time.Time
}

func NewDigestComposer(now func() time.Time) *DigestComposer {
	if now == nil {
		now = time.Now
	}
	return &DigestComposer{now: now}
}

// Compose builds the digest from today's emails, the weekly count and the user's keywords.
func (d *DigestComposer) Compose(today []NormalizedEmail, weeklyCount int, keywords []string) string {
	if len(today) == 0 {
		return fmt.Sprintf("You received %d emails this week. No emails received today.", weeklyCount)
	}

	parts := []string{
		fmt.Sprintf("On %s, you received %d emails", d.now().Format(digestDateLayout), len(today)),
	}

	matches, unmatched := partitionByKeyword(today, keywords)

	var details []string
	for _, m := range matches {
		details = append(details, keywordDetails(m.keyword, m.emails)...)
	}
	if len(details) > 0 {
		parts = append(parts, "Found "+strings.Join(details, ", "))
	}

	if clause := otherSendersClause(unmatched); clause != "" {
		parts = append(parts, clause)
	}

	if weeklyCount > len(today) {
		parts = append(parts, fmt.Sprintf("bringing your weekly total to %d emails (%d from previous days)", weeklyCount, weeklyCount-len(today)))
	} else {
		parts = append(parts, fmt.Sprintf("bringing your weekly total to %d emails", weeklyCount))
	}

	return strings.Join(parts, ". ") + "."
}

type keywordMatch struct {
	keyword string
	emails  []NormalizedEmail
}

// partitionByKeyword groups emails per matching keyword, ordered by first match,
// and returns the emails no keyword matched.
func partitionByKeyword(emails []NormalizedEmail, keywords []string) ([]*keywordMatch, []NormalizedEmail) {
	var matches []*keywordMatch
	byKeyword := make(map[string]*keywordMatch)
	var unmatched []NormalizedEmail

	for _, email := range emails {
		matched := false
		for _, kw := range keywords {
			if !digestMatches(email, kw) {
				continue
			}
			matched = true
			m, ok := byKeyword[kw]
			if !ok {
				m = &keywordMatch{keyword: kw}
				byKeyword[kw] = m
				matches = append(matches, m)
			}
			m.emails = append(m.emails, email)
		}
		if !matched {
			unmatched = append(unmatched, email)
		}
	}

	return matches, unmatched
}

// digestMatches is looser than MatchesAnyKeyword: any single word of a
// multi-word keyword found in the subject or snippet also counts.
func digestMatches(email NormalizedEmail, keyword string) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return false
	}
	subject := strings.ToLower(email.Subject)
	snippet := strings.ToLower(email.Snippet)
	from := strings.ToLower(email.From)

	if strings.Contains(subject, kw) || strings.Contains(snippet, kw) || strings.Contains(from, kw) {
		return true
	}
	for _, word := range strings.Fields(kw) {
		if strings.Contains(subject, word) || strings.Contains(snippet, word) {
			return true
		}
	}
	return false
}

func keywordDetails(keyword string, emails []NormalizedEmail) []string {
	shown := emails
	if len(shown) > digestEmailsPerMatch {
		shown = shown[:digestEmailsPerMatch]
	}

	var senders, subjects []string
	seen := make(map[string]bool)
	for _, e := range shown {
		sender := CleanSender(e.From)
		if !seen[sender] {
			seen[sender] = true
			senders = append(senders, sender)
		}
		subjects = append(subjects, truncateRunes(e.Subject, digestSubjectLimit))
	}
	if len(senders) > digestSendersShown {
		senders = senders[:digestSendersShown]
	}

	var senderText string
	switch len(senders) {
	case 1:
		senderText = "from " + senders[0]
	case 2:
		senderText = fmt.Sprintf("from %s and %s", senders[0], senders[1])
	default:
		senderText = fmt.Sprintf("from %s, %s, and %s", senders[0], senders[1], senders[2])
	}

	if len(emails) == 1 {
		return []string{fmt.Sprintf("1 email matching '%s' %s: \"%s\"", keyword, senderText, subjects[0])}
	}

	details := []string{
		fmt.Sprintf("%d emails matching '%s' %s", len(emails), keyword, senderText),
		fmt.Sprintf("including \"%s\"", subjects[0]),
	}
	for i := 1; i < len(subjects) && i < digestSubjectsShown; i++ {
		details = append(details, fmt.Sprintf("\"%s\"", subjects[i]))
	}
	if len(emails) > digestSubjectsShown {
		details = append(details, fmt.Sprintf("and %d more", len(emails)-digestSubjectsShown))
	}
	return details
}

func otherSendersClause(emails []NormalizedEmail) string {
	if len(emails) == 0 {
		return ""
	}

	type senderCount struct {
		name  string
		count int
	}
	var counts []senderCount
	index := make(map[string]int)
	for _, e := range emails {
		sender := CleanSender(e.From)
		if i, ok := index[sender]; ok {
			counts[i].count++
			continue
		}
		index[sender] = len(counts)
		counts = append(counts, senderCount{name: sender, count: 1})
	}

	// stable: equal counts keep first-seen order
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].count > counts[j].count })
	if len(counts) > digestTopSenders {
		counts = counts[:digestTopSenders]
	}

	labels := make([]string, 0, len(counts))
	for _, c := range counts {
		if c.count == 1 {
			labels = append(labels, c.name)
		} else {
			labels = append(labels, fmt.Sprintf("%s (%d emails)", c.name, c.count))
		}
	}

	switch {
	case len(labels) == 1:
		return "Other emails came from " + labels[0]
	case len(labels) <= digestOtherSenders:
		return "Other emails came from " + strings.Join(labels, ", ")
	default:
		return fmt.Sprintf("Other emails came from %s and %d others",
			strings.Join(labels[:digestOtherSenders], ", "), len(labels)-digestOtherSenders)
	}
}
