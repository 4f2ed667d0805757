package service

import (
	"strings"
	"time"

	"github.com/vipul43/mailpilot/internal/models"
)

const (
	DefaultSender  = "Unknown Sender"
	DefaultSubject = "No Subject"
)

// NormalizedEmail is the canonical metadata of one message, independent of its owner
type NormalizedEmail struct {
	MessageID string
	From      string
	Subject   string
	Snippet   string
	Date      time.Time
}

// Record turns the normalized metadata into a storable row for userID
func (n NormalizedEmail) Record(userID string) models.Email {
	return models.NewEmail(userID, n.MessageID, n.From, n.Subject, n.Snippet, n.Date)
}

// Normalize maps a raw message onto NormalizedEmail. It never fails: missing
// or malformed fields get their defaults. The Date header is ignored in favour
// of the mailbox's internal timestamp.
func Normalize(msg RawMessage) NormalizedEmail {
	from := headerValue(msg.Headers, "From")
	subject := headerValue(msg.Headers, "Subject")
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}

	return NormalizedEmail{
		MessageID: msg.ID,
		From:      CleanSender(from),
		Subject:   subject,
		Snippet:   msg.Snippet,
		Date:      time.UnixMilli(msg.InternalDate).UTC(),
	}
}

// CleanSender reduces a From header to its display name.
//
//	"Jane Doe <jane@x.com>"     -> "Jane Doe"
//	"\"Jane Doe\" <jane@x.com>" -> "Jane Doe"
//	"<jane@x.com>"              -> "jane@x.com"
//	"jane@x.com"                -> "jane@x.com"
func CleanSender(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return DefaultSender
	}

	open := strings.Index(from, "<")
	if open < 0 || !strings.Contains(from, ">") {
		return from
	}

	name := strings.TrimSpace(from[:open])
	name = strings.TrimSpace(strings.Trim(name, `"`))
	if name != "" {
		return name
	}

	// no display name; fall back to the bracketed address
	addr := from[open+1:]
	if end := strings.Index(addr, ">"); end >= 0 {
		addr = addr[:end]
	}
	if addr = strings.TrimSpace(addr); addr != "" {
		return addr
	}
	return DefaultSender
}

func headerValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
