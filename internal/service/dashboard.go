package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vipul43/mailpilot/internal/models"
)

const (
	dashboardRecentLimit    = 5
	dashboardImportantLimit = 3
	todaysEmailsLimit       = 50
	mailQueryDateLayout     = "2006/01/02"
)

// TokenProvider hands out a valid access token for the user, refreshing it when needed
type TokenProvider interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// Syncer runs one inbox sync for a user
type Syncer interface {
	Sync(ctx context.Context, accessToken, userID string) (SyncResult, error)
}

// DashboardEmail is the frontend view of a stored email
type DashboardEmail struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Summary string `json:"summary"`
}

type DashboardData struct {
	UnreadEmails    int              `json:"unreadEmails"`
	ImportantEmails []DashboardEmail `json:"importantEmails"`
	Keywords        []string         `json:"keywords"`
	DailySummary    string           `json:"dailySummary"`
	ActiveUsers     int              `json:"activeUsers"`
	ActiveAccounts  int              `json:"activeAccounts"`
	RecentEmails    []DashboardEmail `json:"recentEmails"`
}

// Dashboard aggregates stored emails, live mailbox counts and the daily digest
type Dashboard struct {
	tokens      TokenProvider
	source      MailSource
	syncer      Syncer
	query       *EmailQuery
	digest      *DigestComposer
	now         func() time.Time
	callTimeout time.Duration
	log         *zap.Logger
}

func NewDashboard(tokens TokenProvider, source MailSource, syncer Syncer, query *EmailQuery, digest *DigestComposer, callTimeout time.Duration, log *zap.Logger) *Dashboard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dashboard{
		tokens:      tokens,
		source:      source,
		syncer:      syncer,
		query:       query,
		digest:      digest,
		now:         digest.now,
		callTimeout: callTimeout,
		log:         log.Named("dashboard"),
	}
}

// Build assembles the dashboard for userID. Only a missing or unrefreshable
// credential is an error; every other failure degrades to empty values.
func (d *Dashboard) Build(ctx context.Context, userID string) (*DashboardData, error) {
	token, err := d.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	recent := d.query.RecentEmails(ctx, userID, dashboardRecentLimit)
	if len(recent) == 0 {
		d.log.Info("no stored emails, syncing first", zap.String("user_id", userID))
		if _, err := d.syncer.Sync(ctx, token, userID); err != nil {
			d.log.Warn("automatic sync failed", zap.String("user_id", userID), zap.Error(err))
		}
		recent = d.query.RecentEmails(ctx, userID, dashboardRecentLimit)
	}

	weekly := d.WeeklyCount(ctx, token)
	today := d.TodaysEmails(ctx, token)
	important := d.query.ImportantEmails(ctx, userID, dashboardImportantLimit)
	keywords := d.query.ListKeywords(ctx, userID)

	var summary string
	if len(recent) == 0 && len(today) == 0 {
		summary = fmt.Sprintf("You received %d emails this week. Sync your emails to see them here.", weekly)
	} else {
		summary = d.digest.Compose(today, weekly, keywords)
	}

	return &DashboardData{
		UnreadEmails:    weekly,
		ImportantEmails: toDashboardEmails(important),
		Keywords:        keywords,
		DailySummary:    summary,
		ActiveUsers:     1,
		ActiveAccounts:  1,
		RecentEmails:    toDashboardEmails(recent),
	}, nil
}

// WeeklyCount estimates how many messages arrived in the last seven days; 0 on failure
func (d *Dashboard) WeeklyCount(ctx context.Context, token string) int {
	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	query := "after:" + d.now().AddDate(0, 0, -7).Format(mailQueryDateLayout)
	count, err := d.source.CountMessages(callCtx, token, query)
	if err != nil {
		d.log.Warn("weekly count unavailable", zap.Error(err))
		return 0
	}
	return count
}

// TodaysEmails fetches and normalizes messages received since yesterday; empty on failure
func (d *Dashboard) TodaysEmails(ctx context.Context, token string) []NormalizedEmail {
	query := "after:" + d.now().AddDate(0, 0, -1).Format(mailQueryDateLayout)

	listCtx, cancel := d.callContext(ctx)
	ids, err := d.source.ListMessageIDs(listCtx, token, query, todaysEmailsLimit)
	cancel()
	if err != nil {
		d.log.Warn("today's emails unavailable", zap.Error(err))
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	fetchCtx, cancel := d.callContext(ctx)
	msgs, err := d.source.BatchGetMetadata(fetchCtx, token, ids)
	cancel()
	if err != nil {
		d.log.Warn("today's email metadata unavailable", zap.Error(err))
		return nil
	}

	// keep listing order, newest first
	byID := make(map[string]RawMessage, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	emails := make([]NormalizedEmail, 0, len(msgs))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			emails = append(emails, Normalize(m))
		}
	}
	return emails
}

func (d *Dashboard) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.callTimeout)
}

func toDashboardEmails(emails []models.Email) []DashboardEmail {
	out := make([]DashboardEmail, 0, len(emails))
	for _, e := range emails {
		out = append(out, DashboardEmail{
			From:    e.FromEmail,
			Subject: e.Subject,
			Date:    e.Date.UTC().Format("2006-01-02"),
			Summary: e.DisplaySummary(),
		})
	}
	return out
}
