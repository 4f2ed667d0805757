package gmail

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/vipul43/mailpilot/internal/service"
)

const defaultConcurrency = 5

// metadataHeaders are the only headers requested on metadata fetches
var metadataHeaders = []string{"From", "Subject", "Date"}

// Client talks to the Gmail API with a per-call bearer token
type Client struct {
	endpoint    string
	concurrency int
	log         *zap.Logger
}

func NewClient(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		concurrency: defaultConcurrency,
		log:         log.Named("gmail"),
	}
}

func (c *Client) newService(ctx context.Context, accessToken string) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(token))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// ListMessageIDs returns up to maxResults ids matching query, newest first
func (c *Client) ListMessageIDs(ctx context.Context, accessToken string, query string, maxResults int) ([]string, error) {
	svc, err := c.newService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Users.Messages.List("me").Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}

	c.log.Debug("listed message ids", zap.String("query", query), zap.Int("count", len(ids)))
	return ids, nil
}

// CountMessages returns Gmail's result size estimate for query
func (c *Client) CountMessages(ctx context.Context, accessToken string, query string) (int, error) {
	svc, err := c.newService(ctx, accessToken)
	if err != nil {
		return 0, err
	}

	resp, err := svc.Users.Messages.List("me").Q(query).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return int(resp.ResultSizeEstimate), nil
}

func (c *Client) GetMetadata(ctx context.Context, accessToken string, messageID string) (*service.RawMessage, error) {
	svc, err := c.newService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	msg, err := c.getMetadata(ctx, svc, messageID)
	if err != nil {
		return nil, err
	}
	raw := toRawMessage(msg)
	return &raw, nil
}

// BatchGetMetadata fetches metadata for ids concurrently. Individual failures
// are dropped; an error is returned only when every fetch failed.
func (c *Client) BatchGetMetadata(ctx context.Context, accessToken string, messageIDs []string) ([]service.RawMessage, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	svc, err := c.newService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	results := make([]*gmail.Message, len(messageIDs))
	errs := make([]error, len(messageIDs))
	sem := make(chan struct{}, c.concurrency)

	var wg sync.WaitGroup
	for i, id := range messageIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i], errs[i] = c.getMetadata(ctx, svc, id)
		}(i, id)
	}
	wg.Wait()

	messages := make([]service.RawMessage, 0, len(messageIDs))
	var lastErr error
	for i, msg := range results {
		if errs[i] != nil {
			c.log.Warn("metadata fetch failed", zap.String("message_id", messageIDs[i]), zap.Error(errs[i]))
			lastErr = errs[i]
			continue
		}
		messages = append(messages, toRawMessage(msg))
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("batch metadata fetch failed: %w", lastErr)
	}
	return messages, nil
}

func (c *Client) getMetadata(ctx context.Context, svc *gmail.Service, messageID string) (*gmail.Message, error) {
	msg, err := svc.Users.Messages.Get("me", messageID).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// toRawMessage keeps the requested headers. When Gmail reports no internal
// date the Date header is parsed instead.
func toRawMessage(msg *gmail.Message) service.RawMessage {
	raw := service.RawMessage{
		ID:           msg.Id,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
	}

	if msg.Payload == nil {
		return raw
	}

	for _, h := range msg.Payload.Headers {
		raw.Headers = append(raw.Headers, service.Header{Name: h.Name, Value: h.Value})

		if raw.InternalDate == 0 && strings.EqualFold(h.Name, "Date") {
			if t, err := parseEmailDate(h.Value); err == nil {
				raw.InternalDate = t.UnixMilli()
			}
		}
	}

	return raw
}

// parseEmailDate parses various email date formats
func parseEmailDate(dateStr string) (time.Time, error) {
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2 Jan 2006 15:04:05 -0700",
		time.RFC3339,
	}

	dateStr = strings.TrimSpace(dateStr)

	// Gmail sometimes appends the zone name, e.g. "+0000 (UTC)"
	if idx := strings.Index(dateStr, " ("); idx != -1 {
		dateStr = dateStr[:idx]
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
