package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	VerifyURL = "https://www.google.com/recaptcha/api/siteverify"

	// SkippedResponse lets development frontends bypass verification
	SkippedResponse = "skipped"
)

type Client struct {
	secret     string
	siteKey    string
	verifyURL  string
	httpClient *http.Client
}

func NewClient(secret, siteKey string) *Client {
	return &Client{
		secret:    secret,
		siteKey:   siteKey,
		verifyURL: VerifyURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a secret is configured
func (c *Client) Enabled() bool {
	return c.secret != ""
}

func (c *Client) SiteKey() string {
	return c.siteKey
}

// Verify checks a widget response with the siteverify endpoint.
// Without a configured secret every response passes.
func (c *Client) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	if !c.Enabled() {
		return true, nil
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", response)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("failed to parse siteverify response: %w", err)
	}

	return result.Success, nil
}
