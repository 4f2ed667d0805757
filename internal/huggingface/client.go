package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultModelURL = "https://api-inference.huggingface.co/models/facebook/bart-large-cnn"
)

// Client calls the hosted inference API of a summarization model.
// The token is optional; anonymous calls are rate limited harder.
type Client struct {
	modelURL   string
	token      string
	httpClient *http.Client
}

func NewClient(modelURL, token string) *Client {
	if modelURL == "" {
		modelURL = DefaultModelURL
	}
	return &Client{
		modelURL: modelURL,
		token:    token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Name() string {
	return "huggingface"
}

type summarizeRequest struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	MaxLength int  `json:"max_length"`
	MinLength int  `json:"min_length"`
	DoSample  bool `json:"do_sample"`
}

// Summarize returns the model's summary_text for text
func (c *Client) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	jsonData, err := json.Marshal(summarizeRequest{
		Inputs: text,
		Parameters: parameters{
			MaxLength: maxLength,
			MinLength: minLength,
			DoSample:  false,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var results []struct {
		SummaryText string `json:"summary_text"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return "", fmt.Errorf("unexpected API response: %w", err)
	}
	if len(results) == 0 || results[0].SummaryText == "" {
		return "", fmt.Errorf("empty summary in API response")
	}

	return results[0].SummaryText, nil
}
