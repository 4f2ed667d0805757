package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"
)

type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	model      *string // Optional: if nil, uses OpenRouter account default
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		apiURL: OpenRouterAPIURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		model: nil, // Use OpenRouter account default
	}
}

// SetModel sets a specific model to use (optional)
func (c *Client) SetModel(model string) {
	c.model = &model
}

func (c *Client) Name() string {
	return "openrouter"
}

// SummaryData is the JSON object the model is asked to return
type SummaryData struct {
	Summary string `json:"summary"`
}

// Summarize asks the chat model for a short summary of text.
// maxLength and minLength are passed to the model as word bounds.
func (c *Client) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	reqBody := map[string]interface{}{
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": c.buildPrompt(text, maxLength, minLength),
			},
		},
	}

	// Only include model if explicitly set, otherwise use OpenRouter account default
	if c.model != nil {
		reqBody["model"] = *c.model
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

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

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	// Clean the content (remove markdown code blocks if present)
	cleanedContent := c.cleanJSONResponse(apiResp.Choices[0].Message.Content)

	var data SummaryData
	if err := json.Unmarshal([]byte(cleanedContent), &data); err != nil {
		return "", fmt.Errorf("failed to parse summary JSON: %w", err)
	}

	data.Summary = strings.TrimSpace(data.Summary)
	if !c.isValidSummary(data, maxLength) {
		return "", fmt.Errorf("model returned an unusable summary")
	}

	return data.Summary, nil
}

// cleanJSONResponse removes markdown code blocks and extra whitespace from LLM response
func (c *Client) cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	// Find the first { and last } to extract just the JSON object
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")

	if startIdx == -1 || endIdx == -1 || startIdx > endIdx {
		// No valid JSON found, return as is and let JSON parser fail with proper error
		return content
	}

	return strings.TrimSpace(content[startIdx : endIdx+1])
}

func (c *Client) buildPrompt(text string, maxLength, minLength int) string {
	return fmt.Sprintf(`Summarize the following email in one or two plain sentences.

Rules:
- Use between %d and %d words.
- Keep names, amounts and dates that appear in the email.
- Do not add anything that is not in the email.
- Output ONLY a JSON object of the form {"summary": "..."}.

Email:
%s`, minLength, maxLength, text)
}

// isValidSummary rejects empty summaries and ones far beyond the requested length
func (c *Client) isValidSummary(data SummaryData, maxLength int) bool {
	if data.Summary == "" {
		return false
	}
	if maxLength > 0 && len(strings.Fields(data.Summary)) > maxLength {
		return false
	}
	return true
}
