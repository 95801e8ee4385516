package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/voiceflow/api/internal/config"
)

// GenAIClient handles communication with the generative language API that
// transcribes audio and extracts calendar fields.
type GenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// InlineData carries base64-encoded audio for the model.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ContentPart is either inline audio or a text prompt.
type ContentPart struct {
	InlineData *InlineData `json:"inlineData,omitempty"`
	Text       string      `json:"text,omitempty"`
}

// GenerateContentRequest represents the request body for content generation
type GenerateContentRequest struct {
	Contents []GenerateContent `json:"contents"`
}

// GenerateContent groups the parts of one request turn
type GenerateContent struct {
	Parts []ContentPart `json:"parts"`
}

// GenerateContentResponse represents the response from content generation
type GenerateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// NewGenAIClient creates a new generative language API client
func NewGenAIClient(cfg *config.GenAIConfig) *GenAIClient {
	return &GenAIClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// GenerateFromAudio sends base64-encoded audio plus a text prompt and
// returns the model's raw text output.
func (c *GenAIClient) GenerateFromAudio(ctx context.Context, mimeType, base64Audio, prompt string) (string, error) {
	reqBody := GenerateContentRequest{
		Contents: []GenerateContent{
			{
				Parts: []ContentPart{
					{InlineData: &InlineData{MimeType: mimeType, Data: base64Audio}},
					{Text: prompt},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generative API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var genResp GenerateContentResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	return genResp.Candidates[0].Content.Parts[0].Text, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}
