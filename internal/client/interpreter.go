package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voiceflow/api/internal/config"
	"github.com/voiceflow/api/internal/model"
)

// InterpreterClient talks to the remote interpretation endpoint, which
// transcribes a voice note and extracts a calendar title and date from it.
// A single attempt per call; retries are the caller's decision (currently:
// none).
type InterpreterClient struct {
	httpClient  *http.Client
	url         string
	functionKey string
}

// NewInterpreterClient creates a client for the interpretation endpoint
func NewInterpreterClient(cfg *config.InterpreterConfig) *InterpreterClient {
	return &InterpreterClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		url:         cfg.URL,
		functionKey: cfg.FunctionKey,
	}
}

// Interpret sends the signed audio URL plus timing context and returns the
// structured result. ReferenceDate and timezone must describe "now" for the
// speaker so relative expressions like "tomorrow" resolve to the right
// absolute date. Any transport error, non-2xx status or malformed body is
// returned as a plain error carrying the endpoint's message text.
func (c *InterpreterClient) Interpret(ctx context.Context, audioURL, timezone string, referenceDate time.Time) (*model.InterpretResponse, error) {
	reqBody := model.InterpretRequest{
		AudioURL:      audioURL,
		UserTimezone:  timezone,
		ReferenceDate: referenceDate.UTC().Format(time.RFC3339),
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.functionKey != "" {
		req.Header.Set("X-Function-Key", c.functionKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp model.InterpretErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("interpretation failed: %s", errResp.Error)
		}
		return nil, fmt.Errorf("interpretation endpoint error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result model.InterpretResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *InterpreterClient) IsConfigured() bool {
	return c.url != ""
}
