package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voiceflow/api/internal/client"
	"github.com/voiceflow/api/internal/model"
)

const interpretPrompt = `You are a smart calendar assistant.

Current Context:
- Reference Date (Today): %s
- User Timezone: %s

Instructions:
1. Transcribe this audio exactly as spoken.
2. Extract the Event Title and Date (ISO format) from the content.
   - INTERPRET terms like "tomorrow", "next Tuesday", or "in 2 days" relative to the Reference Date provided above.
   - Ensure the year is correct based on the Reference Date.

Return ONLY valid JSON with this structure, no markdown formatting:
{
  "transcription": "text...",
  "data": {
    "title": "Event Title",
    "date": "ISO-Date-String"
  }
}`

// Limit on how much audio we are willing to pull from the signed URL.
const maxAudioFetchBytes = 25 << 20

// InterpretService transcribes a voice note and extracts calendar fields
// from it. It fetches the audio over a signed URL, hands it to the
// generative model inline and parses the model's JSON answer.
type InterpretService struct {
	genai      *client.GenAIClient
	httpClient *http.Client
}

func NewInterpretService(genai *client.GenAIClient) *InterpretService {
	return &InterpretService{
		genai: genai,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Interpret runs transcription and field extraction for one audio URL.
func (s *InterpretService) Interpret(ctx context.Context, req *model.InterpretRequest) (*model.InterpretResponse, error) {
	if s.genai == nil || !s.genai.IsConfigured() {
		return nil, fmt.Errorf("generative API is not configured")
	}

	audio, err := s.fetchAudio(ctx, req.AudioURL)
	if err != nil {
		return nil, err
	}

	timezone := req.UserTimezone
	if timezone == "" {
		timezone = "UTC"
	}
	referenceDate := req.ReferenceDate
	if referenceDate == "" {
		referenceDate = time.Now().UTC().Format(time.RFC3339)
	}

	prompt := fmt.Sprintf(interpretPrompt, referenceDate, timezone)

	raw, err := s.genai.GenerateFromAudio(ctx, "audio/webm", base64.StdEncoding.EncodeToString(audio), prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate interpretation: %w", err)
	}

	result, err := parseInterpretation(raw)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *InterpretService) fetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch audio file: status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio file is empty")
	}
	return audio, nil
}

// parseInterpretation parses the model output, tolerating a markdown code
// fence around the JSON.
func parseInterpretation(raw string) (*model.InterpretResponse, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var result model.InterpretResponse
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("model returned malformed JSON: %w", err)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}
