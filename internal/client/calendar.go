package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/voiceflow/api/internal/config"
)

// Calendar events created from voice notes always span one hour.
const eventDuration = time.Hour

// CalendarSync creates events on the user's external calendar.
type CalendarSync interface {
	CreateEvent(ctx context.Context, title, dateISO, accessToken string) bool
}

// CalendarClient posts events to the Google Calendar API using the user's
// delegated access token. Calendar sync is best-effort: CreateEvent never
// returns an error, every failure reduces to false so the surrounding
// pipeline can carry on and record the outcome in the sync flag.
type CalendarClient struct {
	httpClient *http.Client
	baseURL    string
	calendarID string
}

type calendarEventTime struct {
	DateTime string `json:"dateTime"`
}

type calendarEvent struct {
	Summary string            `json:"summary"`
	Start   calendarEventTime `json:"start"`
	End     calendarEventTime `json:"end"`
}

// NewCalendarClient creates a new calendar sync client
func NewCalendarClient(cfg *config.CalendarConfig) *CalendarClient {
	return &CalendarClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    cfg.BaseURL,
		calendarID: cfg.CalendarID,
	}
}

// CreateEvent attempts to create a one-hour calendar event starting at
// dateISO. Returns true only when the event was created. A missing token,
// an unparseable date, a transport error or a non-2xx response all log a
// diagnostic and return false.
func (c *CalendarClient) CreateEvent(ctx context.Context, title, dateISO, accessToken string) bool {
	if accessToken == "" {
		log.Println("Warning: no calendar access token, skipping calendar sync")
		return false
	}

	start, err := time.Parse(time.RFC3339, dateISO)
	if err != nil {
		log.Printf("Calendar sync error: invalid event date %q: %v", dateISO, err)
		return false
	}
	end := start.Add(eventDuration)

	event := calendarEvent{
		Summary: title,
		Start:   calendarEventTime{DateTime: start.Format(time.RFC3339)},
		End:     calendarEventTime{DateTime: end.Format(time.RFC3339)},
	}

	bodyBytes, err := json.Marshal(event)
	if err != nil {
		log.Printf("Calendar sync error: failed to marshal event: %v", err)
		return false
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		log.Printf("Calendar sync error: failed to create request: %v", err)
		return false
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Calendar sync error: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		log.Printf("Calendar API error (status %d): %s", resp.StatusCode, string(respBody))
		return false
	}

	return true
}
