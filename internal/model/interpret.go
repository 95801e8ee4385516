package model

import "fmt"

// InterpretRequest is the wire contract of the interpretation endpoint.
// ReferenceDate and UserTimezone anchor relative expressions ("tomorrow at
// 2pm") to the moment and locale the note was spoken in.
type InterpretRequest struct {
	AudioURL      string `json:"audioUrl" validate:"required,url"`
	UserTimezone  string `json:"userTimezone"`
	ReferenceDate string `json:"referenceDate"`
}

// InterpretData carries the calendar fields extracted from the audio.
type InterpretData struct {
	Title string `json:"title"`
	Date  string `json:"date"`
}

// InterpretResponse is the structured result of interpreting one voice note.
type InterpretResponse struct {
	Transcription string        `json:"transcription"`
	Data          InterpretData `json:"data"`
}

// InterpretErrorResponse is the non-2xx body of the interpretation endpoint.
type InterpretErrorResponse struct {
	Error string `json:"error"`
}

// Validate rejects partial results: a response missing any of the three
// fields is a failure, never a task with null fields silently marked synced.
func (r *InterpretResponse) Validate() error {
	if r.Transcription == "" {
		return fmt.Errorf("interpretation missing transcription")
	}
	if r.Data.Title == "" {
		return fmt.Errorf("interpretation missing title")
	}
	if r.Data.Date == "" {
		return fmt.Errorf("interpretation missing event date")
	}
	return nil
}
