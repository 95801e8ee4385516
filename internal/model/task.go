package model

import "time"

// SyncState describes how far a voice note has progressed through the
// recording-to-calendar workflow.
type SyncState string

const (
	SyncStatePending    SyncState = "pending"
	SyncStateProcessing SyncState = "processing"
	SyncStateSynced     SyncState = "synced"
	SyncStateFailed     SyncState = "failed"
)

var ValidSyncStates = []SyncState{
	SyncStatePending, SyncStateProcessing, SyncStateSynced, SyncStateFailed,
}

// Placeholder titles shown while a note is in flight or after it failed.
const (
	TitleProcessing = "Processing voice note..."
	TitleFailed     = "Processing failed"
)

// Task is one voice-note-to-event workflow instance and its current outcome.
// The ID is client-assigned (provisional) until persistence replaces the
// whole record with the server-assigned row.
type Task struct {
	ID             string    `json:"id"`
	Owner          string    `json:"userId"`
	CreatedAt      time.Time `json:"createdAt"`
	AudioReference string    `json:"audioUrl,omitempty"`
	Transcription  string    `json:"transcription,omitempty"`
	Title          string    `json:"title"`
	EventDate      string    `json:"eventDate,omitempty"`
	CalendarSynced bool      `json:"isSynced"`
	SyncState      SyncState `json:"syncState"`
}

// Terminal reports whether the task has reached a final state.
func (t Task) Terminal() bool {
	return t.SyncState == SyncStateSynced || t.SyncState == SyncStateFailed
}
