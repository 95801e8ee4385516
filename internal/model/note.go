package model

import "time"

// NoteJobPayload contains everything the worker needs to run one
// recording-to-sync pipeline invocation. The audio travels inside the
// payload so the optimistic insert happens before any network call.
type NoteJobPayload struct {
	TaskID        string    `json:"taskId"`
	Owner         string    `json:"owner"`
	Audio         []byte    `json:"audio"`
	ContentType   string    `json:"contentType"`
	Timezone      string    `json:"timezone"`
	ReferenceDate time.Time `json:"referenceDate"`
	ProviderToken string    `json:"providerToken,omitempty"`
}

// CreateNoteResponse is returned immediately after the optimistic insert,
// before the pipeline has made any remote call.
type CreateNoteResponse struct {
	Task Task `json:"task"`
}

// ListNotesResponse wraps a task listing, newest first.
type ListNotesResponse struct {
	Tasks []Task `json:"tasks"`
	Count int    `json:"count"`
}
