package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/voiceflow/api/internal/client"
	"github.com/voiceflow/api/internal/model"
	"github.com/voiceflow/api/internal/repository"
	"github.com/voiceflow/api/internal/tasklist"
	"github.com/voiceflow/api/internal/websocket"
	"github.com/voiceflow/api/pkg/response"
)

// How long the interpreter is allowed to fetch the uploaded audio.
const signedURLTTL = 60 * time.Second

// Interpreter turns a fetchable audio URL into structured event data.
type Interpreter interface {
	Interpret(ctx context.Context, audioURL, timezone string, referenceDate time.Time) (*model.InterpretResponse, error)
}

// NoteWorker runs the processing pipeline for one voice note: upload, sign,
// interpret, calendar sync, persist. Each step short-circuits the job on
// failure except calendar sync, which is best effort.
type NoteWorker struct {
	tasks       *tasklist.Store
	storage     client.StorageClient
	interpreter Interpreter
	calendar    client.CalendarSync
	repo        repository.TaskRepository
	hub         *websocket.Hub
}

func NewNoteWorker(
	tasks *tasklist.Store,
	storage client.StorageClient,
	interpreter Interpreter,
	calendar client.CalendarSync,
	repo repository.TaskRepository,
	hub *websocket.Hub,
) *NoteWorker {
	return &NoteWorker{
		tasks:       tasks,
		storage:     storage,
		interpreter: interpreter,
		calendar:    calendar,
		repo:        repo,
		hub:         hub,
	}
}

// ProcessTask handles a note:process job.
func (w *NoteWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.NoteJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.TaskID == "" || payload.Owner == "" {
		return fmt.Errorf("invalid payload: missing task or owner identifier")
	}

	log.Printf("Processing note %s for user %s (%d bytes)", payload.TaskID, payload.Owner, len(payload.Audio))

	// Step 1: upload the recording. The object key embeds the capture time
	// so multiple notes from the same user never collide.
	if w.storage == nil || !w.storage.IsConfigured() {
		w.failTask(payload.Owner, payload.TaskID, "Storage is not configured")
		return fmt.Errorf("storage client not configured")
	}

	key := fmt.Sprintf("%s/%d.webm", payload.Owner, payload.ReferenceDate.UnixMilli())
	if _, err := w.storage.Upload(ctx, key, bytes.NewReader(payload.Audio), payload.ContentType); err != nil {
		w.failTask(payload.Owner, payload.TaskID, "Failed to upload recording")
		return fmt.Errorf("failed to upload audio: %w", err)
	}

	// The recording is durable from here on; keep the reference even if a
	// later step fails.
	w.tasks.Update(payload.Owner, payload.TaskID, func(task model.Task) model.Task {
		task.AudioReference = key
		return task
	})

	// Step 2: mint a short-lived read URL for the interpreter.
	signedURL, err := w.storage.GetSignedURL(ctx, key, signedURLTTL)
	if err != nil {
		w.failTask(payload.Owner, payload.TaskID, "Failed to sign recording URL")
		return fmt.Errorf("failed to sign audio URL: %w", err)
	}

	// Step 3: interpretation.
	result, err := w.interpreter.Interpret(ctx, signedURL, payload.Timezone, payload.ReferenceDate)
	if err != nil {
		w.failTask(payload.Owner, payload.TaskID, "Failed to interpret recording")
		return fmt.Errorf("failed to interpret audio: %w", err)
	}

	// The interpreted date must parse before any further call spends work
	// on it; a malformed date fails the job here.
	eventDate, err := normalizeEventDate(result.Data.Date)
	if err != nil {
		w.failTask(payload.Owner, payload.TaskID, "Interpreter returned an invalid event date")
		return fmt.Errorf("invalid event date %q: %w", result.Data.Date, err)
	}

	// Step 4: calendar sync, best effort. A missing delegated token or a
	// calendar error downgrades the outcome, it never fails the job.
	synced := w.calendar.CreateEvent(ctx, result.Data.Title, result.Data.Date, payload.ProviderToken)

	// Step 5: persist. The server-assigned record replaces the optimistic
	// one under the provisional identifier.
	persisted, err := w.repo.Insert(ctx, model.Task{
		Owner:          payload.Owner,
		AudioReference: key,
		Transcription:  result.Transcription,
		Title:          result.Data.Title,
		EventDate:      eventDate,
		CalendarSynced: synced,
	})
	if err != nil {
		w.failTask(payload.Owner, payload.TaskID, "Failed to save note")
		return fmt.Errorf("failed to persist task: %w", err)
	}

	if ok := w.tasks.Update(payload.Owner, payload.TaskID, func(model.Task) model.Task {
		return persisted
	}); !ok {
		log.Printf("Task %s no longer in list for user %s, skipping reconciliation", payload.TaskID, payload.Owner)
	}

	if w.hub != nil {
		w.hub.BroadcastTask(payload.Owner, persisted)
	}

	log.Printf("Note %s completed: title=%q synced=%v", payload.TaskID, persisted.Title, synced)
	return nil
}

// failTask flips the optimistic task to its terminal failed state. Fields
// already established (such as the audio reference) are kept.
func (w *NoteWorker) failTask(owner, taskID, message string) {
	ok := w.tasks.Update(owner, taskID, func(task model.Task) model.Task {
		task.SyncState = model.SyncStateFailed
		task.Title = model.TitleFailed
		return task
	})
	if !ok {
		log.Printf("Task %s not found while marking failure for user %s", taskID, owner)
	}

	if w.hub != nil {
		w.hub.BroadcastError(owner, taskID, response.CodePipelineFailed, message)
	}
}

// normalizeEventDate re-renders the interpreter's date in UTC with
// millisecond precision so stored dates have a single canonical form.
func normalizeEventDate(date string) (string, error) {
	parsed, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return "", err
	}
	return parsed.UTC().Format("2006-01-02T15:04:05.000Z"), nil
}
