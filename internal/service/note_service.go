package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/voiceflow/api/internal/model"
	"github.com/voiceflow/api/internal/repository"
	"github.com/voiceflow/api/internal/session"
	"github.com/voiceflow/api/internal/tasklist"
)

const TaskTypeNote = "note:process"

// NoteService is the entry point of the recording-to-sync workflow. Create
// performs the optimistic insert and hands the pipeline to the worker; the
// UI sees the new task before any network call is made.
type NoteService struct {
	tasks       *tasklist.Store
	asynqClient *asynq.Client
	repo        repository.TaskRepository

	mu       sync.Mutex
	hydrated map[string]bool
}

func NewNoteService(tasks *tasklist.Store, asynqClient *asynq.Client, repo repository.TaskRepository) *NoteService {
	return &NoteService{
		tasks:       tasks,
		asynqClient: asynqClient,
		repo:        repo,
		hydrated:    make(map[string]bool),
	}
}

// Create inserts the optimistic task and enqueues the processing job.
// The returned task carries the provisional identifier; the worker will
// replace it with the persisted record or flip it to failed.
func (s *NoteService) Create(ctx context.Context, payload *model.NoteJobPayload) (*model.Task, error) {
	if payload.ReferenceDate.IsZero() {
		payload.ReferenceDate = time.Now()
	}
	if payload.ContentType == "" {
		payload.ContentType = "audio/webm"
	}
	payload.TaskID = uuid.New().String()

	task := model.Task{
		ID:        payload.TaskID,
		Owner:     payload.Owner,
		CreatedAt: payload.ReferenceDate,
		Title:     model.TitleProcessing,
		SyncState: model.SyncStateProcessing,
	}

	// Optimistic insert happens before the job is enqueued so the task is
	// visible even if enqueueing fails.
	s.tasks.Prepend(payload.Owner, task)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		s.failEnqueue(payload.Owner, payload.TaskID)
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Single attempt: a pipeline invocation runs once per user action,
	// retries are not part of this workflow.
	_, err = s.asynqClient.Enqueue(asynq.NewTask(TaskTypeNote, payloadBytes),
		asynq.Queue("notes"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		s.failEnqueue(payload.Owner, payload.TaskID)
		return nil, fmt.Errorf("failed to enqueue note job: %w", err)
	}

	return &task, nil
}

// List returns the owner's tasks, newest first. On the first call for an
// owner the in-memory state is hydrated from the durable store; afterwards
// the in-memory snapshot is authoritative, since it also carries in-flight
// optimistic tasks the database does not know about yet.
func (s *NoteService) List(ctx context.Context, owner string) ([]model.Task, error) {
	if s.needsHydration(owner) {
		if err := s.hydrate(ctx, owner); err != nil {
			return nil, err
		}
	}

	tasks := s.tasks.Snapshot(owner)
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// WatchSessions clears an owner's task list when their session is torn
// down, so a signed-out user's data does not linger in memory. Runs until
// the events channel is closed.
func (s *NoteService) WatchSessions(events <-chan session.Event) {
	for ev := range events {
		if !ev.SignedIn {
			s.tasks.Replace(ev.UserID, nil)
			s.mu.Lock()
			delete(s.hydrated, ev.UserID)
			s.mu.Unlock()
		}
	}
}

func (s *NoteService) needsHydration(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hydrated[owner]
}

func (s *NoteService) hydrate(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hydrated[owner] {
		return nil
	}

	if s.repo != nil {
		tasks, err := s.repo.ListByOwner(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to fetch tasks: %w", err)
		}
		// Merge, never replace: a note submitted before this first fetch
		// is still in flight under its provisional id, and the worker's
		// reconciliation must find it.
		s.tasks.Merge(owner, tasks)
	}

	s.hydrated[owner] = true
	return nil
}

func (s *NoteService) failEnqueue(owner, taskID string) {
	ok := s.tasks.Update(owner, taskID, func(t model.Task) model.Task {
		t.SyncState = model.SyncStateFailed
		t.Title = model.TitleFailed
		return t
	})
	if !ok {
		log.Printf("Task %s not found while marking enqueue failure", taskID)
	}
}
