package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/voiceflow/api/internal/model"
	"github.com/voiceflow/api/internal/tasklist"
)

type fakeStorage struct {
	configured bool
	uploadKeys []string
	uploadErr  error
	signedURL  string
	signErr    error
	signCalls  int
}

func (s *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.uploadKeys = append(s.uploadKeys, key)
	return key, nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error { return nil }

func (s *fakeStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	s.signCalls++
	if s.signErr != nil {
		return "", s.signErr
	}
	return s.signedURL, nil
}

func (s *fakeStorage) GetPublicURL(key string) string { return "http://storage.local/" + key }

func (s *fakeStorage) IsConfigured() bool { return s.configured }

type fakeInterpreter struct {
	result *model.InterpretResponse
	err    error
	calls  int
	urls   []string
}

func (i *fakeInterpreter) Interpret(ctx context.Context, audioURL, timezone string, referenceDate time.Time) (*model.InterpretResponse, error) {
	i.calls++
	i.urls = append(i.urls, audioURL)
	if i.err != nil {
		return nil, i.err
	}
	return i.result, nil
}

type fakeCalendar struct {
	synced bool
	calls  int
	titles []string
	tokens []string
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, title, dateISO, accessToken string) bool {
	c.calls++
	c.titles = append(c.titles, title)
	c.tokens = append(c.tokens, accessToken)
	return c.synced
}

type fakeRepo struct {
	insertErr error
	inserted  []model.Task
	nextID    int
}

func (r *fakeRepo) Insert(ctx context.Context, task model.Task) (model.Task, error) {
	if r.insertErr != nil {
		return model.Task{}, r.insertErr
	}
	r.nextID++
	task.ID = fmt.Sprintf("srv-%d", r.nextID)
	task.CreatedAt = time.Now()
	task.SyncState = model.SyncStateSynced
	if !task.CalendarSynced {
		task.SyncState = model.SyncStatePending
	}
	r.inserted = append(r.inserted, task)
	return task, nil
}

func (r *fakeRepo) ListByOwner(ctx context.Context, owner string) ([]model.Task, error) {
	return nil, nil
}

func goodInterpretation() *model.InterpretResponse {
	return &model.InterpretResponse{
		Transcription: "dentist appointment tomorrow at two pm",
		Data: model.InterpretData{
			Title: "Dentist appointment",
			Date:  "2024-01-02T15:00:00+01:00",
		},
	}
}

func newPayloadTask(t *testing.T, store *tasklist.Store, taskID string) *asynq.Task {
	t.Helper()
	payload := model.NoteJobPayload{
		TaskID:        taskID,
		Owner:         "u123",
		Audio:         []byte("webm-bytes"),
		ContentType:   "audio/webm",
		Timezone:      "Europe/Berlin",
		ReferenceDate: time.UnixMilli(1700000000000),
		ProviderToken: "provider-token",
	}
	store.Prepend("u123", model.Task{
		ID:        taskID,
		Owner:     "u123",
		Title:     model.TitleProcessing,
		SyncState: model.SyncStateProcessing,
	})
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return asynq.NewTask("note:process", b)
}

func TestProcessTask_Success(t *testing.T) {
	store := tasklist.NewStore()
	storage := &fakeStorage{configured: true, signedURL: "http://storage.local/signed"}
	interp := &fakeInterpreter{result: goodInterpretation()}
	cal := &fakeCalendar{synced: true}
	repo := &fakeRepo{}
	w := NewNoteWorker(store, storage, interp, cal, repo, nil)

	task := newPayloadTask(t, store, "prov-1")
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	if len(storage.uploadKeys) != 1 || storage.uploadKeys[0] != "u123/1700000000000.webm" {
		t.Errorf("unexpected upload keys: %v", storage.uploadKeys)
	}
	if interp.calls != 1 || interp.urls[0] != "http://storage.local/signed" {
		t.Errorf("expected interpretation of signed URL, got %v", interp.urls)
	}
	if cal.calls != 1 || cal.titles[0] != "Dentist appointment" || cal.tokens[0] != "provider-token" {
		t.Errorf("unexpected calendar call: titles=%v tokens=%v", cal.titles, cal.tokens)
	}

	got, ok := store.Get("u123", "srv-1")
	if !ok {
		t.Fatalf("expected persisted task under server id, have %+v", store.Snapshot("u123"))
	}
	if got.SyncState != model.SyncStateSynced {
		t.Errorf("expected synced state, got %s", got.SyncState)
	}
	if got.EventDate != "2024-01-02T14:00:00.000Z" {
		t.Errorf("expected normalized UTC event date, got %q", got.EventDate)
	}
	if got.Transcription != "dentist appointment tomorrow at two pm" {
		t.Errorf("unexpected transcription: %q", got.Transcription)
	}
	if got.AudioReference != "u123/1700000000000.webm" {
		t.Errorf("unexpected audio reference: %q", got.AudioReference)
	}
	if !got.CalendarSynced {
		t.Error("expected calendar synced flag set")
	}

	if _, ok := store.Get("u123", "prov-1"); ok {
		t.Error("provisional task should have been replaced")
	}
}

func TestProcessTask_CalendarFailureStillPersists(t *testing.T) {
	store := tasklist.NewStore()
	storage := &fakeStorage{configured: true, signedURL: "http://storage.local/signed"}
	interp := &fakeInterpreter{result: goodInterpretation()}
	cal := &fakeCalendar{synced: false}
	repo := &fakeRepo{}
	w := NewNoteWorker(store, storage, interp, cal, repo, nil)

	task := newPayloadTask(t, store, "prov-1")
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("calendar failure must not fail the pipeline: %v", err)
	}

	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 persisted task, got %d", len(repo.inserted))
	}
	if repo.inserted[0].CalendarSynced {
		t.Error("expected persisted sync flag false")
	}

	got, ok := store.Get("u123", "srv-1")
	if !ok {
		t.Fatal("expected persisted task in list")
	}
	if got.SyncState == model.SyncStateFailed {
		t.Error("calendar failure must not mark the task failed")
	}
	if got.SyncState != model.SyncStatePending {
		t.Errorf("expected pending state, got %s", got.SyncState)
	}
	if got.Title != "Dentist appointment" {
		t.Errorf("expected interpreted title kept, got %q", got.Title)
	}
}

func TestProcessTask_UploadFailureShortCircuits(t *testing.T) {
	store := tasklist.NewStore()
	storage := &fakeStorage{configured: true, uploadErr: errors.New("bucket unavailable")}
	interp := &fakeInterpreter{result: goodInterpretation()}
	cal := &fakeCalendar{synced: true}
	repo := &fakeRepo{}
	w := NewNoteWorker(store, storage, interp, cal, repo, nil)

	task := newPayloadTask(t, store, "prov-1")
	if err := w.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected upload error")
	}

	if interp.calls != 0 {
		t.Error("interpretation must not run after upload failure")
	}
	if cal.calls != 0 {
		t.Error("calendar must not run after upload failure")
	}
	if len(repo.inserted) != 0 {
		t.Error("nothing should be persisted after upload failure")
	}

	got, ok := store.Get("u123", "prov-1")
	if !ok {
		t.Fatal("expected provisional task still in list")
	}
	if got.SyncState != model.SyncStateFailed {
		t.Errorf("expected failed state, got %s", got.SyncState)
	}
	if got.Title != model.TitleFailed {
		t.Errorf("expected failure title, got %q", got.Title)
	}
}

func TestProcessTask_InterpretationFailure(t *testing.T) {
	store := tasklist.NewStore()
	storage := &fakeStorage{configured: true, signedURL: "http://storage.local/signed"}
	interp := &fakeInterpreter{err: errors.New("interpretation missing title")}
	cal := &fakeCalendar{synced: true}
	repo := &fakeRepo{}
	w := NewNoteWorker(store, storage, interp, cal, repo, nil)

	task := newPayloadTask(t, store, "prov-1")
	if err := w.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected interpretation error")
	}

	if cal.calls != 0 {
		t.Error("calendar must not run after interpretation failure")
	}

	got, _ := store.Get("u123", "prov-1")
	if got.SyncState != model.SyncStateFailed {
		t.Errorf("expected failed state, got %s", got.SyncState)
	}
	// The recording was already uploaded; the reference survives the failure.
	if got.AudioReference != "u123/1700000000000.webm" {
		t.Errorf("expected audio reference kept, got %q", got.AudioReference)
	}
}

func TestProcessTask_InvalidEventDate(t *testing.T) {
	store := tasklist.NewStore()
	storage := &fakeStorage{configured: true, signedURL: "http://storage.local/signed"}
	result := goodInterpretation()
	result.Data.Date = "next tuesday"
	interp := &fakeInterpreter{result: result}
	cal := &fakeCalendar{synced: false}
	repo := &fakeRepo{}
	w := NewNoteWorker(store, storage, interp, cal, repo, nil)

	task := newPayloadTask(t, store, "prov-1")
	if err := w.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected invalid date error")
	}

	if cal.calls != 0 {
		t.Errorf("expected no calendar call for an unparseable date, got %d", cal.calls)
	}
	if len(repo.inserted) != 0 {
		t.Error("nothing should be persisted with an unparseable date")
	}
	got, _ := store.Get("u123", "prov-1")
	if got.SyncState != model.SyncStateFailed {
		t.Errorf("expected failed state, got %s", got.SyncState)
	}
}

func TestProcessTask_PersistFailureRetainsReference(t *testing.T) {
	store := tasklist.NewStore()
	storage := &fakeStorage{configured: true, signedURL: "http://storage.local/signed"}
	interp := &fakeInterpreter{result: goodInterpretation()}
	cal := &fakeCalendar{synced: true}
	repo := &fakeRepo{insertErr: errors.New("connection refused")}
	w := NewNoteWorker(store, storage, interp, cal, repo, nil)

	task := newPayloadTask(t, store, "prov-1")
	if err := w.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected persistence error")
	}

	got, ok := store.Get("u123", "prov-1")
	if !ok {
		t.Fatal("expected provisional task still in list")
	}
	if got.SyncState != model.SyncStateFailed {
		t.Errorf("expected failed state, got %s", got.SyncState)
	}
	if got.AudioReference != "u123/1700000000000.webm" {
		t.Errorf("expected audio reference kept, got %q", got.AudioReference)
	}
}

func TestProcessTask_OutOfOrderCompletion(t *testing.T) {
	store := tasklist.NewStore()
	storage := &fakeStorage{configured: true, signedURL: "http://storage.local/signed"}
	cal := &fakeCalendar{synced: true}
	repo := &fakeRepo{}

	resultA := goodInterpretation()
	resultA.Data.Title = "Task A"
	resultB := goodInterpretation()
	resultB.Data.Title = "Task B"

	taskA := newPayloadTask(t, store, "prov-a")
	taskB := newPayloadTask(t, store, "prov-b")

	// B finishes before A even though A was created first.
	wB := NewNoteWorker(store, storage, &fakeInterpreter{result: resultB}, cal, repo, nil)
	if err := wB.ProcessTask(context.Background(), taskB); err != nil {
		t.Fatalf("pipeline B failed: %v", err)
	}
	wA := NewNoteWorker(store, storage, &fakeInterpreter{result: resultA}, cal, repo, nil)
	if err := wA.ProcessTask(context.Background(), taskA); err != nil {
		t.Fatalf("pipeline A failed: %v", err)
	}

	tasks := store.Snapshot("u123")
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	// Positions unchanged: B was prepended last, so it stays in front.
	if tasks[0].Title != "Task B" || tasks[1].Title != "Task A" {
		t.Errorf("reconciliation crossed tasks: [%q %q]", tasks[0].Title, tasks[1].Title)
	}
	for _, task := range tasks {
		if task.SyncState != model.SyncStateSynced {
			t.Errorf("task %s not synced: %s", task.ID, task.SyncState)
		}
	}
}

func TestNormalizeEventDate(t *testing.T) {
	got, err := normalizeEventDate("2024-01-02T15:00:00+01:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2024-01-02T14:00:00.000Z" {
		t.Errorf("expected 2024-01-02T14:00:00.000Z, got %q", got)
	}

	if _, err := normalizeEventDate("tomorrow"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}
