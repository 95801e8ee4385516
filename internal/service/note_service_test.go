package service

import (
	"context"
	"errors"
	"testing"

	"github.com/voiceflow/api/internal/config"
	"github.com/voiceflow/api/internal/model"
	"github.com/voiceflow/api/internal/session"
	"github.com/voiceflow/api/internal/tasklist"
	"golang.org/x/oauth2"
)

type stubRepo struct {
	tasks   map[string][]model.Task
	listErr error
	lists   int
}

func (r *stubRepo) Insert(ctx context.Context, task model.Task) (model.Task, error) {
	return task, nil
}

func (r *stubRepo) ListByOwner(ctx context.Context, owner string) ([]model.Task, error) {
	r.lists++
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.tasks[owner], nil
}

func TestList_HydratesOnceFromRepository(t *testing.T) {
	store := tasklist.NewStore()
	repo := &stubRepo{tasks: map[string][]model.Task{
		"u1": {{ID: "srv-1", Owner: "u1", Title: "Persisted", SyncState: model.SyncStateSynced}},
	}}
	svc := NewNoteService(store, nil, repo)

	tasks, err := svc.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "srv-1" {
		t.Fatalf("expected hydrated task, got %+v", tasks)
	}

	// In-flight tasks live in memory only; a second list must not wipe them.
	store.Prepend("u1", model.Task{ID: "prov-1", Owner: "u1", Title: model.TitleProcessing, SyncState: model.SyncStateProcessing})

	tasks, err = svc.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "prov-1" {
		t.Errorf("expected in-flight task preserved, got %+v", tasks)
	}
	if repo.lists != 1 {
		t.Errorf("expected single repository fetch, got %d", repo.lists)
	}
}

func TestList_HydrationKeepsInFlightTasks(t *testing.T) {
	store := tasklist.NewStore()
	repo := &stubRepo{tasks: map[string][]model.Task{
		"u1": {{ID: "srv-old", Owner: "u1", Title: "Persisted", SyncState: model.SyncStateSynced}},
	}}
	svc := NewNoteService(store, nil, repo)

	// A note submitted before the first list for this owner: the worker is
	// still running under the provisional identifier.
	store.Prepend("u1", model.Task{ID: "prov-1", Owner: "u1", Title: model.TitleProcessing, SyncState: model.SyncStateProcessing})

	tasks, err := svc.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected in-flight task plus persisted row, got %+v", tasks)
	}
	if tasks[0].ID != "prov-1" || tasks[1].ID != "srv-old" {
		t.Errorf("expected in-flight task in front of persisted rows, got %+v", tasks)
	}

	// Worker reconciliation by the provisional identifier must still land.
	ok := store.Update("u1", "prov-1", func(task model.Task) model.Task {
		task.SyncState = model.SyncStateSynced
		return task
	})
	if !ok {
		t.Error("expected provisional task to remain addressable after hydration")
	}
}

func TestList_RepositoryErrorSurfaces(t *testing.T) {
	store := tasklist.NewStore()
	repo := &stubRepo{listErr: errors.New("connection refused")}
	svc := NewNoteService(store, nil, repo)

	if _, err := svc.List(context.Background(), "u1"); err == nil {
		t.Fatal("expected repository error")
	}
}

func TestList_WithoutRepository(t *testing.T) {
	store := tasklist.NewStore()
	svc := NewNoteService(store, nil, nil)

	tasks, err := svc.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("expected empty non-nil list, got %+v", tasks)
	}
}

func TestWatchSessions_ClearsListOnSignOut(t *testing.T) {
	store := tasklist.NewStore()
	repo := &stubRepo{tasks: map[string][]model.Task{"u1": {{ID: "srv-1", Owner: "u1"}}}}
	svc := NewNoteService(store, nil, repo)

	sessions := session.NewManager(&config.OAuthConfig{ClientID: "client-id"})
	events, cancel := sessions.Subscribe()

	done := make(chan struct{})
	go func() {
		svc.WatchSessions(events)
		close(done)
	}()

	if _, err := svc.List(context.Background(), "u1"); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	sessions.SignIn("u1", "u1@example.com", &oauth2.Token{AccessToken: "x"})
	sessions.SignOut("u1")

	cancel()
	<-done

	if got := store.Snapshot("u1"); len(got) != 0 {
		t.Errorf("expected cleared list after sign-out, got %+v", got)
	}

	// Next list hydrates again.
	if _, err := svc.List(context.Background(), "u1"); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if repo.lists != 2 {
		t.Errorf("expected re-hydration after sign-out, got %d fetches", repo.lists)
	}
}
