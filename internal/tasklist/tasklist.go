package tasklist

import (
	"sync"

	"github.com/voiceflow/api/internal/model"
)

// Store holds the in-memory task collections the UI renders, one ordered
// list per owner, newest first. Supported mutations are bulk replace,
// prepend and update-by-identifier; nothing else. Every mutation builds a
// fresh slice so snapshots handed out earlier are never changed underneath
// their readers, even when concurrent pipeline invocations race.
type Store struct {
	mu    sync.RWMutex
	lists map[string][]model.Task
}

func NewStore() *Store {
	return &Store{
		lists: make(map[string][]model.Task),
	}
}

// Replace swaps the owner's whole collection, e.g. after an initial fetch
// or on logout (with an empty slice).
func (s *Store) Replace(owner string, tasks []model.Task) {
	next := make([]model.Task, len(tasks))
	copy(next, tasks)

	s.mu.Lock()
	s.lists[owner] = next
	s.mu.Unlock()
}

// Prepend inserts a new optimistic task at the front of the owner's list.
func (s *Store) Prepend(owner string, task model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.lists[owner]
	next := make([]model.Task, 0, len(current)+1)
	next = append(next, task)
	next = append(next, current...)
	s.lists[owner] = next
}

// Merge appends fetched tasks behind the owner's current list. Every task
// already present is kept in place (in-flight tasks stay in front) and
// fetched rows whose identifier is already listed are skipped.
func (s *Store) Merge(owner string, tasks []model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.lists[owner]
	seen := make(map[string]bool, len(current))
	for _, task := range current {
		seen[task.ID] = true
	}

	next := make([]model.Task, 0, len(current)+len(tasks))
	next = append(next, current...)
	for _, task := range tasks {
		if !seen[task.ID] {
			next = append(next, task)
		}
	}
	s.lists[owner] = next
}

// Update reconciles a single task, matched by identifier, never by
// position. The transform receives a copy and returns the replacement;
// the relative order of untouched tasks is preserved. Returns false when
// no task with that identifier exists.
func (s *Store) Update(owner, id string, transform func(model.Task) model.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.lists[owner]
	for i, task := range current {
		if task.ID != id {
			continue
		}
		next := make([]model.Task, len(current))
		copy(next, current)
		next[i] = transform(task)
		s.lists[owner] = next
		return true
	}
	return false
}

// Get returns the task with the given identifier, if present.
func (s *Store) Get(owner, id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, task := range s.lists[owner] {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

// Snapshot returns the owner's current list. The returned slice is never
// mutated afterwards; callers may hold on to it.
func (s *Store) Snapshot(owner string) []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lists[owner]
}
