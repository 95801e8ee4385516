package repository

import (
	"context"

	"github.com/voiceflow/api/internal/model"
)

// TaskRepository is the durable store for completed workflow records.
type TaskRepository interface {
	// Insert writes a task row and returns the persisted record with the
	// server-assigned identifier and creation timestamp.
	Insert(ctx context.Context, task model.Task) (model.Task, error)

	// ListByOwner returns the owner's tasks ordered by creation time
	// descending.
	ListByOwner(ctx context.Context, owner string) ([]model.Task, error)
}
