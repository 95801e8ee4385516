package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/voiceflow/api/internal/model"
)

const tasksSchema = `
	CREATE TABLE IF NOT EXISTS tasks (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id       TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		audio_url     TEXT,
		transcription TEXT,
		title         TEXT NOT NULL,
		event_date    TEXT,
		is_synced     BOOLEAN NOT NULL DEFAULT false
	);
	CREATE INDEX IF NOT EXISTS tasks_user_created_idx ON tasks (user_id, created_at DESC);`

// PostgresTaskRepository stores tasks in the tasks table. Persisted rows
// carry the server-assigned identifier and creation timestamp that replace
// the client's provisional ones.
type PostgresTaskRepository struct {
	db *sql.DB
}

// NewPostgresTaskRepository opens a connection pool against the given DSN.
func NewPostgresTaskRepository(dsn string) (*PostgresTaskRepository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, tasksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresTaskRepository{db: db}, nil
}

// Insert writes the task and returns the server-assigned row.
func (r *PostgresTaskRepository) Insert(ctx context.Context, task model.Task) (model.Task, error) {
	const query = `
		INSERT INTO tasks (user_id, audio_url, transcription, title, event_date, is_synced)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, created_at, audio_url, transcription, title, event_date, is_synced`

	row := r.db.QueryRowContext(ctx, query,
		task.Owner,
		task.AudioReference,
		task.Transcription,
		task.Title,
		task.EventDate,
		task.CalendarSynced,
	)

	persisted, err := scanTask(row)
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return persisted, nil
}

// ListByOwner returns the owner's tasks, newest first.
func (r *PostgresTaskRepository) ListByOwner(ctx context.Context, owner string) ([]model.Task, error) {
	const query = `
		SELECT id, user_id, created_at, audio_url, transcription, title, event_date, is_synced
		FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	return tasks, nil
}

// Close releases the connection pool.
func (r *PostgresTaskRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (model.Task, error) {
	var (
		task          model.Task
		audioRef      sql.NullString
		transcription sql.NullString
		eventDate     sql.NullString
	)

	err := row.Scan(
		&task.ID,
		&task.Owner,
		&task.CreatedAt,
		&audioRef,
		&transcription,
		&task.Title,
		&eventDate,
		&task.CalendarSynced,
	)
	if err != nil {
		return model.Task{}, err
	}

	task.AudioReference = audioRef.String
	task.Transcription = transcription.String
	task.EventDate = eventDate.String
	task.SyncState = model.SyncStateSynced
	if !task.CalendarSynced {
		// Persisted but not on the calendar: terminal, not failed.
		task.SyncState = model.SyncStatePending
	}

	return task, nil
}
