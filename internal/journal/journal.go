// Package journal persists a task history so async job outcomes survive the
// process. It is an audit trail, not a queue: dispatch state lives in memory
// and the journal is written on the way through.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Task statuses recorded in the journal.
const (
	StatusRunning = "running"
	StatusQueued  = "queued"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Entry is one journaled task.
type Entry struct {
	TaskID        string    `json:"task_id"`
	IdentitySafe  string    `json:"identity_safe"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	QueuePosition int       `json:"queue_position"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Store is a SQLite-backed task journal. A nil *Store is valid and records
// nothing, so callers never branch on whether journaling is configured.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the journal database. Pass ":memory:" for an
// ephemeral journal.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var connStr string
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared&_timeout=5000&_busy_timeout=5000"
	} else {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
		connStr = dbPath + "?_journal=WAL&_timeout=5000&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}

	logger.Info("task journal initialized", "path", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		task_id TEXT PRIMARY KEY,
		identity_safe TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		queue_position INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_identity ON tasks(identity_safe);
	CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordSubmitted journals a task at acceptance time.
func (s *Store) RecordSubmitted(taskID, identitySafe, kind, status string, queuePosition int) error {
	if s == nil {
		return nil
	}
	query := `
	INSERT INTO tasks (task_id, identity_safe, kind, status, queue_position, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, taskID, identitySafe, kind, status, queuePosition, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to journal task: %w", err)
	}
	s.logger.Debug("task journaled", "task_id", taskID, "status", status)
	return nil
}

// RecordResult journals a task's terminal state.
func (s *Store) RecordResult(taskID string, taskErr error) error {
	if s == nil {
		return nil
	}
	status := StatusDone
	errText := ""
	if taskErr != nil {
		status = StatusFailed
		errText = taskErr.Error()
	}
	_, err := s.db.Exec(
		"UPDATE tasks SET status = ?, error = ?, finished_at = ? WHERE task_id = ?",
		status, errText, time.Now().UTC().Format(time.RFC3339), taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to journal task result: %w", err)
	}
	return nil
}

// Get returns one journaled task, or nil if the task is unknown.
func (s *Store) Get(taskID string) (*Entry, error) {
	if s == nil {
		return nil, nil
	}
	row := s.db.QueryRow(
		"SELECT task_id, identity_safe, kind, status, queue_position, error, created_at, finished_at FROM tasks WHERE task_id = ?",
		taskID,
	)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return e, nil
}

// Recent returns the latest journaled tasks, newest first.
func (s *Store) Recent(limit int) ([]*Entry, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.Query(
		"SELECT task_id, identity_safe, kind, status, queue_position, error, created_at, finished_at FROM tasks ORDER BY created_at DESC, task_id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(scan func(dest ...any) error) (*Entry, error) {
	var e Entry
	var createdAt, finishedAt string
	if err := scan(&e.TaskID, &e.IdentitySafe, &e.Kind, &e.Status, &e.QueuePosition, &e.Error, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if finishedAt != "" {
		e.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
	}
	return &e, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
