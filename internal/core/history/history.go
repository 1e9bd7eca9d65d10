package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/guiyumin/biliget/internal/core/config"
)

const historyDBFile = "history.db"

// Status of a finished part
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when deleting a record that does not exist
var ErrNotFound = errors.New("record not found")

// Record is one downloaded (or failed) video part
type Record struct {
	ID          string
	VideoID     string
	Page        int
	Title       string
	Path        string
	Quality     int
	Status      Status
	SizeBytes   int64
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// Duration is the wall time the part took
func (r Record) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Stats summarizes the history table
type Stats struct {
	Completed  int
	Failed     int
	TotalBytes int64
}

// DB stores download history in SQLite
type DB struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenDefault opens history.db in the config directory
func OpenDefault() (*DB, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}
	return Open(filepath.Join(configDir, historyDBFile))
}

// Open creates or opens the history database at path
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS part_history (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			page INTEGER NOT NULL,
			title TEXT,
			path TEXT,
			quality INTEGER DEFAULT 0,
			status TEXT NOT NULL,
			size_bytes INTEGER DEFAULT 0,
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_part_completed_at ON part_history(completed_at DESC);
		CREATE INDEX IF NOT EXISTS idx_part_status ON part_history(status);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (h *DB) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// Add saves a record, assigning an ID when it has none
func (h *DB) Add(r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	_, err := h.db.Exec(`
		INSERT OR REPLACE INTO part_history
		(id, video_id, page, title, path, quality, status, size_bytes, started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.VideoID,
		r.Page,
		r.Title,
		r.Path,
		r.Quality,
		string(r.Status),
		r.SizeBytes,
		r.StartedAt.Unix(),
		r.CompletedAt.Unix(),
		r.Error,
	)
	return err
}

// List returns records newest first with pagination, plus the total count
func (h *DB) List(limit, offset int) ([]Record, int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var total int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM part_history").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count history: %w", err)
	}

	rows, err := h.db.Query(`
		SELECT id, video_id, page, title, path, quality, status, size_bytes, started_at, completed_at, error_message
		FROM part_history
		ORDER BY completed_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		var title, path, errorMsg sql.NullString
		var status string
		var startedAt, completedAt int64

		err := rows.Scan(
			&r.ID,
			&r.VideoID,
			&r.Page,
			&title,
			&path,
			&r.Quality,
			&status,
			&r.SizeBytes,
			&startedAt,
			&completedAt,
			&errorMsg,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan history row: %w", err)
		}

		r.Title = title.String
		r.Path = path.String
		r.Error = errorMsg.String
		r.Status = Status(status)
		r.StartedAt = time.Unix(startedAt, 0)
		r.CompletedAt = time.Unix(completedAt, 0)
		records = append(records, r)
	}

	return records, total, rows.Err()
}

// Stats returns completed/failed counts and the bytes of completed parts
func (h *DB) Stats() (Stats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var s Stats
	err := h.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN size_bytes ELSE 0 END), 0)
		FROM part_history
	`).Scan(&s.Completed, &s.Failed, &s.TotalBytes)
	return s, err
}

// Delete removes a single record
func (h *DB) Delete(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.db.Exec("DELETE FROM part_history WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear deletes all records and returns how many were removed
func (h *DB) Clear() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.db.Exec("DELETE FROM part_history")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
