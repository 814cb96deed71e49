// Package ledger records books, the status of each processing stage, edit
// locks, and manual file modifications in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a book or stage record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLocked is returned when another holder owns an unexpired edit lock.
	ErrLocked = errors.New("book is locked by another user")
)

// Status is the state of one processing stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	source_name TEXT NOT NULL DEFAULT '',
	source_url  TEXT NOT NULL DEFAULT '',
	page_count  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stages (
	book_id      TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	stage        TEXT NOT NULL,
	status       TEXT NOT NULL,
	run_id       TEXT NOT NULL DEFAULT '',
	started_at   INTEGER,
	completed_at INTEGER,
	error        TEXT NOT NULL DEFAULT '',
	files        TEXT NOT NULL DEFAULT '[]',
	metadata     TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (book_id, stage)
);

CREATE TABLE IF NOT EXISTS locks (
	book_id     TEXT PRIMARY KEY REFERENCES books(id) ON DELETE CASCADE,
	holder      TEXT NOT NULL,
	acquired_at INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS modifications (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id     TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	holder      TEXT NOT NULL,
	path        TEXT NOT NULL,
	modified_at INTEGER NOT NULL
);
`

// Ledger is the SQLite-backed job and status store.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path. ":memory:" gives a private
// in-memory ledger.
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	// One connection keeps pragmas and in-memory databases consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Book is a registered source PDF.
type Book struct {
	ID         string    `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	SourceName string    `json:"source_name" yaml:"source_name"`
	SourceURL  string    `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	PageCount  int       `json:"page_count" yaml:"page_count"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// CreateBook registers a book. CreatedAt is set when zero.
func (l *Ledger) CreateBook(ctx context.Context, b *Book) error {
	if b.ID == "" {
		return errors.New("ledger: book id is required")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = l.now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO books (id, title, source_name, source_url, page_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.SourceName, b.SourceURL, b.PageCount, b.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("ledger: create book %s: %w", b.ID, err)
	}
	return nil
}

// GetBook returns a book by ID.
func (l *Ledger) GetBook(ctx context.Context, id string) (*Book, error) {
	var b Book
	var created int64
	err := l.db.QueryRowContext(ctx,
		`SELECT id, title, source_name, source_url, page_count, created_at FROM books WHERE id = ?`, id,
	).Scan(&b.ID, &b.Title, &b.SourceName, &b.SourceURL, &b.PageCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get book %s: %w", id, err)
	}
	b.CreatedAt = time.Unix(0, created)
	return &b, nil
}

// ListBooks returns every book, newest first.
func (l *Ledger) ListBooks(ctx context.Context) ([]Book, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, title, source_name, source_url, page_count, created_at FROM books ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list books: %w", err)
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		var created int64
		if err := rows.Scan(&b.ID, &b.Title, &b.SourceName, &b.SourceURL, &b.PageCount, &created); err != nil {
			return nil, fmt.Errorf("ledger: scan book: %w", err)
		}
		b.CreatedAt = time.Unix(0, created)
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetSourceURL records where the service can fetch a book's PDF from.
func (l *Ledger) SetSourceURL(ctx context.Context, id, url string) error {
	res, err := l.db.ExecContext(ctx, `UPDATE books SET source_url = ? WHERE id = ?`, url, id)
	if err != nil {
		return fmt.Errorf("ledger: set source url %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	return nil
}

// DeleteBook removes a book and everything recorded for it.
func (l *Ledger) DeleteBook(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ledger: delete book %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	return nil
}

// StageRecord is the status of one stage of one book.
type StageRecord struct {
	BookID      string         `json:"book_id" yaml:"book_id"`
	Stage       string         `json:"stage" yaml:"stage"`
	Status      Status         `json:"status" yaml:"status"`
	RunID       string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	Files       []string       `json:"files" yaml:"files"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// StartStage marks a stage as processing and clears any previous outcome.
func (l *Ledger) StartStage(ctx context.Context, bookID, stage, runID string) error {
	if _, err := l.GetBook(ctx, bookID); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO stages (book_id, stage, status, run_id, started_at, completed_at, error, files, metadata)
		VALUES (?, ?, ?, ?, ?, NULL, '', '[]', '{}')
		ON CONFLICT (book_id, stage) DO UPDATE SET
			status = excluded.status,
			run_id = excluded.run_id,
			started_at = excluded.started_at,
			completed_at = NULL,
			error = '',
			files = '[]',
			metadata = '{}'`,
		bookID, stage, StatusProcessing, runID, l.now().UnixNano())
	if err != nil {
		return fmt.Errorf("ledger: start %s/%s: %w", bookID, stage, err)
	}
	return nil
}

// CompleteStage marks a processing stage as completed with its outputs.
func (l *Ledger) CompleteStage(ctx context.Context, bookID, stage string, files []string, metadata map[string]any) error {
	if files == nil {
		files = []string{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("ledger: encode files: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("ledger: encode metadata: %w", err)
	}
	return l.finish(ctx, bookID, stage, StatusCompleted, "", string(filesJSON), string(metaJSON))
}

// FailStage marks a stage as failed with the error text.
func (l *Ledger) FailStage(ctx context.Context, bookID, stage string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return l.finish(ctx, bookID, stage, StatusFailed, msg, "[]", "{}")
}

func (l *Ledger) finish(ctx context.Context, bookID, stage string, status Status, errMsg, files, meta string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE stages SET status = ?, completed_at = ?, error = ?, files = ?, metadata = ?
		WHERE book_id = ? AND stage = ?`,
		status, l.now().UnixNano(), errMsg, files, meta, bookID, stage)
	if err != nil {
		return fmt.Errorf("ledger: update %s/%s: %w", bookID, stage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: stage %s/%s was never started", ErrNotFound, bookID, stage)
	}
	return nil
}

// ResetStages drops the records of the named stages, which then report as
// pending. It returns how many records existed.
func (l *Ledger) ResetStages(ctx context.Context, bookID string, stages ...string) (int64, error) {
	if len(stages) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(stages)+1)
	args = append(args, bookID)
	marks := make([]string, len(stages))
	for i, st := range stages {
		marks[i] = "?"
		args = append(args, st)
	}
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM stages WHERE book_id = ? AND stage IN (`+strings.Join(marks, ", ")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("ledger: reset stages of %s: %w", bookID, err)
	}
	return res.RowsAffected()
}

// StageStatus returns the record of one stage. A stage that never ran is
// reported as pending rather than as an error.
func (l *Ledger) StageStatus(ctx context.Context, bookID, stage string) (*StageRecord, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT book_id, stage, status, run_id, started_at, completed_at, error, files, metadata
		FROM stages WHERE book_id = ? AND stage = ?`, bookID, stage)
	rec, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := l.GetBook(ctx, bookID); err != nil {
			return nil, err
		}
		return &StageRecord{BookID: bookID, Stage: stage, Status: StatusPending, Files: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: stage %s/%s: %w", bookID, stage, err)
	}
	return rec, nil
}

// Stages returns every recorded stage of a book.
func (l *Ledger) Stages(ctx context.Context, bookID string) ([]StageRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT book_id, stage, status, run_id, started_at, completed_at, error, files, metadata
		FROM stages WHERE book_id = ? ORDER BY started_at, stage`, bookID)
	if err != nil {
		return nil, fmt.Errorf("ledger: stages of %s: %w", bookID, err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		rec, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan stage: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStage(s scanner) (*StageRecord, error) {
	var rec StageRecord
	var started, completed sql.NullInt64
	var files, meta string
	if err := s.Scan(&rec.BookID, &rec.Stage, &rec.Status, &rec.RunID, &started, &completed, &rec.Error, &files, &meta); err != nil {
		return nil, err
	}
	if started.Valid {
		t := time.Unix(0, started.Int64)
		rec.StartedAt = &t
	}
	if completed.Valid {
		t := time.Unix(0, completed.Int64)
		rec.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(files), &rec.Files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(rec.Metadata) == 0 {
		rec.Metadata = nil
	}
	return &rec, nil
}
