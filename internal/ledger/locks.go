package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Lock is an exclusive edit lock on a book's split files.
type Lock struct {
	BookID     string    `json:"book_id" yaml:"book_id"`
	Holder     string    `json:"holder" yaml:"holder"`
	AcquiredAt time.Time `json:"acquired_at" yaml:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at" yaml:"expires_at"`
}

// AcquireLock takes or renews the edit lock for holder. An unexpired lock
// held by someone else yields ErrLocked.
func (l *Ledger) AcquireLock(ctx context.Context, bookID, holder string, ttl time.Duration) (*Lock, error) {
	if holder == "" {
		return nil, errors.New("ledger: lock holder is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ledger: lock ttl must be positive, got %s", ttl)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE id = ?`, bookID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("ledger: lock %s: %w", bookID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, bookID)
	}

	now := l.now()
	current, err := lockRow(tx.QueryRowContext(ctx,
		`SELECT book_id, holder, acquired_at, expires_at FROM locks WHERE book_id = ?`, bookID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger: lock %s: %w", bookID, err)
	}
	if current != nil && current.Holder != holder && current.ExpiresAt.After(now) {
		return current, fmt.Errorf("%w: held by %s until %s", ErrLocked, current.Holder, current.ExpiresAt.Format(time.RFC3339))
	}

	lock := &Lock{BookID: bookID, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	if current != nil && current.Holder == holder && current.ExpiresAt.After(now) {
		lock.AcquiredAt = current.AcquiredAt
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO locks (book_id, holder, acquired_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (book_id) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at`,
		bookID, holder, lock.AcquiredAt.UnixNano(), lock.ExpiresAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("ledger: lock %s: %w", bookID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ledger: commit lock %s: %w", bookID, err)
	}
	return lock, nil
}

// ReleaseLock drops holder's lock. Releasing a lock that is not held, or
// has expired, is not an error; releasing someone else's live lock is.
// The holder check and the delete are one statement, so a lock taken over
// by another user in between is never removed.
func (l *Ledger) ReleaseLock(ctx context.Context, bookID, holder string) error {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM locks WHERE book_id = ? AND (holder = ? OR expires_at <= ?)`,
		bookID, holder, l.now().UnixNano())
	if err != nil {
		return fmt.Errorf("ledger: release %s: %w", bookID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return l.CheckEditable(ctx, bookID, holder)
}

// LockStatus returns the live lock on a book, or nil when it is free.
func (l *Ledger) LockStatus(ctx context.Context, bookID string) (*Lock, error) {
	lock, err := lockRow(l.db.QueryRowContext(ctx,
		`SELECT book_id, holder, acquired_at, expires_at FROM locks WHERE book_id = ?`, bookID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: lock status %s: %w", bookID, err)
	}
	if !lock.ExpiresAt.After(l.now()) {
		return nil, nil
	}
	return lock, nil
}

// CheckEditable returns ErrLocked when someone other than holder has a live
// lock on the book.
func (l *Ledger) CheckEditable(ctx context.Context, bookID, holder string) error {
	lock, err := l.LockStatus(ctx, bookID)
	if err != nil {
		return err
	}
	if lock != nil && lock.Holder != holder {
		return fmt.Errorf("%w: held by %s", ErrLocked, lock.Holder)
	}
	return nil
}

func lockRow(row *sql.Row) (*Lock, error) {
	var lock Lock
	var acquired, expires int64
	if err := row.Scan(&lock.BookID, &lock.Holder, &acquired, &expires); err != nil {
		return nil, err
	}
	lock.AcquiredAt = time.Unix(0, acquired)
	lock.ExpiresAt = time.Unix(0, expires)
	return &lock, nil
}

// Modification records a manual edit of a split file.
type Modification struct {
	BookID     string    `json:"book_id" yaml:"book_id"`
	Holder     string    `json:"holder" yaml:"holder"`
	Path       string    `json:"path" yaml:"path"`
	ModifiedAt time.Time `json:"modified_at" yaml:"modified_at"`
}

// RecordModification appends a manual edit to the book's history.
func (l *Ledger) RecordModification(ctx context.Context, bookID, holder, path string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO modifications (book_id, holder, path, modified_at) VALUES (?, ?, ?, ?)`,
		bookID, holder, path, l.now().UnixNano())
	if err != nil {
		return fmt.Errorf("ledger: record modification %s: %w", bookID, err)
	}
	return nil
}

// Modifications returns a book's manual edits, oldest first.
func (l *Ledger) Modifications(ctx context.Context, bookID string) ([]Modification, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT book_id, holder, path, modified_at FROM modifications WHERE book_id = ? ORDER BY id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("ledger: modifications of %s: %w", bookID, err)
	}
	defer rows.Close()

	var out []Modification
	for rows.Next() {
		var m Modification
		var at int64
		if err := rows.Scan(&m.BookID, &m.Holder, &m.Path, &at); err != nil {
			return nil, fmt.Errorf("ledger: scan modification: %w", err)
		}
		m.ModifiedAt = time.Unix(0, at)
		out = append(out, m)
	}
	return out, rows.Err()
}
