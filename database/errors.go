// acforums/database/errors.go
package database

import (
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/AscendingCreations/acforums/config"
)

var (
	// ErrNotFound is returned when an operation targets a board, thread,
	// post or user that does not exist or cannot hold the requested
	// content (posting into a link board, deleting a root post through
	// the reply-delete path).
	ErrNotFound = errors.New("not found")

	// ErrInvariant is returned when a defensive check fails after an
	// update (a counter went negative, a dangling last-post reference).
	// The enclosing transaction is rolled back in full.
	ErrInvariant = errors.New("aggregate invariant violated")

	// ErrConflict is returned when a write lock could not be taken.
	// No partial state was committed, so the caller may retry.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrConfig is returned when a threshold needed by a background job
	// is missing or invalid. The job logs and reschedules.
	ErrConfig = errors.New("invalid configuration")
)

// mapSQLiteErr translates driver-level busy/locked errors into
// ErrConflict so callers can match with errors.Is.
func mapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return errors.Join(ErrConflict, err)
		}
	}
	return err
}

// withRetry runs fn, retrying a bounded number of times when it fails
// with ErrConflict. Each attempt sees no partial state from the last.
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt <= config.MaxConflictRetries; attempt++ {
		err = fn()
		if !errors.Is(err, ErrConflict) {
			return err
		}
		time.Sleep(config.ConflictRetryPause * time.Millisecond)
	}
	return err
}
