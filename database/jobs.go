// acforums/database/jobs.go
package database

import (
	"database/sql"
	"time"
)

// JobNextRun returns the persisted next-run time for a named background
// job. ok is false when the job has never been scheduled.
func (ds *DatabaseService) JobNextRun(name string) (next time.Time, ok bool, err error) {
	err = ds.DB.QueryRow("SELECT next_run FROM job_state WHERE name = ?", name).Scan(&next)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return next, true, nil
}

// SetJobNextRun records when a named background job should fire next.
// The record survives restarts so a rebooted process resumes the
// existing cadence instead of starting a fresh one.
func (ds *DatabaseService) SetJobNextRun(name string, next time.Time) error {
	_, err := ds.DB.Exec(`INSERT INTO job_state (name, next_run) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET next_run = excluded.next_run`, name, next)
	return err
}
