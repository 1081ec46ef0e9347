// acforums/database/recount.go
//
// Full recomputation of every derived field from raw content. Reads
// only posts/threads/boards rows, never other derived values, so a run
// converges to the true totals no matter how wrong the stored counters
// were. Safe to re-run at any time; used for bootstrap and drift repair.
package database

import (
	"database/sql"
	"fmt"
)

// RecountAll rewrites every derived counter and last-post pointer in
// the database. Inconsistent data is silently overwritten with the
// recomputed truth; a failure on one entity is logged and the run
// continues.
func (ds *DatabaseService) RecountAll() error {
	boardIDs, err := ds.collectIDs("SELECT id FROM boards")
	if err != nil {
		return fmt.Errorf("recount: list boards: %w", err)
	}
	userIDs, err := ds.collectIDs("SELECT id FROM users")
	if err != nil {
		return fmt.Errorf("recount: list users: %w", err)
	}

	var failed int
	for _, id := range boardIDs {
		if err := ds.RecountBoard(id); err != nil {
			ds.logger.Error("Recount failed for board", "board", id, "error", err)
			failed++
		}
	}
	for _, id := range userIDs {
		if err := ds.RecountUser(id); err != nil {
			ds.logger.Error("Recount failed for user", "user", id, "error", err)
			failed++
		}
	}

	ds.logger.Info("Recount complete", "boards", len(boardIDs), "users", len(userIDs), "failed", failed)
	return nil
}

// RecountBoard recomputes one board's thread/post totals and last-post
// pointer, and those of every thread on it, by scanning raw posts.
func (ds *DatabaseService) RecountBoard(boardID int64) error {
	return ds.inTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow("SELECT COUNT(*) FROM boards WHERE id = ?", boardID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("board %d: %w", boardID, ErrNotFound)
		}

		threadIDs, err := collectIDsTx(tx, "SELECT id FROM threads WHERE board_id = ?", boardID)
		if err != nil {
			return err
		}

		for _, threadID := range threadIDs {
			if _, err := tx.Exec(`UPDATE threads SET
				post_count = (SELECT COUNT(*) FROM posts WHERE thread_id = ?)
				WHERE id = ?`, threadID, threadID); err != nil {
				return err
			}
			// Unlike the live mutation path, recount tolerates a thread
			// with no posts: the pointer is cleared, not an error.
			if _, err := tx.Exec(`UPDATE threads SET
				last_post_id = (SELECT id FROM posts WHERE thread_id = ? ORDER BY post_time DESC, id DESC LIMIT 1),
				last_post_time = COALESCE(
					(SELECT post_time FROM posts WHERE thread_id = ? ORDER BY post_time DESC, id DESC LIMIT 1),
					last_post_time)
				WHERE id = ?`, threadID, threadID, threadID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(`UPDATE boards SET
			thread_count = (SELECT COUNT(*) FROM threads WHERE board_id = ?),
			post_count = (SELECT COUNT(*) FROM posts p JOIN threads t ON p.thread_id = t.id WHERE t.board_id = ?)
			WHERE id = ?`, boardID, boardID, boardID); err != nil {
			return err
		}
		return recomputeBoardLast(tx, boardID)
	})
}

// RecountUser recomputes a user's authored post and thread totals.
func (ds *DatabaseService) RecountUser(userID int64) error {
	return ds.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE users SET
			post_count = (SELECT COUNT(*) FROM posts WHERE creator_id = ?),
			thread_count = (SELECT COUNT(*) FROM threads WHERE creator_id = ?)
			WHERE id = ?`, userID, userID, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil
	})
}

func (ds *DatabaseService) collectIDs(query string, args ...interface{}) ([]int64, error) {
	rows, err := ds.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in collectIDs", "error", err)
		}
	}()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectIDsTx(tx *sql.Tx, query string, args ...interface{}) ([]int64, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return ids, rows.Err()
}
