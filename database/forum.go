// acforums/database/forum.go
//
// Every mutation of the content tree goes through this file. Callers
// never touch post_count/thread_count/last_post columns directly; the
// operations here update each derived field inside one transaction so
// the counters either all move or none do.
package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/AscendingCreations/acforums/utils"
)

// CreateThread creates a new thread with its root post on a board.
// Returns the new thread and root post ids.
func (ds *DatabaseService) CreateThread(boardID int64, title string, sticky bool, message string, authorID int64) (threadID, postID int64, err error) {
	err = ds.inTx(func(tx *sql.Tx) error {
		var link string
		err := tx.QueryRow("SELECT link FROM boards WHERE id = ?", boardID).Scan(&link)
		if err == sql.ErrNoRows {
			return fmt.Errorf("board %d: %w", boardID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if link != "" {
			// Link boards redirect elsewhere and hold no native content.
			return fmt.Errorf("board %d is a link board: %w", boardID, ErrNotFound)
		}
		if err := userExists(tx, authorID); err != nil {
			return err
		}

		now := utils.GetSQLTime()
		res, err := tx.Exec(`INSERT INTO threads (title, sticky, post_count, creator_id, board_id, last_post_time)
			VALUES (?, ?, 1, ?, ?, ?)`, title, sticky, authorID, boardID, now)
		if err != nil {
			return fmt.Errorf("failed to insert thread: %w", err)
		}
		threadID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		res, err = tx.Exec(`INSERT INTO posts (message, post_time, edit_time, creator_id, thread_id, is_root)
			VALUES (?, ?, ?, ?, ?, 1)`, message, now, now, authorID, threadID)
		if err != nil {
			return fmt.Errorf("failed to insert root post: %w", err)
		}
		postID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.Exec("UPDATE threads SET last_post_id = ? WHERE id = ?", postID, threadID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE boards SET thread_count = thread_count + 1,
			post_count = post_count + 1, last_post_id = ? WHERE id = ?`, postID, boardID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE users SET post_count = post_count + 1,
			thread_count = thread_count + 1 WHERE id = ?`, authorID); err != nil {
			return err
		}
		return nil
	})
	return threadID, postID, err
}

// CreateReply appends a post to an existing thread. Post times are
// monotonically increasing at creation, so the new post is always the
// new last post of both the thread and the board.
func (ds *DatabaseService) CreateReply(threadID int64, message string, authorID int64) (postID int64, err error) {
	err = ds.inTx(func(tx *sql.Tx) error {
		var boardID int64
		err := tx.QueryRow("SELECT board_id FROM threads WHERE id = ?", threadID).Scan(&boardID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("thread %d: %w", threadID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := userExists(tx, authorID); err != nil {
			return err
		}

		now := utils.GetSQLTime()
		res, err := tx.Exec(`INSERT INTO posts (message, post_time, edit_time, creator_id, thread_id, is_root)
			VALUES (?, ?, ?, ?, ?, 0)`, message, now, now, authorID, threadID)
		if err != nil {
			return fmt.Errorf("failed to insert reply: %w", err)
		}
		postID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`UPDATE threads SET post_count = post_count + 1,
			last_post_id = ?, last_post_time = ? WHERE id = ?`, postID, now, threadID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE boards SET post_count = post_count + 1,
			last_post_id = ? WHERE id = ?`, postID, boardID); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE users SET post_count = post_count + 1 WHERE id = ?", authorID); err != nil {
			return err
		}
		return nil
	})
	return postID, err
}

// DeletePosts removes a batch of non-root posts, maintaining every
// counter and last-post pointer touched. Root posts are rejected; use
// DeleteThread for those.
func (ds *DatabaseService) DeletePosts(postIDs []int64) error {
	if len(postIDs) == 0 {
		return nil
	}
	return ds.inTx(func(tx *sql.Tx) error {
		for _, postID := range postIDs {
			if err := deletePostTx(tx, postID); err != nil {
				return err
			}
		}
		return nil
	})
}

// deletePostTx deletes one reply post inside an open transaction.
func deletePostTx(tx *sql.Tx, postID int64) error {
	var threadID, creatorID, boardID int64
	var isRoot bool
	err := tx.QueryRow(`SELECT p.thread_id, p.creator_id, p.is_root, t.board_id
		FROM posts p JOIN threads t ON p.thread_id = t.id
		WHERE p.id = ?`, postID).Scan(&threadID, &creatorID, &isRoot, &boardID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if isRoot {
		// Removing the opening post would leave an empty thread.
		return fmt.Errorf("post %d is a thread root: %w", postID, ErrNotFound)
	}

	var wasThreadLast, wasBoardLast bool
	if err := tx.QueryRow("SELECT COALESCE(last_post_id = ?, 0) FROM threads WHERE id = ?", postID, threadID).Scan(&wasThreadLast); err != nil {
		return err
	}
	if err := tx.QueryRow("SELECT COALESCE(last_post_id = ?, 0) FROM boards WHERE id = ?", postID, boardID).Scan(&wasBoardLast); err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM posts WHERE id = ?", postID); err != nil {
		return fmt.Errorf("failed to delete post %d: %w", postID, err)
	}
	if _, err := tx.Exec("UPDATE threads SET post_count = post_count - 1 WHERE id = ?", threadID); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE boards SET post_count = post_count - 1 WHERE id = ?", boardID); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE users SET post_count = post_count - 1 WHERE id = ?", creatorID); err != nil {
		return err
	}

	if wasThreadLast {
		if err := recomputeThreadLast(tx, threadID); err != nil {
			return err
		}
	}
	if wasBoardLast {
		if err := recomputeBoardLast(tx, boardID); err != nil {
			return err
		}
	}

	return checkAggregates(tx, boardID, threadID, creatorID)
}

// DeleteThread cascades a thread deletion: every child post goes with
// it, and the board, creator and per-author counters are walked back.
func (ds *DatabaseService) DeleteThread(threadID int64) error {
	return ds.inTx(func(tx *sql.Tx) error {
		return deleteThreadTx(tx, threadID)
	})
}

func deleteThreadTx(tx *sql.Tx, threadID int64) error {
	var boardID, creatorID int64
	var postCount int
	err := tx.QueryRow("SELECT board_id, creator_id, post_count FROM threads WHERE id = ?", threadID).
		Scan(&boardID, &creatorID, &postCount)
	if err == sql.ErrNoRows {
		return fmt.Errorf("thread %d: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	// Walk back each author's post total before the rows disappear.
	rows, err := tx.Query("SELECT creator_id, COUNT(*) FROM posts WHERE thread_id = ? GROUP BY creator_id", threadID)
	if err != nil {
		return err
	}
	type authored struct {
		userID int64
		posts  int
	}
	var authors []authored
	for rows.Next() {
		var a authored
		if err := rows.Scan(&a.userID, &a.posts); err != nil {
			rows.Close()
			return err
		}
		authors = append(authors, a)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	for _, a := range authors {
		if _, err := tx.Exec("UPDATE users SET post_count = post_count - ? WHERE id = ?", a.posts, a.userID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("UPDATE users SET thread_count = thread_count - 1 WHERE id = ?", creatorID); err != nil {
		return err
	}

	var wasBoardLast bool
	err = tx.QueryRow(`SELECT COALESCE((SELECT thread_id FROM posts WHERE id = b.last_post_id) = ?, 0)
		FROM boards b WHERE b.id = ?`, threadID, boardID).Scan(&wasBoardLast)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM posts WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete thread posts: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM threads WHERE id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if _, err := tx.Exec(`UPDATE boards SET thread_count = thread_count - 1,
		post_count = post_count - ? WHERE id = ?`, postCount, boardID); err != nil {
		return err
	}

	if wasBoardLast {
		if err := recomputeBoardLast(tx, boardID); err != nil {
			return err
		}
	}

	return checkAggregates(tx, boardID, 0, creatorID)
}

// MoveThread reassigns a thread to another board, transferring its
// post-count contribution and its claim on each board's last post.
func (ds *DatabaseService) MoveThread(threadID, destBoardID int64) error {
	return ds.inTx(func(tx *sql.Tx) error {
		var srcBoardID int64
		var postCount int
		var threadLast sql.NullInt64
		err := tx.QueryRow("SELECT board_id, post_count, last_post_id FROM threads WHERE id = ?", threadID).
			Scan(&srcBoardID, &postCount, &threadLast)
		if err == sql.ErrNoRows {
			return fmt.Errorf("thread %d: %w", threadID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if srcBoardID == destBoardID {
			return nil
		}

		var destLink string
		err = tx.QueryRow("SELECT link FROM boards WHERE id = ?", destBoardID).Scan(&destLink)
		if err == sql.ErrNoRows {
			return fmt.Errorf("board %d: %w", destBoardID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if destLink != "" {
			return fmt.Errorf("board %d is a link board: %w", destBoardID, ErrNotFound)
		}

		var srcLastInThread bool
		err = tx.QueryRow(`SELECT COALESCE((SELECT thread_id FROM posts WHERE id = b.last_post_id) = ?, 0)
			FROM boards b WHERE b.id = ?`, threadID, srcBoardID).Scan(&srcLastInThread)
		if err != nil {
			return err
		}

		if _, err := tx.Exec("UPDATE threads SET board_id = ? WHERE id = ?", destBoardID, threadID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE boards SET thread_count = thread_count - 1,
			post_count = post_count - ? WHERE id = ?`, postCount, srcBoardID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE boards SET thread_count = thread_count + 1,
			post_count = post_count + ? WHERE id = ?`, postCount, destBoardID); err != nil {
			return err
		}

		// The moved thread claims the destination's last post if it is
		// newer (post_time, then id, descending).
		if threadLast.Valid {
			var destIsOlder bool
			err = tx.QueryRow(`SELECT b.last_post_id IS NULL OR EXISTS (
					SELECT 1 FROM posts cur, posts cand
					WHERE cur.id = b.last_post_id AND cand.id = ?
					AND (cand.post_time > cur.post_time
						OR (cand.post_time = cur.post_time AND cand.id > cur.id)))
				FROM boards b WHERE b.id = ?`, threadLast.Int64, destBoardID).Scan(&destIsOlder)
			if err != nil {
				return err
			}
			if destIsOlder {
				if _, err := tx.Exec("UPDATE boards SET last_post_id = ? WHERE id = ?", threadLast.Int64, destBoardID); err != nil {
					return err
				}
			}
		}

		if srcLastInThread {
			if err := recomputeBoardLast(tx, srcBoardID); err != nil {
				return err
			}
		}

		return checkAggregates(tx, srcBoardID, threadID, 0)
	})
}

// EditPost rewrites a post's message and records the editor. Counters
// and last-post pointers are untouched; edit_time is not post_time.
func (ds *DatabaseService) EditPost(postID, editorID int64, message string) error {
	return ds.inTx(func(tx *sql.Tx) error {
		if err := userExists(tx, editorID); err != nil {
			return err
		}
		res, err := tx.Exec("UPDATE posts SET message = ?, edit_time = ?, editor_id = ? WHERE id = ?",
			message, utils.GetSQLTime(), editorID, postID)
		if err != nil {
			return fmt.Errorf("failed to edit post %d: %w", postID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("post %d: %w", postID, ErrNotFound)
		}
		return nil
	})
}

// SetThreadsSticky flips the sticky flag on a batch of threads. Sticky
// affects display ordering only.
func (ds *DatabaseService) SetThreadsSticky(threadIDs []int64, sticky bool) error {
	if len(threadIDs) == 0 {
		return nil
	}
	return ds.inTx(func(tx *sql.Tx) error {
		for _, id := range threadIDs {
			res, err := tx.Exec("UPDATE threads SET sticky = ? WHERE id = ?", sticky, id)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("thread %d: %w", id, ErrNotFound)
			}
		}
		return nil
	})
}

// --- Last-Post Recomputation ---

// recomputeThreadLast repoints thread.last at the surviving post with
// the highest (post_time, id). A thread always has its root post, so
// the pointer never ends up empty here.
func recomputeThreadLast(tx *sql.Tx, threadID int64) error {
	var postID int64
	var postTime time.Time
	err := tx.QueryRow(`SELECT id, post_time FROM posts WHERE thread_id = ?
		ORDER BY post_time DESC, id DESC LIMIT 1`, threadID).Scan(&postID, &postTime)
	if err == sql.ErrNoRows {
		return fmt.Errorf("thread %d has no posts: %w", threadID, ErrInvariant)
	}
	if err != nil {
		return err
	}
	_, err = tx.Exec("UPDATE threads SET last_post_id = ?, last_post_time = ? WHERE id = ?", postID, postTime, threadID)
	return err
}

// recomputeBoardLast repoints board.last_post at the newest post across
// the board's remaining threads, or clears it for an empty board.
func recomputeBoardLast(tx *sql.Tx, boardID int64) error {
	var lastID sql.NullInt64
	err := tx.QueryRow(`SELECT last_post_id FROM threads WHERE board_id = ?
		ORDER BY last_post_time DESC, last_post_id DESC LIMIT 1`, boardID).Scan(&lastID)
	if err == sql.ErrNoRows {
		_, err := tx.Exec("UPDATE boards SET last_post_id = NULL WHERE id = ?", boardID)
		return err
	}
	if err != nil {
		return err
	}
	_, err = tx.Exec("UPDATE boards SET last_post_id = ? WHERE id = ?", lastID, boardID)
	return err
}

// --- Defensive Checks ---

func userExists(tx *sql.Tx, userID int64) error {
	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM users WHERE id = ?", userID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// checkAggregates verifies the counters an operation touched did not go
// negative. A failure here aborts the transaction; nothing is clamped.
// Pass 0 to skip an entity (e.g. a thread that was just deleted).
func checkAggregates(tx *sql.Tx, boardID, threadID, userID int64) error {
	if boardID != 0 {
		var threads, posts int
		if err := tx.QueryRow("SELECT thread_count, post_count FROM boards WHERE id = ?", boardID).Scan(&threads, &posts); err != nil {
			return err
		}
		if threads < 0 || posts < 0 {
			return fmt.Errorf("board %d counters negative (threads=%d posts=%d): %w", boardID, threads, posts, ErrInvariant)
		}
	}
	if threadID != 0 {
		var posts int
		err := tx.QueryRow("SELECT post_count FROM threads WHERE id = ?", threadID).Scan(&posts)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if err == nil && posts < 1 {
			return fmt.Errorf("thread %d post_count=%d below root post: %w", threadID, posts, ErrInvariant)
		}
	}
	if userID != 0 {
		var posts, threads int
		if err := tx.QueryRow("SELECT post_count, thread_count FROM users WHERE id = ?", userID).Scan(&posts, &threads); err != nil {
			return err
		}
		if posts < 0 || threads < 0 {
			return fmt.Errorf("user %d counters negative (posts=%d threads=%d): %w", userID, posts, threads, ErrInvariant)
		}
	}
	return nil
}
