// acforums/database/recount_test.go
package database

import (
	"errors"
	"testing"
)

// seedTree builds a small two-board content tree and returns the ids
// the corruption tests poke at.
func seedTree(t *testing.T, ds *DatabaseService) (boardA, boardB, alice, bob int64) {
	t.Helper()
	alice = seedUser(t, ds, "alice")
	bob = seedUser(t, ds, "bob")
	boardA = seedBoard(t, ds, "Board A")
	boardB = seedBoard(t, ds, "Board B")

	threadID, _, err := ds.CreateThread(boardA, "First", false, "root", alice)
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if _, err := ds.CreateReply(threadID, "reply", bob); err != nil {
		t.Fatalf("CreateReply failed: %v", err)
	}
	if _, _, err := ds.CreateThread(boardA, "Second", false, "root", bob); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if _, _, err := ds.CreateThread(boardB, "Third", false, "root", alice); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	return boardA, boardB, alice, bob
}

func corruptCounters(t *testing.T, ds *DatabaseService) {
	t.Helper()
	stmts := []string{
		"UPDATE boards SET thread_count = 99, post_count = 99, last_post_id = NULL",
		"UPDATE threads SET post_count = 0, last_post_id = NULL",
		"UPDATE users SET post_count = 42, thread_count = 42",
	}
	for _, stmt := range stmts {
		if _, err := ds.DB.Exec(stmt); err != nil {
			t.Fatalf("Failed to corrupt counters: %v", err)
		}
	}
}

func TestRecountConvergesFromCorruption(t *testing.T) {
	ds := setupTestDB(t)
	seedTree(t, ds)

	corruptCounters(t, ds)

	if err := ds.RecountAll(); err != nil {
		t.Fatalf("RecountAll failed: %v", err)
	}
	verifyTree(t, ds)
}

func TestRecountIdempotent(t *testing.T) {
	ds := setupTestDB(t)
	seedTree(t, ds)

	if err := ds.RecountAll(); err != nil {
		t.Fatalf("First RecountAll failed: %v", err)
	}

	snapshot := func() map[int64][2]int {
		rows, err := ds.DB.Query("SELECT id, thread_count, post_count FROM boards")
		if err != nil {
			t.Fatalf("snapshot query failed: %v", err)
		}
		defer rows.Close()
		got := make(map[int64][2]int)
		for rows.Next() {
			var id int64
			var threads, posts int
			if err := rows.Scan(&id, &threads, &posts); err != nil {
				t.Fatalf("snapshot scan failed: %v", err)
			}
			got[id] = [2]int{threads, posts}
		}
		return got
	}

	before := snapshot()
	if err := ds.RecountAll(); err != nil {
		t.Fatalf("Second RecountAll failed: %v", err)
	}
	after := snapshot()

	for id, counts := range before {
		if after[id] != counts {
			t.Errorf("Board %d changed across recounts: %v -> %v", id, counts, after[id])
		}
	}
	verifyTree(t, ds)
}

func TestRecountBoard(t *testing.T) {
	ds := setupTestDB(t)
	boardA, boardB, _, _ := seedTree(t, ds)

	corruptCounters(t, ds)

	if err := ds.RecountBoard(boardA); err != nil {
		t.Fatalf("RecountBoard failed: %v", err)
	}

	boardARow, err := ds.GetBoard(boardA)
	if err != nil {
		t.Fatalf("GetBoard failed: %v", err)
	}
	if boardARow.ThreadCount != 2 || boardARow.PostCount != 3 {
		t.Errorf("Recounted board counters=(%d,%d), want (2,3)", boardARow.ThreadCount, boardARow.PostCount)
	}

	// The sibling board stays corrupted; targeted recounts touch only
	// their subject.
	boardBRow, err := ds.GetBoard(boardB)
	if err != nil {
		t.Fatalf("GetBoard failed: %v", err)
	}
	if boardBRow.ThreadCount != 99 {
		t.Errorf("Untouched board thread_count=%d, want corrupt 99", boardBRow.ThreadCount)
	}
}

func TestRecountUser(t *testing.T) {
	ds := setupTestDB(t)
	_, _, alice, _ := seedTree(t, ds)

	corruptCounters(t, ds)

	if err := ds.RecountUser(alice); err != nil {
		t.Fatalf("RecountUser failed: %v", err)
	}
	user, err := ds.GetUser(alice)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.PostCount != 2 || user.ThreadCount != 2 {
		t.Errorf("Recounted user counters=(%d,%d), want (2,2)", user.PostCount, user.ThreadCount)
	}
}

func TestRecountUserNotFound(t *testing.T) {
	ds := setupTestDB(t)

	if err := ds.RecountUser(9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecountUser on missing user: got %v, want ErrNotFound", err)
	}
}
