// acforums/database/warnings_test.go
package database

import (
	"errors"
	"testing"
	"time"

	"github.com/AscendingCreations/acforums/models"
)

func TestBanThreshold(t *testing.T) {
	ds := setupTestDB(t)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	var warningIDs []int64
	for i, points := range []int{2, 2} {
		id, err := ds.IssueWarning(alice, mod, points, "strike")
		if err != nil {
			t.Fatalf("IssueWarning %d failed: %v", i, err)
		}
		warningIDs = append(warningIDs, id)
	}

	user, err := ds.GetUser(alice)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.WarningPoints != 4 {
		t.Errorf("warning_points=%d after two warnings, want 4", user.WarningPoints)
	}
	if user.Banned {
		t.Error("User banned below threshold")
	}

	id, err := ds.IssueWarning(alice, mod, 2, "final strike")
	if err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}
	warningIDs = append(warningIDs, id)

	user, err = ds.GetUser(alice)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.WarningPoints != 6 || !user.Banned {
		t.Errorf("points=%d banned=%v at threshold, want 6 and banned", user.WarningPoints, user.Banned)
	}

	// Each warning files a notification.
	if user.UnreadPMs != 3 {
		t.Errorf("unread_pms=%d after three warnings, want 3", user.UnreadPMs)
	}
	pms, err := ds.GetPMsForUser(alice)
	if err != nil {
		t.Fatalf("GetPMsForUser failed: %v", err)
	}
	if len(pms) != 3 {
		t.Errorf("notification count=%d, want 3", len(pms))
	}
	if len(pms) > 0 && pms[0].Title != "Warning Points Received" {
		t.Errorf("notification title=%q, want %q", pms[0].Title, "Warning Points Received")
	}

	// Removing the middle warning drops the total below the threshold
	// and lifts the ban.
	if err := ds.RemoveWarnings([]int64{warningIDs[1]}); err != nil {
		t.Fatalf("RemoveWarnings failed: %v", err)
	}
	user, err = ds.GetUser(alice)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.WarningPoints != 4 || user.Banned {
		t.Errorf("points=%d banned=%v after removal, want 4 and unbanned", user.WarningPoints, user.Banned)
	}
}

func TestIssueWarningPointRange(t *testing.T) {
	ds := setupTestDB(t)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	for _, points := range []int{0, 6, -1} {
		if _, err := ds.IssueWarning(alice, mod, points, "bad"); err == nil {
			t.Errorf("IssueWarning with %d points should be rejected", points)
		}
	}
}

func TestBanExemption(t *testing.T) {
	ds := setupTestDB(t)
	owner := seedUser(t, ds, "owner")
	mod := seedUser(t, ds, "mod")
	ds.SetBanExempt(func(u models.User) bool { return u.Username == "owner" })

	for i := 0; i < 3; i++ {
		if _, err := ds.IssueWarning(owner, mod, 5, "pile on"); err != nil {
			t.Fatalf("IssueWarning failed: %v", err)
		}
	}

	user, err := ds.GetUser(owner)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.WarningPoints != 15 {
		t.Errorf("warning_points=%d, want 15 (points still accrue)", user.WarningPoints)
	}
	if user.Banned {
		t.Error("Exempt user was banned")
	}
}

func TestEditWarningReevaluatesBan(t *testing.T) {
	ds := setupTestDB(t)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	warningID, err := ds.IssueWarning(alice, mod, 2, "minor")
	if err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}

	if err := ds.EditWarning(warningID, 5, "actually severe"); err != nil {
		t.Fatalf("EditWarning failed: %v", err)
	}
	user, err := ds.GetUser(alice)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.WarningPoints != 5 || !user.Banned {
		t.Errorf("points=%d banned=%v after upward edit, want 5 and banned", user.WarningPoints, user.Banned)
	}

	if err := ds.EditWarning(warningID, 1, "overreacted"); err != nil {
		t.Fatalf("EditWarning failed: %v", err)
	}
	user, err = ds.GetUser(alice)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.WarningPoints != 1 || user.Banned {
		t.Errorf("points=%d banned=%v after downward edit, want 1 and unbanned", user.WarningPoints, user.Banned)
	}
}

// ageWarnings pushes every warning for a user past the decay cutoff.
func ageWarnings(t *testing.T, ds *DatabaseService, userID int64, age time.Duration) {
	t.Helper()
	past := time.Now().UTC().Add(-age)
	if _, err := ds.DB.Exec("UPDATE warnings SET issued_at = ? WHERE user_id = ?", past, userID); err != nil {
		t.Fatalf("Failed to age warnings: %v", err)
	}
}

func TestDecaySweepExpiresByAge(t *testing.T) {
	ds := setupTestDB(t)
	ds.SetWarningPolicy(5, 24*time.Hour)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	oldWarning, err := ds.IssueWarning(alice, mod, 3, "old")
	if err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}
	ageWarnings(t, ds, alice, 48*time.Hour)
	freshWarning, err := ds.IssueWarning(alice, mod, 2, "fresh")
	if err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}

	if err := ds.DecaySweep(); err != nil {
		t.Fatalf("DecaySweep failed: %v", err)
	}

	var count int
	if err := ds.DB.QueryRow("SELECT COUNT(*) FROM warnings WHERE id = ?", oldWarning).Scan(&count); err != nil {
		t.Fatalf("Failed to check expired warning: %v", err)
	}
	if count != 0 {
		t.Error("Aged warning survived the sweep")
	}
	if err := ds.DB.QueryRow("SELECT COUNT(*) FROM warnings WHERE id = ?", freshWarning).Scan(&count); err != nil {
		t.Fatalf("Failed to check fresh warning: %v", err)
	}
	if count != 1 {
		t.Error("Fresh warning was expired")
	}

	user, err := ds.GetUser(alice)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.WarningPoints != 2 {
		t.Errorf("warning_points=%d after sweep, want 2", user.WarningPoints)
	}
}

func TestDecaySweepUnbans(t *testing.T) {
	ds := setupTestDB(t)
	ds.SetWarningPolicy(5, 24*time.Hour)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	if _, err := ds.IssueWarning(alice, mod, 5, "banned"); err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}
	if user, _ := ds.GetUser(alice); user == nil || !user.Banned {
		t.Fatal("Expected user to be banned before sweep")
	}

	ageWarnings(t, ds, alice, 48*time.Hour)
	if err := ds.DecaySweep(); err != nil {
		t.Fatalf("DecaySweep failed: %v", err)
	}

	user, err := ds.GetUser(alice)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Banned || user.WarningPoints != 0 {
		t.Errorf("banned=%v points=%d after sweep, want unbanned with 0", user.Banned, user.WarningPoints)
	}
}

func TestDecaySweepRequiresPolicy(t *testing.T) {
	ds := setupTestDB(t)
	ds.SetWarningPolicy(0, 0)

	if err := ds.DecaySweep(); !errors.Is(err, ErrConfig) {
		t.Errorf("Sweep without policy: got %v, want ErrConfig", err)
	}
}

func TestRequestDeleteBannedSoftDeletes(t *testing.T) {
	ds := setupTestDB(t)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	if _, err := ds.IssueWarning(alice, mod, 5, "banned"); err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}
	before, err := ds.GetUser(alice)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}

	if err := ds.RequestDelete(alice); err != nil {
		t.Fatalf("RequestDelete failed: %v", err)
	}

	after, err := ds.GetUser(alice)
	if err != nil {
		t.Fatalf("Soft-deleted user row should survive: %v", err)
	}
	if !after.Deleted {
		t.Error("Soft-deleted user not flagged")
	}
	if after.Password == before.Password {
		t.Error("Credential not randomized on soft delete")
	}
	if !after.Banned {
		t.Error("Soft delete must not lift the ban")
	}
}

func TestSoftDeletePurgedAfterSweep(t *testing.T) {
	ds := setupTestDB(t)
	ds.SetWarningPolicy(5, 24*time.Hour)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	if _, err := ds.IssueWarning(alice, mod, 5, "banned"); err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}
	if err := ds.RequestDelete(alice); err != nil {
		t.Fatalf("RequestDelete failed: %v", err)
	}

	// Once the ban decays, the deferred hard delete completes.
	ageWarnings(t, ds, alice, 48*time.Hour)
	if err := ds.DecaySweep(); err != nil {
		t.Fatalf("DecaySweep failed: %v", err)
	}

	if _, err := ds.GetUser(alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("Soft-deleted user should be purged after sweep: %v", err)
	}
}

func TestSoftDeletePurgedWhenModeratorLiftsBan(t *testing.T) {
	ds := setupTestDB(t)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	warningID, err := ds.IssueWarning(alice, mod, 5, "banned")
	if err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}
	if err := ds.RequestDelete(alice); err != nil {
		t.Fatalf("RequestDelete failed: %v", err)
	}

	// A moderator removing the last warning lifts the ban with no
	// warnings left to decay, so the deferred delete must complete
	// here, not wait for a sweep that will never fire.
	if err := ds.RemoveWarnings([]int64{warningID}); err != nil {
		t.Fatalf("RemoveWarnings failed: %v", err)
	}

	if _, err := ds.GetUser(alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("Soft-deleted user should be purged once unbanned: %v", err)
	}
}

func TestSoftDeletePurgedWhenEditUnbans(t *testing.T) {
	ds := setupTestDB(t)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	warningID, err := ds.IssueWarning(alice, mod, 5, "banned")
	if err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}
	if err := ds.RequestDelete(alice); err != nil {
		t.Fatalf("RequestDelete failed: %v", err)
	}

	if err := ds.EditWarning(warningID, 1, "downgraded"); err != nil {
		t.Fatalf("EditWarning failed: %v", err)
	}

	if _, err := ds.GetUser(alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("Soft-deleted user should be purged once unbanned: %v", err)
	}
}

func TestRequestDeletePurgesCascade(t *testing.T) {
	ds := setupTestDB(t)
	alice := seedUser(t, ds, "alice")
	bob := seedUser(t, ds, "bob")
	mod := seedUser(t, ds, "mod")
	boardID := seedBoard(t, ds, "General Talk")

	// Alice opens a thread, bob replies in it; alice also replies in
	// bob's thread.
	aliceThread, _, err := ds.CreateThread(boardID, "Alice's", false, "root", alice)
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if _, err := ds.CreateReply(aliceThread, "bob was here", bob); err != nil {
		t.Fatalf("CreateReply failed: %v", err)
	}
	bobThread, _, err := ds.CreateThread(boardID, "Bob's", false, "root", bob)
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if _, err := ds.CreateReply(bobThread, "alice was here", alice); err != nil {
		t.Fatalf("CreateReply failed: %v", err)
	}
	if _, err := ds.IssueWarning(alice, mod, 2, "minor"); err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}

	if err := ds.RequestDelete(alice); err != nil {
		t.Fatalf("RequestDelete failed: %v", err)
	}

	if _, err := ds.GetUser(alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("Purged user still readable: %v", err)
	}
	if _, err := ds.GetThread(aliceThread); !errors.Is(err, ErrNotFound) {
		t.Errorf("Purged user's thread still readable: %v", err)
	}

	// Bob's thread survives without alice's reply, and bob's counters
	// reflect the cascade (his reply died with alice's thread).
	bobUser, err := ds.GetUser(bob)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if bobUser.PostCount != 1 || bobUser.ThreadCount != 1 {
		t.Errorf("Surviving user counters=(%d,%d), want (1,1)", bobUser.PostCount, bobUser.ThreadCount)
	}

	var orphans int
	if err := ds.DB.QueryRow("SELECT COUNT(*) FROM warnings WHERE user_id = ?", alice).Scan(&orphans); err != nil {
		t.Fatalf("Failed to count warnings: %v", err)
	}
	if orphans != 0 {
		t.Errorf("%d warnings left after purge, want 0", orphans)
	}
	if err := ds.DB.QueryRow("SELECT COUNT(*) FROM private_messages WHERE user_id = ? OR sender_id = ?", alice, alice).Scan(&orphans); err != nil {
		t.Fatalf("Failed to count messages: %v", err)
	}
	if orphans != 0 {
		t.Errorf("%d private messages left after purge, want 0", orphans)
	}

	verifyTree(t, ds)
}

func TestWarningsListedNewestFirst(t *testing.T) {
	ds := setupTestDB(t)
	alice := seedUser(t, ds, "alice")
	mod := seedUser(t, ds, "mod")

	first, err := ds.IssueWarning(alice, mod, 1, "first")
	if err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}
	second, err := ds.IssueWarning(alice, mod, 1, "second")
	if err != nil {
		t.Fatalf("IssueWarning failed: %v", err)
	}

	warnings, err := ds.GetWarningsForUser(alice)
	if err != nil {
		t.Fatalf("GetWarningsForUser failed: %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("Got %d warnings, want 2", len(warnings))
	}
	if warnings[0].ID != second || warnings[1].ID != first {
		t.Errorf("Warnings out of order: got [%d %d], want [%d %d]", warnings[0].ID, warnings[1].ID, second, first)
	}
}
