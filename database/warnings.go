// acforums/database/warnings.go
//
// Per-user warning ledger: points accumulate toward an automatic ban,
// decay after a configured lifetime, and gate the soft-delete/purge
// path for banned users who ask to leave.
package database

import (
	"database/sql"
	"fmt"

	"github.com/AscendingCreations/acforums/config"
	"github.com/AscendingCreations/acforums/models"
	"github.com/AscendingCreations/acforums/utils"
)

// IssueWarning files a warning against a user, adds its points to their
// total, and bans them once the threshold is reached. The subject is
// notified with a private message. The configured exempt account is
// never auto-banned.
func (ds *DatabaseService) IssueWarning(userID, issuerID int64, points int, message string) (warningID int64, err error) {
	if points < config.MinWarningPoints || points > config.MaxWarningPoints {
		return 0, fmt.Errorf("warning points %d out of range [%d,%d]", points, config.MinWarningPoints, config.MaxWarningPoints)
	}
	if ds.maxWarnings <= 0 {
		return 0, fmt.Errorf("ban threshold unset: %w", ErrConfig)
	}

	err = ds.inTx(func(tx *sql.Tx) error {
		user, err := getUserTx(tx, userID)
		if err != nil {
			return err
		}
		if err := userExists(tx, issuerID); err != nil {
			return err
		}

		now := utils.GetSQLTime()
		res, err := tx.Exec(`INSERT INTO warnings (user_id, issuer_id, points, message, issued_at)
			VALUES (?, ?, ?, ?, ?)`, userID, issuerID, points, message, now)
		if err != nil {
			return fmt.Errorf("failed to insert warning: %w", err)
		}
		warningID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		total := user.WarningPoints + points
		banned := user.Banned
		if total >= ds.maxWarnings && !ds.banExempt(*user) {
			banned = true
		}
		if _, err := tx.Exec("UPDATE users SET warning_points = ?, banned = ? WHERE id = ?", total, banned, userID); err != nil {
			return err
		}

		// Notify the subject.
		if _, err := tx.Exec(`INSERT INTO private_messages (user_id, sender_id, title, message, sent_at)
			VALUES (?, ?, 'Warning Points Received', ?, ?)`, userID, issuerID, message, now); err != nil {
			return fmt.Errorf("failed to insert warning notification: %w", err)
		}
		if _, err := tx.Exec("UPDATE users SET unread_pms = unread_pms + 1 WHERE id = ?", userID); err != nil {
			return err
		}
		return nil
	})
	return warningID, err
}

// RemoveWarnings deletes a batch of warnings (moderator bulk action),
// subtracting each warning's points from its subject and lifting bans
// that drop below the threshold.
func (ds *DatabaseService) RemoveWarnings(warningIDs []int64) error {
	if len(warningIDs) == 0 {
		return nil
	}
	if ds.maxWarnings <= 0 {
		return fmt.Errorf("ban threshold unset: %w", ErrConfig)
	}
	var purge []int64
	err := ds.inTx(func(tx *sql.Tx) error {
		purge = purge[:0]
		touched := make(map[int64]struct{})
		for _, id := range warningIDs {
			var userID int64
			var points int
			err := tx.QueryRow("SELECT user_id, points FROM warnings WHERE id = ?", id).Scan(&userID, &points)
			if err == sql.ErrNoRows {
				return fmt.Errorf("warning %d: %w", id, ErrNotFound)
			}
			if err != nil {
				return err
			}
			if _, err := tx.Exec("UPDATE users SET warning_points = warning_points - ? WHERE id = ?", points, userID); err != nil {
				return err
			}
			if _, err := tx.Exec("DELETE FROM warnings WHERE id = ?", id); err != nil {
				return err
			}
			touched[userID] = struct{}{}
		}

		for userID := range touched {
			purgeDue, err := ds.reevaluateBanTx(tx, userID)
			if err != nil {
				return err
			}
			if purgeDue {
				purge = append(purge, userID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, userID := range purge {
		ds.logger.Info("Completing deferred delete for unbanned user", "user", userID)
		if err := ds.PurgeUser(userID); err != nil {
			return err
		}
	}
	return nil
}

// EditWarning re-points an existing warning, moving the subject's total
// by the difference and re-evaluating the ban threshold both ways.
func (ds *DatabaseService) EditWarning(warningID int64, points int, message string) error {
	if points < config.MinWarningPoints || points > config.MaxWarningPoints {
		return fmt.Errorf("warning points %d out of range [%d,%d]", points, config.MinWarningPoints, config.MaxWarningPoints)
	}
	if ds.maxWarnings <= 0 {
		return fmt.Errorf("ban threshold unset: %w", ErrConfig)
	}
	var purge int64
	err := ds.inTx(func(tx *sql.Tx) error {
		purge = 0
		var userID int64
		var oldPoints int
		err := tx.QueryRow("SELECT user_id, points FROM warnings WHERE id = ?", warningID).Scan(&userID, &oldPoints)
		if err == sql.ErrNoRows {
			return fmt.Errorf("warning %d: %w", warningID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec("UPDATE warnings SET points = ?, message = ? WHERE id = ?", points, message, warningID); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE users SET warning_points = warning_points - ? + ? WHERE id = ?", oldPoints, points, userID); err != nil {
			return err
		}
		purgeDue, err := ds.reevaluateBanTx(tx, userID)
		if err != nil {
			return err
		}
		if purgeDue {
			purge = userID
		}
		return nil
	})
	if err != nil {
		return err
	}

	if purge != 0 {
		ds.logger.Info("Completing deferred delete for unbanned user", "user", purge)
		return ds.PurgeUser(purge)
	}
	return nil
}

// DecaySweep expires every warning whose age exceeds the configured
// maximum lifetime, unbanning owners who fall below the threshold and
// completing the deferred purge of soft-deleted users. One entity
// failing is logged and the sweep continues.
func (ds *DatabaseService) DecaySweep() error {
	if ds.maxWarnings <= 0 || ds.warningMaxLife <= 0 {
		return fmt.Errorf("warning policy unset (max=%d life=%s): %w", ds.maxWarnings, ds.warningMaxLife, ErrConfig)
	}

	// Expiry is by true elapsed age of the warning, not by time since
	// the last sweep, so missed cycles still expire the right rows.
	cutoff := utils.GetSQLTime().Add(-ds.warningMaxLife)
	expired, err := ds.collectIDs("SELECT id FROM warnings WHERE issued_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("sweep: list expired warnings: %w", err)
	}

	var removed, failed int
	for _, warningID := range expired {
		if err := ds.expireWarning(warningID); err != nil {
			ds.logger.Error("Failed to expire warning", "warning", warningID, "error", err)
			failed++
			continue
		}
		removed++
	}

	ds.logger.Info("Warning decay sweep complete", "expired", removed, "failed", failed)
	return nil
}

// expireWarning removes a single aged warning in its own transaction,
// re-evaluating its owner's ban state and triggering the deferred purge
// of a soft-deleted owner who just became unbanned.
func (ds *DatabaseService) expireWarning(warningID int64) error {
	var purge int64
	err := ds.inTx(func(tx *sql.Tx) error {
		var userID int64
		var points int
		err := tx.QueryRow("SELECT user_id, points FROM warnings WHERE id = ?", warningID).Scan(&userID, &points)
		if err == sql.ErrNoRows {
			return nil // already removed
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec("UPDATE users SET warning_points = warning_points - ? WHERE id = ?", points, userID); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM warnings WHERE id = ?", warningID); err != nil {
			return err
		}

		user, err := getUserTx(tx, userID)
		if err != nil {
			return err
		}
		if user.WarningPoints < 0 {
			return fmt.Errorf("user %d warning_points=%d: %w", userID, user.WarningPoints, ErrInvariant)
		}
		if user.Banned && user.WarningPoints < ds.maxWarnings {
			if _, err := tx.Exec("UPDATE users SET banned = 0 WHERE id = ?", userID); err != nil {
				return err
			}
			if user.Deleted {
				purge = userID
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if purge != 0 {
		ds.logger.Info("Completing deferred delete for unbanned user", "user", purge)
		return ds.PurgeUser(purge)
	}
	return nil
}

// RequestDelete handles a user's own deletion request. A banned user is
// soft-deleted: the row is kept for audit and cascade integrity, the
// profile anonymized and the credential randomized, with the hard
// delete deferred until a decay sweep lifts the ban. Anyone else is
// purged immediately.
func (ds *DatabaseService) RequestDelete(userID int64) error {
	user, err := ds.GetUser(userID)
	if err != nil {
		return err
	}

	if user.Banned {
		credential, err := utils.RandomCredential()
		if err != nil {
			return fmt.Errorf("failed to randomize credential: %w", err)
		}
		return ds.inTx(func(tx *sql.Tx) error {
			_, err := tx.Exec(`UPDATE users SET deleted = 1, password = ?,
				display = ?, title = 'New Member', signature = '', unread_pms = 0
				WHERE id = ?`, credential, fmt.Sprintf("deleted-%d", userID), userID)
			return err
		})
	}

	return ds.PurgeUser(userID)
}

// PurgeUser hard-deletes a user: private messages, warnings, authored
// threads (with full aggregate cascade) and remaining posts go first,
// then the row itself. Counters on every affected board, thread and
// author are walked back in the same transaction.
func (ds *DatabaseService) PurgeUser(userID int64) error {
	return ds.inTx(func(tx *sql.Tx) error {
		if err := userExists(tx, userID); err != nil {
			return err
		}

		// Threads opened by the user go first; their replies vanish with
		// them, so the remaining authored posts are all in other threads.
		threadIDs, err := collectIDsTx(tx, "SELECT thread_id FROM posts WHERE creator_id = ? AND is_root = 1", userID)
		if err != nil {
			return err
		}
		for _, threadID := range threadIDs {
			if err := deleteThreadTx(tx, threadID); err != nil {
				return err
			}
		}

		postIDs, err := collectIDsTx(tx, "SELECT id FROM posts WHERE creator_id = ?", userID)
		if err != nil {
			return err
		}
		for _, postID := range postIDs {
			if err := deletePostTx(tx, postID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec("UPDATE posts SET editor_id = NULL WHERE editor_id = ?", userID); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE warnings SET issuer_id = NULL WHERE issuer_id = ?", userID); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM warnings WHERE user_id = ?", userID); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM private_messages WHERE user_id = ? OR sender_id = ?", userID, userID); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM users WHERE id = ?", userID); err != nil {
			return fmt.Errorf("failed to delete user %d: %w", userID, err)
		}
		return nil
	})
}

// GetWarningsForUser lists a user's active warnings, newest first.
func (ds *DatabaseService) GetWarningsForUser(userID int64) ([]models.Warning, error) {
	rows, err := ds.DB.Query(`SELECT id, user_id, COALESCE(issuer_id, 0), points, message, issued_at
		FROM warnings WHERE user_id = ? ORDER BY issued_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in GetWarningsForUser", "error", err)
		}
	}()

	var warnings []models.Warning
	for rows.Next() {
		var w models.Warning
		if err := rows.Scan(&w.ID, &w.UserID, &w.IssuerID, &w.Points, &w.Message, &w.IssuedAt); err != nil {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// reevaluateBanTx lifts or imposes the automatic ban from the subject's
// current point total, honoring the exemption predicate. Reports
// whether a soft-deleted subject just lost their ban and is now due
// for the deferred purge.
func (ds *DatabaseService) reevaluateBanTx(tx *sql.Tx, userID int64) (purgeDue bool, err error) {
	user, err := getUserTx(tx, userID)
	if err != nil {
		return false, err
	}
	if user.WarningPoints < 0 {
		return false, fmt.Errorf("user %d warning_points=%d: %w", userID, user.WarningPoints, ErrInvariant)
	}
	banned := user.WarningPoints >= ds.maxWarnings && !ds.banExempt(*user)
	if banned == user.Banned {
		return false, nil
	}
	if _, err := tx.Exec("UPDATE users SET banned = ? WHERE id = ?", banned, userID); err != nil {
		return false, err
	}
	return !banned && user.Deleted, nil
}

func getUserTx(tx *sql.Tx, userID int64) (*models.User, error) {
	var u models.User
	err := tx.QueryRow(`SELECT id, username, display, password, title, signature,
		post_count, thread_count, warning_points, unread_pms, banned, deleted, reg_date
		FROM users WHERE id = ?`, userID).Scan(
		&u.ID, &u.Username, &u.Display, &u.Password, &u.Title, &u.Signature,
		&u.PostCount, &u.ThreadCount, &u.WarningPoints, &u.UnreadPMs, &u.Banned, &u.Deleted, &u.RegDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
