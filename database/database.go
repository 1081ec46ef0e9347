// acforums/database/database.go
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AscendingCreations/acforums/models"
	"github.com/AscendingCreations/acforums/utils"
)

// DatabaseService is the central struct for all database operations.
type DatabaseService struct {
	DB     *sql.DB
	logger *slog.Logger
	dsn    string

	// banExempt decides whether a user is exempt from the automatic ban
	// threshold. Defaults to exempting nobody.
	banExempt func(models.User) bool

	maxWarnings    int
	warningMaxLife time.Duration
}

// InitDB connects to the database, runs migrations, and seeds default data.
func InitDB(dataSourceName string, logger *slog.Logger) (*DatabaseService, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	// Run the base schema to ensure all tables exist.
	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to execute base schema: %w", err)
	}

	// Run versioned migrations
	if err := runMigrations(db, logger); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	// Seed database if empty
	var categoryCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&categoryCount); err == nil && categoryCount == 0 {
		if _, err := db.Exec("INSERT INTO categories (id, title) VALUES (1, 'General')"); err != nil {
			return nil, fmt.Errorf("failed to seed categories: %w", err)
		}
	}

	logger.Info("Database initialized.")

	return &DatabaseService{
		DB:        db,
		logger:    logger,
		dsn:       dataSourceName,
		banExempt: func(models.User) bool { return false },
	}, nil
}

// SetBanExempt installs the policy predicate used by the warning ledger.
// A nil predicate exempts nobody.
func (ds *DatabaseService) SetBanExempt(fn func(models.User) bool) {
	if fn == nil {
		fn = func(models.User) bool { return false }
	}
	ds.banExempt = fn
}

// SetWarningPolicy configures the ban threshold and the maximum lifetime
// of a warning before the decay sweep expires it.
func (ds *DatabaseService) SetWarningPolicy(maxWarnings int, maxLife time.Duration) {
	ds.maxWarnings = maxWarnings
	ds.warningMaxLife = maxLife
}

// inTx runs fn inside a single transaction, retrying on lock conflicts.
// Either every write in fn commits or none do.
func (ds *DatabaseService) inTx(fn func(tx *sql.Tx) error) error {
	return withRetry(func() error {
		tx, err := ds.DB.Begin()
		if err != nil {
			return mapSQLiteErr(err)
		}
		defer func() {
			if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
				ds.logger.Error("Failed to rollback transaction", "error", rerr)
			}
		}()

		if err := fn(tx); err != nil {
			return mapSQLiteErr(err)
		}
		return mapSQLiteErr(tx.Commit())
	})
}

// BackupDatabase performs an online backup of the live SQLite database using VACUUM INTO.
func (ds *DatabaseService) BackupDatabase() (string, error) {
	if utils.BackupDir == "" {
		return "", fmt.Errorf("backup directory is not configured")
	}
	if err := os.MkdirAll(utils.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("could not create backup directory %s: %w", utils.BackupDir, err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02_15-04-05")
	backupFilename := fmt.Sprintf("acforums_backup_%s.db", timestamp)
	backupPath := filepath.Join(utils.BackupDir, backupFilename)

	ds.logger.Info("Starting database backup", "destination", backupPath)

	_, err := ds.DB.Exec("VACUUM INTO ?", backupPath)
	if err != nil {
		// If backup fails, attempt to remove the potentially incomplete file
		if removeErr := os.Remove(backupPath); removeErr != nil && !os.IsNotExist(removeErr) {
			ds.logger.Error("Failed to remove incomplete backup file", "path", backupPath, "error", removeErr)
		}
		return "", fmt.Errorf("VACUUM INTO command failed: %w", err)
	}

	return backupPath, nil
}

// runMigrations applies all un-applied migrations.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("could not create migrations table: %w", err)
	}

	var latestVersion uint
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latestVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("could not get db version: %w", err)
	}

	logger.Info("Current database schema version", "version", latestVersion)

	for _, m := range allMigrations {
		if m.Version > latestVersion {
			logger.Info("Applying migration", "version", m.Version)
			tx, err := db.Begin()
			if err != nil {
				return err
			}

			if _, err := tx.Exec(m.Query); err != nil {
				if rerr := tx.Rollback(); rerr != nil {
					logger.Error("Failed to rollback migration", "version", m.Version, "error", rerr)
				}
				return fmt.Errorf("failed to apply migration v%d: %w", m.Version, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, utils.GetSQLTime()); err != nil {
				if rerr := tx.Rollback(); rerr != nil {
					logger.Error("Failed to rollback migration record", "version", m.Version, "error", rerr)
				}
				return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
			}
			logger.Info("Successfully applied migration", "version", m.Version)
		}
	}
	return nil
}

// --- Getters ---

const boardColumns = "id, title, description, link, sort_order, thread_count, post_count, parent_id, category_id, last_post_id"

func scanBoard(row *sql.Row) (*models.Board, error) {
	var b models.Board
	err := row.Scan(&b.ID, &b.Title, &b.Description, &b.Link, &b.SortOrder,
		&b.ThreadCount, &b.PostCount, &b.ParentID, &b.CategoryID, &b.LastPostID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("board: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBoard fetches a board row. Counters are read fresh on every call;
// they change on every post so they are never cached.
func (ds *DatabaseService) GetBoard(boardID int64) (*models.Board, error) {
	return scanBoard(ds.DB.QueryRow(
		"SELECT "+boardColumns+" FROM boards WHERE id = ?", boardID))
}

func (ds *DatabaseService) GetThread(threadID int64) (*models.Thread, error) {
	var t models.Thread
	err := ds.DB.QueryRow(`SELECT id, title, sticky, post_count, creator_id, board_id, last_post_id, last_post_time
		FROM threads WHERE id = ?`, threadID).Scan(
		&t.ID, &t.Title, &t.Sticky, &t.PostCount, &t.CreatorID, &t.BoardID, &t.LastPostID, &t.LastPostTime)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("thread %d: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (ds *DatabaseService) GetPost(postID int64) (*models.Post, error) {
	var p models.Post
	err := ds.DB.QueryRow(`SELECT id, message, post_time, edit_time, creator_id, editor_id, thread_id, is_root
		FROM posts WHERE id = ?`, postID).Scan(
		&p.ID, &p.Message, &p.PostTime, &p.EditTime, &p.CreatorID, &p.EditorID, &p.ThreadID, &p.IsRoot)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (ds *DatabaseService) GetUser(userID int64) (*models.User, error) {
	var u models.User
	err := ds.DB.QueryRow(`SELECT id, username, display, password, title, signature,
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

// GetThreadWithPosts loads a thread and its posts in display order.
func (ds *DatabaseService) GetThreadWithPosts(threadID int64) (*models.Thread, error) {
	thread, err := ds.GetThread(threadID)
	if err != nil {
		return nil, err
	}

	rows, err := ds.DB.Query(`SELECT id, message, post_time, edit_time, creator_id, editor_id, thread_id, is_root
		FROM posts WHERE thread_id = ? ORDER BY post_time ASC, id ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in GetThreadWithPosts", "error", err)
		}
	}()

	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.Message, &p.PostTime, &p.EditTime, &p.CreatorID, &p.EditorID, &p.ThreadID, &p.IsRoot); err != nil {
			return nil, err
		}
		thread.Posts = append(thread.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return thread, nil
}

// GetPMsForUser lists a user's received messages, newest first.
func (ds *DatabaseService) GetPMsForUser(userID int64) ([]models.PM, error) {
	rows, err := ds.DB.Query(`SELECT id, user_id, COALESCE(sender_id, 0), title, message, sent_at, read
		FROM private_messages WHERE user_id = ? ORDER BY sent_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in GetPMsForUser", "error", err)
		}
	}()

	var pms []models.PM
	for rows.Next() {
		var pm models.PM
		if err := rows.Scan(&pm.ID, &pm.UserID, &pm.SenderID, &pm.Title, &pm.Message, &pm.SentAt, &pm.Read); err != nil {
			return nil, err
		}
		pms = append(pms, pm)
	}
	return pms, rows.Err()
}

// GetCategories returns the category tree ordered for display, each
// category carrying its top-level boards.
func (ds *DatabaseService) GetCategories() ([]models.Category, error) {
	rows, err := ds.DB.Query("SELECT id, title, sort_order FROM categories ORDER BY sort_order ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in GetCategories", "error", err)
		}
	}()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Title, &c.SortOrder); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range categories {
		boardRows, err := ds.DB.Query("SELECT "+boardColumns+
			" FROM boards WHERE category_id = ? AND parent_id IS NULL ORDER BY sort_order ASC, id ASC",
			categories[i].ID)
		if err != nil {
			return nil, err
		}
		for boardRows.Next() {
			var b models.Board
			if err := boardRows.Scan(&b.ID, &b.Title, &b.Description, &b.Link, &b.SortOrder,
				&b.ThreadCount, &b.PostCount, &b.ParentID, &b.CategoryID, &b.LastPostID); err != nil {
				boardRows.Close()
				return nil, err
			}
			categories[i].Boards = append(categories[i].Boards, b)
		}
		if err := boardRows.Close(); err != nil {
			ds.logger.Error("Failed to close board rows in GetCategories", "error", err)
		}
	}
	return categories, nil
}

// --- Admin Content Tree Management ---

// CreateCategory adds a new display category.
func (ds *DatabaseService) CreateCategory(title string, sortOrder int) (int64, error) {
	var id int64
	err := ds.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec("INSERT INTO categories (title, sort_order) VALUES (?, ?)", title, sortOrder)
		if err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// CreateBoard adds a board under a category, optionally nested one level
// below a parent board. Deeper nesting is rejected at this boundary so
// recount traversal stays a tree walk.
func (ds *DatabaseService) CreateBoard(title, description, link string, categoryID int64, parentID *int64, sortOrder int) (int64, error) {
	var id int64
	err := ds.inTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow("SELECT COUNT(*) FROM categories WHERE id = ?", categoryID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("category %d: %w", categoryID, ErrNotFound)
		}

		var parent interface{}
		if parentID != nil {
			var grandparent sql.NullInt64
			err := tx.QueryRow("SELECT parent_id FROM boards WHERE id = ?", *parentID).Scan(&grandparent)
			if err == sql.ErrNoRows {
				return fmt.Errorf("parent board %d: %w", *parentID, ErrNotFound)
			}
			if err != nil {
				return err
			}
			if grandparent.Valid {
				return fmt.Errorf("board nesting is limited to one level")
			}
			parent = *parentID
		}

		res, err := tx.Exec(`INSERT INTO boards (title, description, link, sort_order, category_id, parent_id)
			VALUES (?, ?, ?, ?, ?, ?)`, title, description, link, sortOrder, categoryID, parent)
		if err != nil {
			return fmt.Errorf("failed to insert board: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// DeleteBoard removes a board. The admin flow only permits this for
// boards with no threads and no child boards.
func (ds *DatabaseService) DeleteBoard(boardID int64) error {
	return ds.inTx(func(tx *sql.Tx) error {
		var threads, children int
		err := tx.QueryRow("SELECT COUNT(*) FROM threads WHERE board_id = ?", boardID).Scan(&threads)
		if err != nil {
			return err
		}
		if err := tx.QueryRow("SELECT COUNT(*) FROM boards WHERE parent_id = ?", boardID).Scan(&children); err != nil {
			return err
		}
		if threads > 0 || children > 0 {
			return fmt.Errorf("board %d is not empty", boardID)
		}

		res, err := tx.Exec("DELETE FROM boards WHERE id = ?", boardID)
		if err != nil {
			return fmt.Errorf("failed to delete board record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("board %d: %w", boardID, ErrNotFound)
		}
		return nil
	})
}

// DeleteCategory removes a category once it holds no boards.
func (ds *DatabaseService) DeleteCategory(categoryID int64) error {
	return ds.inTx(func(tx *sql.Tx) error {
		var boards int
		if err := tx.QueryRow("SELECT COUNT(*) FROM boards WHERE category_id = ?", categoryID).Scan(&boards); err != nil {
			return err
		}
		if boards > 0 {
			return fmt.Errorf("category %d is not empty", categoryID)
		}

		res, err := tx.Exec("DELETE FROM categories WHERE id = ?", categoryID)
		if err != nil {
			return fmt.Errorf("failed to delete category record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("category %d: %w", categoryID, ErrNotFound)
		}
		return nil
	})
}
