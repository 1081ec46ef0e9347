// acforums/handlers/admin.go
//
// LAN-restricted admin triggers: full and targeted recounts, an
// immediate warning sweep, and database backups.

package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// HandleRecountAll rebuilds every derived counter and last-post pointer
// from raw rows.
func HandleRecountAll(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleRecountAll")
	if err := app.DB().RecountAll(); err != nil {
		logger.Error("Full recount failed", "error", err)
		respondErr(w, err, app)
		return
	}
	logger.Info("Full recount complete")
	respondJSON(w, http.StatusOK, map[string]string{"status": "recounted"}, app)
}

// HandleRecountBoard rebuilds one board's aggregates, including every
// thread under it.
func HandleRecountBoard(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleRecountBoard")
	boardID, err := strconv.ParseInt(chi.URLParam(r, "boardID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid board id"}, app)
		return
	}
	if err := app.DB().RecountBoard(boardID); err != nil {
		logger.Error("Board recount failed", "board", boardID, "error", err)
		respondErr(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "recounted", "board": boardID}, app)
}

// HandleRecountUser rebuilds one user's post and thread counters.
func HandleRecountUser(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleRecountUser")
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"}, app)
		return
	}
	if err := app.DB().RecountUser(userID); err != nil {
		logger.Error("User recount failed", "user", userID, "error", err)
		respondErr(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "recounted", "user": userID}, app)
}

// HandleTriggerSweep runs a warning decay sweep now, outside the timer.
func HandleTriggerSweep(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleTriggerSweep")
	if err := app.Scheduler().TriggerSweep(); err != nil {
		logger.Error("Manual sweep failed", "error", err)
		respondErr(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "swept"}, app)
}

// HandleDatabaseBackup snapshots the database and hands the archive to
// the configured storage backend.
func HandleDatabaseBackup(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDatabaseBackup")
	backupPath, err := app.DB().BackupDatabase()
	if err != nil {
		logger.Error("Failed to create database backup", "error", err)
		respondErr(w, err, app)
		return
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		logger.Error("Failed to read database backup", "path", backupPath, "error", err)
		respondErr(w, err, app)
		return
	}
	stored, err := app.Storage().SaveFile(filepath.Base(backupPath), data, "application/vnd.sqlite3")
	if err != nil {
		logger.Error("Failed to store database backup", "path", backupPath, "error", err)
		respondErr(w, err, app)
		return
	}

	logger.Info("Database backup created", "path", stored)
	respondJSON(w, http.StatusOK, map[string]string{"status": "backed up", "path": stored}, app)
}
