// acforums/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AscendingCreations/acforums/config"
	"github.com/AscendingCreations/acforums/database"
	"github.com/AscendingCreations/acforums/handlers"
	"github.com/AscendingCreations/acforums/models"
	"github.com/AscendingCreations/acforums/scheduler"
	"github.com/AscendingCreations/acforums/utils"
)

type Application struct {
	db          *database.DatabaseService
	sched       *scheduler.Scheduler
	rateLimiter *models.RateLimiter
	logger      *slog.Logger
	storage     models.StorageService
}

// Methods to satisfy the handlers.App interface
func (a *Application) DB() *database.DatabaseService { return a.db }
func (a *Application) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *Application) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *Application) Logger() *slog.Logger { return a.logger }
func (a *Application) Storage() models.StorageService { return a.storage }

// envDuration reads a duration env var, logging and falling back to the
// default when the value does not parse.
func envDuration(logger *slog.Logger, key, fallback string) time.Duration {
	raw := utils.GetEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("Invalid duration, using default", "var", key, "value", raw, "default", fallback)
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func envInt(logger *slog.Logger, key string, fallback int) int {
	raw := utils.GetEnv(key, strconv.Itoa(fallback))
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("Invalid integer, using default", "var", key, "value", raw, "default", fallback)
		return fallback
	}
	return n
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- External Configuration ---
	port := utils.GetEnv("ACF_PORT", "8080")
	dbPath := utils.GetEnv("ACF_DB_PATH", config.DefaultDatabasePath)
	owner := utils.GetEnv("ACF_OWNER", config.DefaultOwnerUsername)

	utils.BackupDir = utils.GetEnv("ACF_BACKUP_DIR", "./backups")
	if err := os.MkdirAll(utils.BackupDir, 0755); err != nil {
		logger.Error("FATAL: Could not create backup directory", "path", utils.BackupDir, "error", err)
		os.Exit(1)
	}

	maxWarnings := envInt(logger, "ACF_MAX_WARNINGS", config.DefaultMaxWarnings)
	warningMaxLife := envDuration(logger, "ACF_WARNING_MAX_LIFE", config.DefaultWarningMaxLife)
	sweepInterval := envDuration(logger, "ACF_SWEEP_INTERVAL", config.DefaultSweepInterval)
	sweepStartup := envDuration(logger, "ACF_SWEEP_STARTUP", config.DefaultSweepStartup)

	rateLimitEvery := envDuration(logger, "ACF_RATE_EVERY", config.DefaultRateLimitEvery)
	rateLimitBurst := envInt(logger, "ACF_RATE_BURST", config.DefaultRateLimitBurst)
	rateLimitPrune := envDuration(logger, "ACF_RATE_PRUNE", config.DefaultRateLimitPrune)
	rateLimitExpire := envDuration(logger, "ACF_RATE_EXPIRE", config.DefaultRateLimitExpire)

	dbService, err := database.InitDB(dbPath, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbService.DB.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	dbService.SetWarningPolicy(maxWarnings, warningMaxLife)
	dbService.SetBanExempt(func(u models.User) bool { return u.Username == owner })

	// --- Storage Service Init ---
	var storageService models.StorageService
	if utils.GetEnv("ACF_S3_ENABLED", "false") == "true" {
		endpoint := utils.GetEnv("ACF_S3_ENDPOINT", "")
		accessKey := utils.GetEnv("ACF_S3_ACCESS_KEY", "")
		secretKey := utils.GetEnv("ACF_S3_SECRET_KEY", "")
		bucket := utils.GetEnv("ACF_S3_BUCKET", "")
		region := utils.GetEnv("ACF_S3_REGION", "us-east-1")
		publicURL := utils.GetEnv("ACF_S3_PUBLIC_URL", "")
		useSSL := utils.GetEnv("ACF_S3_USE_SSL", "true") == "true"

		storageService, err = utils.NewS3Storage(endpoint, accessKey, secretKey, bucket, region, publicURL, useSSL)
		if err != nil {
			logger.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		logger.Info("S3 Storage initialized", "endpoint", endpoint, "bucket", bucket)
	} else {
		storageService = &utils.LocalStorage{ArchiveDir: utils.BackupDir}
		logger.Info("Local Storage initialized", "dir", utils.BackupDir)
	}

	sched := scheduler.NewScheduler(dbService, logger.With("job", "warning_sweep"), sweepInterval)
	if err := sched.Start(sweepStartup); err != nil {
		logger.Error("Failed to start warning sweep scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := &Application{
		db:          dbService,
		sched:       sched,
		rateLimiter: models.NewRateLimiter(rateLimitEvery, rateLimitBurst, rateLimitPrune, rateLimitExpire),
		logger:      logger,
		storage:     storageService,
	}

	mux := handlers.SetupRouter(app)

	// --- Graceful Shutdown ---
	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("acforums server started successfully",
		"version", config.AppVersion,
		"address", "http://localhost:"+port,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exiting")
}
