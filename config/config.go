// acforums/config/config.go
package config

const (
	AppVersion = "0.4-beta"

	// Forum Limits
	MaxTitleLen   = 256
	MaxMessageLen = 16000

	// Warning Ledger Defaults
	DefaultMaxWarnings    = 5
	DefaultWarningMaxLife = "720h" // 30 days
	MinWarningPoints      = 1
	MaxWarningPoints      = 5
	DefaultOwnerUsername  = "owner"

	// Scheduler Defaults
	DefaultSweepInterval = "168h" // 7 days
	DefaultSweepStartup  = "1m"

	// Persistence Defaults
	MaxConflictRetries  = 3
	ConflictRetryPause  = 50 // milliseconds between conflict retries
	DefaultDatabasePath = "./acforums.db?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"

	// Rate Limiting Defaults (admin trigger surface)
	DefaultRateLimitEvery  = "10s"
	DefaultRateLimitBurst  = 5
	DefaultRateLimitPrune  = "1h"
	DefaultRateLimitExpire = "24h"
)
