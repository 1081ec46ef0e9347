// acforums/database/migrations.go
package database

// migration represents a single database schema migration.
type migration struct {
	Version uint
	Query   string
}

// allMigrations holds all schema changes in order.
var allMigrations = []migration{
	{
		Version: 1,
		Query: `
-- Last-seen marker on users; display only, no counter depends on it.
ALTER TABLE users ADD COLUMN last_active DATETIME;

CREATE INDEX IF NOT EXISTS idx_pms_sender ON private_messages(sender_id);
		`,
	},
	// Future migrations will be added here, e.g.:
	// {
	// 	Version: 2,
	// 	Query: `ALTER TABLE boards ADD COLUMN new_feature_flag BOOLEAN DEFAULT 0;`,
	// },
}
