// acforums/utils/utils.go
package utils

// BackupDir is the directory where database snapshots are written.
// Set once at startup before any backup runs.
var BackupDir string
