// acforums/models/models.go
package models

import (
	"database/sql"
	"time"
)

// --- Content Tree Models ---

type Category struct {
	ID        int64
	Title     string
	SortOrder int
	Boards    []Board
}

type Board struct {
	ID          int64
	Title       string
	Description string
	SortOrder   int
	// Link marks an external redirect board. A board with a non-empty
	// link carries no native content and rejects threads.
	Link        string
	ParentID    sql.NullInt64
	CategoryID  int64
	ThreadCount int
	PostCount   int
	LastPostID  sql.NullInt64
}

type Thread struct {
	ID        int64
	Title     string
	Sticky    bool
	PostCount int
	CreatorID int64
	BoardID   int64
	// LastPostID is a weak reference to the most recent post; LastPostTime
	// is a denormalized copy of that post's time, kept for sort ordering.
	LastPostID   sql.NullInt64
	LastPostTime time.Time
	Posts        []Post
}

type Post struct {
	ID        int64
	Message   string
	PostTime  time.Time
	EditTime  time.Time
	CreatorID int64
	EditorID  sql.NullInt64
	ThreadID  int64
	// IsRoot is true for the thread-opening post. Exactly one per thread;
	// deleting it deletes the whole thread.
	IsRoot bool
}

// --- Identity & Ledger Models ---

type User struct {
	ID            int64
	Username      string
	Display       string
	Password      string
	Title         string
	Signature     string
	PostCount     int
	ThreadCount   int
	WarningPoints int
	UnreadPMs     int
	Banned        bool
	Deleted       bool
	RegDate       time.Time
}

type Warning struct {
	ID       int64
	UserID   int64
	IssuerID int64
	Points   int
	Message  string
	IssuedAt time.Time
}

type PM struct {
	ID       int64
	UserID   int64
	SenderID int64
	Title    string
	Message  string
	SentAt   time.Time
	Read     bool
}

// --- System Models ---

// StorageService abstracts where database backup archives are kept.
type StorageService interface {
	SaveFile(filename string, data []byte, contentType string) (string, error)
	DeleteFile(path string) error
}
