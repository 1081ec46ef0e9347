// acforums/database/schema.go
package database

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL UNIQUE,
	sort_order INTEGER DEFAULT 0
);
CREATE TABLE IF NOT EXISTS boards (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL UNIQUE,
	description TEXT DEFAULT '',
	link TEXT DEFAULT '', -- external redirect; non-empty means no native content
	sort_order INTEGER DEFAULT 0,
	thread_count INTEGER DEFAULT 0,
	post_count INTEGER DEFAULT 0,
	parent_id INTEGER REFERENCES boards(id),
	category_id INTEGER REFERENCES categories(id),
	last_post_id INTEGER REFERENCES posts(id) ON DELETE SET NULL
);
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	display TEXT DEFAULT '',
	password TEXT DEFAULT '',
	title TEXT DEFAULT 'New Member',
	signature TEXT DEFAULT '',
	post_count INTEGER DEFAULT 0,
	thread_count INTEGER DEFAULT 0,
	warning_points INTEGER DEFAULT 0,
	unread_pms INTEGER DEFAULT 0,
	banned BOOLEAN DEFAULT 0,
	deleted BOOLEAN DEFAULT 0,
	reg_date DATETIME
);
CREATE TABLE IF NOT EXISTS threads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	sticky BOOLEAN DEFAULT 0,
	post_count INTEGER DEFAULT 0,
	creator_id INTEGER REFERENCES users(id),
	board_id INTEGER NOT NULL REFERENCES boards(id),
	last_post_id INTEGER REFERENCES posts(id) ON DELETE SET NULL,
	last_post_time DATETIME
);
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message TEXT DEFAULT '',
	post_time DATETIME,
	edit_time DATETIME,
	creator_id INTEGER REFERENCES users(id),
	editor_id INTEGER REFERENCES users(id),
	thread_id INTEGER NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
	is_root BOOLEAN DEFAULT 0
);
CREATE TABLE IF NOT EXISTS warnings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	issuer_id INTEGER REFERENCES users(id),
	points INTEGER DEFAULT 1,
	message TEXT DEFAULT '',
	issued_at DATETIME
);
CREATE TABLE IF NOT EXISTS private_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	sender_id INTEGER REFERENCES users(id),
	title TEXT DEFAULT '',
	message TEXT DEFAULT '',
	sent_at DATETIME,
	read BOOLEAN DEFAULT 0
);
-- Persisted schedule state so a restart neither loses nor double-fires a job.
CREATE TABLE IF NOT EXISTS job_state (
	name TEXT PRIMARY KEY,
	next_run DATETIME
);

-- --- INDEXES ---
CREATE INDEX IF NOT EXISTS idx_boards_category ON boards(category_id, sort_order);
CREATE INDEX IF NOT EXISTS idx_threads_board ON threads(board_id, sticky DESC, last_post_time DESC);
CREATE INDEX IF NOT EXISTS idx_posts_thread_time ON posts(thread_id, post_time DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_posts_creator ON posts(creator_id);
CREATE INDEX IF NOT EXISTS idx_threads_creator ON threads(creator_id);
CREATE INDEX IF NOT EXISTS idx_warnings_user ON warnings(user_id);
CREATE INDEX IF NOT EXISTS idx_warnings_age ON warnings(issued_at);
CREATE INDEX IF NOT EXISTS idx_pms_user ON private_messages(user_id);
`
