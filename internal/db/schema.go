package db

// SchemaVersion is the current database schema version
const SchemaVersion = 3

const schema = `
CREATE TABLE IF NOT EXISTS lists (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL DEFAULT '',
    subtype TEXT NOT NULL DEFAULT '',
    priority REAL NOT NULL DEFAULT 0,
    modified_at INTEGER NOT NULL DEFAULT 0,
    change_flag TEXT NOT NULL DEFAULT '',
    owner_id TEXT NOT NULL DEFAULT '',
    shared_with TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    list_id INTEGER NOT NULL,
    remote_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'Pending',
    notes TEXT NOT NULL DEFAULT '',
    priority REAL NOT NULL DEFAULT 0,
    modified_at INTEGER NOT NULL DEFAULT 0,
    change_flag TEXT NOT NULL DEFAULT '',
    owner_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    sync_on_startup INTEGER NOT NULL DEFAULT 0,
    last_sync_time INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lists_user ON lists(user_id);
CREATE INDEX IF NOT EXISTS idx_lists_remote ON lists(remote_id);
CREATE INDEX IF NOT EXISTS idx_items_list ON items(list_id);
CREATE INDEX IF NOT EXISTS idx_items_remote ON items(remote_id);
`

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
	// Column, when set as "table.column", skips SQL if the column already exists.
	Column string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add profile name and email",
		SQL: `
ALTER TABLE profiles ADD COLUMN name TEXT NOT NULL DEFAULT '';
ALTER TABLE profiles ADD COLUMN email TEXT NOT NULL DEFAULT '';
`,
		Column: "profiles.name",
	},
	{
		Version:     3,
		Description: "Add sync run history",
		SQL: `
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    migrated INTEGER NOT NULL DEFAULT 0,
    lists INTEGER NOT NULL DEFAULT 0,
    items INTEGER NOT NULL DEFAULT 0,
    outbound INTEGER NOT NULL DEFAULT 0,
    inbound INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_history_user ON sync_history(user_id);
`,
	},
}
