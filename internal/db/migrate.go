package db

import "fmt"

// Schema statements are idempotent; Migrate runs at every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS relations (
		id TEXT PRIMARY KEY NOT NULL,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_modified INTEGER NOT NULL,
		location TEXT NOT NULL CHECK(location IN ('Local', 'Server')),
		shared_with_id TEXT,
		shared_with_name TEXT,
		shared_with_email TEXT,
		permission TEXT CHECK(permission IN ('owner', 'edit'))
	);`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_modified INTEGER NOT NULL,
		completed_at INTEGER,
		completed_by TEXT,
		relation_id TEXT NOT NULL,
		order_idx INTEGER DEFAULT NULL,
		FOREIGN KEY (relation_id) REFERENCES relations(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS pending_operations (
		id TEXT PRIMARY KEY NOT NULL,
		type TEXT NOT NULL,
		data TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_relation ON tasks(relation_id, order_idx);`,
	`CREATE INDEX IF NOT EXISTS idx_pending_timestamp ON pending_operations(timestamp);`,
}

// Migrate creates the three core tables if they do not exist yet.
func (db *DB) Migrate() error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
