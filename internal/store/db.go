package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection for the session cache rishta.db.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// purgeOrder lists the cache tables children first.
var purgeOrder = []string{"messages", "outbox", "conversations", "sync_state"}

// Purge deletes every cached row. Called on logout so no chat data outlives
// the session that fetched it.
func (db *DB) Purge() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range purgeOrder {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Counts returns the number of cached conversations and messages.
func (db *DB) Counts() (conversations, messages int, err error) {
	if err = db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&conversations); err != nil {
		return 0, 0, err
	}
	if err = db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&messages); err != nil {
		return 0, 0, err
	}
	return conversations, messages, nil
}
