package db

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/billmal071/kobodl/internal/config"
	_ "modernc.org/sqlite"
)

var database *sql.DB

const schema = `
CREATE TABLE IF NOT EXISTS users (
    email         TEXT PRIMARY KEY,
    device_id     TEXT NOT NULL DEFAULT '',
    user_id       TEXT NOT NULL DEFAULT '',
    user_key      TEXT NOT NULL DEFAULT '',
    access_token  TEXT NOT NULL DEFAULT '',
    refresh_token TEXT NOT NULL DEFAULT '',
    created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS downloads (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    revision_id TEXT NOT NULL,
    title       TEXT NOT NULL,
    author      TEXT,
    owner_email TEXT NOT NULL,
    file_path   TEXT NOT NULL,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_downloads_owner ON downloads(owner_email);
CREATE INDEX IF NOT EXISTS idx_downloads_revision ON downloads(revision_id);
`

// Init initializes the database connection and schema at the configured path
func Init() error {
	return Open(config.GetDBPath())
}

// Open opens (or creates) the database at the given path
func Open(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	database = db
	return nil
}

// DB returns the database connection
func DB() *sql.DB {
	return database
}

// Close closes the database connection
func Close() error {
	if database != nil {
		return database.Close()
	}
	return nil
}
