// Package sqlite implements the metadata store AND a blob store on top of a
// single SQLite file.
//
// WHY ONE FILE FOR BOTH?
// The smallest photovault deployment is one binary and one data file. Putting
// the blobs table next to users/photos keeps that promise. It does NOT give us
// cross-store transactions: the coordinator still treats BlobDB and PhotoDB as
// two independent stores, exactly as it would with GridFS + MongoDB. That way
// the embedded setup exercises the same compensation paths as production.
//
// SUB-REPOSITORIES:
// DB owns the connection pool. Users(), Photos() and Blobs() return thin
// typed views over the same pool, each implementing one interface:
//
//	db.Users()  → repository.UserRepository
//	db.Photos() → repository.PhotoRepository
//	db.Blobs()  → blobstore.Store
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/photovault.db"  → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// IN-MEMORY GOTCHA:
	// Every new connection to ":memory:" gets its OWN empty database. If the
	// pool opened a second connection, half our queries would see no tables.
	// Pinning the pool to one connection keeps a single shared database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Two concurrent writers would otherwise get SQLITE_BUSY immediately.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the user repository view of this database.
func (db *DB) Users() *UserDB { return &UserDB{conn: db.conn} }

// Photos returns the photo repository view of this database.
func (db *DB) Photos() *PhotoDB { return &PhotoDB{conn: db.conn} }

// Blobs returns the blob store view of this database.
func (db *DB) Blobs() *BlobDB { return &BlobDB{conn: db.conn} }

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS makes every statement safe to re-run on startup.
func (db *DB) migrate() error {
	// email and username are UNIQUE: the database, not Go code, rejects
	// duplicates, so two concurrent sign-ups cannot both win.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL DEFAULT '',
			email         TEXT NOT NULL UNIQUE,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// date_taken is unix milliseconds (NULL when the image had no EXIF time)
	// so range filters compare integers instead of formatted strings.
	// tags is a JSON array; filters use json_each().
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS photos (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			filename      TEXT NOT NULL,
			blob_id       TEXT NOT NULL UNIQUE,
			content_type  TEXT NOT NULL DEFAULT '',
			date_taken    INTEGER,
			size          INTEGER,
			tags          TEXT NOT NULL DEFAULT '[]',
			description   TEXT,
			is_favorite   INTEGER NOT NULL DEFAULT 0,
			make          TEXT,
			model         TEXT,
			latitude      REAL,
			longitude     REAL,
			width         INTEGER,
			height        INTEGER,
			full_metadata TEXT,
			uploaded_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_photos_owner_id ON photos(owner_id);
		CREATE INDEX IF NOT EXISTS idx_photos_date_taken ON photos(date_taken);
	`)
	if err != nil {
		return fmt.Errorf("creating photos table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS blobs (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			size         INTEGER NOT NULL,
			data         BLOB NOT NULL,
			uploaded_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating blobs table: %w", err)
	}

	return nil
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, which of columns caused it. The driver's message names the column
// as "table.column", e.g. "UNIQUE constraint failed: users.email (2067)".
func uniqueViolation(err error, table string, columns ...string) (string, bool) {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	msg := sqliteErr.Error()
	for _, col := range columns {
		if strings.Contains(msg, table+"."+col) {
			return col, true
		}
	}
	return "", true
}
