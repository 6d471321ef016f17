// Package storage is the sqlite backing store for the stats side index
// (§6 "-p" print-stats path): a narrow, always-rebuildable read index
// over the counters the binary save file already owns, never the source
// of truth for an input or a form.
package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"mote/internal/config"
	"mote/internal/storage/migrations"

	_ "modernc.org/sqlite"
)

// DB wraps a pooled sqlite connection with the engine's transaction and
// migration conventions.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if absent) the sqlite file at path, applying
// pending migrations before returning.
func Open(path string) (*DB, error) {
	expandedPath, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	// Build DSN with _pragma parameters so that every new connection in
	// the pool is configured identically. Setting PRAGMAs via db.Exec
	// only applies to one pooled connection — any subsequent connection
	// would lack WAL/busy_timeout and hit SQLITE_BUSY under concurrent
	// stats writes from the stats recorder and a concurrent -p reader.
	dsn := buildDSN(expandedPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows only one concurrent writer; keeping the pool small
	// avoids SQLITE_BUSY contention while WAL mode still allows
	// concurrent reads.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{DB: db, path: expandedPath}, nil
}

// buildDSN constructs a modernc.org/sqlite DSN with _pragma parameters so
// every pooled connection inherits the same configuration.
func buildDSN(path string) string {
	v := url.Values{}
	v.Set("_pragma", "journal_mode=WAL")
	v.Add("_pragma", "foreign_keys=ON")
	v.Add("_pragma", "busy_timeout=30000")
	v.Add("_pragma", "synchronous=NORMAL")
	v.Add("_txlock", "immediate")
	return path + "?" + v.Encode()
}

// Path returns the expanded filesystem path backing this DB.
func (db *DB) Path() string {
	return db.path
}

// Tx wraps *sql.Tx so callers in this package share one import surface.
type Tx struct {
	*sql.Tx
}

// Begin starts a transaction.
func (db *DB) Begin() (*Tx, error) {
	tx, err := db.DB.Begin()
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx}, nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (db *DB) WithTx(fn func(*Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
