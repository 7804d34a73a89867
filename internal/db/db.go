// Package db opens the SQLite files used for hit dumps and calibration
// artifacts and manages their schema.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Options controls how a database file is opened.
type Options struct {
	// JournalMode is the SQLite journal mode. Hit stores use WAL; single
	// file artifacts use DELETE so nothing is left beside the file after
	// Close.
	JournalMode string
	// SkipMigrations opens the file as is, for readers.
	SkipMigrations bool
}

// Open opens path, applies the connection PRAGMAs and, unless
// opts.SkipMigrations is set, brings the schema to the latest version.
func Open(path string, opts Options) (*DB, error) {
	if opts.JournalMode == "" {
		opts.JournalMode = "WAL"
	}
	if !journalModes[strings.ToUpper(opts.JournalMode)] {
		return nil, fmt.Errorf("unsupported journal mode %q", opts.JournalMode)
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db := &DB{sqlDB}
	if err := db.applyPragmas(opts.JournalMode); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if opts.SkipMigrations {
		return db, nil
	}
	migrationsFS, err := MigrationsFS()
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

var journalModes = map[string]bool{
	"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true,
}

// OpenDB opens a hit store with WAL journaling and the latest schema.
func OpenDB(path string) (*DB, error) {
	return Open(path, Options{JournalMode: "WAL"})
}

func (db *DB) applyPragmas(journalMode string) error {
	pragmas := []string{
		"PRAGMA journal_mode=" + strings.ToUpper(journalMode),
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}
