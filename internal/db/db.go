package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// Open opens a SQLite database, sets recommended pragmas, and validates connectivity.
//
// Pragmas travel in the DSN so every pooled connection gets them. The pool is
// limited to one connection: SQLite has a single writer, and an in-memory
// database only exists on the connection that created it.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return db, nil
}

func dsn(dbPath string) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Set("_txlock", "immediate")

	if dbPath == memoryPath || strings.TrimSpace(dbPath) == "" {
		return "file::memory:?" + params.Encode()
	}
	params.Add("_pragma", "journal_mode(WAL)")
	return "file:" + dbPath + "?" + params.Encode()
}
