package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

const (
	sqliteDialect = "sqlite3"
	migrationsDir = "sql"
)

//go:embed sql/*.sql
var embedded embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Up runs all pending SQL migrations embedded in the binary.
func Up(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedded)
	if err := goose.SetDialect(sqliteDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("run goose up migrations: %w", err)
	}

	return nil
}
