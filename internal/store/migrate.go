package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending migration embedded under migrations/,
// replacing the teacher's hand-rolled schema_migrations tracker
// (modules/database/migrations.go) with goose's.
func Migrate(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting migration dialect %s: %w", dialect, err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
