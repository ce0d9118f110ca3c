// Command migrate applies the embedded SQLite migrations via goose.
//
// Usage:
//
//	go run ./cmd/migrate up          # Apply all pending migrations
//	go run ./cmd/migrate down        # Roll back the last migration
//	go run ./cmd/migrate status      # Show migration status
//	go run ./cmd/migrate version     # Show current schema version
//	go run ./cmd/migrate redo        # Roll back and re-apply last migration
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/recorder"
)

func main() {
	l := logger.GetLogger()
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	dbPath := os.Getenv("SQLITE_PATH")
	if dbPath == "" {
		l.Fatal().Msg("SQLITE_PATH environment variable is required")
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		l.Fatal().Err(err).Msg("open database")
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		l.Fatal().Err(err).Msg("connect to database")
	}

	goose.SetBaseFS(recorder.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		l.Fatal().Err(err).Msg("set dialect")
	}

	command := os.Args[1]
	if err := goose.RunContext(context.Background(), command, db, recorder.MigrationsDir, os.Args[2:]...); err != nil {
		l.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}
}
