package client

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/client/migrations"

	_ "modernc.org/sqlite"
)

// DSN turns a database file path into a modernc sqlite DSN with the pragmas
// the replica relies on. ":memory:" is passed through.
func DSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// InitDatabase opens the local replica at path and brings its schema up to
// date. The pool is limited to a single connection: SQLite serialises writers
// anyway, and one connection keeps ":memory:" databases coherent.
func InitDatabase(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open local replica: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
