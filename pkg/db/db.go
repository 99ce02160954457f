package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var migrationsSQL string

// Open opens the sqlite database at path and applies the schema.
// busyTimeoutMS is passed to sqlite so concurrent writers wait instead of failing fast.
func Open(ctx context.Context, path string, busyTimeoutMS int) (*sql.DB, error) {
	dsn := path
	if busyTimeoutMS > 0 {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = fmt.Sprintf("%s%s_busy_timeout=%d", dsn, sep, busyTimeoutMS)
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if strings.HasPrefix(path, ":memory:") {
		// Each connection would otherwise get its own empty database.
		conn.SetMaxOpenConns(1)
	}
	if err := InitDB(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// InitDB runs migrations on the given DB connection using the embedded SQL.
func InitDB(ctx context.Context, db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
