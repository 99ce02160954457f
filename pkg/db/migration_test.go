package db

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// TestInitDBCreatesSchema verifies InitDB creates the sentences table with the
// columns the import pipeline writes, and that running it twice is harmless.
func TestInitDBCreatesSchema(t *testing.T) {
	dbConn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()
	dbConn.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := InitDB(ctx, dbConn); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	if err := InitDB(ctx, dbConn); err != nil {
		t.Fatalf("second InitDB failed: %v", err)
	}

	rows, err := dbConn.Query("PRAGMA table_info(sentences)")
	if err != nil {
		t.Fatalf("pragmas: %v", err)
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var colName, ctype string
		var notnull, pk int
		var dfltVal interface{}
		if err := rows.Scan(&cid, &colName, &ctype, &notnull, &dfltVal, &pk); err != nil {
			t.Fatalf("scan col: %v", err)
		}
		cols[colName] = true
	}
	for _, want := range []string{"uuid", "source_text", "target_text", "reading", "romanization",
		"proficiency_level", "difficulty_score", "category", "source", "is_active", "study_count", "fingerprint"} {
		if !cols[want] {
			t.Fatalf("expected column %s in sentences, got %v", want, cols)
		}
	}
}

func TestOpenMemory(t *testing.T) {
	conn, err := Open(context.Background(), ":memory:", 1000)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM sentences").Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty table, got %d", n)
	}
}
