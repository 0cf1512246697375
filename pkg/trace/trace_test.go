package trace

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sqlitemcp/pkg/kit"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStorePersistsOnClose(t *testing.T) {
	db := openDB(t)
	s := NewStore(db, Options{})
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	ctx := kit.WithTraceID(context.Background(), "tr-1")
	s.Record(ctx, "Query", "SELECT 1", time.Millisecond, nil)
	s.Record(ctx, "Exec", "INSERT INTO nope VALUES (1)", time.Millisecond, errors.New("no such table: nope"))
	s.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sql_traces WHERE trace_id = 'tr-1'").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("got %d traces, want 2", n)
	}

	var errMsg string
	if err := db.QueryRow("SELECT error FROM sql_traces WHERE op = 'Exec'").Scan(&errMsg); err != nil {
		t.Fatalf("select: %v", err)
	}
	if errMsg != "no such table: nope" {
		t.Errorf("error = %q", errMsg)
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewStore(nil, Options{Slow: 10 * time.Millisecond, Logger: logger})
	defer s.Close()
	if err := s.Init(); err != nil {
		t.Fatalf("log-only init: %v", err)
	}

	ctx := context.Background()
	s.Record(ctx, "Query", "SELECT 1", time.Millisecond, nil)
	s.Record(ctx, "Query", "SELECT slow", 50*time.Millisecond, nil)
	s.Record(ctx, "Query", "SELECT broken", time.Millisecond, errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	for i, level := range []string{"level=DEBUG", "level=WARN", "level=ERROR"} {
		if !strings.Contains(lines[i], level) {
			t.Errorf("line %d = %q, want %s", i, lines[i], level)
		}
	}
}
