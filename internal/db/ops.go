package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// OpsDB is a separate SQLite database for the server's own bookkeeping
// (audit_log, sql_traces). Keeping it apart from the user database means
// list_tables only ever reports the user's tables.
type OpsDB struct {
	*sql.DB
}

func OpenOps(path string) (*OpsDB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving ops database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating ops data dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", fileDSN(abs, "busy_timeout(5000)", "journal_mode(WAL)"))
	if err != nil {
		return nil, fmt.Errorf("opening ops database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging ops database: %w", err)
	}

	return &OpsDB{sqlDB}, nil
}
