// Direct SQLite assertions for E2E tests, bypassing the MCP server.
package e2e

import (
	"database/sql"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// DBAssert opens the user and ops databases read-only alongside the server.
type DBAssert struct {
	userPath string
	opsPath  string

	mu      sync.Mutex
	userDB  *sql.DB
	opsConn *sql.DB
}

func NewDBAssert(userPath, opsPath string) *DBAssert {
	return &DBAssert{userPath: userPath, opsPath: opsPath}
}

// Close releases persistent connections.
func (d *DBAssert) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.userDB != nil {
		d.userDB.Close()
		d.userDB = nil
	}
	if d.opsConn != nil {
		d.opsConn.Close()
		d.opsConn = nil
	}
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (d *DBAssert) user(t *testing.T) *sql.DB {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.userDB == nil {
		db, err := open(d.userPath)
		if err != nil {
			t.Fatalf("opening user db: %v", err)
		}
		d.userDB = db
	}
	return d.userDB
}

func (d *DBAssert) ops(t *testing.T) *sql.DB {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opsConn == nil {
		db, err := open(d.opsPath)
		if err != nil {
			t.Fatalf("opening ops db: %v", err)
		}
		d.opsConn = db
	}
	return d.opsConn
}

// AssertTableExists checks sqlite_master for the table.
func (d *DBAssert) AssertTableExists(t *testing.T, table string, want bool) {
	t.Helper()
	var n int
	err := d.user(t).QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		t.Fatalf("checking table %s: %v", table, err)
	}
	if (n > 0) != want {
		t.Errorf("table %s exists = %v, want %v", table, n > 0, want)
	}
}

// AssertRowCount checks the number of rows in table.
func (d *DBAssert) AssertRowCount(t *testing.T, table string, want int) {
	t.Helper()
	var n int
	if err := d.user(t).QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	if n != want {
		t.Errorf("%s has %d rows, want %d", table, n, want)
	}
}

// CountAudit returns the number of audit entries for action with status.
func (d *DBAssert) CountAudit(t *testing.T, action, status string) int {
	t.Helper()
	var n int
	err := d.ops(t).QueryRow("SELECT COUNT(*) FROM audit_log WHERE action = ? AND status = ?", action, status).Scan(&n)
	if err != nil {
		t.Fatalf("counting audit entries: %v", err)
	}
	return n
}
