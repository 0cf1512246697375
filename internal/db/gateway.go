// Package db owns the single SQLite handle the tools run against, plus the
// optional ops database used for audit and SQL traces.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

// Recorder receives one call per statement run through the Gateway.
type Recorder interface {
	Record(ctx context.Context, op, query string, d time.Duration, err error)
}

// Options tune how the database is opened.
type Options struct {
	BusyTimeout time.Duration
	ForeignKeys bool
	Recorder    Recorder
}

// Gateway is the only component talking to the user database. It holds one
// connection for the lifetime of the process; each call is its own
// autocommit unit.
type Gateway struct {
	db   *sql.DB
	path string
	rec  Recorder
}

// Open resolves path to an absolute path and opens it, creating the file
// (and its directory) when missing.
func Open(path string, opts Options) (*Gateway, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	pragmas := []string{fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds())}
	if opts.ForeignKeys {
		pragmas = append(pragmas, "foreign_keys(1)")
	}
	sqlDB, err := sql.Open("sqlite", fileDSN(abs, pragmas...))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Gateway{db: sqlDB, path: abs, rec: opts.Recorder}, nil
}

// fileDSN builds a file: URI for abs. The path is escaped so that '?', '#'
// and '%' in a file name stay part of the name.
func fileDSN(abs string, pragmas ...string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), OmitHost: true}
	return u.String() + "?" + url.Values{"_pragma": pragmas}.Encode()
}

// Path is the absolute path of the database file.
func (g *Gateway) Path() string { return g.path }

func (g *Gateway) Close() error { return g.db.Close() }

// Query runs sql and returns every row. The Gateway does not check that sql
// is read-only.
func (g *Gateway) Query(ctx context.Context, query string) ([]Row, error) {
	start := time.Now()
	rows, err := g.query(ctx, query)
	g.record(ctx, "Query", query, start, err)
	if err != nil {
		return nil, &DatabaseError{Op: "query", Err: err}
	}
	return rows, nil
}

func (g *Gateway) query(ctx context.Context, query string) ([]Row, error) {
	rows, err := g.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// Text comes back as []byte from some expressions. Binary data
		// stays []byte and is rendered as base64.
		for i, v := range values {
			if b, ok := v.([]byte); ok && utf8.Valid(b) {
				values[i] = string(b)
			}
		}
		results = append(results, Row{columns: columns, values: values})
	}
	return results, rows.Err()
}

// ExecResult is the outcome of Execute.
type ExecResult struct {
	AffectedRows int64 `json:"affected_rows"`
}

// Execute runs a statement that returns no rows.
func (g *Gateway) Execute(ctx context.Context, query string) (ExecResult, error) {
	start := time.Now()
	res, err := g.db.ExecContext(ctx, query)
	var n int64
	if err == nil {
		n, err = res.RowsAffected()
	}
	g.record(ctx, "Exec", query, start, err)
	if err != nil {
		return ExecResult{}, &DatabaseError{Op: "execute", Err: err}
	}
	if n < 0 {
		n = 0
	}
	return ExecResult{AffectedRows: n}, nil
}

func (g *Gateway) record(ctx context.Context, op, query string, start time.Time, err error) {
	if g.rec != nil {
		g.rec.Record(ctx, op, query, time.Since(start), err)
	}
}
