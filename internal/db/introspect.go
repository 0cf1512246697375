package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Table is one entry of ListTables.
type Table struct {
	Name string `json:"name"`
}

// ListTables returns the user tables in name order. SQLite's internal
// sqlite_* tables are excluded.
func (g *Gateway) ListTables(ctx context.Context) ([]Table, error) {
	const q = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`
	start := time.Now()
	tables, err := g.listTables(ctx, q)
	g.record(ctx, "Query", q, start, err)
	if err != nil {
		return nil, &DatabaseError{Op: "list tables", Err: err}
	}
	return tables, nil
}

func (g *Gateway) listTables(ctx context.Context, q string) ([]Table, error) {
	rows, err := g.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []Table{}
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// Column describes one column of a table, as reported by PRAGMA table_info.
type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	NotNull    bool    `json:"notnull"`
	Default    *string `json:"dflt_value"`
	PrimaryKey bool    `json:"pk"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is a plain SQL identifier.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

// QuoteIdentifier double-quotes name for use as an SQLite identifier.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DescribeTable returns the columns of table in declaration order.
// PRAGMA arguments cannot be bound, so the name is checked against the plain
// identifier grammar and quoted before it is put into the statement.
func (g *Gateway) DescribeTable(ctx context.Context, table string) ([]Column, error) {
	if !ValidIdentifier(table) {
		return nil, &InvalidIdentifierError{Name: table}
	}

	q := fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdentifier(table))
	start := time.Now()
	cols, err := g.describeTable(ctx, q)
	g.record(ctx, "Query", q, start, err)
	if err != nil {
		return nil, &DatabaseError{Op: "describe table", Err: err}
	}
	if len(cols) == 0 {
		return nil, &DatabaseError{Op: "describe table", Err: fmt.Errorf("%w: %s", ErrNoSuchTable, table)}
	}
	return cols, nil
}

func (g *Gateway) describeTable(ctx context.Context, q string) ([]Column, error) {
	rows, err := g.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			c       Column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		c.NotNull = notNull != 0
		c.PrimaryKey = pk > 0
		if dflt.Valid {
			c.Default = &dflt.String
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
